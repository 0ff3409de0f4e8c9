package compare

import "testing"

func textAtom(text string, status Status) *Atom {
	return &Atom{Status: status, Paragraph: 0, text: text, hasText: true}
}

func TestDetectMovesBasic(t *testing.T) {
	original := []*Atom{
		textAtom("kept ", StatusEqual),
		textAtom("the quick brown fox jumps", StatusDeleted),
	}
	revised := []*Atom{
		textAtom("the quick brown fox jumps", StatusInserted),
		textAtom("kept ", StatusEqual),
	}

	if got := DetectMoves(original, revised, 0, 0); got != 1 {
		t.Fatalf("DetectMoves = %d, want 1", got)
	}
	src, dst := original[1], revised[0]
	if src.Status != StatusMovedSource {
		t.Errorf("source status = %v", src.Status)
	}
	if dst.Status != StatusMovedDestination {
		t.Errorf("destination status = %v", dst.Status)
	}
	if src.MoveGroup != dst.MoveGroup || src.MoveGroup == 0 {
		t.Errorf("move groups differ: %d vs %d", src.MoveGroup, dst.MoveGroup)
	}
	if src.MoveName != dst.MoveName || src.MoveName == "" {
		t.Errorf("move names differ: %q vs %q", src.MoveName, dst.MoveName)
	}
}

func TestDetectMovesMinWords(t *testing.T) {
	original := []*Atom{textAtom("only four words here", StatusDeleted)}
	revised := []*Atom{textAtom("only four words here", StatusInserted)}

	if got := DetectMoves(original, revised, 0, 0); got != 0 {
		t.Errorf("four-word block detected as move: %d", got)
	}
	if original[0].Status != StatusDeleted || revised[0].Status != StatusInserted {
		t.Error("statuses must stay untouched below the word threshold")
	}
}

func TestDetectMovesSimilarityThreshold(t *testing.T) {
	original := []*Atom{textAtom("alpha beta gamma delta epsilon", StatusDeleted)}

	// four shared words out of seven distinct: similarity 0.57, below the bar
	revised := []*Atom{textAtom("alpha beta gamma delta others entirely", StatusInserted)}
	if got := DetectMoves(original, revised, 0, 0); got != 0 {
		t.Errorf("dissimilar block detected as move: %d", got)
	}

	// word order does not matter for the similarity test
	revised = []*Atom{textAtom("epsilon delta gamma beta alpha", StatusInserted)}
	if got := DetectMoves(original, revised, 0, 0); got != 1 {
		t.Errorf("reordered identical words not detected: %d", got)
	}
}

func TestDetectMovesCaseInsensitive(t *testing.T) {
	original := []*Atom{textAtom("The Quick Brown Fox Jumps", StatusDeleted)}
	revised := []*Atom{textAtom("the quick brown fox jumps", StatusInserted)}

	if got := DetectMoves(original, revised, 0, 0); got != 1 {
		t.Errorf("case difference broke move detection: %d", got)
	}
}

func TestDetectMovesTieBreak(t *testing.T) {
	original := []*Atom{textAtom("one two three four five", StatusDeleted)}
	revised := []*Atom{
		textAtom("one two three four five", StatusInserted),
		textAtom("separator ", StatusEqual),
		textAtom("one two three four five", StatusInserted),
	}

	if got := DetectMoves(original, revised, 0, 0); got != 1 {
		t.Fatalf("DetectMoves = %d, want 1", got)
	}
	if revised[0].Status != StatusMovedDestination {
		t.Error("first candidate should win the tie")
	}
	if revised[2].Status != StatusInserted {
		t.Error("second candidate must stay inserted")
	}
}

func TestDetectMovesBlockBoundaries(t *testing.T) {
	// an Equal atom splits what would otherwise be one five-word block
	original := []*Atom{
		textAtom("one two three", StatusDeleted),
		textAtom("kept", StatusEqual),
		textAtom("four five", StatusDeleted),
	}
	revised := []*Atom{textAtom("one two three four five", StatusInserted)}

	if got := DetectMoves(original, revised, 0, 0); got != 0 {
		t.Errorf("split blocks detected as move: %d", got)
	}
}

func TestDetectMovesParagraphBoundaries(t *testing.T) {
	// a fresh paragraph right before a relocated one must form its own
	// block instead of fusing and diluting the similarity score
	moved := "the quick brown fox jumps over the lazy dog"
	original := []*Atom{textAtom(moved, StatusDeleted)}

	intro := textAtom("completely fresh introduction added today", StatusInserted)
	dest := textAtom(moved, StatusInserted)
	dest.Paragraph = 1
	revised := []*Atom{intro, dest}

	if got := DetectMoves(original, revised, 0, 0); got != 1 {
		t.Fatalf("DetectMoves = %d, want 1", got)
	}
	if dest.Status != StatusMovedDestination {
		t.Errorf("destination status = %v", dest.Status)
	}
	if intro.Status != StatusInserted {
		t.Error("new paragraph must stay inserted")
	}
	if src := original[0]; src.MoveName != dest.MoveName || src.MoveName == "" {
		t.Errorf("move names differ: %q vs %q", src.MoveName, dest.MoveName)
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b []string
		want float64
	}{
		{[]string{"a", "b"}, []string{"a", "b"}, 1.0},
		{[]string{"a", "b"}, []string{"c", "d"}, 0.0},
		{[]string{"a", "b", "c"}, []string{"b", "c", "d"}, 0.5},
		{nil, nil, 0.0},
	}
	for _, tt := range tests {
		if got := jaccard(wordSet(tt.a), wordSet(tt.b)); got != tt.want {
			t.Errorf("jaccard(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
