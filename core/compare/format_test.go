package compare

import (
	"reflect"
	"testing"
)

// correlated atomizes both bodies and runs correlation, the precondition for
// format detection.
func correlated(t *testing.T, origBody, revBody string) ([]*Atom, []*Atom) {
	t.Helper()
	original := Atomize(bodyNode(t, origBody), "word/document.xml", DefaultAtomizeOptions()).Atoms
	revised := Atomize(bodyNode(t, revBody), "word/document.xml", DefaultAtomizeOptions()).Atoms
	Correlate(original, revised)
	return original, revised
}

func TestDetectFormatChangesBold(t *testing.T) {
	original, revised := correlated(t,
		para("emphasis"),
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>emphasis</w:t></w:r></w:p>`)

	if got := DetectFormatChanges(original); got != 1 {
		t.Fatalf("DetectFormatChanges = %d, want 1", got)
	}
	oa, ra := original[0], revised[0]
	if oa.Status != StatusFormatChanged || ra.Status != StatusFormatChanged {
		t.Errorf("statuses = %v, %v, want format_changed", oa.Status, ra.Status)
	}
	if oa.Format == nil || oa.Format != ra.Format {
		t.Fatal("both sides must share one FormatChange record")
	}
	if !reflect.DeepEqual(oa.Format.Properties, []string{"bold"}) {
		t.Errorf("Properties = %v, want [bold]", oa.Format.Properties)
	}
	if oa.Format.Old == oa.Format.New {
		t.Error("Old and New serializations must differ")
	}
}

func TestDetectFormatChangesIdempotent(t *testing.T) {
	original, _ := correlated(t,
		para("emphasis"),
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>emphasis</w:t></w:r></w:p>`)

	if got := DetectFormatChanges(original); got != 1 {
		t.Fatalf("first pass = %d, want 1", got)
	}
	if got := DetectFormatChanges(original); got != 0 {
		t.Errorf("second pass = %d, want 0", got)
	}
}

func TestDetectFormatChangesEqualFormatting(t *testing.T) {
	src := `<w:p><w:r><w:rPr><w:b/><w:i/></w:rPr><w:t>same</w:t></w:r></w:p>`
	original, _ := correlated(t, src, src)

	if got := DetectFormatChanges(original); got != 0 {
		t.Errorf("identical formatting reported %d changes", got)
	}
}

func TestDetectFormatChangesIgnoresRsid(t *testing.T) {
	original, _ := correlated(t,
		`<w:p><w:r><w:rPr w:rsidRPr="00AB12CD"><w:b/></w:rPr><w:t>same</w:t></w:r></w:p>`,
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>same</w:t></w:r></w:p>`)

	if got := DetectFormatChanges(original); got != 0 {
		t.Errorf("rsid-only difference reported %d changes", got)
	}
}

func TestDetectFormatChangesMultipleProperties(t *testing.T) {
	original, _ := correlated(t,
		`<w:p><w:r><w:rPr><w:i/></w:rPr><w:t>styled</w:t></w:r></w:p>`,
		`<w:p><w:r><w:rPr><w:b/><w:u w:val="single"/></w:rPr><w:t>styled</w:t></w:r></w:p>`)

	if got := DetectFormatChanges(original); got != 1 {
		t.Fatalf("DetectFormatChanges = %d, want 1", got)
	}
	want := []string{"bold", "italic", "underline"}
	if got := original[0].Format.Properties; !reflect.DeepEqual(got, want) {
		t.Errorf("Properties = %v, want %v", got, want)
	}
}

func TestDetectFormatChangesSkipsNonEqual(t *testing.T) {
	original, _ := correlated(t,
		para("old text"),
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>new text</w:t></w:r></w:p>`)

	// nothing correlates as equal except the space, which has no rPr change
	// worth reporting on one side only
	before := make([]Status, len(original))
	for i, a := range original {
		before[i] = a.Status
	}
	DetectFormatChanges(original)
	for i, a := range original {
		if a.Status != before[i] && before[i] != StatusEqual {
			t.Errorf("non-equal atom %d reclassified: %v -> %v", i, before[i], a.Status)
		}
	}
}
