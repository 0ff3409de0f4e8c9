package compare

import (
	"reflect"
	"testing"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/xml"
)

func bodyNode(t *testing.T, body string) *xmlquery.Node {
	t.Helper()
	tree := parseBody(t, body)
	b, err := xml.QueryFirst(tree, "//*[local-name()='body']")
	if err != nil || b == nil {
		t.Fatalf("body not found: %v", err)
	}
	return b
}

// noSplit keeps atoms at leaf granularity so merge behavior is visible.
var noSplit = AtomizeOptions{}

func TestAtomizeMergesContiguousText(t *testing.T) {
	body := bodyNode(t, `<w:p><w:r>`+
		`<w:t xml:space="preserve">Hel</w:t>`+
		`<w:t xml:space="preserve">lo</w:t>`+
		`</w:r></w:p>`)

	res := Atomize(body, "word/document.xml", noSplit)
	if got := atomTexts(res.Atoms); !reflect.DeepEqual(got, []string{"Hello"}) {
		t.Errorf("atoms = %v, want [Hello]", got)
	}
}

func TestAtomizeMergeAcrossRuns(t *testing.T) {
	src := `<w:p>` +
		`<w:r><w:t xml:space="preserve">Hel</w:t></w:r>` +
		`<w:r><w:t xml:space="preserve">lo</w:t></w:r>` +
		`</w:p>`

	res := Atomize(bodyNode(t, src), "word/document.xml", AtomizeOptions{MergeAcrossRuns: true})
	if got := atomTexts(res.Atoms); !reflect.DeepEqual(got, []string{"Hello"}) {
		t.Errorf("with MergeAcrossRuns, atoms = %v, want [Hello]", got)
	}

	res = Atomize(bodyNode(t, src), "word/document.xml", noSplit)
	if got := atomTexts(res.Atoms); !reflect.DeepEqual(got, []string{"Hel", "lo"}) {
		t.Errorf("without MergeAcrossRuns, atoms = %v, want [Hel lo]", got)
	}
}

func TestAtomizeDoesNotMergeAcrossFormatting(t *testing.T) {
	body := bodyNode(t, `<w:p>`+
		`<w:r><w:t xml:space="preserve">plain</w:t></w:r>`+
		`<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">bold</w:t></w:r>`+
		`</w:p>`)

	res := Atomize(body, "word/document.xml", AtomizeOptions{MergeAcrossRuns: true})
	if got := atomTexts(res.Atoms); !reflect.DeepEqual(got, []string{"plain", "bold"}) {
		t.Errorf("atoms = %v, want [plain bold]", got)
	}
}

func TestAtomizeWordSplit(t *testing.T) {
	body := bodyNode(t, para("Hello brave world"))

	res := Atomize(body, "word/document.xml", DefaultAtomizeOptions())
	want := []string{"Hello", " ", "brave", " ", "world"}
	if got := atomTexts(res.Atoms); !reflect.DeepEqual(got, want) {
		t.Fatalf("atoms = %v, want %v", got, want)
	}
	for i, a := range res.Atoms {
		if !a.WordSplit {
			t.Errorf("atom %d not marked WordSplit", i)
		}
		if a.SplitParent == nil {
			t.Errorf("atom %d missing SplitParent", i)
		}
	}
}

func TestAtomizePunctuationRemerge(t *testing.T) {
	// Punctuation opening a differently formatted run reattaches to the
	// preceding word so "Hello" vs "Hello." compares as one unit.
	body := bodyNode(t, `<w:p>`+
		`<w:r><w:t xml:space="preserve">Hello</w:t></w:r>`+
		`<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">. World</w:t></w:r>`+
		`</w:p>`)

	res := Atomize(body, "word/document.xml", DefaultAtomizeOptions())
	want := []string{"Hello.", " ", "World"}
	if got := atomTexts(res.Atoms); !reflect.DeepEqual(got, want) {
		t.Errorf("atoms = %v, want %v", got, want)
	}
}

func TestAtomizeCollapsesField(t *testing.T) {
	body := bodyNode(t, `<w:p><w:r>`+
		`<w:fldChar w:fldCharType="begin"/>`+
		`<w:instrText xml:space="preserve"> PAGE </w:instrText>`+
		`<w:fldChar w:fldCharType="separate"/>`+
		`<w:t>42</w:t>`+
		`<w:fldChar w:fldCharType="end"/>`+
		`</w:r></w:p>`)

	res := Atomize(body, "word/document.xml", DefaultAtomizeOptions())
	if len(res.Atoms) != 1 {
		t.Fatalf("atoms = %v, want one collapsed field", atomTexts(res.Atoms))
	}
	a := res.Atoms[0]
	if !a.CollapsedField {
		t.Error("atom not marked CollapsedField")
	}
	if a.Text() != "42" {
		t.Errorf("field text = %q, want cached result", a.Text())
	}
	if a.Field == nil || a.Field.Name != "PAGE" {
		t.Errorf("field code = %+v, want PAGE", a.Field)
	}
	// the rendered value compares equal to hand-typed text
	if a.Fingerprint != fingerprintText("42") {
		t.Error("collapsed field fingerprint should match plain text")
	}
}

func TestAtomizeFldSimple(t *testing.T) {
	body := bodyNode(t, `<w:p>`+
		`<w:fldSimple w:instr=" REF Recitals \h "><w:r><w:t>the Recitals</w:t></w:r></w:fldSimple>`+
		`</w:p>`)

	res := Atomize(body, "word/document.xml", noSplit)
	if len(res.Atoms) != 1 {
		t.Fatalf("atoms = %v, want one collapsed field", atomTexts(res.Atoms))
	}
	a := res.Atoms[0]
	if !a.CollapsedField || a.Text() != "the Recitals" {
		t.Errorf("fldSimple atom = %q collapsed=%v", a.Text(), a.CollapsedField)
	}
	if a.Field == nil || a.Field.Name != "REF" {
		t.Errorf("field code = %+v, want REF", a.Field)
	}
}

func TestAtomizeEmptyParagraphs(t *testing.T) {
	body := bodyNode(t, para("x")+`<w:p/><w:p/>`)

	res := Atomize(body, "word/document.xml", noSplit)
	if res.EmptyParagraphs != 2 {
		t.Fatalf("EmptyParagraphs = %d, want 2", res.EmptyParagraphs)
	}
	if len(res.Atoms) != 3 {
		t.Fatalf("atoms = %v, want 3", atomTexts(res.Atoms))
	}
	e1, e2 := res.Atoms[1], res.Atoms[2]
	if !e1.EmptyParagraph || !e2.EmptyParagraph {
		t.Fatal("empty paragraphs not marked")
	}
	if e1.Fingerprint == e2.Fingerprint {
		t.Error("consecutive empty paragraphs must stay distinguishable")
	}
}

func TestAtomizeSeedsRevisionStatus(t *testing.T) {
	body := bodyNode(t, `<w:p>`+
		`<w:ins w:id="1" w:author="x"><w:r><w:t>added</w:t></w:r></w:ins>`+
		`<w:del w:id="2" w:author="x"><w:r><w:delText>gone</w:delText></w:r></w:del>`+
		`<w:r><w:t>plain</w:t></w:r>`+
		`</w:p>`)

	res := Atomize(body, "word/document.xml", noSplit)
	if len(res.Atoms) != 3 {
		t.Fatalf("atoms = %v", atomTexts(res.Atoms))
	}
	if res.Atoms[0].Status != StatusInserted || res.Atoms[0].Wrapper == nil {
		t.Errorf("ins atom status = %v", res.Atoms[0].Status)
	}
	if res.Atoms[1].Status != StatusDeleted || res.Atoms[1].Wrapper == nil {
		t.Errorf("del atom status = %v", res.Atoms[1].Status)
	}
	if res.Atoms[2].Status != StatusUnknown || res.Atoms[2].Wrapper != nil {
		t.Errorf("plain atom status = %v", res.Atoms[2].Status)
	}
}

func TestAtomizeTabAndBreak(t *testing.T) {
	body := bodyNode(t, `<w:p><w:r>`+
		`<w:t>a</w:t><w:tab/><w:br/>`+
		`</w:r></w:p>`)

	res := Atomize(body, "word/document.xml", noSplit)
	want := []string{"a", "\t", "\n"}
	if got := atomTexts(res.Atoms); !reflect.DeepEqual(got, want) {
		t.Errorf("atoms = %q, want %q", got, want)
	}
}

func TestAtomizeAssignsParagraphIndexes(t *testing.T) {
	body := bodyNode(t, para("one")+para("two"))

	res := Atomize(body, "word/document.xml", noSplit)
	if len(res.Atoms) != 2 {
		t.Fatalf("atoms = %v", atomTexts(res.Atoms))
	}
	if res.Atoms[0].Paragraph != 0 || res.Atoms[1].Paragraph != 1 {
		t.Errorf("paragraph indexes = %d, %d", res.Atoms[0].Paragraph, res.Atoms[1].Paragraph)
	}
}

func TestAtomizeSkipsNonContent(t *testing.T) {
	body := bodyNode(t, `<w:p>`+
		`<w:pPr><w:jc w:val="both"/></w:pPr>`+
		`<w:bookmarkStart w:id="0" w:name="bm"/>`+
		`<w:proofErr w:type="spellStart"/>`+
		`<w:r><w:t>word</w:t></w:r>`+
		`<w:proofErr w:type="spellEnd"/>`+
		`<w:bookmarkEnd w:id="0"/>`+
		`</w:p>`)

	res := Atomize(body, "word/document.xml", noSplit)
	if got := atomTexts(res.Atoms); !reflect.DeepEqual(got, []string{"word"}) {
		t.Errorf("atoms = %v, want [word]", got)
	}
}
