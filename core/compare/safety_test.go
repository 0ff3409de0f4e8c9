package compare

import (
	"reflect"
	"testing"
	"time"

	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

const trackedBody = `<w:p>` +
	`<w:r><w:t xml:space="preserve">A</w:t></w:r>` +
	`<w:ins w:id="1" w:author="x" w:date="2026-01-01T00:00:00Z"><w:r><w:t>B</w:t></w:r></w:ins>` +
	`<w:del w:id="2" w:author="x" w:date="2026-01-01T00:00:00Z"><w:r><w:delText>C</w:delText></w:r></w:del>` +
	`</w:p>`

func TestSimulateAcceptAll(t *testing.T) {
	tree := parseBody(t, trackedBody)
	SimulateAcceptAll(tree)

	if got := documentParagraphTexts(tree); !reflect.DeepEqual(got, []string{"AB"}) {
		t.Errorf("accept-all text = %v, want [AB]", got)
	}
	if n, _ := xml.QueryFirst(tree, "//*[local-name()='ins']"); n != nil {
		t.Error("accepted tree still contains w:ins")
	}
	if n, _ := xml.QueryFirst(tree, "//*[local-name()='del']"); n != nil {
		t.Error("accepted tree still contains w:del")
	}
}

func TestSimulateRejectAll(t *testing.T) {
	tree := parseBody(t, trackedBody)
	SimulateRejectAll(tree)

	if got := documentParagraphTexts(tree); !reflect.DeepEqual(got, []string{"AC"}) {
		t.Errorf("reject-all text = %v, want [AC]", got)
	}
	// restored deletion content must be live text again
	if n, _ := xml.QueryFirst(tree, "//*[local-name()='delText']"); n != nil {
		t.Error("rejected tree still contains w:delText")
	}
}

func TestSimulateRejectAllRevertsFormatting(t *testing.T) {
	tree := parseBody(t, `<w:p><w:r>`+
		`<w:rPr><w:b/><w:rPrChange w:id="3" w:author="x" w:date="2026-01-01T00:00:00Z"><w:rPr><w:i/></w:rPr></w:rPrChange></w:rPr>`+
		`<w:t>styled</w:t>`+
		`</w:r></w:p>`)
	SimulateRejectAll(tree)

	if n, _ := xml.QueryFirst(tree, "//*[local-name()='b']"); n != nil {
		t.Error("new formatting survived reject-all")
	}
	if n, _ := xml.QueryFirst(tree, "//*[local-name()='i']"); n == nil {
		t.Error("original formatting not restored")
	}
	if n, _ := xml.QueryFirst(tree, "//*[local-name()='rPrChange']"); n != nil {
		t.Error("rPrChange record left behind")
	}
}

func TestSimulateAcceptAllMergesDeletedParagraphMark(t *testing.T) {
	tree := parseBody(t,
		`<w:p>`+
			`<w:pPr><w:rPr><w:del w:id="4" w:author="x" w:date="2026-01-01T00:00:00Z"/></w:rPr></w:pPr>`+
			`<w:r><w:t xml:space="preserve">first </w:t></w:r>`+
			`</w:p>`+
			para("second"))
	SimulateAcceptAll(tree)

	if got := documentParagraphTexts(tree); !reflect.DeepEqual(got, []string{"first second"}) {
		t.Errorf("paragraphs = %v, want [first second]", got)
	}
}

func TestRunSafetyChecksPass(t *testing.T) {
	origTree := parseBody(t, para("Hello world"))
	revTree := parseBody(t, para("Hello brave world"))
	origBody, _ := xml.QueryFirst(origTree, "//*[local-name()='body']")
	revBody, _ := xml.QueryFirst(revTree, "//*[local-name()='body']")

	oa, ra := runPipeline(origBody, revBody, DefaultAtomizeOptions(), &Options{})
	at := newAttribution("tester", time.Now(), ooxml.NewRevisionIDs(1))
	out := Rebuild(oa, ra, revTree, at)

	checks := runSafetyChecks(out, oa, ra)
	if !checks.Passed() {
		t.Fatalf("safety checks failed: %+v", checks.Mismatches)
	}
}

func TestRunSafetyChecksCatchUnmarkedInsertion(t *testing.T) {
	origTree := parseBody(t, para("Hello world"))
	revTree := parseBody(t, para("Hello brave world"))
	origBody, _ := xml.QueryFirst(origTree, "//*[local-name()='body']")
	revBody, _ := xml.QueryFirst(revTree, "//*[local-name()='body']")

	oa, ra := runPipeline(origBody, revBody, DefaultAtomizeOptions(), &Options{})
	at := newAttribution("tester", time.Now(), ooxml.NewRevisionIDs(1))
	out := Rebuild(oa, ra, revTree, at)

	// strip the insertion wrapper: the text is now untracked, so reject-all
	// can no longer reproduce the original
	ins, _ := xml.QueryFirst(out, "//*[local-name()='ins']")
	if ins == nil {
		t.Fatal("expected w:ins in rebuilt tree")
	}
	xml.Unwrap(ins)

	checks := runSafetyChecks(out, oa, ra)
	if checks.RejectText {
		t.Error("reject_text check should fail on untracked insertion")
	}
	if len(checks.Mismatches) == 0 {
		t.Error("failing check must record a mismatch")
	}
}

func TestVisibleTextSkipsFieldInstructions(t *testing.T) {
	tree := parseBody(t, `<w:p>`+
		`<w:r><w:t xml:space="preserve">Page </w:t></w:r>`+
		`<w:del w:id="7" w:author="x" w:date="2026-01-01T00:00:00Z">`+
		`<w:r><w:fldChar w:fldCharType="begin"/></w:r>`+
		`<w:r><w:delInstrText xml:space="preserve"> PAGE </w:delInstrText></w:r>`+
		`<w:r><w:fldChar w:fldCharType="separate"/></w:r>`+
		`<w:r><w:delText>42</w:delText></w:r>`+
		`<w:r><w:fldChar w:fldCharType="end"/></w:r>`+
		`</w:del>`+
		`</w:p>`)

	// only the cached field result is displayed, never the instruction code
	if got := documentParagraphTexts(tree); !reflect.DeepEqual(got, []string{"Page 42"}) {
		t.Errorf("visible text = %v, want [Page 42]", got)
	}

	SimulateRejectAll(tree)
	if got := documentParagraphTexts(tree); !reflect.DeepEqual(got, []string{"Page 42"}) {
		t.Errorf("restored text = %v, want [Page 42]", got)
	}
}

func TestCompareBookmarks(t *testing.T) {
	res := &CheckResult{}
	if !compareBookmarks("accept_bookmarks", []string{"a", "b"}, []string{"b", "a"}, res) {
		t.Error("order must not matter")
	}
	if compareBookmarks("accept_bookmarks", []string{"a"}, nil, res) {
		t.Error("missing bookmark not detected")
	}
	if compareBookmarks("accept_bookmarks", []string{"a"}, []string{"a", "a"}, res) {
		t.Error("duplicate bookmark not detected")
	}
	if compareBookmarks("accept_bookmarks", nil, []string{"x"}, res) {
		t.Error("unexpected bookmark not detected")
	}
}

func TestExpectedParagraphTexts(t *testing.T) {
	atoms := []*Atom{
		textAtom("keep ", StatusEqual),
		textAtom("drop", StatusDeleted),
		textAtom("this", StatusEqual),
	}
	atoms[0].Paragraph = 0
	atoms[1].Paragraph = 0
	atoms[2].Paragraph = 1

	got := expectedParagraphTexts(atoms, StatusDeleted)
	if !reflect.DeepEqual(got, []string{"keep ", "this"}) {
		t.Errorf("texts = %v", got)
	}
}
