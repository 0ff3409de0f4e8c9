package compare

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

// Round-trip safety checks: the reconstructed document is verified by
// simulation, not assumed correct. "Accept all" must reproduce the text and
// bookmark identifiers expected from the revised atom stream; "reject all"
// must reproduce the original's. Four independent pass/fail checks with
// structured diagnostics on failure.

// Mismatch describes one divergence found by a safety check.
type Mismatch struct {
	Check          string   `json:"check"`
	ParagraphIndex int      `json:"paragraph_index,omitempty"`
	Expected       string   `json:"expected,omitempty"`
	Actual         string   `json:"actual,omitempty"`
	MissingIDs     []string `json:"missing_ids,omitempty"`
	UnexpectedIDs  []string `json:"unexpected_ids,omitempty"`
	DuplicateIDs   []string `json:"duplicate_ids,omitempty"`
}

// CheckResult holds the four round-trip checks for one reconstruction
// attempt.
type CheckResult struct {
	AcceptText      bool       `json:"accept_text"`
	RejectText      bool       `json:"reject_text"`
	AcceptBookmarks bool       `json:"accept_bookmarks"`
	RejectBookmarks bool       `json:"reject_bookmarks"`
	Mismatches      []Mismatch `json:"mismatches,omitempty"`
}

// Passed reports whether every check passed.
func (c *CheckResult) Passed() bool {
	return c.AcceptText && c.RejectText && c.AcceptBookmarks && c.RejectBookmarks
}

// AttemptDiagnostics records one reconstruction attempt and its checks.
type AttemptDiagnostics struct {
	Attempt string      `json:"attempt"`
	Checks  CheckResult `json:"checks"`
}

// runSafetyChecks simulates accept-all and reject-all on copies of the
// reconstructed tree and compares the outcomes against the classified atom
// streams.
func runSafetyChecks(tree *xmlquery.Node, original, revised []*Atom) *CheckResult {
	res := &CheckResult{}

	acceptTree := xml.Clone(tree)
	SimulateAcceptAll(acceptTree)
	rejectTree := xml.Clone(tree)
	SimulateRejectAll(rejectTree)

	wantAccept := expectedParagraphTexts(revised, StatusDeleted, StatusMovedSource)
	gotAccept := documentParagraphTexts(acceptTree)
	res.AcceptText = compareTexts("accept_text", wantAccept, gotAccept, res)

	wantReject := expectedParagraphTexts(original, StatusInserted, StatusMovedDestination)
	gotReject := documentParagraphTexts(rejectTree)
	res.RejectText = compareTexts("reject_text", wantReject, gotReject, res)

	res.AcceptBookmarks = compareBookmarks("accept_bookmarks", bookmarkNames(revisedTreeOf(revised)), bookmarkNames(acceptTree), res)
	res.RejectBookmarks = compareBookmarks("reject_bookmarks", expectedRejectBookmarks(original, revised), bookmarkNames(rejectTree), res)

	return res
}

// revisedTreeOf recovers the document node above the first atom's paragraph;
// empty atom streams have no bookmarks to check.
func revisedTreeOf(atoms []*Atom) *xmlquery.Node {
	for _, a := range atoms {
		n := a.ParaNode
		for n != nil && n.Parent != nil {
			n = n.Parent
		}
		return n
	}
	return nil
}

// expectedRejectBookmarks: bookmarks present in both versions must survive
// reject-all. Original-only bookmarks lived inside content the revised file
// no longer carries markers for, so their restoration is not guaranteed.
func expectedRejectBookmarks(original, revised []*Atom) []string {
	origSet := make(map[string]bool)
	for _, name := range bookmarkNames(revisedTreeOf(original)) {
		origSet[name] = true
	}
	var out []string
	for _, name := range bookmarkNames(revisedTreeOf(revised)) {
		if origSet[name] {
			out = append(out, name)
		}
	}
	return out
}

// expectedParagraphTexts derives the paragraph text list an accept-all or
// reject-all outcome should show: group the stream's atoms by paragraph
// index, dropping atoms whose statuses are removed by the simulation.
func expectedParagraphTexts(atoms []*Atom, dropped ...Status) []string {
	var texts []string
	var cur strings.Builder
	curPara := -2
	flush := func() {
		if curPara != -2 {
			texts = append(texts, cur.String())
			cur.Reset()
		}
	}
	for _, a := range atoms {
		drop := false
		for _, d := range dropped {
			if a.Status == d {
				drop = true
				break
			}
		}
		if drop {
			continue
		}
		if a.Paragraph != curPara {
			flush()
			curPara = a.Paragraph
		}
		cur.WriteString(a.Text())
	}
	flush()
	return texts
}

// documentParagraphTexts extracts the visible text of every paragraph in
// document order, using the same textual conventions as Atom.Text.
func documentParagraphTexts(tree *xmlquery.Node) []string {
	paras, err := xml.Query(tree, "//*[local-name()='p']")
	if err != nil {
		return nil
	}
	texts := make([]string, 0, len(paras))
	for _, p := range paras {
		var sb strings.Builder
		collectVisibleText(p, &sb)
		texts = append(texts, sb.String())
	}
	return texts
}

func collectVisibleText(n *xmlquery.Node, sb *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.TextNode {
			sb.WriteString(c.Data)
			continue
		}
		if c.Type != xmlquery.ElementNode {
			continue
		}
		switch {
		case ooxml.IsNonContent(c):
		case ooxml.IsWordElement(c, "instrText"), ooxml.IsWordElement(c, "delInstrText"):
			// field instruction codes are not displayed; the cached
			// result run carries the visible text
		case ooxml.IsWordElement(c, "tab"):
			sb.WriteString("\t")
		case ooxml.IsWordElement(c, "br"), ooxml.IsWordElement(c, "cr"):
			sb.WriteString("\n")
		case ooxml.IsWordElement(c, "p"):
			// nested paragraph (table cell) handled as its own entry
		default:
			collectVisibleText(c, sb)
		}
	}
}

func compareTexts(check string, want, got []string, res *CheckResult) bool {
	n := len(want)
	if len(got) < n {
		n = len(got)
	}
	for i := 0; i < n; i++ {
		if want[i] != got[i] {
			res.Mismatches = append(res.Mismatches, Mismatch{
				Check:          check,
				ParagraphIndex: i,
				Expected:       want[i],
				Actual:         got[i],
			})
			return false
		}
	}
	if len(want) != len(got) {
		m := Mismatch{Check: check, ParagraphIndex: n}
		if len(want) > len(got) {
			m.Expected = want[n]
		} else {
			m.Actual = got[n]
		}
		res.Mismatches = append(res.Mismatches, m)
		return false
	}
	return true
}

func bookmarkNames(tree *xmlquery.Node) []string {
	if tree == nil {
		return nil
	}
	nodes, err := xml.Query(tree, "//*[local-name()='bookmarkStart']")
	if err != nil {
		return nil
	}
	var names []string
	for _, n := range nodes {
		if name := n.SelectAttr("w:name"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func compareBookmarks(check string, want, got []string, res *CheckResult) bool {
	wantSet := make(map[string]int)
	for _, w := range want {
		wantSet[w]++
	}
	gotSet := make(map[string]int)
	for _, g := range got {
		gotSet[g]++
	}

	var missing, unexpected, duplicate []string
	for w := range wantSet {
		if gotSet[w] == 0 {
			missing = append(missing, w)
		}
	}
	for g, n := range gotSet {
		if wantSet[g] == 0 {
			unexpected = append(unexpected, g)
		}
		if n > 1 {
			duplicate = append(duplicate, g)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 && len(duplicate) == 0 {
		return true
	}
	res.Mismatches = append(res.Mismatches, Mismatch{
		Check:         check,
		MissingIDs:    missing,
		UnexpectedIDs: unexpected,
		DuplicateIDs:  duplicate,
	})
	return false
}

// SimulateAcceptAll applies every tracked change in the tree: deletions and
// move sources disappear, insertions and move destinations become plain
// content, format changes keep the new formatting, and paragraphs whose
// mark is deleted merge into their successor.
func SimulateAcceptAll(tree *xmlquery.Node) {
	removeAll(tree, "del", "moveFrom", "moveFromRangeStart", "moveFromRangeEnd")
	unwrapAll(tree, "ins", "moveTo", false)
	removeAll(tree, "moveToRangeStart", "moveToRangeEnd", "rPrChange")
	mergeMarkedParagraphs(tree, "w:del")
}

// SimulateRejectAll discards every tracked change: insertions and move
// destinations disappear, deletions and move sources become plain content,
// format changes revert to the old formatting, and paragraphs whose mark is
// inserted merge into their successor.
func SimulateRejectAll(tree *xmlquery.Node) {
	removeAll(tree, "ins", "moveTo", "moveToRangeStart", "moveToRangeEnd")
	unwrapAll(tree, "del", "moveFrom", true)
	removeAll(tree, "moveFromRangeStart", "moveFromRangeEnd")
	revertFormatChanges(tree)
	mergeMarkedParagraphs(tree, "w:ins")
}

// removeAll deletes all main-namespace elements with the given local names,
// except revision marks inside pPr/rPr (paragraph-mark revisions), which
// mergeMarkedParagraphs consumes.
func removeAll(tree *xmlquery.Node, locals ...string) {
	for _, local := range locals {
		nodes, err := xml.Query(tree, "//*[local-name()='"+local+"']")
		if err != nil {
			continue
		}
		for _, n := range nodes {
			if isParagraphMarkRevision(n) {
				continue
			}
			xml.Remove(n)
		}
	}
}

func isParagraphMarkRevision(n *xmlquery.Node) bool {
	return (n.Data == "ins" || n.Data == "del") &&
		n.Parent != nil && n.Parent.Data == "rPr" &&
		n.Parent.Parent != nil && n.Parent.Parent.Data == "pPr"
}

// unwrapAll splices wrapper children into the wrapper's position. When
// restore is set, w:delText and w:delInstrText revert to their live
// element names.
func unwrapAll(tree *xmlquery.Node, localA, localB string, restore bool) {
	for _, local := range []string{localA, localB} {
		nodes, err := xml.Query(tree, "//*[local-name()='"+local+"']")
		if err != nil {
			continue
		}
		for _, n := range nodes {
			if isParagraphMarkRevision(n) {
				continue
			}
			xml.Unwrap(n)
		}
	}
	if restore {
		for old, live := range map[string]string{"delText": "t", "delInstrText": "instrText"} {
			nodes, err := xml.Query(tree, "//*[local-name()='"+old+"']")
			if err != nil {
				continue
			}
			for _, n := range nodes {
				n.Data = live
			}
		}
	}
}

// revertFormatChanges restores each run's original formatting from its
// w:rPrChange record.
func revertFormatChanges(tree *xmlquery.Node) {
	nodes, err := xml.Query(tree, "//*[local-name()='rPrChange']")
	if err != nil {
		return
	}
	for _, change := range nodes {
		rPr := change.Parent
		if rPr == nil || rPr.Data != "rPr" {
			continue
		}
		old := xml.FirstChildNamed(change, "w:rPr")
		restored := xml.NewElement("w:rPr")
		if old != nil {
			for _, c := range xml.Children(old) {
				xml.AppendChild(restored, xml.Clone(c))
			}
		}
		xml.InsertBefore(rPr, restored)
		xml.Remove(rPr)
		if len(xml.Children(restored)) == 0 {
			xml.Remove(restored)
		}
	}
}

// mergeMarkedParagraphs merges each paragraph whose mark carries the given
// revision into its following sibling paragraph; a trailing marked
// paragraph is dropped when it has no remaining content. Bookmark markers
// do not travel with merged content.
func mergeMarkedParagraphs(tree *xmlquery.Node, wrapper string) {
	paras, err := xml.Query(tree, "//*[local-name()='p']")
	if err != nil {
		return
	}
	for _, p := range paras {
		pPr := xml.FirstChildNamed(p, "w:pPr")
		if pPr == nil {
			continue
		}
		rPr := xml.FirstChildNamed(pPr, "w:rPr")
		if rPr == nil || xml.FirstChildNamed(rPr, wrapper) == nil {
			continue
		}
		xml.Remove(xml.FirstChildNamed(rPr, wrapper))

		next := nextParagraphSibling(p)
		if next == nil {
			if !hasVisibleContent(p) {
				xml.Remove(p)
			}
			continue
		}
		anchor := xml.FirstChildNamed(next, "w:pPr")
		var moved []*xmlquery.Node
		for _, c := range xml.Children(p) {
			switch c.Data {
			case "pPr", "bookmarkStart", "bookmarkEnd":
				continue
			}
			moved = append(moved, c)
		}
		// insert in order at the front of the next paragraph
		for i := len(moved) - 1; i >= 0; i-- {
			c := moved[i]
			xml.Remove(c)
			if anchor != nil {
				xml.InsertAfter(anchor, c)
			} else if next.FirstChild != nil {
				xml.InsertBefore(next.FirstChild, c)
			} else {
				xml.AppendChild(next, c)
			}
		}
		xml.Remove(p)
	}
}

func nextParagraphSibling(p *xmlquery.Node) *xmlquery.Node {
	for s := p.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == xmlquery.ElementNode && ooxml.IsParagraph(s) {
			return s
		}
	}
	return nil
}

func hasVisibleContent(p *xmlquery.Node) bool {
	var sb strings.Builder
	collectVisibleText(p, &sb)
	return sb.Len() > 0
}
