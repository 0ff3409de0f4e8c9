package compare

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/docx"
	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

// The paragraph engine compares whole body blocks (paragraphs and tables) by
// their visible text. Unchanged blocks pass through byte-for-byte; changed
// blocks are emitted twice, once fully deleted and once fully inserted. The
// markup is chunkier than the atom engine's but the comparison is linear in
// the block count and never needs run surgery, so it always rebuilds.

// blockUnit is one top-level body child with its content fingerprint.
type blockUnit struct {
	node *xmlquery.Node
	fp   Fingerprint
}

func compareParagraphs(original, revised *docx.Document, opts *Options, res *Result) *xmlquery.Node {
	if opts.Mode == ModeInPlace {
		res.ModeUsed = ModeRebuild
		res.FallbackReason = "paragraph_engine_rebuild_only"
	}

	origBlocks := bodyBlocks(original.Body)
	revBlocks := bodyBlocks(revised.Body)

	fa := make([]Fingerprint, len(origBlocks))
	for i, b := range origBlocks {
		fa[i] = b.fp
	}
	fb := make([]Fingerprint, len(revBlocks))
	for j, b := range revBlocks {
		fb[j] = b.fp
	}
	pairs := lcsPairs(fa, fb)

	at := newAttribution(opts.Author, opts.Date, ooxml.NewRevisionIDs(nextRevisionID(revised.Tree)))
	tree := xml.Clone(revised.Tree)
	body := bodyOf(tree)
	var sectPr *xmlquery.Node
	for _, c := range xml.Children(body) {
		if ooxml.IsWordElement(c, "sectPr") {
			sectPr = c
		}
	}
	for body.FirstChild != nil {
		xml.Remove(body.FirstChild)
	}

	emitDeleted := func(b blockUnit) {
		n := xml.Clone(b.node)
		markBlockDeleted(n, at)
		xml.AppendChild(body, n)
		res.Stats.Deletions++
	}
	emitInserted := func(b blockUnit) {
		n := xml.Clone(b.node)
		markBlockInserted(n, at)
		xml.AppendChild(body, n)
		res.Stats.Insertions++
	}

	oi, ri := 0, 0
	for _, pr := range pairs {
		for ; oi < pr[0]; oi++ {
			emitDeleted(origBlocks[oi])
		}
		for ; ri < pr[1]; ri++ {
			emitInserted(revBlocks[ri])
		}
		xml.AppendChild(body, xml.Clone(revBlocks[ri].node))
		oi++
		ri++
	}
	for ; oi < len(origBlocks); oi++ {
		emitDeleted(origBlocks[oi])
	}
	for ; ri < len(revBlocks); ri++ {
		emitInserted(revBlocks[ri])
	}

	if sectPr != nil {
		xml.AppendChild(body, sectPr)
	}
	return tree
}

// bodyBlocks lists the top-level body children worth comparing, fingerprinted
// by their visible text.
func bodyBlocks(body *xmlquery.Node) []blockUnit {
	var out []blockUnit
	for _, c := range xml.Children(body) {
		if ooxml.IsWordElement(c, "sectPr") {
			continue
		}
		var sb strings.Builder
		collectVisibleText(c, &sb)
		out = append(out, blockUnit{node: c, fp: fingerprintText(sb.String())})
	}
	return out
}

// markBlockDeleted wraps every run in the cloned block in w:del, converts
// text leaves to their deleted forms, and marks each paragraph mark deleted.
func markBlockDeleted(block *xmlquery.Node, at *attribution) {
	wrapAllRuns(block, "w:del", at)
	renameAll(block, "t", "delText")
	renameAll(block, "instrText", "delInstrText")
	forEachParagraph(block, func(p *xmlquery.Node) {
		markParagraphMark(p, "w:del", at)
	})
}

// markBlockInserted wraps every run in the cloned block in w:ins and marks
// each paragraph mark inserted.
func markBlockInserted(block *xmlquery.Node, at *attribution) {
	wrapAllRuns(block, "w:ins", at)
	forEachParagraph(block, func(p *xmlquery.Node) {
		markParagraphMark(p, "w:ins", at)
	})
}

func wrapAllRuns(block *xmlquery.Node, name string, at *attribution) {
	runs, err := xml.Query(block, ".//*[local-name()='r']")
	if err != nil {
		return
	}
	for _, r := range runs {
		if r.Parent != nil && ooxml.WrapperKind(r.Parent) != ooxml.WrapperNone {
			continue
		}
		if r.Parent != nil && ooxml.IsWordElement(r.Parent, "fldSimple") {
			continue
		}
		w := xml.NewElement(name)
		at.stamp(w)
		xml.InsertBefore(r, w)
		xml.Remove(r)
		xml.AppendChild(w, r)
	}
}

func renameAll(block *xmlquery.Node, from, to string) {
	nodes, err := xml.Query(block, ".//*[local-name()='"+from+"']")
	if err != nil {
		return
	}
	for _, n := range nodes {
		n.Data = to
	}
}

func forEachParagraph(block *xmlquery.Node, fn func(*xmlquery.Node)) {
	if ooxml.IsParagraph(block) {
		fn(block)
		return
	}
	paras, err := xml.Query(block, ".//*[local-name()='p']")
	if err != nil {
		return
	}
	for _, p := range paras {
		fn(p)
	}
}
