package compare

import (
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

// streamItem is one atom in output order, tagged with the side it came from.
type streamItem struct {
	atom         *Atom
	fromOriginal bool
}

// mergedStream interleaves the two classified atom streams into output
// order: original-only atoms (deletions, move sources) surface immediately
// before the revised content that follows their position in the original.
func mergedStream(original, revised []*Atom) []streamItem {
	var out []streamItem
	i := 0
	flushUntil := func(target *Atom) {
		for i < len(original) {
			oa := original[i]
			if oa == target {
				i++
				return
			}
			i++
			if oa.Status == StatusEqual || oa.Status == StatusFormatChanged {
				// emitted from the revised side
				continue
			}
			out = append(out, streamItem{atom: oa, fromOriginal: true})
		}
	}
	for _, ra := range revised {
		if ra.Counterpart != nil {
			flushUntil(ra.Counterpart)
		}
		out = append(out, streamItem{atom: ra})
	}
	flushUntil(nil)
	return out
}

// paraGroup is one output paragraph: the source w:p its structure is cloned
// from and the stream items it contains.
type paraGroup struct {
	src   *xmlquery.Node
	items []streamItem
}

// groupParagraphs splits the merged stream into output paragraphs.
// Original-only atoms whose paragraph partially survives are folded into the
// corresponding revised paragraph; fully-removed paragraphs keep their own.
func groupParagraphs(stream []streamItem, original []*Atom) []paraGroup {
	origToRev := make(map[*xmlquery.Node]*xmlquery.Node)
	for _, a := range original {
		if a.Counterpart != nil && a.ParaNode != nil {
			if _, ok := origToRev[a.ParaNode]; !ok {
				origToRev[a.ParaNode] = a.Counterpart.ParaNode
			}
		}
	}

	key := func(it streamItem) *xmlquery.Node {
		p := it.atom.ParaNode
		if it.fromOriginal {
			if rev, ok := origToRev[p]; ok {
				return rev
			}
		}
		return p
	}

	var groups []paraGroup
	for _, it := range stream {
		k := key(it)
		if len(groups) > 0 && groups[len(groups)-1].src == k {
			groups[len(groups)-1].items = append(groups[len(groups)-1].items, it)
			continue
		}
		groups = append(groups, paraGroup{src: k, items: []streamItem{it}})
	}
	return groups
}

// attribution carries the author/date/id allocation shared by every
// generated revision element in one reconstruction.
type attribution struct {
	author string
	date   string
	ids    *ooxml.RevisionIDs
}

func newAttribution(author string, date time.Time, ids *ooxml.RevisionIDs) *attribution {
	if author == "" {
		author = "redline"
	}
	if date.IsZero() {
		date = time.Now().UTC()
	}
	return &attribution{
		author: author,
		date:   date.UTC().Format(time.RFC3339),
		ids:    ids,
	}
}

func (at *attribution) stamp(n *xmlquery.Node) {
	xml.SetAttr(n, "w:id", at.ids.Next())
	xml.SetAttr(n, "w:author", at.author)
	xml.SetAttr(n, "w:date", at.date)
}

// rebuilder synthesizes a fresh output tree from the classified atom
// stream. It never mutates a pre-existing tree, which is what makes rebuild
// mode unconditionally stable.
type rebuilder struct {
	at   *attribution
	body *xmlquery.Node

	openSrc []*xmlquery.Node
	openDst []*xmlquery.Node
}

// Rebuild discards the input trees' structure and synthesizes a new
// document from the merged atom stream, wrapping changed runs in revision
// markup with freshly-allocated, consistently-paired identifiers.
func Rebuild(original, revised []*Atom, revisedTree *xmlquery.Node, at *attribution) *xmlquery.Node {
	tree := xml.Clone(revisedTree)
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

	rb := &rebuilder{at: at, body: body}
	stream := mergedStream(original, revised)
	for _, g := range groupParagraphs(stream, original) {
		rb.emitParagraph(g)
	}

	if sectPr != nil {
		xml.AppendChild(body, sectPr)
	}
	return tree
}

// bodyOf locates the w:body element under the document node.
func bodyOf(tree *xmlquery.Node) *xmlquery.Node {
	for c := tree.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return xml.FirstChildNamed(c, "w:body")
		}
	}
	return nil
}

func shallowClone(n *xmlquery.Node) *xmlquery.Node {
	cp := &xmlquery.Node{
		Type:         n.Type,
		Data:         n.Data,
		Prefix:       n.Prefix,
		NamespaceURI: n.NamespaceURI,
	}
	if len(n.Attr) > 0 {
		cp.Attr = make([]xmlquery.Attr, len(n.Attr))
		copy(cp.Attr, n.Attr)
	}
	return cp
}

// openContainers aligns the open table-container chain (tbl/tr/tc) with the
// source paragraph's ancestry, closing and opening cloned containers as the
// chain changes. Paragraphs outside tables get the body itself.
func (rb *rebuilder) openContainers(srcPara *xmlquery.Node) *xmlquery.Node {
	var chain []*xmlquery.Node
	anc := xml.Ancestors(srcPara)
	for i := len(anc) - 1; i >= 0; i-- {
		if ooxml.IsWordElement(anc[i], "body") {
			chain = anc[i+1:]
			break
		}
	}

	common := 0
	for common < len(chain) && common < len(rb.openSrc) && rb.openSrc[common] == chain[common] {
		common++
	}
	rb.openSrc = rb.openSrc[:common]
	rb.openDst = rb.openDst[:common]

	for _, src := range chain[common:] {
		dst := shallowClone(src)
		for _, c := range xml.Children(src) {
			if strings.HasSuffix(c.Data, "Pr") || c.Data == "tblGrid" {
				xml.AppendChild(dst, xml.Clone(c))
			}
		}
		xml.AppendChild(rb.parent(), dst)
		rb.openSrc = append(rb.openSrc, src)
		rb.openDst = append(rb.openDst, dst)
	}
	return rb.parent()
}

func (rb *rebuilder) parent() *xmlquery.Node {
	if len(rb.openDst) > 0 {
		return rb.openDst[len(rb.openDst)-1]
	}
	return rb.body
}

func (rb *rebuilder) emitParagraph(g paraGroup) {
	parent := rb.openContainers(g.src)

	p := shallowClone(g.src)
	if pPr := xml.FirstChildNamed(g.src, "w:pPr"); pPr != nil {
		xml.AppendChild(p, xml.Clone(pPr))
	}
	if !allFromOriginal(g.items) {
		carryBookmarks(g.src, p)
	}

	for _, chunk := range chunkItems(g.items) {
		for _, n := range buildChunk(chunk, rb.at) {
			xml.AppendChild(p, n)
		}
	}

	switch {
	case allStatuses(g.items, StatusDeleted, StatusMovedSource):
		markParagraphMark(p, "w:del", rb.at)
	case allStatuses(g.items, StatusInserted, StatusMovedDestination):
		markParagraphMark(p, "w:ins", rb.at)
	}

	xml.AppendChild(parent, p)
}

func allFromOriginal(items []streamItem) bool {
	for _, it := range items {
		if !it.fromOriginal {
			return false
		}
	}
	return true
}

func allStatuses(items []streamItem, want ...Status) bool {
	for _, it := range items {
		ok := false
		for _, w := range want {
			if it.atom.Status == w {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// carryBookmarks clones the source paragraph's bookmark markers into the
// output paragraph so identifier sets survive rebuild.
func carryBookmarks(src, dst *xmlquery.Node) {
	marks, err := xml.Query(src, ".//*[local-name()='bookmarkStart' or local-name()='bookmarkEnd']")
	if err != nil {
		return
	}
	for _, m := range marks {
		xml.AppendChild(dst, shallowClone(m))
	}
}

// chunkItems groups consecutive items that share wrapping requirements:
// same status, same move name, same pre-existing wrapper. Empty-paragraph
// markers produce no runs and are dropped here.
func chunkItems(items []streamItem) [][]streamItem {
	var chunks [][]streamItem
	for _, it := range items {
		if it.atom.EmptyParagraph {
			continue
		}
		if len(chunks) > 0 {
			last := chunks[len(chunks)-1]
			prev := last[len(last)-1].atom
			a := it.atom
			if prev.Status == a.Status && prev.MoveName == a.MoveName && prev.Wrapper == a.Wrapper {
				chunks[len(chunks)-1] = append(last, it)
				continue
			}
		}
		chunks = append(chunks, []streamItem{it})
	}
	return chunks
}

// buildChunk produces the output nodes for one chunk, wrapped in revision
// markup according to its status.
func buildChunk(chunk []streamItem, at *attribution) []*xmlquery.Node {
	status := chunk[0].atom.Status
	deleted := status == StatusDeleted || status == StatusMovedSource

	insertedWrap := status == StatusInserted || status == StatusMovedDestination

	var content []*xmlquery.Node
	for _, it := range chunk {
		nodes := buildContent(it.atom, deleted, insertedWrap)
		if status == StatusFormatChanged {
			for _, n := range nodes {
				attachFormatChange(n, it.atom, at)
			}
		}
		content = append(content, nodes...)
	}
	if len(content) == 0 {
		return nil
	}

	// Pre-existing revision wrappers are re-emitted as found, preserving
	// their attribution.
	if w := chunk[0].atom.Wrapper; w != nil {
		wrapper := shallowClone(w)
		for _, n := range content {
			xml.AppendChild(wrapper, n)
		}
		return []*xmlquery.Node{wrapper}
	}

	switch status {
	case StatusDeleted:
		return []*xmlquery.Node{wrapNodes("w:del", content, at)}
	case StatusInserted:
		return []*xmlquery.Node{wrapNodes("w:ins", content, at)}
	case StatusMovedSource:
		return moveRange("w:moveFrom", chunk[0].atom.MoveName, content, at)
	case StatusMovedDestination:
		return moveRange("w:moveTo", chunk[0].atom.MoveName, content, at)
	default:
		return content
	}
}

func wrapNodes(name string, content []*xmlquery.Node, at *attribution) *xmlquery.Node {
	w := xml.NewElement(name)
	at.stamp(w)
	for _, n := range content {
		xml.AppendChild(w, n)
	}
	return w
}

// moveRange wraps content in a moveFrom/moveTo element bracketed by the
// named range markers Word pairs moves with.
func moveRange(wrapper, name string, content []*xmlquery.Node, at *attribution) []*xmlquery.Node {
	start := xml.NewElement(wrapper + "RangeStart")
	xml.SetAttr(start, "w:id", at.ids.Next())
	xml.SetAttr(start, "w:name", name)
	xml.SetAttr(start, "w:author", at.author)
	xml.SetAttr(start, "w:date", at.date)

	w := wrapNodes(wrapper, content, at)

	end := xml.NewElement(wrapper + "RangeEnd")
	xml.SetAttr(end, "w:id", xml.Attr(start, "w:id"))

	return []*xmlquery.Node{start, w, end}
}

// buildContent produces the output node(s) for one atom: a run carrying its
// text or cloned leaf, or a field construct for collapsed fields.
func buildContent(a *Atom, deleted, insertedWrap bool) []*xmlquery.Node {
	if a.EmptyParagraph {
		return nil
	}
	if a.CollapsedField {
		return buildFieldNodes(a, deleted, insertedWrap)
	}

	run := xml.NewElement("w:r")
	if rPr := runPropsNode(a); rPr != nil {
		xml.AppendChild(run, xml.Clone(rPr))
	}

	if a.IsText() {
		xml.AppendChild(run, textElement(a.Text(), deleted))
	} else {
		xml.AppendChild(run, xml.Clone(a.Node))
	}
	return []*xmlquery.Node{run}
}

func textElement(text string, deleted bool) *xmlquery.Node {
	name := "w:t"
	if deleted {
		name = "w:delText"
	}
	t := xml.NewElement(name)
	if strings.TrimSpace(text) != text {
		xml.SetAttr(t, "xml:space", "preserve")
	}
	xml.SetText(t, text)
	return t
}

// buildFieldNodes emits a collapsed field. Outside revision wrappers a
// w:fldSimple is the compact valid form; inside w:ins/w:del only runs are
// allowed, so the full begin/instruction/separate/result/end construct is
// emitted as runs instead.
func buildFieldNodes(a *Atom, deleted, insertedWrap bool) []*xmlquery.Node {
	instr := ""
	if a.Node != nil {
		instr = a.Node.SelectAttr("w:instr")
	}

	if !deleted && !insertedWrap {
		fld := xml.NewElement("w:fldSimple")
		xml.SetAttr(fld, "w:instr", instr)
		run := xml.NewElement("w:r")
		if rPr := runPropsNode(a); rPr != nil {
			xml.AppendChild(run, xml.Clone(rPr))
		}
		xml.AppendChild(run, textElement(a.Text(), false))
		xml.AppendChild(fld, run)
		return []*xmlquery.Node{fld}
	}

	instrName := "w:instrText"
	if deleted {
		instrName = "w:delInstrText"
	}

	newRun := func(child *xmlquery.Node) *xmlquery.Node {
		r := xml.NewElement("w:r")
		xml.AppendChild(r, child)
		return r
	}
	begin := xml.NewElement("w:fldChar")
	xml.SetAttr(begin, "w:fldCharType", "begin")
	sep := xml.NewElement("w:fldChar")
	xml.SetAttr(sep, "w:fldCharType", "separate")
	end := xml.NewElement("w:fldChar")
	xml.SetAttr(end, "w:fldCharType", "end")
	instrEl := xml.NewElement(instrName)
	xml.SetAttr(instrEl, "xml:space", "preserve")
	xml.SetText(instrEl, instr)

	return []*xmlquery.Node{
		newRun(begin),
		newRun(instrEl),
		newRun(sep),
		newRun(textElement(a.Text(), deleted)),
		newRun(end),
	}
}

// attachFormatChange gives the run its revised formatting plus a
// w:rPrChange child recording the original formatting. The atom must be the
// revised-side member of the pair; its counterpart carries the old
// formatting.
func attachFormatChange(run *xmlquery.Node, a *Atom, at *attribution) {
	if !ooxml.IsRun(run) {
		return
	}
	orig := a.Counterpart
	if orig == nil {
		return
	}

	rPr := xml.FirstChildNamed(run, "w:rPr")
	if rPr == nil {
		rPr = xml.NewElement("w:rPr")
		if run.FirstChild != nil {
			xml.InsertBefore(run.FirstChild, rPr)
		} else {
			xml.AppendChild(run, rPr)
		}
	}
	change := xml.NewElement("w:rPrChange")
	at.stamp(change)
	oldRPr := xml.NewElement("w:rPr")
	if origProps := runPropsNode(orig); origProps != nil {
		for _, c := range xml.Children(origProps) {
			xml.AppendChild(oldRPr, xml.Clone(c))
		}
	}
	xml.AppendChild(change, oldRPr)
	xml.AppendChild(rPr, change)
}

// markParagraphMark records an insertion or deletion of the paragraph mark
// itself in pPr/rPr, so accepting or rejecting merges the paragraph with
// its successor.
func markParagraphMark(p *xmlquery.Node, wrapper string, at *attribution) {
	pPr := xml.FirstChildNamed(p, "w:pPr")
	if pPr == nil {
		pPr = xml.NewElement("w:pPr")
		if p.FirstChild != nil {
			xml.InsertBefore(p.FirstChild, pPr)
		} else {
			xml.AppendChild(p, pPr)
		}
	}
	rPr := xml.FirstChildNamed(pPr, "w:rPr")
	if rPr == nil {
		rPr = xml.NewElement("w:rPr")
		xml.AppendChild(pPr, rPr)
	}
	if xml.FirstChildNamed(rPr, wrapper) != nil {
		return
	}
	mark := xml.NewElement(wrapper)
	at.stamp(mark)
	xml.AppendChild(rPr, mark)
}
