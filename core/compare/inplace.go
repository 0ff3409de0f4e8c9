package compare

import (
	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

// In-place reconstruction mutates the revised tree directly instead of
// synthesizing a new one: inserted content is wrapped where it sits, deleted
// content is spliced back in from the original, and untouched markup
// (comments, section properties, exotic constructs) survives byte-for-byte.
// The strategy is conservative. A run whose atoms cannot be mapped back onto
// its children cleanly is left unmarked, and the round-trip safety checks
// decide whether the result is usable.

// applyInPlace rewrites the tree the revised atoms were atomized from so it
// carries tracked-changes markup for the classified differences.
func applyInPlace(original, revised []*Atom, at *attribution) {
	ip := &inplacer{at: at}
	ip.markRevised(revised)
	ip.spliceDeletions(original, revised)
}

type inplacer struct {
	at *attribution
}

// runGroup is the revised atoms sharing one top-level anchor node (usually a
// w:r, a w:fldSimple for simple fields).
type runGroup struct {
	anchor *xmlquery.Node
	atoms  []*Atom
}

func (ip *inplacer) markRevised(revised []*Atom) {
	byPara := splitByParagraph(revised)
	for _, para := range byPara {
		ip.markParagraph(para)
	}
}

func splitByParagraph(atoms []*Atom) [][]*Atom {
	var out [][]*Atom
	var cur []*Atom
	var curPara *xmlquery.Node
	for _, a := range atoms {
		if a.ParaNode != curPara || cur == nil {
			if cur != nil {
				out = append(out, cur)
			}
			cur = nil
			curPara = a.ParaNode
		}
		cur = append(cur, a)
	}
	if cur != nil {
		out = append(out, cur)
	}
	return out
}

func (ip *inplacer) markParagraph(atoms []*Atom) {
	para := atoms[0].ParaNode

	inserted := true
	for _, a := range atoms {
		if a.Wrapper != nil {
			continue
		}
		if a.Status != StatusInserted && a.Status != StatusMovedDestination {
			inserted = false
			break
		}
	}
	if inserted && para != nil {
		markParagraphMark(para, "w:ins", ip.at)
	}

	for _, g := range groupByAnchor(atoms, para) {
		ip.markGroup(g, para)
	}
}

// groupByAnchor buckets consecutive atoms by the paragraph-level node that
// contains their sources. Empty-paragraph markers and atoms inside
// pre-existing revision wrappers are dropped; the latter already carry
// markup.
func groupByAnchor(atoms []*Atom, para *xmlquery.Node) []*runGroup {
	var groups []*runGroup
	for _, a := range atoms {
		if a.EmptyParagraph || a.Wrapper != nil {
			continue
		}
		anchor := topNodeOf(a, para)
		if anchor == nil {
			continue
		}
		if len(groups) > 0 && groups[len(groups)-1].anchor == anchor {
			groups[len(groups)-1].atoms = append(groups[len(groups)-1].atoms, a)
			continue
		}
		groups = append(groups, &runGroup{anchor: anchor, atoms: []*Atom{a}})
	}
	return groups
}

// topNodeOf walks up from the atom's first source to the direct child of the
// paragraph that contains it.
func topNodeOf(a *Atom, para *xmlquery.Node) *xmlquery.Node {
	var start *xmlquery.Node
	if len(a.Sources) > 0 {
		start = a.Sources[0]
	} else {
		start = a.Node
	}
	for n := start; n != nil; n = n.Parent {
		if n.Parent == para {
			return n
		}
	}
	return nil
}

func (ip *inplacer) markGroup(g *runGroup, para *xmlquery.Node) {
	uniform := g.atoms[0].Status
	mixed := false
	for _, a := range g.atoms[1:] {
		if a.Status != uniform || a.MoveName != g.atoms[0].MoveName {
			mixed = true
			break
		}
	}

	if !mixed {
		switch uniform {
		case StatusEqual:
			return
		case StatusFormatChanged:
			ip.recordFormatChange(g)
			return
		case StatusInserted:
			ip.wrapAnchors(g, "w:ins", "")
			return
		case StatusMovedDestination:
			ip.wrapAnchors(g, "w:moveTo", g.atoms[0].MoveName)
			return
		default:
			return
		}
	}

	ip.splitRun(g, para)
}

// recordFormatChange appends a w:rPrChange to the run's properties in place,
// preserving the revised formatting and recording the original.
func (ip *inplacer) recordFormatChange(g *runGroup) {
	run := g.anchor
	if !ooxml.IsRun(run) {
		return
	}
	rPr := xml.FirstChildNamed(run, "w:rPr")
	if rPr != nil && xml.FirstChildNamed(rPr, "w:rPrChange") != nil {
		return
	}
	attachFormatChange(run, g.atoms[0], ip.at)
}

// wrapAnchors moves every source node covered by the group into a single
// revision wrapper at the position of the group's anchor. Collapsed fields
// can span several sibling nodes; all of them travel together.
func (ip *inplacer) wrapAnchors(g *runGroup, name, moveName string) {
	para := g.anchor.Parent
	nodes := []*xmlquery.Node{g.anchor}
	seen := map[*xmlquery.Node]bool{g.anchor: true}
	for _, a := range g.atoms {
		for _, src := range a.Sources {
			for n := src; n != nil; n = n.Parent {
				if n.Parent == para && !seen[n] {
					seen[n] = true
					nodes = append(nodes, n)
				}
			}
		}
	}

	wrapper := xml.NewElement(name)
	ip.at.stamp(wrapper)
	xml.InsertBefore(nodes[0], wrapper)
	for _, n := range nodes {
		xml.Remove(n)
		xml.AppendChild(wrapper, n)
	}

	if moveName != "" {
		start := xml.NewElement(name + "RangeStart")
		xml.SetAttr(start, "w:id", ip.at.ids.Next())
		xml.SetAttr(start, "w:name", moveName)
		xml.SetAttr(start, "w:author", ip.at.author)
		xml.SetAttr(start, "w:date", ip.at.date)
		xml.InsertBefore(wrapper, start)
		end := xml.NewElement(name + "RangeEnd")
		xml.SetAttr(end, "w:id", xml.Attr(start, "w:id"))
		xml.InsertAfter(wrapper, end)
	}
}

// splitRun replaces a run whose atoms carry mixed statuses with one run per
// status chunk. It refuses when the atoms do not cleanly reconstruct the
// run's content; the run is then left unmarked and a safety check reports
// the divergence.
func (ip *inplacer) splitRun(g *runGroup, para *xmlquery.Node) {
	run := g.anchor
	if !ooxml.IsRun(run) {
		return
	}
	if !atomsReconstructRun(g.atoms, run) {
		return
	}
	rPr := xml.FirstChildNamed(run, "w:rPr")

	var replacement []*xmlquery.Node
	for _, chunk := range chunkAtoms(g.atoms) {
		nr := xml.NewElement("w:r")
		if rPr != nil {
			xml.AppendChild(nr, xml.Clone(rPr))
		}
		for _, a := range chunk {
			if a.IsText() {
				xml.AppendChild(nr, textElement(a.Text(), false))
			} else {
				xml.AppendChild(nr, xml.Clone(a.Node))
			}
		}
		switch chunk[0].Status {
		case StatusInserted:
			w := xml.NewElement("w:ins")
			ip.at.stamp(w)
			xml.AppendChild(w, nr)
			replacement = append(replacement, w)
		case StatusMovedDestination:
			replacement = append(replacement, moveRange("w:moveTo", chunk[0].MoveName, []*xmlquery.Node{nr}, ip.at)...)
		default:
			replacement = append(replacement, nr)
		}
	}

	for _, n := range replacement {
		xml.InsertBefore(run, n)
	}
	xml.Remove(run)
}

// atomsReconstructRun reports whether concatenating the atoms' visible text
// reproduces the run's visible text exactly. Only then can the run be split
// without losing content.
func atomsReconstructRun(atoms []*Atom, run *xmlquery.Node) bool {
	var got []byte
	for _, a := range atoms {
		for _, src := range a.Sources {
			if srcRunOf(src) != run {
				return false
			}
		}
		got = append(got, a.Text()...)
	}
	return string(appendRunText(nil, run)) == string(got)
}

func srcRunOf(n *xmlquery.Node) *xmlquery.Node {
	for p := n; p != nil; p = p.Parent {
		if ooxml.IsRun(p) {
			return p
		}
	}
	return nil
}

func appendRunText(b []byte, run *xmlquery.Node) []byte {
	for _, c := range xml.Children(run) {
		switch {
		case ooxml.IsTextLeaf(c), ooxml.IsWordElement(c, "instrText"):
			b = append(b, xml.Text(c)...)
		case ooxml.IsWordElement(c, "tab"):
			b = append(b, '\t')
		case ooxml.IsWordElement(c, "br"), ooxml.IsWordElement(c, "cr"):
			b = append(b, '\n')
		}
	}
	return b
}

// chunkAtoms groups consecutive atoms sharing status and move name.
func chunkAtoms(atoms []*Atom) [][]*Atom {
	var chunks [][]*Atom
	for _, a := range atoms {
		if len(chunks) > 0 {
			last := chunks[len(chunks)-1]
			prev := last[len(last)-1]
			if prev.Status == a.Status && prev.MoveName == a.MoveName {
				chunks[len(chunks)-1] = append(last, a)
				continue
			}
		}
		chunks = append(chunks, []*Atom{a})
	}
	return chunks
}

// spliceDeletions inserts the original-only content (deletions, move
// sources) back into the revised tree as w:del / w:moveFrom wrapped clones,
// positioned relative to the nearest surviving neighbor.
func (ip *inplacer) spliceDeletions(original, revised []*Atom) {
	var lastSplicedPara *xmlquery.Node
	for _, para := range splitByParagraph(original) {
		removed := collectRemoved(para)
		if len(removed) == 0 {
			continue
		}
		if survivor := firstCounterpart(para); survivor != nil {
			ip.spliceIntoParagraph(para, removed)
			continue
		}
		lastSplicedPara = ip.spliceParagraph(para, removed, original, lastSplicedPara)
	}
}

func collectRemoved(para []*Atom) []*Atom {
	var out []*Atom
	for _, a := range para {
		if a.Wrapper != nil {
			continue
		}
		if a.Status == StatusDeleted || a.Status == StatusMovedSource {
			out = append(out, a)
		}
	}
	return out
}

func firstCounterpart(para []*Atom) *Atom {
	for _, a := range para {
		if a.Counterpart != nil {
			return a.Counterpart
		}
	}
	return nil
}

// spliceIntoParagraph places each removed chunk inside the surviving revised
// paragraph, after the counterpart of the nearest preceding surviving atom,
// or at the front when the deletion opens the paragraph.
func (ip *inplacer) spliceIntoParagraph(para []*Atom, removed []*Atom) {
	pos := make(map[*Atom]int, len(para))
	for i, a := range para {
		pos[a] = i
	}

	for _, chunk := range chunkAtoms(removed) {
		nodes := ip.buildRemovedNodes(chunk)
		if len(nodes) == 0 {
			continue
		}

		var prev *Atom
		for i := pos[chunk[0]] - 1; i >= 0; i-- {
			if para[i].Counterpart != nil {
				prev = para[i].Counterpart
				break
			}
		}
		if prev != nil && prev.ParaNode != nil {
			anchor := topNodeOf(prev, prev.ParaNode)
			if anchor != nil {
				for i := len(nodes) - 1; i >= 0; i-- {
					xml.InsertAfter(anchor, nodes[i])
				}
				continue
			}
		}

		var next *Atom
		for i := pos[chunk[len(chunk)-1]] + 1; i < len(para); i++ {
			if para[i].Counterpart != nil {
				next = para[i].Counterpart
				break
			}
		}
		if next != nil && next.ParaNode != nil {
			anchor := topNodeOf(next, next.ParaNode)
			if anchor != nil {
				for _, n := range nodes {
					xml.InsertBefore(anchor, n)
				}
				continue
			}
		}
	}
}

// spliceParagraph synthesizes a whole paragraph for content whose original
// paragraph has no surviving atoms, marks its paragraph mark deleted, and
// inserts it after the paragraph of the nearest preceding survivor.
func (ip *inplacer) spliceParagraph(para, removed []*Atom, original []*Atom, lastSpliced *xmlquery.Node) *xmlquery.Node {
	src := para[0].ParaNode
	p := shallowClone(src)
	if pPr := xml.FirstChildNamed(src, "w:pPr"); pPr != nil {
		xml.AppendChild(p, xml.Clone(pPr))
	}
	for _, chunk := range chunkAtoms(removed) {
		for _, n := range ip.buildRemovedNodes(chunk) {
			xml.AppendChild(p, n)
		}
	}
	markParagraphMark(p, "w:del", ip.at)

	if lastSpliced != nil {
		xml.InsertAfter(lastSpliced, p)
		return p
	}
	if anchor := precedingSurvivorParagraph(para[0], original); anchor != nil {
		xml.InsertAfter(anchor, p)
		return p
	}
	body := enclosingBody(para, original)
	if body == nil {
		return nil
	}
	if body.FirstChild != nil {
		xml.InsertBefore(body.FirstChild, p)
	} else {
		xml.AppendChild(body, p)
	}
	return p
}

func (ip *inplacer) buildRemovedNodes(chunk []*Atom) []*xmlquery.Node {
	items := make([]streamItem, len(chunk))
	for i, a := range chunk {
		items[i] = streamItem{atom: a, fromOriginal: true}
	}
	return buildChunk(items, ip.at)
}

// precedingSurvivorParagraph finds the revised paragraph holding the
// counterpart of the nearest original atom before this paragraph.
func precedingSurvivorParagraph(first *Atom, original []*Atom) *xmlquery.Node {
	idx := -1
	for i, a := range original {
		if a == first {
			idx = i
			break
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if c := original[i].Counterpart; c != nil && c.ParaNode != nil {
			return c.ParaNode
		}
	}
	return nil
}

// enclosingBody locates the revised tree's w:body through any counterpart in
// the original stream.
func enclosingBody(para, original []*Atom) *xmlquery.Node {
	for _, a := range original {
		if a.Counterpart == nil || a.Counterpart.ParaNode == nil {
			continue
		}
		for n := a.Counterpart.ParaNode; n != nil; n = n.Parent {
			if ooxml.IsWordElement(n, "body") {
				return n
			}
		}
	}
	return nil
}
