package compare

import (
	"strings"
	"unicode"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

// Normalization passes. They run in fixed order after the raw descent:
//
//  1. field collapsing
//  2. contiguous text merging
//  3. word splitting
//  4. punctuation re-merging
//
// Each pass assumes the previous pass's output shape.

// collapseFields replaces each complete field construct (begin marker,
// instruction, separator, result, end marker) with one synthetic atom
// fingerprinted only on the visible result text, so a field-rendered value
// matches hand-typed equivalent text. Nested fields collapse depth-first.
// Fields spanning multiple paragraphs are left alone: collapsing them would
// destroy paragraph structure.
func collapseFields(atoms []*Atom) []*Atom {
	type frame struct {
		begin int
		sep   int
	}
	var stack []frame

	for i := 0; i < len(atoms); i++ {
		a := atoms[i]
		if a.CollapsedField || a.Node == nil {
			continue
		}
		switch ooxml.FldCharType(a.Node) {
		case "begin":
			stack = append(stack, frame{begin: i, sep: -1})
		case "separate":
			if len(stack) > 0 {
				stack[len(stack)-1].sep = i
			}
		case "end":
			if len(stack) == 0 {
				continue
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			collapsed, ok := collapseSpan(atoms, f.begin, f.sep, i)
			if !ok {
				continue
			}
			rest := atoms[i+1:]
			atoms = append(atoms[:f.begin], collapsed)
			atoms = append(atoms, rest...)
			i = f.begin
		}
	}
	return atoms
}

// collapseSpan builds the synthetic atom for atoms[begin..end]. It refuses
// spans that cross paragraph boundaries.
func collapseSpan(atoms []*Atom, begin, sep, end int) (*Atom, bool) {
	first := atoms[begin]
	for _, a := range atoms[begin : end+1] {
		if a.ParaNode != first.ParaNode {
			return nil, false
		}
	}

	var instr, result strings.Builder
	instrEnd := end
	if sep >= 0 {
		instrEnd = sep
		for _, a := range atoms[sep+1 : end] {
			result.WriteString(a.Text())
		}
	}
	for _, a := range atoms[begin+1 : instrEnd] {
		if a.Node != nil && (ooxml.IsWordElement(a.Node, "instrText") || ooxml.IsWordElement(a.Node, "delInstrText")) {
			instr.WriteString(a.Text())
		}
	}

	node := xml.NewElement("w:fldSimple")
	xml.SetAttr(node, "w:instr", instr.String())
	xml.SetText(node, result.String())

	collapsed := &Atom{
		Node:           node,
		Part:           first.Part,
		Status:         first.Status,
		Paragraph:      -1,
		Ancestors:      first.Ancestors,
		ParaNode:       first.ParaNode,
		Wrapper:        first.Wrapper,
		WrapperKind:    first.WrapperKind,
		CollapsedField: true,
	}
	for _, a := range atoms[begin : end+1] {
		collapsed.Sources = append(collapsed.Sources, a.Sources...)
	}
	collapsed.text = result.String()
	collapsed.hasText = true
	if fc, err := ooxml.ParseFieldCode(instr.String()); err == nil {
		collapsed.Field = fc
	}
	collapsed.Fingerprint = fingerprintText(collapsed.text)
	return collapsed, true
}

// mergeContiguousText merges adjacent text atoms that belong together:
// same paragraph, same revision-wrapper state, neither a collapsed field,
// and either the same immediate run or structurally-equal run formatting
// when cross-run merging is enabled. This removes incidental authoring-time
// fragmentation of runs.
func mergeContiguousText(atoms []*Atom, opts AtomizeOptions) []*Atom {
	var out []*Atom
	for _, a := range atoms {
		if len(out) > 0 && canMergeText(out[len(out)-1], a, opts) {
			absorb(out[len(out)-1], a)
			continue
		}
		out = append(out, a)
	}
	return out
}

func canMergeText(p, a *Atom, opts AtomizeOptions) bool {
	if !p.IsText() || !a.IsText() {
		return false
	}
	if p.CollapsedField || a.CollapsedField {
		return false
	}
	if p.ParaNode != a.ParaNode || !sameWrapper(p, a) {
		return false
	}
	if p.Status != a.Status {
		return false
	}
	pr, ar := p.RunNode(), a.RunNode()
	if pr == ar && pr != nil {
		return true
	}
	return opts.MergeAcrossRuns && runPropsCanonical(p) == runPropsCanonical(a)
}

// absorb appends a's text and sources into p. The payload is cloned on
// first mutation so the live input tree is never written.
func absorb(p, a *Atom) {
	detachPayload(p)
	p.setText(p.Text() + a.Text())
	p.Sources = append(p.Sources, a.Sources...)
	p.refingerprint()
}

func detachPayload(p *Atom) {
	for _, s := range p.Sources {
		if p.Node == s {
			p.Node = xml.Clone(p.Node)
			return
		}
	}
}

// splitWords splits text atoms containing internal whitespace into word and
// whitespace fragments that inherit the parent's formatting. Collapsed
// fields are exempt.
func splitWords(atoms []*Atom) []*Atom {
	var out []*Atom
	for _, a := range atoms {
		if !a.IsText() || a.CollapsedField {
			out = append(out, a)
			continue
		}
		frags := splitTextFragments(a.Text())
		if len(frags) <= 1 {
			out = append(out, a)
			continue
		}
		for _, text := range frags {
			fa := &Atom{
				Node:        xml.Clone(a.Node),
				Sources:     a.Sources,
				Ancestors:   a.Ancestors,
				ParaNode:    a.ParaNode,
				Part:        a.Part,
				Wrapper:     a.Wrapper,
				WrapperKind: a.WrapperKind,
				Status:      a.Status,
				Paragraph:   -1,
				WordSplit:   true,
				SplitParent: a,
			}
			fa.setText(text)
			fa.refingerprint()
			out = append(out, fa)
		}
	}
	return out
}

// splitTextFragments cuts s into alternating runs of non-space and space
// characters, preserving all content.
func splitTextFragments(s string) []string {
	var frags []string
	var cur strings.Builder
	curSpace := false
	for _, r := range s {
		space := unicode.IsSpace(r)
		if cur.Len() > 0 && space != curSpace {
			frags = append(frags, cur.String())
			cur.Reset()
		}
		cur.WriteRune(r)
		curSpace = space
	}
	if cur.Len() > 0 {
		frags = append(frags, cur.String())
	}
	return frags
}

// remergePunctuation merges a word-split punctuation-only fragment into the
// immediately preceding atom when that atom ends in a word character and
// shares paragraph and revision-wrapper state. Unlike contiguous merging
// this ignores formatting equality, unless cross-run punctuation merging is
// disabled.
func remergePunctuation(atoms []*Atom, opts AtomizeOptions) []*Atom {
	var out []*Atom
	for _, a := range atoms {
		if len(out) > 0 && canMergePunct(out[len(out)-1], a, opts) {
			absorb(out[len(out)-1], a)
			continue
		}
		out = append(out, a)
	}
	return out
}

func canMergePunct(p, a *Atom, opts AtomizeOptions) bool {
	if !a.WordSplit || !isPunctOnly(a.Text()) {
		return false
	}
	if !p.IsText() || p.CollapsedField || !endsWithWordChar(p.Text()) {
		return false
	}
	if p.ParaNode != a.ParaNode || !sameWrapper(p, a) {
		return false
	}
	if p.Status != a.Status {
		return false
	}
	if !opts.MergePunctAcrossRuns && p.RunNode() != a.RunNode() {
		return false
	}
	return true
}

func isPunctOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}

func endsWithWordChar(s string) bool {
	var last rune
	for _, r := range s {
		last = r
	}
	return unicode.IsLetter(last) || unicode.IsDigit(last)
}

// runPropsCanonical returns the canonical serialization of the atom's
// nearest run's properties, with revision residue stripped. Empty when the
// atom has no run ancestor or the run has no properties.
func runPropsCanonical(a *Atom) string {
	run := a.RunNode()
	if run == nil {
		return ""
	}
	return canonicalRunProps(xml.FirstChildNamed(run, "w:rPr"))
}

// canonicalRunProps canonicalizes a w:rPr element: strips residual
// revision-tracking sub-markup, then serializes with children and
// attributes sorted.
func canonicalRunProps(rPr *xmlquery.Node) string {
	if rPr == nil {
		return ""
	}
	cp := xml.Clone(rPr)
	for _, c := range xml.Children(cp) {
		switch c.Data {
		case "rPrChange", "ins", "del":
			xml.Remove(c)
		}
	}
	var stale []string
	for _, at := range cp.Attr {
		name := at.Name.Local
		if at.Name.Space != "" {
			name = at.Name.Space + ":" + at.Name.Local
		}
		if strings.HasPrefix(name, "w:rsid") {
			stale = append(stale, name)
		}
	}
	for _, name := range stale {
		xml.RemoveAttr(cp, name)
	}
	if len(xml.Children(cp)) == 0 {
		return ""
	}
	return xml.CanonicalString(cp)
}
