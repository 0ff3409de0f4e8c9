package compare

import (
	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

// AtomizeOptions control atomization and its normalization passes.
type AtomizeOptions struct {
	// CloneLeaves detaches a deep copy of every leaf as the atom payload
	// instead of referencing the live node.
	CloneLeaves bool

	// MergeAcrossRuns lets contiguous text merging cross run boundaries
	// when the runs' formatting is structurally equal.
	MergeAcrossRuns bool

	// MergePunctAcrossRuns lets punctuation re-merging cross run
	// boundaries regardless of formatting equality.
	MergePunctAcrossRuns bool

	// SplitWords splits merged text atoms into word and whitespace
	// fragments.
	SplitWords bool
}

// DefaultAtomizeOptions is the configuration the atom engine uses.
func DefaultAtomizeOptions() AtomizeOptions {
	return AtomizeOptions{
		CloneLeaves:          false,
		MergeAcrossRuns:      true,
		MergePunctAcrossRuns: true,
		SplitWords:           true,
	}
}

// AtomizeResult is the output of flattening one document body.
type AtomizeResult struct {
	Atoms           []*Atom
	EmptyParagraphs int
}

// atomizer carries the traversal state for one body.
type atomizer struct {
	part  string
	opts  AtomizeOptions
	atoms []*Atom

	lastContent Fingerprint
	emptySeq    int
	emptyCount  int
}

// Atomize flattens a document body into an ordered list of fingerprinted
// atoms, applies the four normalization passes in fixed order, and assigns
// paragraph indexes.
func Atomize(body *xmlquery.Node, part string, opts AtomizeOptions) *AtomizeResult {
	az := &atomizer{part: part, opts: opts}
	az.walk(body)

	atoms := az.atoms
	atoms = collapseFields(atoms)
	atoms = mergeContiguousText(atoms, opts)
	if opts.SplitWords {
		atoms = splitWords(atoms)
	}
	atoms = remergePunctuation(atoms, opts)
	assignParagraphs(atoms)

	return &AtomizeResult{Atoms: atoms, EmptyParagraphs: az.emptyCount}
}

func (az *atomizer) walk(n *xmlquery.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		switch {
		case ooxml.IsNonContent(c):
			// properties, proofing marks, range markers
		case ooxml.IsWordElement(c, "fldSimple"):
			az.emitSimpleField(c)
		case ooxml.IsLeaf(c):
			az.emitLeaf(c)
		case ooxml.IsParagraph(c):
			before := len(az.atoms)
			az.walk(c)
			if len(az.atoms) == before {
				az.emitEmptyParagraph(c)
			}
		default:
			// containers: runs, revision wrappers, hyperlinks, smart
			// tags, sdt, tables
			az.walk(c)
		}
	}
}

func (az *atomizer) newAtom(leaf *xmlquery.Node) *Atom {
	a := &Atom{
		Part:      az.part,
		Status:    StatusUnknown,
		Paragraph: -1,
		Ancestors: xml.Ancestors(leaf),
		Sources:   []*xmlquery.Node{leaf},
	}
	a.ParaNode = xml.NearestAncestor(leaf, ooxml.IsParagraph)
	az.seedRevision(a)
	if az.opts.CloneLeaves {
		a.Node = xml.Clone(leaf)
	} else {
		a.Node = leaf
	}
	return a
}

// seedRevision scans the ancestor chain nearest-to-root for an existing
// revision wrapper and seeds the atom's status from it, so pre-existing
// tracked changes propagate instead of being re-derived.
func (a *Atom) seedFrom(kind ooxml.RevisionWrapper) {
	switch kind {
	case ooxml.WrapperInserted:
		a.Status = StatusInserted
	case ooxml.WrapperDeleted:
		a.Status = StatusDeleted
	case ooxml.WrapperMoveFrom:
		a.Status = StatusMovedSource
	case ooxml.WrapperMoveTo:
		a.Status = StatusMovedDestination
	}
}

func (az *atomizer) seedRevision(a *Atom) {
	for _, anc := range a.Ancestors {
		if kind := ooxml.WrapperKind(anc); kind != ooxml.WrapperNone {
			a.Wrapper = anc
			a.WrapperKind = kind
			a.seedFrom(kind)
			return
		}
	}
}

func (az *atomizer) emitLeaf(leaf *xmlquery.Node) {
	a := az.newAtom(leaf)
	switch {
	case ooxml.IsTextLeaf(leaf) || ooxml.IsWordElement(leaf, "instrText") || ooxml.IsWordElement(leaf, "delInstrText"):
		a.text = xml.Text(leaf)
		a.hasText = true
	case ooxml.IsWordElement(leaf, "tab"):
		a.text = "\t"
		a.hasText = true
	case ooxml.IsWordElement(leaf, "br"), ooxml.IsWordElement(leaf, "cr"):
		a.text = "\n"
		a.hasText = true
	}
	a.Fingerprint = fingerprintLeaf(leaf, a.text)
	az.pushContent(a)
}

// emitSimpleField turns a w:fldSimple element directly into one collapsed
// field atom: the instruction is in the w:instr attribute and the children
// are the cached result.
func (az *atomizer) emitSimpleField(fld *xmlquery.Node) {
	a := &Atom{
		Part:           az.part,
		Status:         StatusUnknown,
		Paragraph:      -1,
		Ancestors:      xml.Ancestors(fld),
		Sources:        []*xmlquery.Node{fld},
		CollapsedField: true,
	}
	a.ParaNode = xml.NearestAncestor(fld, ooxml.IsParagraph)
	az.seedRevision(a)
	a.Node = xml.Clone(fld)
	a.text = xml.Text(fld)
	a.hasText = true
	if fc, err := ooxml.ParseFieldCode(fld.SelectAttr("w:instr")); err == nil {
		a.Field = fc
	}
	a.Fingerprint = fingerprintText(a.text)
	az.pushContent(a)
}

func (az *atomizer) emitEmptyParagraph(p *xmlquery.Node) {
	a := &Atom{
		Part:           az.part,
		Status:         StatusUnknown,
		Paragraph:      -1,
		Ancestors:      xml.Ancestors(p),
		ParaNode:       p,
		Node:           p,
		EmptyParagraph: true,
	}
	// Paragraph marks carry their own revision state in pPr/rPr.
	if mark := paragraphMarkWrapper(p); mark != ooxml.WrapperNone {
		a.WrapperKind = mark
		a.seedFrom(mark)
	}
	a.Fingerprint = fingerprintEmptyParagraph(az.lastContent, az.emptySeq)
	az.emptySeq++
	az.emptyCount++
	az.atoms = append(az.atoms, a)
}

// pushContent appends a content atom and resets the empty-paragraph
// sequence context.
func (az *atomizer) pushContent(a *Atom) {
	az.atoms = append(az.atoms, a)
	az.lastContent = a.Fingerprint
	az.emptySeq = 0
}

// paragraphMarkWrapper inspects pPr/rPr for an ins or del on the paragraph
// mark itself.
func paragraphMarkWrapper(p *xmlquery.Node) ooxml.RevisionWrapper {
	pPr := xml.FirstChildNamed(p, "w:pPr")
	if pPr == nil {
		return ooxml.WrapperNone
	}
	rPr := xml.FirstChildNamed(pPr, "w:rPr")
	if rPr == nil {
		return ooxml.WrapperNone
	}
	if xml.FirstChildNamed(rPr, "w:ins") != nil {
		return ooxml.WrapperInserted
	}
	if xml.FirstChildNamed(rPr, "w:del") != nil {
		return ooxml.WrapperDeleted
	}
	return ooxml.WrapperNone
}

// assignParagraphs gives every atom a zero-based paragraph index: nearest
// paragraph ancestor, memoized in encounter order. Required by move
// detection, format detection, and reconstruction.
func assignParagraphs(atoms []*Atom) {
	index := make(map[*xmlquery.Node]int)
	for _, a := range atoms {
		p := a.ParaNode
		if p == nil {
			a.Paragraph = -1
			continue
		}
		idx, ok := index[p]
		if !ok {
			idx = len(index)
			index[p] = idx
		}
		a.Paragraph = idx
	}
}
