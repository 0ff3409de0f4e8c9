// Package compare implements the document comparison pipeline: atomization,
// correlation, move detection, format-change detection, and reconstruction of
// a tracked-changes output document.
//
// The five phases run strictly in order, each mutating the atom slices in
// place. Atoms are created once per comparison run and discarded at the end;
// nothing is shared across runs.
package compare

import (
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/zeebo/blake3"

	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

// Status is an atom's classified relationship between the two document
// versions. It starts Unknown and is written at most once per phase:
// correlation assigns Equal/Deleted/Inserted, move detection upgrades
// Deleted/Inserted to MovedSource/MovedDestination, and format detection
// upgrades Equal to FormatChanged. A status never regresses.
type Status int

const (
	StatusUnknown Status = iota
	StatusEqual
	StatusDeleted
	StatusInserted
	StatusMovedSource
	StatusMovedDestination
	StatusFormatChanged
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusEqual:
		return "equal"
	case StatusDeleted:
		return "deleted"
	case StatusInserted:
		return "inserted"
	case StatusMovedSource:
		return "moved_source"
	case StatusMovedDestination:
		return "moved_destination"
	case StatusFormatChanged:
		return "format_changed"
	}
	return "invalid"
}

// Fingerprint is a fixed-size content hash. Two atoms are the same content
// iff their fingerprints match.
type Fingerprint [32]byte

// FormatChange records a formatting difference on a text-identical atom pair.
// Old and New are canonical serializations of each side's run properties;
// Properties lists the display names of the properties that differ.
type FormatChange struct {
	Old        string
	New        string
	Properties []string
}

// Atom is the smallest indivisible comparable unit: a text fragment, break,
// tab, collapsed field result, embedded object, or synthetic empty-paragraph
// marker.
type Atom struct {
	// Node is the content payload. For normalization products (merges,
	// splits, collapsed fields) this is a detached clone; for untouched
	// leaves it is the live leaf unless clone-on-leaf was requested.
	Node *xmlquery.Node

	// Sources are the live leaf nodes in the input tree this atom covers.
	// A plain atom has one source; merged and collapsed atoms have several.
	// Empty-paragraph markers have none.
	Sources []*xmlquery.Node

	// Ancestors is the element chain root-to-parent, snapshotted at
	// creation. Later tree mutation does not change it.
	Ancestors []*xmlquery.Node

	// ParaNode is the nearest paragraph ancestor (the w:p itself for
	// empty-paragraph markers), captured at creation.
	ParaNode *xmlquery.Node

	// Part names the package part the atom came from.
	Part string

	// Wrapper is a pre-existing revision wrapper found in the ancestor
	// chain, nearest to the root, or nil.
	Wrapper     *xmlquery.Node
	WrapperKind ooxml.RevisionWrapper

	Status Status

	// Paragraph is the zero-based paragraph index assigned after
	// atomization; -1 until then.
	Paragraph int

	// MoveGroup and MoveName tie a MovedSource run to its
	// MovedDestination partner. Zero/empty when the atom is not moved.
	MoveGroup int
	MoveName  string

	Format *FormatChange

	// Counterpart links to the corresponding atom in the other version.
	// Valid only once the atom is Equal (or FormatChanged).
	Counterpart *Atom

	EmptyParagraph bool
	CollapsedField bool
	Field          *ooxml.FieldCode

	WordSplit   bool
	SplitParent *Atom

	Fingerprint Fingerprint

	text    string
	hasText bool
}

// Text returns the atom's comparable text: leaf text for text atoms and
// collapsed fields, "\t" for tabs, "\n" for line breaks, empty otherwise.
func (a *Atom) Text() string {
	if a.hasText {
		return a.text
	}
	return ""
}

func (a *Atom) setText(s string) {
	a.text = s
	a.hasText = true
	if a.Node != nil && ooxml.IsTextLeaf(a.Node) {
		xml.SetText(a.Node, s)
	}
}

// IsText reports whether the atom carries comparable text content (a text
// leaf or a collapsed field).
func (a *Atom) IsText() bool {
	if a.CollapsedField {
		return true
	}
	return a.Node != nil && ooxml.IsTextLeaf(a.Node)
}

// RunNode returns the nearest w:r ancestor from the snapshot, or nil.
func (a *Atom) RunNode() *xmlquery.Node {
	for i := len(a.Ancestors) - 1; i >= 0; i-- {
		if ooxml.IsRun(a.Ancestors[i]) {
			return a.Ancestors[i]
		}
	}
	return nil
}

// sameWrapper reports whether two atoms share revision-wrapper state:
// both unwrapped, or wrapped by the same element.
func sameWrapper(a, b *Atom) bool {
	return a.Wrapper == b.Wrapper
}

// attrs excluded from fingerprints: presentation-only hints and revision
// bookkeeping that do not change content identity.
func significantAttr(name string) bool {
	if name == "xml:space" {
		return false
	}
	if strings.HasPrefix(name, "w:rsid") {
		return false
	}
	return true
}

// fingerprintLeaf computes the fingerprint of a leaf node from its kind
// identity, sorted significant attributes, and leaf text.
func fingerprintLeaf(n *xmlquery.Node, text string) Fingerprint {
	h := blake3.New()
	kind := xml.Name(n)
	if ooxml.IsWordElement(n, "delText") {
		// Deleted text compares as plain text: the wrapper state is
		// tracked separately on the atom.
		kind = "w:t"
	}
	h.WriteString(kind)
	h.WriteString("\x00")

	attrs := make([]string, 0, len(n.Attr))
	for _, at := range n.Attr {
		name := at.Name.Local
		if at.Name.Space != "" {
			name = at.Name.Space + ":" + at.Name.Local
		}
		if !significantAttr(name) {
			continue
		}
		attrs = append(attrs, name+"="+at.Value)
	}
	sort.Strings(attrs)
	for _, a := range attrs {
		h.WriteString(a)
		h.WriteString("\x00")
	}
	h.WriteString(text)

	var fp Fingerprint
	h.Digest().Read(fp[:])
	return fp
}

// fingerprintText computes the fingerprint an unadorned text atom with the
// given content would have. Collapsed fields use this so a field-rendered
// value matches hand-typed equivalent text.
func fingerprintText(text string) Fingerprint {
	h := blake3.New()
	h.WriteString("w:t")
	h.WriteString("\x00")
	h.WriteString(text)
	var fp Fingerprint
	h.Digest().Read(fp[:])
	return fp
}

// fingerprintEmptyParagraph combines the running hash of the last content
// atom with a per-context counter so consecutive empty paragraphs stay
// distinguishable without colliding with unrelated ones elsewhere.
func fingerprintEmptyParagraph(lastContent Fingerprint, seq int) Fingerprint {
	h := blake3.New()
	h.WriteString("empty-paragraph")
	h.WriteString("\x00")
	h.Write(lastContent[:])
	h.Write([]byte{byte(seq), byte(seq >> 8), byte(seq >> 16), byte(seq >> 24)})
	var fp Fingerprint
	h.Digest().Read(fp[:])
	return fp
}

// refingerprint recomputes an atom's fingerprint after normalization changed
// its text.
func (a *Atom) refingerprint() {
	if a.CollapsedField {
		a.Fingerprint = fingerprintText(a.Text())
		return
	}
	if a.Node != nil && ooxml.IsTextLeaf(a.Node) {
		a.Fingerprint = fingerprintLeaf(a.Node, a.Text())
		return
	}
	if a.Node != nil {
		a.Fingerprint = fingerprintLeaf(a.Node, a.Text())
	}
}
