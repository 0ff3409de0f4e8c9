// Package ooxml holds the WordprocessingML vocabulary used by the comparison
// pipeline: namespace URIs, element classification, the run-property name
// table, revision identifier allocation, and field instruction parsing.
package ooxml

import (
	"github.com/antchfx/xmlquery"
)

// Namespace URIs that appear in WordprocessingML documents.
const (
	NSMain          = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	NSRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	NSWordml2010    = "http://schemas.microsoft.com/office/word/2010/wordml"
	NSCompat        = "http://schemas.openxmlformats.org/markup-compatibility/2006"
	NSDrawingML     = "http://schemas.openxmlformats.org/drawingml/2006/main"
)

// Part names within the OPC container.
const (
	PartDocument  = "word/document.xml"
	PartStyles    = "word/styles.xml"
	PartNumbering = "word/numbering.xml"
	PartFootnotes = "word/footnotes.xml"
	PartEndnotes  = "word/endnotes.xml"
)

// IsWordElement reports whether n is a main-namespace element with the given
// local name. Documents parsed from fragments without namespace declarations
// fall back to prefix matching.
func IsWordElement(n *xmlquery.Node, local string) bool {
	if n == nil || n.Type != xmlquery.ElementNode || n.Data != local {
		return false
	}
	return n.NamespaceURI == NSMain || n.NamespaceURI == "" || n.Prefix == "w"
}

// leafKinds are the terminal content elements treated as a single atom each.
var leafKinds = map[string]bool{
	"t":             true, // text
	"delText":       true, // text inside a w:del wrapper
	"instrText":     true, // field instruction text
	"delInstrText":  true,
	"br":            true,
	"cr":            true,
	"tab":           true,
	"sym":           true,
	"noBreakHyphen": true,
	"softHyphen":    true,
	"fldChar":       true, // field begin/separate/end marker
	"drawing":       true,
	"object":        true,
	"pict":          true,
	"footnoteRef":   true,
	"endnoteRef":    true,
	"ptab":          true,
}

// IsLeaf reports whether n is a terminal content element.
func IsLeaf(n *xmlquery.Node) bool {
	if n == nil || n.Type != xmlquery.ElementNode {
		return false
	}
	if n.NamespaceURI != NSMain && n.NamespaceURI != "" && n.Prefix != "w" {
		// Foreign-namespace subtrees (drawings, math) are treated atomically
		// at their main-namespace wrapper, never descended into.
		return false
	}
	return leafKinds[n.Data]
}

// IsTextLeaf reports whether n is a plain text leaf (w:t or w:delText).
func IsTextLeaf(n *xmlquery.Node) bool {
	return IsWordElement(n, "t") || IsWordElement(n, "delText")
}

// IsParagraph reports whether n is a w:p element.
func IsParagraph(n *xmlquery.Node) bool { return IsWordElement(n, "p") }

// IsRun reports whether n is a w:r element.
func IsRun(n *xmlquery.Node) bool { return IsWordElement(n, "r") }

// nonContent are elements skipped entirely during atomization: properties,
// bookkeeping, and range markers that carry no comparable content.
var nonContent = map[string]bool{
	"pPr":                   true,
	"rPr":                   true,
	"sectPr":                true,
	"tblPr":                 true,
	"tblGrid":               true,
	"trPr":                  true,
	"tcPr":                  true,
	"proofErr":              true,
	"lastRenderedPageBreak": true,
	"bookmarkStart":         true,
	"bookmarkEnd":           true,
	"commentRangeStart":     true,
	"commentRangeEnd":       true,
	"commentReference":      true,
	"permStart":             true,
	"permEnd":               true,
	"moveFromRangeStart":    true,
	"moveFromRangeEnd":      true,
	"moveToRangeStart":      true,
	"moveToRangeEnd":        true,
}

// IsNonContent reports whether n is skipped during atomization.
func IsNonContent(n *xmlquery.Node) bool {
	if n == nil || n.Type != xmlquery.ElementNode {
		return false
	}
	return nonContent[n.Data]
}

// RevisionWrapper identifies the kind of an existing revision wrapper element.
type RevisionWrapper int

const (
	WrapperNone RevisionWrapper = iota
	WrapperInserted
	WrapperDeleted
	WrapperMoveFrom
	WrapperMoveTo
)

// WrapperKind classifies n as a revision wrapper, or WrapperNone.
func WrapperKind(n *xmlquery.Node) RevisionWrapper {
	if n == nil || n.Type != xmlquery.ElementNode {
		return WrapperNone
	}
	switch {
	case IsWordElement(n, "ins"):
		return WrapperInserted
	case IsWordElement(n, "del"):
		return WrapperDeleted
	case IsWordElement(n, "moveFrom"):
		return WrapperMoveFrom
	case IsWordElement(n, "moveTo"):
		return WrapperMoveTo
	}
	return WrapperNone
}

// FldCharType returns the w:fldCharType attribute of a w:fldChar element
// ("begin", "separate", or "end"), or the empty string.
func FldCharType(n *xmlquery.Node) string {
	if !IsWordElement(n, "fldChar") {
		return ""
	}
	return n.SelectAttr("w:fldCharType")
}
