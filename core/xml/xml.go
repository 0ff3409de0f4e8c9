// Package xml provides pure Go XML parsing, traversal, and mutation primitives
// on top of the xmlquery node tree.
//
// The comparison pipeline depends only on this minimal node contract: get/set
// leaf text, enumerate children, compute ancestor chains, and splice nodes. It
// deliberately knows nothing about WordprocessingML; element vocabularies live
// in core/ooxml.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder
//     which doesn't fetch external entities by default; xmlquery inherits its
//     security properties.
package xml

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Parse parses XML data and returns the document node.
func Parse(data []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return doc, nil
}

// Serialize converts a document (or any subtree) back to XML bytes.
func Serialize(n *xmlquery.Node) []byte {
	if n == nil {
		return nil
	}
	return []byte(n.OutputXML(true))
}

// Query runs an XPath expression and returns all matching nodes.
func Query(n *xmlquery.Node, expr string) ([]*xmlquery.Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes, err := xmlquery.QueryAll(n, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	return nodes, nil
}

// QueryFirst runs an XPath expression and returns the first match, or nil.
func QueryFirst(n *xmlquery.Node, expr string) (*xmlquery.Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	node, err := xmlquery.Query(n, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	return node, nil
}

// IsElement reports whether n is an element node.
func IsElement(n *xmlquery.Node) bool {
	return n != nil && n.Type == xmlquery.ElementNode
}

// Name returns the qualified name of an element ("w:p" for a prefixed
// element, plain local name otherwise).
func Name(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

// Children returns the element children of n in document order.
func Children(n *xmlquery.Node) []*xmlquery.Node {
	if n == nil {
		return nil
	}
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// FirstChildNamed returns the first element child with the given qualified
// name, or nil.
func FirstChildNamed(n *xmlquery.Node, qname string) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && Name(c) == qname {
			return c
		}
	}
	return nil
}

// Ancestors returns the element ancestor chain of n ordered root-to-parent.
// The document node is excluded.
func Ancestors(n *xmlquery.Node) []*xmlquery.Node {
	var chain []*xmlquery.Node
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != xmlquery.ElementNode {
			continue
		}
		chain = append(chain, p)
	}
	// reverse to root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// NearestAncestor walks parents of n and returns the first element for which
// pred returns true, or nil.
func NearestAncestor(n *xmlquery.Node, pred func(*xmlquery.Node) bool) *xmlquery.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == xmlquery.ElementNode && pred(p) {
			return p
		}
	}
	return nil
}

// Text returns the concatenated text content of n and its descendants.
func Text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return n.InnerText()
}

// SetText replaces the text content of an element with a single text node.
func SetText(n *xmlquery.Node, s string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == xmlquery.TextNode {
			Remove(c)
		}
		c = next
	}
	t := &xmlquery.Node{Type: xmlquery.TextNode, Data: s}
	AppendChild(n, t)
}

// Attr returns the value of the attribute with the given qualified name
// ("w:val"), or the empty string.
func Attr(n *xmlquery.Node, qname string) string {
	return n.SelectAttr(qname)
}

// SetAttr sets (or replaces) an attribute by qualified name.
func SetAttr(n *xmlquery.Node, qname, value string) {
	prefix, local := splitQName(qname)
	for i := range n.Attr {
		if n.Attr[i].Name.Space == prefix && n.Attr[i].Name.Local == local {
			n.Attr[i].Value = value
			return
		}
	}
	xmlquery.AddAttr(n, qname, value)
}

// RemoveAttr deletes an attribute by qualified name. Missing attributes are a
// no-op.
func RemoveAttr(n *xmlquery.Node, qname string) {
	prefix, local := splitQName(qname)
	for i := range n.Attr {
		if n.Attr[i].Name.Space == prefix && n.Attr[i].Name.Local == local {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func splitQName(qname string) (prefix, local string) {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[:i], qname[i+1:]
	}
	return "", qname
}

// NewElement creates a detached element node with the given qualified name.
func NewElement(qname string) *xmlquery.Node {
	prefix, local := splitQName(qname)
	return &xmlquery.Node{
		Type:   xmlquery.ElementNode,
		Data:   local,
		Prefix: prefix,
	}
}

// Clone returns a deep copy of n. The copy is detached: its Parent and
// sibling pointers are nil.
func Clone(n *xmlquery.Node) *xmlquery.Node {
	if n == nil {
		return nil
	}
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
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		AppendChild(cp, Clone(c))
	}
	return cp
}

// AppendChild attaches child as the last child of parent.
func AppendChild(parent, child *xmlquery.Node) {
	child.Parent = parent
	child.NextSibling = nil
	if parent.FirstChild == nil {
		parent.FirstChild = child
		child.PrevSibling = nil
	} else {
		last := parent.LastChild
		last.NextSibling = child
		child.PrevSibling = last
	}
	parent.LastChild = child
}

// InsertBefore inserts n immediately before ref in ref's parent.
func InsertBefore(ref, n *xmlquery.Node) {
	parent := ref.Parent
	n.Parent = parent
	n.NextSibling = ref
	n.PrevSibling = ref.PrevSibling
	if ref.PrevSibling != nil {
		ref.PrevSibling.NextSibling = n
	} else if parent != nil {
		parent.FirstChild = n
	}
	ref.PrevSibling = n
}

// InsertAfter inserts n immediately after ref in ref's parent.
func InsertAfter(ref, n *xmlquery.Node) {
	parent := ref.Parent
	n.Parent = parent
	n.PrevSibling = ref
	n.NextSibling = ref.NextSibling
	if ref.NextSibling != nil {
		ref.NextSibling.PrevSibling = n
	} else if parent != nil {
		parent.LastChild = n
	}
	ref.NextSibling = n
}

// Remove detaches n from its parent. Detached nodes are a no-op.
func Remove(n *xmlquery.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	if n.PrevSibling != nil {
		n.PrevSibling.NextSibling = n.NextSibling
	} else {
		parent.FirstChild = n.NextSibling
	}
	if n.NextSibling != nil {
		n.NextSibling.PrevSibling = n.PrevSibling
	} else {
		parent.LastChild = n.PrevSibling
	}
	n.Parent = nil
	n.PrevSibling = nil
	n.NextSibling = nil
}

// Unwrap replaces n with its own children, splicing them into n's position.
func Unwrap(n *xmlquery.Node) {
	for n.FirstChild != nil {
		c := n.FirstChild
		Remove(c)
		InsertBefore(n, c)
	}
	Remove(n)
}

// CanonicalString serializes an element with child elements and attributes
// sorted by qualified name, recursively. Two elements that differ only in
// attribute or child ordering canonicalize identically. Text content is
// preserved in place relative to sorted element children.
func CanonicalString(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	writeCanonical(&b, n)
	return b.String()
}

func writeCanonical(b *strings.Builder, n *xmlquery.Node) {
	switch n.Type {
	case xmlquery.TextNode:
		b.WriteString(n.Data)
		return
	case xmlquery.ElementNode:
		// fall through
	default:
		return
	}
	b.WriteByte('<')
	b.WriteString(Name(n))
	attrs := make([]xmlquery.Attr, len(n.Attr))
	copy(attrs, n.Attr)
	sort.Slice(attrs, func(i, j int) bool {
		a, c := attrs[i].Name, attrs[j].Name
		if a.Space != c.Space {
			return a.Space < c.Space
		}
		return a.Local < c.Local
	})
	for _, a := range attrs {
		b.WriteByte(' ')
		if a.Name.Space != "" {
			b.WriteString(a.Name.Space)
			b.WriteByte(':')
		}
		b.WriteString(a.Name.Local)
		b.WriteString("=\"")
		b.WriteString(a.Value)
		b.WriteByte('"')
	}
	b.WriteByte('>')

	var elems []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			elems = append(elems, c)
		case xmlquery.TextNode:
			b.WriteString(c.Data)
		}
	}
	sorted := make([]*xmlquery.Node, len(elems))
	copy(sorted, elems)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Name(sorted[i]) < Name(sorted[j])
	})
	for _, c := range sorted {
		writeCanonical(b, c)
	}
	b.WriteString("</")
	b.WriteString(Name(n))
	b.WriteByte('>')
}
