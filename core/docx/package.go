// Package docx reads and writes the OPC container around a WordprocessingML
// document. It hands the comparison pipeline a parsed main-part tree plus a
// relationship lookup and lazily-parsed auxiliary parts, and repackages a
// replacement main part without touching anything else in the container.
package docx

import (
	"archive/zip"
	"bytes"
	"io"
	"os"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/errors"
	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

// Document is an opened DOCX package. The main part is parsed eagerly; all
// other parts are kept as raw bytes so repackaging is byte-faithful.
type Document struct {
	// Path is the source file path, if the document was opened from disk.
	Path string

	// Tree is the parsed word/document.xml, rooted at the XML document node.
	Tree *xmlquery.Node

	// Body is the w:body element inside Tree.
	Body *xmlquery.Node

	parts map[string][]byte
	order []string
	rels  map[string]string
	aux   map[string]*xmlquery.Node
}

// Open reads a DOCX package from disk.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	doc, err := ReadBytes(data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// ReadBytes reads a DOCX package from memory.
func ReadBytes(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.NewParse("OPC package", "", err.Error())
	}

	doc := &Document{
		parts: make(map[string][]byte, len(zr.File)),
		aux:   make(map[string]*xmlquery.Node),
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, errors.NewIO("open", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.NewIO("read", f.Name, err)
		}
		doc.parts[f.Name] = content
		doc.order = append(doc.order, f.Name)
	}

	main, ok := doc.parts[ooxml.PartDocument]
	if !ok {
		return nil, errors.NewParse("OPC package", ooxml.PartDocument, "main document part missing")
	}
	tree, err := xml.Parse(main)
	if err != nil {
		return nil, errors.NewParse("XML", ooxml.PartDocument, err.Error())
	}
	body, err := findBody(tree)
	if err != nil {
		return nil, err
	}
	doc.Tree = tree
	doc.Body = body

	if err := doc.parseRels(); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromTree wraps an already-parsed main part tree in a Document with no
// container. Used by tests and by callers that manage packaging themselves.
func FromTree(tree *xmlquery.Node) (*Document, error) {
	body, err := findBody(tree)
	if err != nil {
		return nil, err
	}
	return &Document{
		Tree:  tree,
		Body:  body,
		parts: map[string][]byte{},
		aux:   map[string]*xmlquery.Node{},
		rels:  map[string]string{},
	}, nil
}

func findBody(tree *xmlquery.Node) (*xmlquery.Node, error) {
	var root *xmlquery.Node
	for c := tree.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			root = c
			break
		}
	}
	if root == nil || !ooxml.IsWordElement(root, "document") {
		return nil, errors.NewParse("XML", ooxml.PartDocument, "w:document root missing")
	}
	body := xml.FirstChildNamed(root, "w:body")
	if body == nil {
		return nil, errors.NewParse("XML", ooxml.PartDocument, "w:body missing")
	}
	return body, nil
}

func (d *Document) parseRels() error {
	d.rels = make(map[string]string)
	raw, ok := d.parts["word/_rels/document.xml.rels"]
	if !ok {
		return nil
	}
	tree, err := xml.Parse(raw)
	if err != nil {
		return errors.NewParse("XML", "word/_rels/document.xml.rels", err.Error())
	}
	nodes, err := xml.Query(tree, "//*[local-name()='Relationship']")
	if err != nil {
		return err
	}
	for _, n := range nodes {
		id := n.SelectAttr("Id")
		target := n.SelectAttr("Target")
		if id != "" {
			d.rels[id] = target
		}
	}
	return nil
}

// Relationship resolves a relationship id from the main part's rels.
func (d *Document) Relationship(id string) (string, bool) {
	target, ok := d.rels[id]
	return target, ok
}

// AuxPart returns a lazily-parsed auxiliary part tree (styles, numbering,
// footnotes, endnotes), or nil if the part is absent. Parse failures on
// auxiliary parts are treated as absence: they only feed formatting
// comparison, never structure.
func (d *Document) AuxPart(name string) *xmlquery.Node {
	if tree, ok := d.aux[name]; ok {
		return tree
	}
	raw, ok := d.parts[name]
	if !ok {
		d.aux[name] = nil
		return nil
	}
	tree, err := xml.Parse(raw)
	if err != nil {
		tree = nil
	}
	d.aux[name] = tree
	return tree
}

// MainPartBytes serializes the current state of the main part tree.
func (d *Document) MainPartBytes() []byte {
	return xml.Serialize(d.Tree)
}

// Repackage writes a copy of the container with the main document part
// replaced by docXML. All other parts are copied through unchanged, in their
// original order.
func (d *Document) Repackage(docXML []byte) ([]byte, error) {
	if len(d.order) == 0 {
		// No container: the caller supplied a bare tree.
		return docXML, nil
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range d.order {
		content := d.parts[name]
		if name == ooxml.PartDocument {
			content = docXML
		}
		w, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return nil, errors.NewIO("write", name, err)
		}
		if _, err := w.Write(content); err != nil {
			zw.Close()
			return nil, errors.NewIO("write", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, errors.NewIO("write", "package", err)
	}
	return buf.Bytes(), nil
}
