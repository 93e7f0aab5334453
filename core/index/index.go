// Package index provides the mutable structural index over a parsed XML
// document: a stable path-based addressing scheme for nodes, locate and
// mutate primitives, and a canonical-form serializer under which
// untouched canonical documents round-trip byte-identical.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder
//     via the xmlquery library, which doesn't fetch external entities.
package index

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/Amanuensis/core/errors"
)

// Index represents a parsed XML document with addressable nodes.
type Index struct {
	doc *xmlquery.Node // document node (not the root element)
	// hasDecl records whether the source bytes carried an XML declaration.
	// The parser synthesizes one when absent; Serialize must not emit it.
	hasDecl bool
}

// Locator is an immutable, order-stable address of a node: a path of
// local names with 1-based positions among same-named element siblings,
// e.g. "/TEI[1]/text[1]/body[1]/p[2]/abbr[1]". Locators survive
// serialization and can be resolved against a rebuilt tree as long as
// the shape above the node is unchanged.
type Locator string

// Parse parses XML data and returns an Index.
// Malformed input fails with an error matching errors.ErrMalformedStructure.
func Parse(data []byte) (*Index, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewMalformed("", err.Error(), err)
	}
	src := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return &Index{doc: doc, hasDecl: bytes.HasPrefix(src, []byte("<?xml"))}, nil
}

// Doc returns the document node.
func (ix *Index) Doc() *xmlquery.Node {
	return ix.doc
}

// Root returns the root element of the document, or nil if there is none.
func (ix *Index) Root() *xmlquery.Node {
	for child := ix.doc.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child
		}
	}
	return nil
}

// Query executes an XPath query against the document and returns all matches.
func (ix *Index) Query(expr string) ([]*xmlquery.Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes, err := xmlquery.QueryAll(ix.doc, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	return nodes, nil
}

// LocatorFor computes the path locator for an element node in this index.
func (ix *Index) LocatorFor(n *xmlquery.Node) Locator {
	var segs []string
	for cur := n; cur != nil && cur.Type == xmlquery.ElementNode; cur = cur.Parent {
		pos := 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == xmlquery.ElementNode && sib.Data == cur.Data {
				pos++
			}
		}
		segs = append(segs, fmt.Sprintf("%s[%d]", cur.Data, pos))
	}
	// segs were collected leaf-first
	var b strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segs[i])
	}
	return Locator(b.String())
}

// Locate resolves a locator to a live node handle.
// A miss fails with an error matching errors.ErrStructuralConflict.
func (ix *Index) Locate(loc Locator) (*xmlquery.Node, error) {
	path := string(loc)
	if path == "" || path[0] != '/' {
		return nil, errors.NewConflict(path, "empty or relative locator")
	}
	cur := ix.doc
	for _, seg := range strings.Split(path[1:], "/") {
		name, pos, err := splitSegment(seg)
		if err != nil {
			return nil, errors.NewConflict(path, err.Error())
		}
		var next *xmlquery.Node
		count := 0
		for child := cur.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode && child.Data == name {
				count++
				if count == pos {
					next = child
					break
				}
			}
		}
		if next == nil {
			return nil, errors.NewConflict(path, fmt.Sprintf("segment %q not found", seg))
		}
		cur = next
	}
	return cur, nil
}

// splitSegment parses a "name[pos]" locator segment.
func splitSegment(seg string) (string, int, error) {
	open := strings.IndexByte(seg, '[')
	if open <= 0 || !strings.HasSuffix(seg, "]") {
		return "", 0, fmt.Errorf("bad segment %q", seg)
	}
	pos, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || pos < 1 {
		return "", 0, fmt.Errorf("bad position in segment %q", seg)
	}
	return seg[:open], pos, nil
}

// Replace substitutes the node at loc with a new subtree.
func (ix *Index) Replace(loc Locator, subtree *xmlquery.Node) error {
	n, err := ix.Locate(loc)
	if err != nil {
		return err
	}
	InsertBefore(n.Parent, subtree, n)
	Detach(n)
	return nil
}

// Wrap replaces the node at loc with a new element of the given name that
// contains the original node as its only child. The wrapper inherits the
// node's namespace. Returns the wrapper.
func (ix *Index) Wrap(loc Locator, name string) (*xmlquery.Node, error) {
	n, err := ix.Locate(loc)
	if err != nil {
		return nil, err
	}
	wrapper := NewElement(name, n.NamespaceURI)
	InsertBefore(n.Parent, wrapper, n)
	Detach(n)
	AppendChild(wrapper, n)
	return wrapper, nil
}

// InnerText returns all text content of the node and its descendants.
func InnerText(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return n.InnerText()
}
