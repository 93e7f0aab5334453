package index

import (
	"encoding/xml"
	"strings"

	"github.com/antchfx/xmlquery"
)

// NewElement creates a detached element node in the given namespace.
func NewElement(name, namespaceURI string) *xmlquery.Node {
	return &xmlquery.Node{
		Type:         xmlquery.ElementNode,
		Data:         name,
		NamespaceURI: namespaceURI,
	}
}

// NewText creates a detached text node.
func NewText(text string) *xmlquery.Node {
	return &xmlquery.Node{
		Type: xmlquery.TextNode,
		Data: text,
	}
}

// SetAttr sets an attribute on an element, replacing an existing value.
// The name may carry a prefix ("xml:id").
func SetAttr(n *xmlquery.Node, name, value string) {
	space, local := "", name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		space, local = name[:i], name[i+1:]
	}
	for i := range n.Attr {
		if n.Attr[i].Name.Local == local && n.Attr[i].Name.Space == space {
			n.Attr[i].Value = value
			return
		}
	}
	n.Attr = append(n.Attr, xmlquery.Attr{
		Name:  xml.Name{Space: space, Local: local},
		Value: value,
	})
}

// AppendChild attaches a detached node as the last child of parent.
func AppendChild(parent, n *xmlquery.Node) {
	n.Parent = parent
	n.NextSibling = nil
	if parent.FirstChild == nil {
		parent.FirstChild = n
		n.PrevSibling = nil
	} else {
		last := parent.LastChild
		last.NextSibling = n
		n.PrevSibling = last
	}
	parent.LastChild = n
}

// InsertBefore attaches a detached node as a sibling immediately before ref.
func InsertBefore(parent, n, ref *xmlquery.Node) {
	n.Parent = parent
	n.NextSibling = ref
	n.PrevSibling = ref.PrevSibling
	if ref.PrevSibling != nil {
		ref.PrevSibling.NextSibling = n
	} else {
		parent.FirstChild = n
	}
	ref.PrevSibling = n
}

// InsertAfter attaches a detached node as a sibling immediately after ref.
func InsertAfter(parent, n, ref *xmlquery.Node) {
	n.Parent = parent
	n.PrevSibling = ref
	n.NextSibling = ref.NextSibling
	if ref.NextSibling != nil {
		ref.NextSibling.PrevSibling = n
	} else {
		parent.LastChild = n
	}
	ref.NextSibling = n
}

// Detach unlinks a node from its parent and siblings. The node keeps its
// own children and can be re-attached elsewhere.
func Detach(n *xmlquery.Node) {
	if n.Parent != nil {
		if n.Parent.FirstChild == n {
			n.Parent.FirstChild = n.NextSibling
		}
		if n.Parent.LastChild == n {
			n.Parent.LastChild = n.PrevSibling
		}
	}
	if n.PrevSibling != nil {
		n.PrevSibling.NextSibling = n.NextSibling
	}
	if n.NextSibling != nil {
		n.NextSibling.PrevSibling = n.PrevSibling
	}
	n.Parent = nil
	n.PrevSibling = nil
	n.NextSibling = nil
}

// Clone makes a deep copy of a node and its subtree, detached.
func Clone(n *xmlquery.Node) *xmlquery.Node {
	cp := &xmlquery.Node{
		Type:         n.Type,
		Data:         n.Data,
		Prefix:       n.Prefix,
		NamespaceURI: n.NamespaceURI,
	}
	cp.Attr = append(cp.Attr, n.Attr...)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		AppendChild(cp, Clone(child))
	}
	return cp
}

// ElementChildren returns the element children of a node in order.
func ElementChildren(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			out = append(out, child)
		}
	}
	return out
}

// NextElement returns the next element sibling, skipping text and comments.
func NextElement(n *xmlquery.Node) *xmlquery.Node {
	for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == xmlquery.ElementNode {
			return sib
		}
	}
	return nil
}
