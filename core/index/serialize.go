package index

import (
	"bytes"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Serialize converts the document back to XML bytes in canonical form:
// node and attribute order as parsed, attributes double-quoted, text
// escaped with the minimal entities (&amp; &lt; &gt;, plus &quot; in
// attribute values), character and entity references resolved to the
// characters they name, and childless elements self-closed. A document
// already in this form round-trips byte-for-byte, and serializing the
// parse of a Serialize output reproduces it exactly, so a second pass
// over processed output is a no-op.
func (ix *Index) Serialize() []byte {
	var buf bytes.Buffer
	for child := ix.doc.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.DeclarationNode && !ix.hasDecl {
			// Synthesized by the parser, not present in the source.
			continue
		}
		writeNode(&buf, child)
	}
	return buf.Bytes()
}

// SerializeNode writes a single subtree. Used for logging and tests.
func SerializeNode(n *xmlquery.Node) []byte {
	var buf bytes.Buffer
	writeNode(&buf, n)
	return buf.Bytes()
}

func writeNode(w *bytes.Buffer, n *xmlquery.Node) {
	switch n.Type {
	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		writeAttrs(w, n)
		w.WriteString("?>")

	case xmlquery.ElementNode:
		w.WriteByte('<')
		w.WriteString(qualifiedName(n))
		writeAttrs(w, n)
		if n.FirstChild == nil {
			w.WriteString("/>")
			return
		}
		w.WriteByte('>')
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			writeNode(w, child)
		}
		w.WriteString("</")
		w.WriteString(qualifiedName(n))
		w.WriteByte('>')

	case xmlquery.TextNode:
		w.WriteString(escapeText(n.Data))

	case xmlquery.CharDataNode:
		w.WriteString("<![CDATA[")
		w.WriteString(n.Data)
		w.WriteString("]]>")

	case xmlquery.CommentNode:
		w.WriteString("<!--")
		w.WriteString(n.Data)
		w.WriteString("-->")

	case xmlquery.NotationNode:
		w.WriteString("<!")
		w.WriteString(n.Data)
		w.WriteByte('>')
	}
}

func qualifiedName(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

func writeAttrs(w *bytes.Buffer, n *xmlquery.Node) {
	for _, attr := range n.Attr {
		w.WriteByte(' ')
		w.WriteString(attrName(attr))
		w.WriteString(`="`)
		w.WriteString(escapeAttr(attr.Value))
		w.WriteByte('"')
	}
}

// attrName reconstructs the attribute name as written in the source.
// The decoder leaves the prefix in Name.Space, except for the predefined
// xml namespace which it resolves to its URI.
func attrName(attr xmlquery.Attr) string {
	switch attr.Name.Space {
	case "":
		return attr.Name.Local
	case "http://www.w3.org/XML/1998/namespace":
		return "xml:" + attr.Name.Local
	default:
		return attr.Name.Space + ":" + attr.Name.Local
	}
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func escapeAttr(s string) string {
	return strings.ReplaceAll(escapeText(s), `"`, "&quot;")
}
