package session

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is the part of an HTML page the extractor needs.
type Document interface {
	// First returns the first element matching a CSS selector.
	First(selector string) (Element, bool)
	// All returns every element matching a CSS selector in document order.
	All(selector string) []Element
}

// Element is a single node of a Document.
type Element interface {
	Attr(name string) (string, bool)
	// Parent returns the enclosing element, if any.
	Parent() (Element, bool)
	First(selector string) (Element, bool)
	// FirstText returns the first descendant text node.
	FirstText() (string, bool)
	// Describe renders the element's tag and attributes for diagnostics.
	Describe() string
}

// ParseHTML reads a page into a goquery-backed Document.
func ParseHTML(r io.Reader) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return goqueryDocument{doc: doc}, nil
}

type goqueryDocument struct {
	doc *goquery.Document
}

func (d goqueryDocument) First(selector string) (Element, bool) {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return goqueryElement{sel: sel}, true
}

func (d goqueryDocument) All(selector string) []Element {
	var elements []Element
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, goqueryElement{sel: s})
	})
	return elements
}

type goqueryElement struct {
	sel *goquery.Selection
}

func (e goqueryElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e goqueryElement) Parent() (Element, bool) {
	parent := e.sel.Parent()
	if parent.Length() == 0 || parent.Nodes[0].Type != html.ElementNode {
		return nil, false
	}
	return goqueryElement{sel: parent}, true
}

func (e goqueryElement) First(selector string) (Element, bool) {
	sel := e.sel.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return goqueryElement{sel: sel}, true
}

func (e goqueryElement) FirstText() (string, bool) {
	return firstTextNode(e.sel.Nodes[0])
}

func firstTextNode(node *html.Node) (string, bool) {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			return child.Data, true
		}
		if text, ok := firstTextNode(child); ok {
			return text, true
		}
	}
	return "", false
}

func (e goqueryElement) Describe() string {
	node := e.sel.Nodes[0]
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(node.Data)
	for _, a := range node.Attr {
		fmt.Fprintf(&b, " %s=%q", a.Key, a.Val)
	}
	b.WriteString(">")
	return b.String()
}
