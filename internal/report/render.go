package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// Title returns the text of the first level-1 heading in a markdown report,
// or of the first heading of any level when there is no level-1 heading.
func Title(source []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(source))

	var first, top string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		title := extractText(heading, source)
		if first == "" {
			first = title
		}
		if heading.Level == 1 {
			top = title
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})

	if top != "" {
		return top
	}
	return first
}

// RenderHTML converts a markdown report into a standalone HTML page.
func RenderHTML(title string, source []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert(source, &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title))
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// extractText concatenates the text segments below n.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(node.Value)
		default:
			buf.WriteString(extractText(c, source))
		}
	}
	return strings.TrimSpace(buf.String())
}
