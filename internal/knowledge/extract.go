// Package knowledge turns reference documentation into embedded chunks the
// agent can retrieve. PDF, Markdown, and plain text sources are supported.
package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PageText is the extracted text of one source page. Markdown and plain
// text sources have a single page 0.
type PageText struct {
	Page int
	Text string
}

// Extract reads a document and returns its text, dispatching on extension.
func Extract(path string) ([]PageText, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".md", ".markdown":
		return extractMarkdown(path)
	default:
		return extractPlain(path)
	}
}

func extractPDF(path string) ([]PageText, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var pages []PageText
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		pages = append(pages, PageText{Page: i, Text: content})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdf %s has no extractable text", path)
	}
	return pages, nil
}

// extractMarkdown walks the goldmark AST, prefixing each section with its
// heading so chunks keep their context after splitting.
func extractMarkdown(path string) ([]PageText, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var sb strings.Builder
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			heading := string(n.Text(source))
			sb.WriteString("\n\nHeading: " + heading + "\n")
		case *ast.FencedCodeBlock:
			var code strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				code.Write(line.Value(source))
			}
			sb.WriteString("\n" + code.String())
		default:
			txt := extractNodeText(node, source)
			if txt != "" {
				sb.WriteString("\n\n" + txt)
			}
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return nil, fmt.Errorf("markdown %s is empty", path)
	}
	return []PageText{{Page: 0, Text: content}}, nil
}

func extractNodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			sb.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func extractPlain(path string) ([]PageText, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return nil, fmt.Errorf("document %s is empty", path)
	}
	return []PageText{{Page: 0, Text: trimmed}}, nil
}
