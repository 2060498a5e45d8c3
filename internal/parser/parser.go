package parser

import (
	"archive/zip"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"paper-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// SupportedExtensions lists the file types ExtractPages understands.
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".docx", ".pptx", ".xlsx"}

// ExtractPages reads filePath and returns its non-empty pages in source order.
// Page numbers are 1-based positions in the source, so skipped blank pages leave gaps.
func ExtractPages(filePath string) ([]models.Page, error) {
	var (
		raw []string
		err error
	)

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		raw, err = extractPDF(filePath)
	case ".txt":
		raw, err = extractText(filePath)
	case ".md":
		raw, err = extractMarkdown(filePath)
	case ".docx":
		raw, err = extractDOCX(filePath)
	case ".pptx":
		raw, err = extractPPTX(filePath)
	case ".xlsx":
		raw, err = extractXLSX(filePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filepath.Base(filePath), err)
	}

	return buildPages(raw), nil
}

func buildPages(raw []string) []models.Page {
	var pages []models.Page
	for i, pageText := range raw {
		cleaned := cleanText(pageText)
		if cleaned == "" {
			continue
		}
		pages = append(pages, models.Page{
			Number:               i + 1,
			Text:                 cleaned,
			DetectedSectionTitle: PageTitle(cleaned),
		})
	}
	return pages
}

// cleanText collapses whitespace inside each line, drops blank lines and keeps a single
// blank line where paragraphs were separated.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(line)
		blank = false
	}
	return b.String()
}

func extractPDF(filePath string) (pages []string, err error) {
	// ledongthuc/pdf panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, pageText)
	}
	return pages, nil
}

// extractText treats form feeds as page breaks, which is what pdftotext emits.
func extractText(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\f"), nil
}

func extractMarkdown(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []string{markdownToText(data)}, nil
}

// markdownToText renders the markdown AST as plain text, one block per line.
func markdownToText(src []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
			}
		}
		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			b.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func extractDOCX(filePath string) ([]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// DOCX has no page numbers
	content := r.Editable().GetContent()
	return []string{paragraphsFromXML(content, "</w:p>", "w:t")}, nil
}

func extractPPTX(filePath string) ([]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	slides := make(map[int]string)
	maxSlide := 0
	for _, file := range f.File {
		num, ok := slideNumber(file.Name)
		if !ok {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slides[num] = paragraphsFromXML(string(data), "</a:p>", "a:t")
		maxSlide = max(maxSlide, num)
	}

	pages := make([]string, maxSlide)
	for num, slideText := range slides {
		pages[num-1] = slideText
	}
	return pages, nil
}

// slideNumber parses "ppt/slides/slide12.xml" into 12.
func slideNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func extractXLSX(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		var sheetText strings.Builder
		sheetText.WriteString(sheetName + "\n")
		for _, row := range rows {
			sheetText.WriteString(strings.Join(row, "\t"))
			sheetText.WriteString("\n")
		}
		pages = append(pages, sheetText.String())
	}
	return pages, nil
}

// paragraphsFromXML splits OOXML content on paragraph close tags and returns the text
// runs of each paragraph on its own line.
func paragraphsFromXML(xmlContent, paragraphClose, textTag string) string {
	var lines []string
	for _, para := range strings.Split(xmlContent, paragraphClose) {
		if line := extractTextFromXML(para, textTag); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func extractTextFromXML(xmlContent, tag string) string {
	var sb strings.Builder
	open := "<" + tag
	closeTag := "</" + tag + ">"

	rest := xmlContent
	for {
		i := strings.Index(rest, open)
		if i < 0 {
			break
		}
		rest = rest[i+len(open):]
		// skip longer tag names sharing the prefix, e.g. <w:tab/> or <w:tbl>
		if rest == "" || (rest[0] != '>' && rest[0] != ' ') {
			continue
		}
		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			break
		}
		selfClosing := gt > 0 && rest[gt-1] == '/'
		rest = rest[gt+1:]
		if selfClosing {
			continue
		}
		end := strings.Index(rest, closeTag)
		if end < 0 {
			break
		}
		sb.WriteString(html.UnescapeString(rest[:end]))
		rest = rest[end+len(closeTag):]
	}
	return sb.String()
}
