package parser

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"paper-rag/internal/models"

	"github.com/xuri/excelize/v2"
)

func TestCleanText(t *testing.T) {
	in := "  Title   line \r\n\n\n  body\twith   spaces\nnext line  "
	want := "Title line\n\nbody with spaces\nnext line"
	if got := cleanText(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildPages_KeepsSourceNumbering(t *testing.T) {
	pages := buildPages([]string{"Abstract\nfirst page", "   ", "third page"})
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Number != 1 || pages[1].Number != 3 {
		t.Errorf("numbers: %d, %d", pages[0].Number, pages[1].Number)
	}
	if pages[0].DetectedSectionTitle != "Abstract" || pages[1].DetectedSectionTitle != models.ContentLabel {
		t.Errorf("titles: %q, %q", pages[0].DetectedSectionTitle, pages[1].DetectedSectionTitle)
	}
}

func TestExtractPages_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.txt")
	if err := os.WriteFile(path, []byte("Abstract\nfirst page\fsecond   page"), 0600); err != nil {
		t.Fatal(err)
	}
	pages, err := ExtractPages(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 || pages[1].Text != "second page" {
		t.Errorf("got %+v", pages)
	}
}

func TestExtractPages_Unsupported(t *testing.T) {
	_, err := ExtractPages("slides.key")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtractPages_CorruptPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractPages(path); err == nil {
		t.Fatal("expected an error for a corrupt pdf")
	}
}

func TestExtractPages_Markdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	src := "# 1 Introduction\n\nHello *world*.\n\n```\ncode line\n```\n"
	if err := os.WriteFile(path, []byte(src), 0600); err != nil {
		t.Fatal(err)
	}
	pages, err := ExtractPages(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	text := pages[0].Text
	if !strings.HasPrefix(text, "1 Introduction\n") || !strings.Contains(text, "Hello world.") || !strings.Contains(text, "code line") {
		t.Errorf("got %q", text)
	}
	if strings.ContainsAny(text, "#*`") {
		t.Errorf("markdown syntax leaked: %q", text)
	}
}

func TestExtractPages_PPTXSlidesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.pptx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	slides := map[string]string{
		"ppt/slides/slide2.xml": `<p:sld><a:p><a:r><a:t>Second slide</a:t></a:r></a:p></p:sld>`,
		"ppt/slides/slide1.xml": `<p:sld><a:p><a:r><a:t>Slide one title</a:t></a:r></a:p><a:p><a:r><a:t>Body &amp; more</a:t></a:r></a:p></p:sld>`,
		"ppt/presentation.xml":  `<p:presentation/>`,
	}
	for name, body := range slides {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	pages, err := ExtractPages(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(pages))
	}
	if pages[0].Number != 1 || pages[0].Text != "Slide one title\nBody & more" {
		t.Errorf("slide 1: %+v", pages[0])
	}
	if pages[1].Number != 2 || pages[1].Text != "Second slide" {
		t.Errorf("slide 2: %+v", pages[1])
	}
}

func TestExtractPages_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.xlsx")
	f := excelize.NewFile()
	_ = f.SetCellValue("Sheet1", "A1", "Name")
	_ = f.SetCellValue("Sheet1", "B1", "Score")
	_ = f.SetCellValue("Sheet1", "A2", "alpha")
	_ = f.SetCellValue("Sheet1", "B2", 3)
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	pages, err := ExtractPages(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].Text != "Sheet1\nName Score\nalpha 3" {
		t.Errorf("got %+v", pages)
	}
}

func TestExtractPages_XLSXSheetsInWorkbookOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	f := excelize.NewFile()
	if _, err := f.NewSheet("Ablations"); err != nil {
		t.Fatal(err)
	}
	_ = f.SetCellValue("Sheet1", "A1", "baseline")
	_ = f.SetCellValue("Ablations", "A1", "no attention")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	pages, err := ExtractPages(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected one page per sheet, got %+v", pages)
	}
	if pages[0].Number != 1 || pages[0].Text != "Sheet1\nbaseline" {
		t.Errorf("sheet 1: %+v", pages[0])
	}
	if pages[1].Number != 2 || pages[1].Text != "Ablations\nno attention" {
		t.Errorf("sheet 2: %+v", pages[1])
	}
}

func TestParagraphsFromXML_DOCX(t *testing.T) {
	xml := `<w:body><w:p><w:r><w:t>Hel</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve">lo</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>World</w:t></w:r></w:p><w:p><w:r><w:t/></w:r></w:p></w:body>`
	if got := paragraphsFromXML(xml, "</w:p>", "w:t"); got != "Hello\nWorld" {
		t.Errorf("got %q", got)
	}
}
