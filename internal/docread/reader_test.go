package docread

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/floegence/docplanner/internal/engine"
)

func newTestReader(t *testing.T) (*Reader, string) {
	return newTestReaderMax(t, 64)
}

func newTestReaderMax(t *testing.T, maxBytes int64) (*Reader, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := NewReader(Options{Root: dir, MaxBytes: maxBytes})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r, dir
}

func TestReader_ReadsText(t *testing.T) {
	t.Parallel()

	r, dir := newTestReader(t)
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("\ufeff# Notes\nhello"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := r.Read(context.Background(), "notes.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "# Notes\nhello" {
		t.Fatalf("got=%q", got)
	}
}

func TestReader_NotFound(t *testing.T) {
	t.Parallel()

	r, _ := newTestReader(t)
	for _, name := range []string{"missing.txt", "", "../outside.txt"} {
		_, err := r.Read(context.Background(), name)
		if !errors.Is(err, engine.ErrDocumentNotFound) {
			t.Fatalf("Read(%q) err=%v, want ErrDocumentNotFound", name, err)
		}
	}
}

func TestReader_ExtractionErrors(t *testing.T) {
	t.Parallel()

	r, dir := newTestReader(t)
	files := map[string][]byte{
		"binary.bin": {0xff, 0xfe, 0x00, 0xc3},
		"broken.pdf": []byte("%PDF-1.4 not really a pdf"),
		"large.txt":  make([]byte, 100),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	for name := range files {
		_, err := r.Read(context.Background(), name)
		if !errors.Is(err, engine.ErrExtraction) {
			t.Fatalf("Read(%q) err=%v, want ErrExtraction", name, err)
		}
	}
}

func TestReader_CancelledContext(t *testing.T) {
	t.Parallel()

	r, _ := newTestReader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Read(ctx, "x.txt"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want canceled", err)
	}
}

// singlePagePDF builds a one-page PDF that shows text in Helvetica, with a
// correct cross-reference table.
func singlePagePDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 18 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objects)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return b.Bytes()
}

func TestReader_ExtractsPDFText(t *testing.T) {
	t.Parallel()

	r, dir := newTestReaderMax(t, 0)
	if err := os.WriteFile(filepath.Join(dir, "doc.pdf"), singlePagePDF("Invoice 42 total 12.50"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := r.Read(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(got, "Invoice 42 total 12.50") {
		t.Fatalf("got=%q, want the page text", got)
	}
}

func TestExtract_DecidesByContent(t *testing.T) {
	t.Parallel()

	doc := singlePagePDF("Quarterly revenue grew")
	asPDF, err := Extract("report.pdf", doc)
	if err != nil {
		t.Fatalf("Extract(report.pdf): %v", err)
	}
	asBin, err := Extract("report.bin", doc)
	if err != nil {
		t.Fatalf("Extract(report.bin): %v", err)
	}
	if asPDF != asBin || !strings.Contains(asPDF, "Quarterly revenue grew") {
		t.Fatalf("pdf bytes: .pdf=%q .bin=%q", asPDF, asBin)
	}

	text := []byte("INVOICE #42\nTotal due: 12.50 EUR")
	for _, name := range []string{"invoice.txt", "invoice.pdf", "invoice"} {
		got, err := Extract(name, text)
		if err != nil {
			t.Fatalf("Extract(%q): %v", name, err)
		}
		if got != string(text) {
			t.Fatalf("Extract(%q)=%q, want %q", name, got, text)
		}
	}
}
