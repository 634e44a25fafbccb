// Package docread resolves document names under a root directory and turns
// their bytes into text.
package docread

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/floegence/docplanner/internal/engine"
)

const defaultMaxBytes = 32 << 20

type Options struct {
	Root string
	// MaxBytes caps a single document; <= 0 means 32 MiB.
	MaxBytes int64
}

// Reader implements engine.DocumentReader over a directory tree.
type Reader struct {
	root     string
	maxBytes int64
}

func NewReader(opts Options) (*Reader, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, errors.New("missing document root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Reader{root: filepath.Clean(abs), maxBytes: maxBytes}, nil
}

func (r *Reader) Root() string { return r.root }

// Read returns the extracted text of the named document.
func (r *Reader) Read(ctx context.Context, name string) (string, error) {
	data, path, err := r.ReadBytes(ctx, name)
	if err != nil {
		return "", err
	}
	return Extract(path, data)
}

// ReadBytes returns the raw bytes of the named document and its resolved path.
func (r *Reader) ReadBytes(ctx context.Context, name string) ([]byte, string, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
	}
	path, err := r.resolve(name)
	if err != nil {
		return nil, "", err
	}
	data, err := ReadFile(path, r.maxBytes)
	if err != nil {
		return nil, "", err
	}
	return data, path, nil
}

func (r *Reader) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty document name", engine.ErrDocumentNotFound)
	}
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(r.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the document root", engine.ErrDocumentNotFound, name)
	}
	return p, nil
}

// ReadFile reads at most maxBytes from path, mapping absence to
// engine.ErrDocumentNotFound.
func ReadFile(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", engine.ErrDocumentNotFound, filepath.Base(path))
		}
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", engine.ErrDocumentNotFound, filepath.Base(path))
	}
	if maxBytes > 0 && st.Size() > maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", engine.ErrExtraction, filepath.Base(path), maxBytes)
	}
	return io.ReadAll(f)
}

var pdfMagic = []byte("%PDF-")

// Extract converts document bytes to text. The format is decided by the
// content alone so that identical bytes always extract the same way; path is
// only used in error messages. PDFs go through a PDF text extractor and
// everything else must be UTF-8 text.
func Extract(path string, data []byte) (string, error) {
	if bytes.HasPrefix(data, pdfMagic) {
		return extractPDF(data)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not UTF-8 text", engine.ErrExtraction, filepath.Base(path))
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

func extractPDF(data []byte) (text string, err error) {
	defer func() {
		// The PDF parser panics on some malformed inputs.
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("%w: pdf: %v", engine.ErrExtraction, rec)
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", engine.ErrExtraction, err)
	}
	plain, err := rd.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", engine.ErrExtraction, err)
	}
	var b bytes.Buffer
	if _, err := b.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("%w: pdf: %v", engine.ErrExtraction, err)
	}
	return strings.TrimSpace(b.String()), nil
}
