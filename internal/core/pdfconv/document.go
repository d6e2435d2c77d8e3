package pdfconv

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Document is an open PDF handle. Pages are numbered from 1.
type Document interface {
	NumPages() int
	PageText(page int) (string, error)
	// Info returns the document information dictionary keyed by PDF names
	// (Title, Author, Subject, Creator, Producer, CreationDate, ModDate).
	Info() map[string]string
	Encrypted() bool
	Close() error
}

// Backend opens documents and answers structural questions without
// extracting text.
type Backend interface {
	Open(path string) (Document, error)
	PageCount(path string) (int, error)
	PageSizes(path string, limit int) ([]PageSize, error)
}

var infoKeys = []string{"Title", "Author", "Subject", "Creator", "Producer", "CreationDate", "ModDate"}

// PDFBackend reads text with ledongthuc/pdf and page geometry with pdfcpu.
type PDFBackend struct {
	conf *model.Configuration
}

// NewPDFBackend returns the production backend.
func NewPDFBackend() *PDFBackend {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFBackend{conf: conf}
}

var _ Backend = (*PDFBackend)(nil)

// Open parses the cross-reference table and trailer. The parser panics on
// some malformed inputs; those panics come back as errors.
func (b *PDFBackend) Open(path string) (doc Document, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			f.Close()
			doc, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return &pdfDocument{f: f, r: r}, nil
}

// PageCount validates the file structure and returns its page count.
func (b *PDFBackend) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return api.PageCount(f, b.conf)
}

// PageSizes returns the media box of at most limit leading pages.
func (b *PDFBackend) PageSizes(path string, limit int) ([]PageSize, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dims, err := api.PageDims(f, b.conf)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(dims) > limit {
		dims = dims[:limit]
	}
	out := make([]PageSize, 0, len(dims))
	for i, d := range dims {
		out = append(out, PageSize{Page: i + 1, Width: d.Width, Height: d.Height})
	}
	return out, nil
}

type pdfDocument struct {
	f *os.File
	r *pdf.Reader
}

func (d *pdfDocument) NumPages() (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	return d.r.NumPage()
}

func (d *pdfDocument) PageText(page int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", page, r)
		}
	}()
	p := d.r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func (d *pdfDocument) Info() (out map[string]string) {
	out = make(map[string]string, len(infoKeys))
	defer func() { _ = recover() }()

	info := d.r.Trailer().Key("Info")
	if info.IsNull() {
		return out
	}
	for _, k := range infoKeys {
		if v := info.Key(k).Text(); v != "" {
			out[k] = v
		}
	}
	return out
}

func (d *pdfDocument) Encrypted() bool {
	return !d.r.Trailer().Key("Encrypt").IsNull()
}

func (d *pdfDocument) Close() error {
	return d.f.Close()
}
