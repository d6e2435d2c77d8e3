package pdfconv

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// fakePDF describes what the fake backend returns for one file name.
type fakePDF struct {
	pages     []string
	info      map[string]string
	openErr   error
	pageErr   error
	panicMsg  string
	encrypted bool
	sizes     []PageSize
}

type fakeBackend struct {
	mu    sync.Mutex
	docs  map[string]fakePDF
	opens map[string]int
}

func newFakeBackend(docs map[string]fakePDF) *fakeBackend {
	return &fakeBackend{docs: docs, opens: make(map[string]int)}
}

func (b *fakeBackend) lookup(path string) (fakePDF, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.docs[filepath.Base(path)]
	if !ok {
		return fakePDF{}, fmt.Errorf("no fake for %s", filepath.Base(path))
	}
	return d, nil
}

func (b *fakeBackend) openCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[name]
}

func (b *fakeBackend) Open(path string) (Document, error) {
	b.mu.Lock()
	b.opens[filepath.Base(path)]++
	b.mu.Unlock()

	d, err := b.lookup(path)
	if err != nil {
		return nil, err
	}
	if d.panicMsg != "" {
		panic(d.panicMsg)
	}
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeDoc{d: d}, nil
}

func (b *fakeBackend) PageCount(path string) (int, error) {
	d, err := b.lookup(path)
	if err != nil {
		return 0, err
	}
	if d.openErr != nil {
		return 0, d.openErr
	}
	return len(d.pages), nil
}

func (b *fakeBackend) PageSizes(path string, limit int) ([]PageSize, error) {
	d, err := b.lookup(path)
	if err != nil {
		return nil, err
	}
	if len(d.sizes) > limit {
		return d.sizes[:limit], nil
	}
	return d.sizes, nil
}

type fakeDoc struct {
	d fakePDF
}

func (f *fakeDoc) NumPages() int { return len(f.d.pages) }

func (f *fakeDoc) PageText(page int) (string, error) {
	if f.d.pageErr != nil {
		return "", f.d.pageErr
	}
	return f.d.pages[page-1], nil
}

func (f *fakeDoc) Info() map[string]string {
	if f.d.info == nil {
		return map[string]string{}
	}
	return f.d.info
}

func (f *fakeDoc) Encrypted() bool { return f.d.encrypted }
func (f *fakeDoc) Close() error    { return nil }

var errCorrupt = errors.New("xref table not found")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeInput creates a placeholder input file so the cache can fingerprint it.
func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}
