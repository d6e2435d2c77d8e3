package pdfconv

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type convFixture struct {
	in      string
	out     string
	cache   *Cache
	backend *fakeBackend
	conv    *Converter
}

func newConvFixture(t *testing.T, format Format, docs map[string]fakePDF) *convFixture {
	t.Helper()
	root := t.TempDir()
	f := &convFixture{
		in:      filepath.Join(root, "in"),
		out:     filepath.Join(root, "out"),
		backend: newFakeBackend(docs),
	}
	if err := os.MkdirAll(f.in, 0o755); err != nil {
		t.Fatal(err)
	}
	for name := range docs {
		writeInput(t, f.in, name, "%PDF-fake "+name)
	}
	f.cache = NewCache(filepath.Join(root, "cache"), discardLogger())
	f.cache.Load()
	f.conv = NewConverter(NewExtractor(f.backend, format), f.cache, discardLogger(), Options{})
	return f
}

func (f *convFixture) path(name string) string { return filepath.Join(f.in, name) }

func TestConvertSuccessWritesOutputs(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{
		"a.pdf": {pages: []string{"first page", "second page"}, info: map[string]string{"Title": "A"}},
	})

	o := f.conv.Convert(f.path("a.pdf"), f.out)
	if o.Status != StatusSuccess {
		t.Fatalf("status = %s (%s), want success", o.Status, o.Error)
	}
	if o.OutputFile != filepath.Join(f.out, "a.txt") {
		t.Errorf("OutputFile = %s", o.OutputFile)
	}
	if o.Metadata == nil || o.Metadata.TotalPages != 2 {
		t.Errorf("metadata not attached: %+v", o.Metadata)
	}

	text, err := os.ReadFile(o.OutputFile)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if n := strings.Count(string(text), divider+"\nPage "); n != 2 {
		t.Errorf("found %d page markers, want 2", n)
	}

	raw, err := os.ReadFile(filepath.Join(f.out, "a_metadata.json"))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta DocumentMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Title != "A" || len(meta.PageTexts) != 2 {
		t.Errorf("unexpected metadata file: %+v", meta)
	}

	entry, ok := f.cache.Lookup(f.path("a.pdf"))
	if !ok {
		t.Fatal("cache entry not recorded")
	}
	if entry.Pages != 2 || entry.OutputFile != o.OutputFile {
		t.Errorf("unexpected cache entry: %+v", entry)
	}
	if _, err := time.Parse(time.RFC3339Nano, entry.ProcessedAt); err != nil {
		t.Errorf("processed_at %q not RFC 3339: %v", entry.ProcessedAt, err)
	}
}

func TestConvertMarkdownExtension(t *testing.T) {
	f := newConvFixture(t, FormatMarkdown, map[string]fakePDF{
		"notes.pdf": {pages: []string{"body"}},
	})
	o := f.conv.Convert(f.path("notes.pdf"), f.out)
	if o.Status != StatusSuccess || filepath.Ext(o.OutputFile) != ".md" {
		t.Fatalf("got %s %s", o.Status, o.OutputFile)
	}
	text, _ := os.ReadFile(o.OutputFile)
	if !strings.HasPrefix(string(text), "# notes\n\n## Page 1\n\n") {
		t.Errorf("unexpected markdown header: %q", text)
	}
}

func TestConvertIdempotent(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{
		"a.pdf": {pages: []string{"text"}},
	})

	if o := f.conv.Convert(f.path("a.pdf"), f.out); o.Status != StatusSuccess {
		t.Fatalf("first run: %s", o.Status)
	}
	o := f.conv.Convert(f.path("a.pdf"), f.out)
	if o.Status != StatusSkipped || o.Reason != ReasonAlreadyProcessed {
		t.Fatalf("second run: status=%s reason=%q", o.Status, o.Reason)
	}
	if n := f.backend.openCount("a.pdf"); n != 1 {
		t.Errorf("document opened %d times, want 1", n)
	}
}

func TestConvertReprocessesChangedInput(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{
		"a.pdf": {pages: []string{"text"}},
	})
	f.conv.Convert(f.path("a.pdf"), f.out)

	later := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(f.path("a.pdf"), later, later); err != nil {
		t.Fatal(err)
	}
	if o := f.conv.Convert(f.path("a.pdf"), f.out); o.Status != StatusSuccess {
		t.Errorf("changed input: status = %s, want success", o.Status)
	}
	if n := f.backend.openCount("a.pdf"); n != 2 {
		t.Errorf("document opened %d times, want 2", n)
	}
}

func TestConvertReprocessesDeletedOutput(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{
		"a.pdf": {pages: []string{"text"}},
	})
	first := f.conv.Convert(f.path("a.pdf"), f.out)
	if err := os.Remove(first.OutputFile); err != nil {
		t.Fatal(err)
	}

	o := f.conv.Convert(f.path("a.pdf"), f.out)
	if o.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", o.Status)
	}
	if _, err := os.Stat(o.OutputFile); err != nil {
		t.Errorf("output not rewritten: %v", err)
	}
}

func TestConvertEmptyDocument(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{
		"zero.pdf": {},
		"scan.pdf": {pages: []string{"   ", "\n\n"}},
	})

	for _, name := range []string{"zero.pdf", "scan.pdf"} {
		t.Run(name, func(t *testing.T) {
			o := f.conv.Convert(f.path(name), f.out)
			if o.Status != StatusEmpty {
				t.Fatalf("status = %s, want empty", o.Status)
			}
			if o.Metadata == nil {
				t.Error("empty outcome should carry metadata")
			}
			if _, err := os.Stat(o.OutputFile); !os.IsNotExist(err) {
				t.Errorf("output written for empty document: %v", err)
			}
			if _, ok := f.cache.Lookup(f.path(name)); ok {
				t.Error("empty document recorded in cache")
			}
		})
	}
}

func TestConvertExtractionFailure(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{
		"c.pdf": {openErr: errCorrupt},
	})

	o := f.conv.Convert(f.path("c.pdf"), f.out)
	if o.Status != StatusError {
		t.Fatalf("status = %s, want error", o.Status)
	}
	if !strings.Contains(o.Error, errCorrupt.Error()) {
		t.Errorf("error %q does not carry cause", o.Error)
	}
	if _, err := os.Stat(o.OutputFile); !os.IsNotExist(err) {
		t.Error("output written for failed document")
	}
	if f.cache.Len() != 0 {
		t.Error("failed document recorded in cache")
	}
}

func TestConvertRecoversPanic(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{
		"boom.pdf": {panicMsg: "index out of range in xref"},
	})

	o := f.conv.Convert(f.path("boom.pdf"), f.out)
	if o.Status != StatusError || o.Error != "index out of range in xref" {
		t.Fatalf("got status=%s error=%q", o.Status, o.Error)
	}
}
