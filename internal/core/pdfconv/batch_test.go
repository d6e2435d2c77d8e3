package pdfconv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func scenarioDocs() map[string]fakePDF {
	return map[string]fakePDF{
		"a.pdf": {pages: []string{"Alpha page one", "Alpha page two"}},
		"b.pdf": {},
		"c.pdf": {openErr: errCorrupt},
	}
}

func TestConvertBatchScenario(t *testing.T) {
	f := newConvFixture(t, FormatText, scenarioDocs())
	cacheDir := filepath.Dir(f.cache.Path())

	res, err := f.conv.ConvertBatch(context.Background(), f.in, f.out)
	if err != nil {
		t.Fatalf("ConvertBatch: %v", err)
	}
	if res.Success != 1 || res.Empty != 1 || res.Failed != 1 || res.Skipped != 0 {
		t.Fatalf("counters = %d/%d/%d/%d, want success=1 empty=1 failed=1 skipped=0",
			res.Success, res.Empty, res.Failed, res.Skipped)
	}
	if len(res.Files) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(res.Files))
	}
	if res.EndTime.Before(res.StartTime) {
		t.Error("end time before start time")
	}

	text, err := os.ReadFile(filepath.Join(f.out, "a.txt"))
	if err != nil {
		t.Fatalf("a.txt: %v", err)
	}
	if n := strings.Count(string(text), "\nPage "); n != 2 {
		t.Errorf("a.txt has %d page markers, want 2", n)
	}
	for _, missing := range []string{"b.txt", "c.txt"} {
		if _, err := os.Stat(filepath.Join(f.out, missing)); !os.IsNotExist(err) {
			t.Errorf("%s should not exist", missing)
		}
	}

	// The cache file on disk must contain exactly a.pdf.
	persisted := NewCache(cacheDir, discardLogger())
	persisted.Load()
	if persisted.Len() != 1 {
		t.Fatalf("persisted cache has %d entries, want 1", persisted.Len())
	}
	if _, ok := persisted.Lookup(f.path("a.pdf")); !ok {
		t.Error("a.pdf missing from persisted cache")
	}

	// A fresh converter over the persisted cache skips a.pdf and retries the rest.
	rerun := NewConverter(NewExtractor(f.backend, FormatText), persisted, discardLogger(), Options{})
	res2, err := rerun.ConvertBatch(context.Background(), f.in, f.out)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if res2.Skipped != 1 || res2.Empty != 1 || res2.Failed != 1 || res2.Success != 0 {
		t.Errorf("rerun counters = success=%d skipped=%d empty=%d failed=%d, want 0/1/1/1",
			res2.Success, res2.Skipped, res2.Empty, res2.Failed)
	}
	if n := f.backend.openCount("a.pdf"); n != 1 {
		t.Errorf("a.pdf opened %d times across runs, want 1", n)
	}
}

func TestConvertBatchSequentialOrder(t *testing.T) {
	docs := map[string]fakePDF{}
	for _, n := range []string{"c.pdf", "a.pdf", "b.pdf"} {
		docs[n] = fakePDF{pages: []string{"x"}}
	}
	f := newConvFixture(t, FormatText, docs)
	f.conv.opts.Parallel = false

	res, err := f.conv.ConvertBatch(context.Background(), f.in, f.out)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, o := range res.Files {
		got = append(got, filepath.Base(o.InputFile))
	}
	if strings.Join(got, ",") != "a.pdf,b.pdf,c.pdf" {
		t.Errorf("order = %v, want discovery order", got)
	}
}

// gaugeBackend records the highest number of concurrent Open calls.
type gaugeBackend struct {
	*fakeBackend
	active atomic.Int32
	peak   atomic.Int32
}

func (g *gaugeBackend) Open(path string) (Document, error) {
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	defer g.active.Add(-1)
	return g.fakeBackend.Open(path)
}

func TestConvertBatchParallelFaultIsolation(t *testing.T) {
	docs := map[string]fakePDF{}
	for i := 0; i < 24; i++ {
		name := fmt.Sprintf("doc%02d.pdf", i)
		switch {
		case i%6 == 0:
			docs[name] = fakePDF{openErr: errCorrupt}
		case i%6 == 1:
			docs[name] = fakePDF{panicMsg: "parser exploded"}
		default:
			docs[name] = fakePDF{pages: []string{"content " + name}}
		}
	}
	f := newConvFixture(t, FormatText, docs)
	gauge := &gaugeBackend{fakeBackend: f.backend}
	conv := NewConverter(NewExtractor(gauge, FormatText), f.cache, discardLogger(), Options{Parallel: true, Workers: 3})

	res, err := conv.ConvertBatch(context.Background(), f.in, f.out)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success != 16 || res.Failed != 8 {
		t.Errorf("success=%d failed=%d, want 16/8", res.Success, res.Failed)
	}
	if len(res.Files) != 24 {
		t.Fatalf("got %d outcomes, want 24", len(res.Files))
	}
	seen := map[string]bool{}
	for _, o := range res.Files {
		if seen[o.InputFile] {
			t.Errorf("duplicate outcome for %s", o.InputFile)
		}
		seen[o.InputFile] = true
	}
	if p := gauge.peak.Load(); p > 3 {
		t.Errorf("peak concurrency %d exceeds worker limit 3", p)
	}
	if f.cache.Len() != 16 {
		t.Errorf("cache has %d entries, want 16", f.cache.Len())
	}
}

func TestConvertBatchNoMatches(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{})
	writeInput(t, f.in, "readme.md", "not a pdf")
	if err := os.MkdirAll(filepath.Join(f.in, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeInput(t, filepath.Join(f.in, "sub"), "nested.pdf", "ignored")

	res, err := f.conv.ConvertBatch(context.Background(), f.in, f.out)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Files) != 0 || res.Success+res.Failed+res.Skipped+res.Empty != 0 {
		t.Errorf("expected zero result, got %+v", res)
	}
	if res.Summary == nil || res.Summary.SuccessRate != 0 {
		t.Errorf("unexpected summary: %+v", res.Summary)
	}
}

func TestConvertBatchMissingDir(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{})
	if _, err := f.conv.ConvertBatch(context.Background(), filepath.Join(f.in, "nope"), f.out); err == nil {
		t.Fatal("expected error for missing input directory")
	}
	file := writeInput(t, f.in, "x.pdf", "")
	if _, err := f.conv.ConvertBatch(context.Background(), file, f.out); err == nil {
		t.Fatal("expected error when input is a file")
	}
}

func TestConvertBatchCancelled(t *testing.T) {
	f := newConvFixture(t, FormatText, scenarioDocs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.conv.ConvertBatch(ctx, f.in, f.out)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Files) != 0 {
		t.Errorf("cancelled batch converted %d files", len(res.Files))
	}
}

func TestGenerateReport(t *testing.T) {
	f := newConvFixture(t, FormatText, scenarioDocs())
	res, err := f.conv.ConvertBatch(context.Background(), f.in, f.out)
	if err != nil {
		t.Fatal(err)
	}
	if err := GenerateReport(res, f.out); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(f.out, ReportJSONName))
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Success int       `json:"success"`
		Files   []Outcome `json:"files"`
		Summary Summary   `json:"summary"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Summary.TotalFiles != 3 || decoded.Success != 1 || len(decoded.Files) != 3 {
		t.Errorf("unexpected report: %+v", decoded)
	}
	if rate := decoded.Summary.SuccessRate; rate < 33.3 || rate > 33.4 {
		t.Errorf("success rate = %f, want ~33.3", rate)
	}

	txt, err := os.ReadFile(filepath.Join(f.out, ReportTextName))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Success: 1", "Errors: 1", "Empty: 1", "Success rate: 33.3%", "FAILED FILES:", "c.pdf: "} {
		if !strings.Contains(string(txt), want) {
			t.Errorf("text report missing %q:\n%s", want, txt)
		}
	}
	if strings.Contains(string(txt), "a.pdf:") {
		t.Error("text report lists a successful file as failed")
	}
}

func TestSummarize(t *testing.T) {
	var empty BatchResult
	if s := empty.Summarize(); s != (Summary{}) {
		t.Errorf("empty summary = %+v", s)
	}

	r := BatchResult{TotalTime: 8}
	r.add(Outcome{Status: StatusSuccess})
	r.add(Outcome{Status: StatusSuccess})
	r.add(Outcome{Status: StatusSkipped})
	r.add(Outcome{Status: StatusError})
	s := r.Summarize()
	if s.TotalFiles != 4 || s.SuccessRate != 50 || s.AvgTimePerFile != 2 {
		t.Errorf("summary = %+v", s)
	}
	if len(r.FailedFiles()) != 1 {
		t.Errorf("FailedFiles = %d", len(r.FailedFiles()))
	}
}

func TestConvertBatchOutputCollision(t *testing.T) {
	f := newConvFixture(t, FormatText, map[string]fakePDF{
		"Report.pdf": {pages: []string{"upper"}},
		"report.pdf": {pages: []string{"lower"}},
	})
	f.conv.opts.Parallel = false

	res, err := f.conv.ConvertBatch(context.Background(), f.in, f.out)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success != 1 || res.Failed != 1 {
		t.Fatalf("counters = %+v", res)
	}
	loser := res.FailedFiles()[0]
	if filepath.Base(loser.InputFile) != "report.pdf" || !strings.Contains(loser.Error, "Report.pdf") {
		t.Errorf("failed outcome = %+v", loser)
	}
	if f.backend.openCount("report.pdf") != 0 {
		t.Error("colliding file was opened")
	}
	text, err := os.ReadFile(filepath.Join(f.out, "Report.txt"))
	if err != nil || !strings.Contains(string(text), "upper") {
		t.Errorf("Report.txt = %q, %v", text, err)
	}
}

func TestOutputClaims(t *testing.T) {
	got := outputClaims([]string{"/in/a.pdf", "/in/A.PDF", "/in/b.pdf", "/in/a.pdf.pdf"})
	if len(got) != 1 || got["/in/A.PDF"] != "/in/a.pdf" {
		t.Errorf("claims = %v", got)
	}
}
