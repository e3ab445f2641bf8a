package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/issuetree/internal/hierarchy"
	"github.com/zjrosen/issuetree/internal/issue"
)

func stubSpan(name string, attrs ...attribute.KeyValue) sdktrace.ReadOnlySpan {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return tracetest.SpanStub{
		Name:       name,
		SpanKind:   trace.SpanKindInternal,
		StartTime:  start,
		EndTime:    start.Add(1500 * time.Microsecond),
		Attributes: attrs,
	}.Snapshot()
}

func TestNewFileExporter_CreatesParentDirectories(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "nested", "dir", "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	_, err = os.Stat(tracePath)
	require.NoError(t, err, "trace file should be created with parent dirs")
	require.NoError(t, exporter.Shutdown(context.Background()))
}

func TestFileExporter_AppendsJSONL(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	require.NoError(t, os.WriteFile(tracePath, []byte(`{"existing": "data"}`+"\n"), 0o600))

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	err = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{
		stubSpan(hierarchy.SpanFetch,
			attribute.String(hierarchy.AttrRunID, "run-1"),
			attribute.String(hierarchy.AttrIssueKey, "CORE-1")),
		stubSpan(hierarchy.SpanExecute),
	})
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))

	content, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(content)), "\n"), 3)

	records, err := ReadRecords(bytes.NewReader(content))
	require.NoError(t, err)
	require.Len(t, records, 2, "non-span lines are skipped")

	fetch := records[0]
	require.Equal(t, hierarchy.SpanFetch, fetch.Name)
	require.Equal(t, "run-1", fetch.RunID, "run id is lifted out of attributes")
	require.Equal(t, map[string]any{hierarchy.AttrIssueKey: "CORE-1"}, fetch.Attributes)
	require.Equal(t, "INTERNAL", fetch.Kind)
	require.Equal(t, "UNSET", fetch.Status)
	require.InDelta(t, 1.5, fetch.DurationMs, 0.001)
}

func TestFileExporter_StatusAndEvents(t *testing.T) {
	start := time.Now()
	span := tracetest.SpanStub{
		Name:      "failing",
		StartTime: start,
		EndTime:   start.Add(time.Millisecond),
		Status:    sdktrace.Status{Code: codes.Error, Description: "boom"},
		Events: []sdktrace.Event{{
			Name:       "exception",
			Time:       start,
			Attributes: []attribute.KeyValue{attribute.String("exception.message", "boom")},
		}},
	}.Snapshot()

	rec := NewSpanRecord(span)
	require.Equal(t, "ERROR", rec.Status)
	require.Equal(t, "boom", rec.StatusMsg)
	require.Len(t, rec.Events, 1)
	require.Equal(t, "boom", rec.Events[0].Attributes["exception.message"])

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NotContains(t, string(data), "parent_span_id", "root spans omit the parent")
}

func TestFileExporter_ExportAfterShutdown(t *testing.T) {
	exporter, err := NewFileExporter(filepath.Join(t.TempDir(), "traces.jsonl"))
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))
	require.NoError(t, exporter.Shutdown(context.Background()), "second shutdown is a no-op")

	err = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stubSpan("late")})
	require.Error(t, err)
}

func TestFileExporter_ConcurrentExports(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stubSpan("span")})
		}()
	}
	wg.Wait()
	require.NoError(t, exporter.Shutdown(context.Background()))

	f, err := os.Open(tracePath)
	require.NoError(t, err)
	defer f.Close()
	records, err := ReadRecords(f)
	require.NoError(t, err)
	require.Len(t, records, 10, "lines must not interleave")
}

type fixedRemote struct {
	results []issue.Skeleton
	pool    map[string]issue.Skeleton
}

func (r fixedRemote) Execute(context.Context, string, issue.Site) ([]issue.Skeleton, error) {
	return r.results, nil
}

func (r fixedRemote) FetchByKey(_ context.Context, key string, _ issue.Site) (issue.Skeleton, error) {
	if s, ok := r.pool[key]; ok {
		return s, nil
	}
	return issue.Skeleton{}, issue.ErrNotFound
}

// TestResolverSpans checks the span tree a resolution exports.
func TestResolverSpans(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	provider, err := NewProvider(Config{Enabled: true, Exporter: ExporterFile, FilePath: tracePath})
	require.NoError(t, err)

	remote := fixedRemote{
		results: []issue.Skeleton{{Key: "S1", ParentKey: "P1"}, {Key: "S2", EpicLink: "E1"}},
		pool:    map[string]issue.Skeleton{"P1": {Key: "P1"}},
	}
	resolver := hierarchy.NewResolver(remote, hierarchy.WithTracer(provider.Tracer()))
	res, err := resolver.Resolve(context.Background(), "q", issue.Site{ID: "jira"})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1, "E1 is missing")
	require.NoError(t, provider.Shutdown(context.Background()))

	f, err := os.Open(tracePath)
	require.NoError(t, err)
	defer f.Close()
	records, err := ReadRecords(f)
	require.NoError(t, err)

	byName := map[string][]SpanRecord{}
	for _, r := range records {
		byName[r.Name] = append(byName[r.Name], r)
	}
	require.Len(t, byName[hierarchy.SpanResolve], 1)
	require.Len(t, byName[hierarchy.SpanExecute], 1)
	require.Len(t, byName[hierarchy.SpanFetch], 2)

	root := byName[hierarchy.SpanResolve][0]
	require.Equal(t, res.RunID, root.RunID)
	require.Equal(t, "jira", root.Attributes[hierarchy.AttrSiteID])

	failed := 0
	for _, fetch := range byName[hierarchy.SpanFetch] {
		require.Equal(t, root.SpanID, fetch.ParentSpanID)
		require.Equal(t, res.RunID, fetch.RunID)
		if fetch.Status == "ERROR" {
			failed++
		}
	}
	require.Equal(t, 1, failed)
}
