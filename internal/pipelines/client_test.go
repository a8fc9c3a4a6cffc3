package pipelines

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q, want http", u.Scheme)
	}
	if u.Host != defaultAPIURL {
		t.Fatalf("host = %q, want %q", u.Host, defaultAPIURL)
	}

	u, err = parseBaseURL("http://example.com:1234/path?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func TestClient_FetchesEndpoints(t *testing.T) {
	t.Parallel()

	var gotLimit string
	var gotUserAgent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/pipelines":
			_ = json.NewEncoder(w).Encode(ListResponse{Items: []Pipeline{{ID: "etl", Name: "Nightly ETL", State: StateIdle}}})
		case "/api/pipelines/etl":
			_ = json.NewEncoder(w).Encode(Pipeline{ID: "etl", Stages: []Stage{{Name: "extract"}}})
		case "/api/pipelines/etl/runs":
			gotLimit = r.URL.Query().Get("limit")
			_ = json.NewEncoder(w).Encode(RunsResponse{Items: []Run{{ID: "r1", PipelineID: "etl"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	list, err := c.FetchPipelines(ctx)
	if err != nil {
		t.Fatalf("FetchPipelines returned error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "etl" {
		t.Fatalf("FetchPipelines = %#v, want 1 pipeline id=etl", list)
	}

	p, err := c.FetchPipeline(ctx, "etl")
	if err != nil {
		t.Fatalf("FetchPipeline returned error: %v", err)
	}
	if len(p.Stages) != 1 || p.Stages[0].Name != "extract" {
		t.Fatalf("FetchPipeline stages = %#v, want [extract]", p.Stages)
	}

	runs, err := c.FetchRuns(ctx, "etl", 20)
	if err != nil {
		t.Fatalf("FetchRuns returned error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Fatalf("FetchRuns = %#v, want 1 run id=r1", runs)
	}
	if gotLimit != "20" {
		t.Fatalf("limit = %q, want 20", gotLimit)
	}

	if !strings.HasPrefix(gotUserAgent, "sluice/") {
		t.Fatalf("User-Agent = %q, want sluice/*", gotUserAgent)
	}
}

func TestClient_RequiresPipelineID(t *testing.T) {
	c, err := NewClient("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.FetchPipeline(context.Background(), " "); err == nil {
		t.Fatalf("FetchPipeline returned nil error, want error")
	}
	if _, err := c.FetchRuns(context.Background(), "", 5); err == nil {
		t.Fatalf("FetchRuns returned nil error, want error")
	}
}

func TestClient_HTTPErrorAndDecodeError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pipelines":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("{not-json"))
		case "/api/pipelines/broken/runs":
			http.Error(w, "nope", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = c.FetchPipelines(context.Background())
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("FetchPipelines error = %v, want decode response error", err)
	}

	_, err = c.FetchRuns(context.Background(), "broken", 0)
	if got := StatusCode(err); got != http.StatusInternalServerError {
		t.Fatalf("FetchRuns status = %d (err %v), want 500", got, err)
	}

	_, err = c.FetchPipeline(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FetchPipeline error = %v, want ErrNotFound", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Path != "/api/pipelines/missing" || apiErr.Method != http.MethodGet {
		t.Fatalf("FetchPipeline error = %#v, want APIError for GET /api/pipelines/missing", err)
	}
}
