package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/me/gridshift/internal/config"
	"github.com/me/gridshift/internal/queue"
	"github.com/me/gridshift/internal/server"
	"github.com/me/gridshift/internal/store"
	"github.com/me/gridshift/pkg/model"
)

// startTestServer starts a server with an in-memory SQLite store and returns the URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := server.New(config.DefaultServerConfig(), st, queue.NewMemoryQueues(), nil, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func testClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(startTestServer(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClientCreateAndGetJob(t *testing.T) {
	c := testClient(t)

	resp, err := c.Post("/api/v1/jobs/", map[string]any{"type": "batch", "urgency": "flexible"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	var created map[string]any
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		t.Fatalf("parse data: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("no job id in response")
	}

	resp, err = c.Get("/api/v1/jobs/" + id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	var got map[string]any
	json.Unmarshal(resp.Data, &got)
	if got["status"] != "QUEUED" {
		t.Errorf("status = %v, want QUEUED", got["status"])
	}
}

func TestClientSurfacesAPIError(t *testing.T) {
	c := testClient(t)

	_, err := c.Get("/api/v1/jobs/job_missing")
	if err == nil {
		t.Fatal("expected error for missing job")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrNotFound {
		t.Errorf("code = %s, want NOT_FOUND", apiErr.Code)
	}
}

func TestDefaultServer(t *testing.T) {
	t.Setenv("GRIDSHIFT_SERVER", "")
	if got := defaultServer(); got != "http://localhost:8080" {
		t.Errorf("defaultServer = %q", got)
	}
	t.Setenv("GRIDSHIFT_SERVER", "http://gridshift.internal:9999")
	if got := defaultServer(); got != "http://gridshift.internal:9999" {
		t.Errorf("defaultServer = %q, want env override", got)
	}
}
