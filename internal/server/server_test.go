package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/me/gridshift/internal/config"
	"github.com/me/gridshift/internal/queue"
	"github.com/me/gridshift/internal/store"
	"github.com/me/gridshift/pkg/model"
)

// testServer builds a server on an in-memory store and memory queues.
func testServer(t *testing.T) (*Server, store.Store, *queue.MemoryQueues) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	q := queue.NewMemoryQueues()
	srv := New(config.DefaultServerConfig(), st, q, nil, logger)
	return srv, st, q
}

// doJSON performs a request against the server and decodes the envelope.
func doJSON(t *testing.T, srv *Server, method, path string, body any) (*httptest.ResponseRecorder, model.Response) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var resp model.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return rec, resp
}

// dataMap re-decodes the envelope's data field as an object.
func dataMap(t *testing.T, resp model.Response) map[string]any {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return m
}

func TestCreateJob(t *testing.T) {
	srv, st, q := testServer(t)

	rec, resp := doJSON(t, srv, "POST", "/api/v1/jobs/", map[string]string{
		"type": "batch", "urgency": "critical",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}

	data := dataMap(t, resp)
	id, _ := data["id"].(string)
	if id == "" {
		t.Fatal("response has no job id")
	}
	if data["status"] != "QUEUED" {
		t.Errorf("status = %v, want QUEUED", data["status"])
	}
	if data["urgency"] != "critical" {
		t.Errorf("urgency = %v, want critical", data["urgency"])
	}

	// Persisted and enqueued.
	job, err := st.GetJob(context.Background(), id)
	if err != nil || job == nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if got, _ := q.Pop(context.Background(), queue.Pending); got != id {
		t.Errorf("pending head = %q, want %s", got, id)
	}
}

func TestCreateJobDefaultsUrgency(t *testing.T) {
	srv, _, _ := testServer(t)

	rec, resp := doJSON(t, srv, "POST", "/api/v1/jobs/", map[string]string{"type": "batch"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if data := dataMap(t, resp); data["urgency"] != "flexible" {
		t.Errorf("urgency = %v, want flexible default", data["urgency"])
	}
}

func TestCreateJobValidation(t *testing.T) {
	srv, _, q := testServer(t)

	rec, resp := doJSON(t, srv, "POST", "/api/v1/jobs/", map[string]string{
		"type": "batch", "urgency": "urgent",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != model.ErrValidation {
		t.Errorf("error = %+v, want VALIDATION_ERROR", resp.Error)
	}

	// Nothing enqueued on a rejected request.
	if got, _ := q.Pop(context.Background(), queue.Pending); got != "" {
		t.Errorf("pending queue should be empty, got %q", got)
	}
}

func TestCreateJobBadJSON(t *testing.T) {
	srv, _, _ := testServer(t)

	req := httptest.NewRequest("POST", "/api/v1/jobs/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetJob(t *testing.T) {
	srv, _, _ := testServer(t)

	_, created := doJSON(t, srv, "POST", "/api/v1/jobs/", map[string]string{"type": "batch"})
	id := dataMap(t, created)["id"].(string)

	rec, resp := doJSON(t, srv, "GET", "/api/v1/jobs/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if data := dataMap(t, resp); data["id"] != id {
		t.Errorf("id = %v, want %s", data["id"], id)
	}
}

func TestGetJobNotFound(t *testing.T) {
	srv, _, _ := testServer(t)

	rec, resp := doJSON(t, srv, "GET", "/api/v1/jobs/job_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", resp.Error)
	}
}

func TestListJobs(t *testing.T) {
	srv, st, _ := testServer(t)
	ctx := context.Background()

	for i, id := range []string{"job_a", "job_b", "job_c"} {
		now := time.Now().UTC().Add(time.Duration(i) * time.Second)
		st.CreateJob(ctx, &model.Job{
			ID: id, Type: "batch", Urgency: model.UrgencyFlexible,
			Status: model.StatusQueued, CreatedAt: now, UpdatedAt: now,
		})
	}
	st.UpdateDecision(ctx, "job_b", model.Decision{
		Status: model.StatusScheduled, Mode: model.ModeFast,
		DecisionAt: time.Now().UTC(), CarbonAtDecision: 150, RuleID: "LOW_CARBON_FAST",
	})

	rec, resp := doJSON(t, srv, "GET", "/api/v1/jobs/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Pagination == nil || resp.Pagination.Total != 3 {
		t.Errorf("pagination = %+v, want total 3", resp.Pagination)
	}

	// Status filter.
	_, resp = doJSON(t, srv, "GET", "/api/v1/jobs/?status=SCHEDULED", nil)
	if resp.Pagination == nil || resp.Pagination.Total != 1 {
		t.Errorf("filtered pagination = %+v, want total 1", resp.Pagination)
	}

	// Limit.
	_, resp = doJSON(t, srv, "GET", "/api/v1/jobs/?limit=2", nil)
	if resp.Pagination == nil || !resp.Pagination.HasMore {
		t.Errorf("pagination = %+v, want has_more", resp.Pagination)
	}
}

func TestGetDecision(t *testing.T) {
	srv, st, _ := testServer(t)
	ctx := context.Background()

	_, created := doJSON(t, srv, "POST", "/api/v1/jobs/", map[string]string{"type": "batch"})
	id := dataMap(t, created)["id"].(string)

	// Before the scheduler looks at it: status only, no rule.
	rec, resp := doJSON(t, srv, "GET", "/api/v1/jobs/"+id+"/decision", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := dataMap(t, resp)
	if data["status"] != "QUEUED" {
		t.Errorf("status = %v, want QUEUED", data["status"])
	}
	if _, ok := data["policy_rule_id"]; ok {
		t.Errorf("undecided job must not report a rule, got %v", data["policy_rule_id"])
	}

	deadline := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	st.UpdateDecision(ctx, id, model.Decision{
		Status:           model.StatusDeferred,
		DecisionAt:       time.Now().UTC(),
		CarbonAtDecision: 300,
		RuleID:           "MEDIUM_CARBON_DEFER",
		Reason:           "carbon intensity in medium band (carbon intensity 300)",
		DeferDeadline:    &deadline,
	})

	_, resp = doJSON(t, srv, "GET", "/api/v1/jobs/"+id+"/decision", nil)
	data = dataMap(t, resp)
	if data["status"] != "DEFERRED" {
		t.Errorf("status = %v, want DEFERRED", data["status"])
	}
	if data["policy_rule_id"] != "MEDIUM_CARBON_DEFER" {
		t.Errorf("rule = %v", data["policy_rule_id"])
	}
	if data["carbon_intensity_at_decision"] != float64(300) {
		t.Errorf("carbon = %v, want 300", data["carbon_intensity_at_decision"])
	}
	if _, ok := data["defer_deadline_ts"]; !ok {
		t.Error("deferred decision must expose the deadline")
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)

	rec, resp := doJSON(t, srv, "GET", "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := dataMap(t, resp)
	if data["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", data["status"])
	}
	if data["scheduler"] != "external" {
		t.Errorf("scheduler = %v, want external (no embedded loop)", data["scheduler"])
	}
}

func TestDiscovery(t *testing.T) {
	srv, _, _ := testServer(t)

	rec, resp := doJSON(t, srv, "GET", "/api/v1/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data := dataMap(t, resp)
	if data["name"] != "gridshift API" {
		t.Errorf("name = %v", data["name"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv, _, _ := testServer(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}

	// A supplied id is echoed back.
	req = httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req_test1234")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req_test1234" {
		t.Errorf("X-Request-ID = %q, want req_test1234", got)
	}
}
