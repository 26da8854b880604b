package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seantiz/cinder/internal/model"
)

// waitForStatus polls the store until the execution reaches the expected status.
func waitForStatus(t *testing.T, srv *Server, id, expected string, timeout time.Duration) *model.Execution {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ex, err := srv.store.GetExecution(context.Background(), id)
		if err != nil {
			t.Fatalf("GetExecution: %v", err)
		}
		if ex.Status == expected {
			return ex
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %s did not reach status %q within %v", id, expected, timeout)
	return nil
}

func TestCreateExecutionValid(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"script_id":"adder","source":"var sum = 1 + 2;"}`
	resp, err := http.Post(ts.URL+"/v1/executions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/executions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var ex model.Execution
	if err := json.NewDecoder(resp.Body).Decode(&ex); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(ex.ID) != 26 {
		t.Errorf("ID length = %d, want 26", len(ex.ID))
	}
	if ex.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want %q", ex.Status, model.StatusCompleted)
	}
	if ex.ScriptID != "adder" {
		t.Errorf("ScriptID = %q, want %q", ex.ScriptID, "adder")
	}
	if ex.DurationMS == nil {
		t.Error("duration_ms not set")
	}
}

func TestCreateExecutionScriptError(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"script_id":"thrower","source":"throw new Error('nope');"}`
	resp, err := http.Post(ts.URL+"/v1/executions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/executions: %v", err)
	}
	defer resp.Body.Close()

	var ex model.Execution
	if err := json.NewDecoder(resp.Body).Decode(&ex); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ex.Status != model.StatusFailed {
		t.Errorf("Status = %q, want %q", ex.Status, model.StatusFailed)
	}
	if ex.Error == "" {
		t.Error("expected error message on failed execution")
	}
}

func TestCreateExecutionMissingScriptID(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"source":"var x = 1;"}`
	resp, err := http.Post(ts.URL+"/v1/executions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/executions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	var errResp map[string]string
	json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp["error"] == "" {
		t.Error("expected error message in response")
	}
}

func TestCreateExecutionMissingSource(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"script_id":"empty"}`
	resp, err := http.Post(ts.URL+"/v1/executions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/executions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateExecutionInvalidJSON(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/executions", "application/json", bytes.NewBufferString("not json"))
	if err != nil {
		t.Fatalf("POST /v1/executions: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAsyncExecutionAccepted(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"script_id":"bg","source":"var y = 2;"}`
	resp, err := http.Post(ts.URL+"/v1/executions/async", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/executions/async: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}

	var ex model.Execution
	if err := json.NewDecoder(resp.Body).Decode(&ex); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ex.Status != model.StatusPending {
		t.Errorf("Status = %q, want %q", ex.Status, model.StatusPending)
	}

	waitForStatus(t, srv, ex.ID, model.StatusCompleted, 5*time.Second)
}

func TestGetExecutionExisting(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"script_id":"lookup","source":"var z = 3;"}`
	createResp, _ := http.Post(ts.URL+"/v1/executions", "application/json", bytes.NewBufferString(body))
	var created model.Execution
	json.NewDecoder(createResp.Body).Decode(&created)
	createResp.Body.Close()

	resp, err := http.Get(ts.URL + "/v1/executions/" + created.ID)
	if err != nil {
		t.Fatalf("GET /v1/executions/%s: %v", created.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var got model.Execution
	json.NewDecoder(resp.Body).Decode(&got)
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/executions/nonexistent")
	if err != nil {
		t.Fatalf("GET /v1/executions/nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListExecutionsPagination(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for i := 0; i < 3; i++ {
		body := `{"script_id":"batch","source":"var b = 1;"}`
		resp, err := http.Post(ts.URL+"/v1/executions", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("POST /v1/executions: %v", err)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/v1/executions?limit=2&offset=0")
	if err != nil {
		t.Fatalf("GET /v1/executions: %v", err)
	}
	defer resp.Body.Close()

	var list listExecutionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if list.Total != 3 {
		t.Errorf("total = %d, want 3", list.Total)
	}
	if len(list.Executions) != 2 {
		t.Errorf("page size = %d, want 2", len(list.Executions))
	}
	if list.Limit != 2 {
		t.Errorf("limit = %d, want 2", list.Limit)
	}
}

func TestListExecutionsClampsBadLimit(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/executions?limit=9999")
	if err != nil {
		t.Fatalf("GET /v1/executions: %v", err)
	}
	defer resp.Body.Close()

	var list listExecutionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if list.Limit != defaultListLimit {
		t.Errorf("limit = %d, want %d", list.Limit, defaultListLimit)
	}
}

func TestKillRunningExecution(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"script_id":"spinner","source":"for (;;) {}"}`
	resp, err := http.Post(ts.URL+"/v1/executions/async", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/executions/async: %v", err)
	}
	var ex model.Execution
	json.NewDecoder(resp.Body).Decode(&ex)
	resp.Body.Close()

	waitForStatus(t, srv, ex.ID, model.StatusRunning, 5*time.Second)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/executions/"+ex.ID, nil)
	killResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/executions/%s: %v", ex.ID, err)
	}
	defer killResp.Body.Close()

	if killResp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", killResp.StatusCode)
	}

	waitForStatus(t, srv, ex.ID, model.StatusKilled, 5*time.Second)
}

func TestKillFinishedExecutionConflicts(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := `{"script_id":"quick","source":"var q = 1;"}`
	resp, _ := http.Post(ts.URL+"/v1/executions", "application/json", bytes.NewBufferString(body))
	var ex model.Execution
	json.NewDecoder(resp.Body).Decode(&ex)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/executions/"+ex.ID, nil)
	killResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/executions/%s: %v", ex.ID, err)
	}
	defer killResp.Body.Close()

	if killResp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", killResp.StatusCode)
	}
}

func TestKillUnknownExecutionNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/executions/nonexistent", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/executions/nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
