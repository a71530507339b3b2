package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestServer(fs *fakeStore, perms *fakePerms) *HTTPServer {
	return NewHTTPServer(newTestService(fs, perms), "*", zerolog.Nop())
}

func doRequest(t *testing.T, server *HTTPServer, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return response
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newFakeStore(), nil)

	rr := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if response := decodeResponse(t, rr); response["ok"] != true {
		t.Fatalf("expected ok=true, got %v", response["ok"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	server := newTestServer(newFakeStore(), nil)

	rr := doRequest(t, server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["status"] != "ready" {
		t.Fatalf("expected ready, got %v", response["status"])
	}
}

func TestMissingUserHeaderIsRejected(t *testing.T) {
	server := newTestServer(newFakeStore(), nil)

	rr := doRequest(t, server, http.MethodPost, "/api/questions", "", `{}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCreateAndFetchQuestion(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(fs, nil)

	body := `{"data":{"content":{"html":"<p>Name the capital of France.</p>"}},"schemaVersion":48,"languageCode":"en"}`
	rr := doRequest(t, server, http.MethodPost, "/api/questions", "alice", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	id, _ := decodeResponse(t, rr)["id"].(string)
	if id == "" {
		t.Fatal("create response missing id")
	}

	rr = doRequest(t, server, http.MethodGet, "/api/questions/"+id, "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["version"] != float64(1) {
		t.Fatalf("expected version 1, got %v", response["version"])
	}
	if response["languageCode"] != "en" {
		t.Fatalf("expected languageCode en, got %v", response["languageCode"])
	}
}

func TestPatchAppliesChangeList(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(fs, nil)
	svc := server.service
	id := mustCreate(t, svc, "alice")

	body := `{"changes":[{"cmd":"update_language_code","new_value":"de"}],"message":"switch language"}`
	rr := doRequest(t, server, http.MethodPatch, "/api/questions/"+id, "alice", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeResponse(t, rr)["version"]; got != float64(2) {
		t.Fatalf("expected version 2, got %v", got)
	}
	if fs.questions[id].LanguageCode != "de" {
		t.Fatal("change list not applied to the canonical snapshot")
	}
}

func TestPatchUnknownCommandIsMalformed(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(fs, nil)
	id := mustCreate(t, server.service, "alice")

	body := `{"changes":[{"cmd":"rename_question","new_value":"x"}],"message":"bad"}`
	rr := doRequest(t, server, http.MethodPatch, "/api/questions/"+id, "alice", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := decodeResponse(t, rr)["code"]; code != "MALFORMED_EDIT" {
		t.Fatalf("expected MALFORMED_EDIT, got %v", code)
	}
}

func TestUnknownQuestionIs404(t *testing.T) {
	server := newTestServer(newFakeStore(), nil)

	rr := doRequest(t, server, http.MethodGet, "/api/questions/qst_missing", "alice", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := decodeResponse(t, rr)["code"]; code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", code)
	}
}

func TestDraftRoundTripOverHTTP(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(fs, nil)
	id := mustCreate(t, server.service, "alice")

	body := `{"changes":[{"cmd":"update_language_code","new_value":"pt"}],"baseVersion":1}`
	rr := doRequest(t, server, http.MethodPut, "/api/questions/"+id+"/draft", "alice", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("save draft: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, server, http.MethodGet, "/api/questions/"+id+"/effective", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("effective: expected 200, got %d", rr.Code)
	}
	if got := decodeResponse(t, rr)["languageCode"]; got != "pt" {
		t.Fatalf("expected draft applied, got %v", got)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/questions/"+id+"/editor", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("editor: expected 200, got %d", rr.Code)
	}
	editor := decodeResponse(t, rr)
	if editor["draft_is_valid"] != true {
		t.Fatalf("expected a valid draft in the editor payload, got %v", editor)
	}

	rr = doRequest(t, server, http.MethodDelete, "/api/questions/"+id+"/draft", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("discard: expected 200, got %d", rr.Code)
	}
}

func TestStatusRoutes(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(fs, &fakePerms{statusCap: true})
	id := mustCreate(t, server.service, "alice")

	for _, action := range []string{"submit", "approve"} {
		rr := doRequest(t, server, http.MethodPost, "/api/questions/"+id+"/"+action, "carol", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", action, rr.Code, rr.Body.String())
		}
	}

	rr := doRequest(t, server, http.MethodPost, "/api/questions/"+id+"/publish", "carol", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("publishing an approved question: expected 409, got %d", rr.Code)
	}
	if code := decodeResponse(t, rr)["code"]; code != "ALREADY_PUBLISHED" {
		t.Fatalf("expected ALREADY_PUBLISHED, got %v", code)
	}
}

func TestHistoryRoute(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(fs, nil)
	id := mustCreate(t, server.service, "alice")

	rr := doRequest(t, server, http.MethodGet, "/api/questions/"+id+"/history", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	entries, _ := decodeResponse(t, rr)["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
}

func TestBulkGetReturnsNullForMissing(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(fs, nil)
	id := mustCreate(t, server.service, "alice")

	rr := doRequest(t, server, http.MethodGet, "/api/questions?ids="+id+",qst_missing", "alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	questions, _ := decodeResponse(t, rr)["questions"].([]any)
	if len(questions) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(questions))
	}
	if questions[1] != nil {
		t.Fatalf("expected nil slot for the missing id, got %v", questions[1])
	}
}
