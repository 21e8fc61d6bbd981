package graphql

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mnohosten/flamestore/pkg/store"
	"github.com/mnohosten/flamestore/pkg/value"
)

const docBase = "projects/demo/databases/(default)/documents"

func testHandler(t *testing.T) *Handler {
	t.Helper()
	s := store.New()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"alice", "bob"} {
		s.Put(&store.Document{
			Name:       docBase + "/users/" + id,
			Fields:     map[string]*value.Value{"id": value.String(id)},
			CreateTime: at,
			UpdateTime: at,
		})
	}
	h, err := NewHandler(s)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return h
}

func query(t *testing.T, h *Handler, q string) map[string]interface{} {
	t.Helper()
	body, _ := json.Marshal(Request{Query: q})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Invalid response JSON: %v", err)
	}
	return out
}

func TestQueryDocument(t *testing.T) {
	h := testHandler(t)
	out := query(t, h, `{ document(name: "`+docBase+`/users/alice") { name fields updateTime } }`)

	if out["errors"] != nil {
		t.Fatalf("Unexpected errors: %v", out["errors"])
	}
	doc := out["data"].(map[string]interface{})["document"].(map[string]interface{})
	if doc["name"] != docBase+"/users/alice" {
		t.Errorf("Expected alice, got %v", doc["name"])
	}
	fields := doc["fields"].(map[string]interface{})
	id := fields["id"].(map[string]interface{})
	if id["stringValue"] != "alice" {
		t.Errorf("Expected wire-format fields, got %v", fields)
	}
}

func TestQueryDocumentMissingIsNull(t *testing.T) {
	h := testHandler(t)
	out := query(t, h, `{ document(name: "`+docBase+`/users/nobody") { name } }`)

	data := out["data"].(map[string]interface{})
	if data["document"] != nil {
		t.Errorf("Expected null document, got %v", data["document"])
	}
}

func TestQueryDocumentBadName(t *testing.T) {
	h := testHandler(t)
	out := query(t, h, `{ document(name: "nonsense") { name } }`)

	if out["errors"] == nil {
		t.Error("Expected an error for an invalid document name")
	}
}

func TestQueryCollection(t *testing.T) {
	h := testHandler(t)
	out := query(t, h, `{ collection(name: "`+docBase+`/users") { name } }`)

	if out["errors"] != nil {
		t.Fatalf("Unexpected errors: %v", out["errors"])
	}
	docs := out["data"].(map[string]interface{})["collection"].([]interface{})
	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}
	first := docs[0].(map[string]interface{})
	if first["name"] != docBase+"/users/alice" {
		t.Errorf("Expected alice first, got %v", first["name"])
	}
}

func TestQueryCollectionLimit(t *testing.T) {
	h := testHandler(t)
	out := query(t, h, `{ collection(name: "`+docBase+`/users", limit: 1) { name } }`)

	docs := out["data"].(map[string]interface{})["collection"].([]interface{})
	if len(docs) != 1 {
		t.Errorf("Expected 1 document, got %d", len(docs))
	}
}

func TestQueryStats(t *testing.T) {
	h := testHandler(t)
	out := query(t, h, `{ stats { documents activeTransactions } }`)

	stats := out["data"].(map[string]interface{})["stats"].(map[string]interface{})
	if stats["documents"].(float64) != 2 {
		t.Errorf("Expected 2 documents, got %v", stats["documents"])
	}
	if stats["activeTransactions"].(float64) != 0 {
		t.Errorf("Expected 0 transactions, got %v", stats["activeTransactions"])
	}
}

func TestRejectsNonPost(t *testing.T) {
	h := testHandler(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}
