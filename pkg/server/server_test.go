package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	basePath = "/v1/projects/demo/databases/(default)"
	docRoot  = "projects/demo/databases/(default)/documents"
)

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	config := DefaultConfig()
	config.EnableLogging = false
	if mutate != nil {
		mutate(config)
	}
	srv, err := New(config)
	require.NoError(t, err)
	return srv
}

// do sends one request through the full router. A non-nil body is JSON
// encoded unless it is already a string or byte slice.
func do(t *testing.T, srv *Server, method, target, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func errorStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	envelope := decode(t, rec)
	detail, ok := envelope["error"].(map[string]interface{})
	require.True(t, ok, "no error envelope in %s", rec.Body.String())
	return detail["status"].(string)
}

func userToken(t *testing.T, uid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": uid})
	raw, err := token.SignedString([]byte("unused"))
	require.NoError(t, err)
	return raw
}

// commitCreate writes one document through documents:commit
func commitCreate(t *testing.T, srv *Server, name string, fields map[string]interface{}) {
	t.Helper()
	rec := do(t, srv, "POST", basePath+"/documents:commit", "owner", map[string]interface{}{
		"writes": []map[string]interface{}{
			{"update": map[string]interface{}{"name": name, "fields": fields}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCommitAndGetDocument(t *testing.T) {
	srv := newTestServer(t, nil)
	name := docRoot + "/cities/tokyo"
	commitCreate(t, srv, name, map[string]interface{}{
		"name": map[string]interface{}{"stringValue": "Tokyo"},
		"pop":  map[string]interface{}{"integerValue": "37400068"},
	})

	rec := do(t, srv, "GET", basePath+"/documents/cities/tokyo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode(t, rec)
	assert.Equal(t, name, doc["name"])
	fields := doc["fields"].(map[string]interface{})
	assert.Equal(t, "Tokyo", fields["name"].(map[string]interface{})["stringValue"])
	assert.Equal(t, "37400068", fields["pop"].(map[string]interface{})["integerValue"])
	assert.NotEmpty(t, doc["createTime"])
	assert.Equal(t, doc["createTime"], doc["updateTime"])
}

func TestGetMissingDocument(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, "GET", basePath+"/documents/cities/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorStatus(t, rec))
}

func TestUnknownDatabase(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, "GET", "/v1/projects/demo/databases/other/documents/cities/tokyo", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorStatus(t, rec))
}

func TestBatchGetWithMask(t *testing.T) {
	srv := newTestServer(t, nil)
	name := docRoot + "/cities/tokyo"
	commitCreate(t, srv, name, map[string]interface{}{
		"a": map[string]interface{}{"integerValue": "1"},
		"b": map[string]interface{}{"integerValue": "2"},
	})

	rec := do(t, srv, "POST", basePath+"/documents:batchGet", "", map[string]interface{}{
		"documents": []string{name, docRoot + "/cities/missing"},
		"mask":      map[string]interface{}{"fieldPaths": []string{"a"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)

	found := entries[0]["found"].(map[string]interface{})
	fields := found["fields"].(map[string]interface{})
	assert.Contains(t, fields, "a")
	assert.NotContains(t, fields, "b")
	assert.NotEmpty(t, entries[0]["readTime"])

	assert.Equal(t, docRoot+"/cities/missing", entries[1]["missing"])
}

func TestFieldTransforms(t *testing.T) {
	srv := newTestServer(t, nil)
	name := docRoot + "/counters/hits"

	increment := func() *httptest.ResponseRecorder {
		return do(t, srv, "POST", basePath+"/documents:commit", "", map[string]interface{}{
			"writes": []map[string]interface{}{
				{"transform": map[string]interface{}{
					"document": name,
					"fieldTransforms": []map[string]interface{}{
						{"fieldPath": "count", "increment": map[string]interface{}{"integerValue": "5"}},
						{"fieldPath": "touched", "setToServerValue": "REQUEST_TIME"},
					},
				}},
			},
		})
	}

	rec := increment()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	results := resp["writeResults"].([]interface{})
	require.Len(t, results, 1)
	transformResults := results[0].(map[string]interface{})["transformResults"].([]interface{})
	require.Len(t, transformResults, 2)
	assert.Equal(t, "5", transformResults[0].(map[string]interface{})["integerValue"])
	assert.Contains(t, transformResults[1].(map[string]interface{}), "timestampValue")

	rec = increment()
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "GET", basePath+"/documents/counters/hits", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fields := decode(t, rec)["fields"].(map[string]interface{})
	assert.Equal(t, "10", fields["count"].(map[string]interface{})["integerValue"])
}

func TestTransactionConflictAborts(t *testing.T) {
	srv := newTestServer(t, nil)
	name := docRoot + "/accounts/a"
	commitCreate(t, srv, name, map[string]interface{}{
		"balance": map[string]interface{}{"integerValue": "100"},
	})

	rec := do(t, srv, "POST", basePath+"/documents:beginTransaction", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	txn := decode(t, rec)["transaction"].(string)
	require.NotEmpty(t, txn)

	// Read inside the transaction to register the snapshot.
	rec = do(t, srv, "POST", basePath+"/documents:batchGet", "", map[string]interface{}{
		"documents":   []string{name},
		"transaction": txn,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A competing commit moves the document forward.
	commitCreate(t, srv, name, map[string]interface{}{
		"balance": map[string]interface{}{"integerValue": "50"},
	})

	rec = do(t, srv, "POST", basePath+"/documents:commit", "", map[string]interface{}{
		"transaction": txn,
		"writes": []map[string]interface{}{
			{"update": map[string]interface{}{"name": name, "fields": map[string]interface{}{
				"balance": map[string]interface{}{"integerValue": "0"},
			}}},
		},
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "ABORTED", errorStatus(t, rec))
}

func TestTransactionCommitAndReuse(t *testing.T) {
	srv := newTestServer(t, nil)
	name := docRoot + "/accounts/b"

	rec := do(t, srv, "POST", basePath+"/documents:beginTransaction", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txn := decode(t, rec)["transaction"].(string)

	rec = do(t, srv, "POST", basePath+"/documents:commit", "", map[string]interface{}{
		"transaction": txn,
		"writes": []map[string]interface{}{
			{"update": map[string]interface{}{"name": name, "fields": map[string]interface{}{
				"balance": map[string]interface{}{"integerValue": "10"},
			}}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A committed transaction cannot be used again.
	rec = do(t, srv, "POST", basePath+"/documents:commit", "", map[string]interface{}{
		"transaction": txn,
		"writes":      []map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(t, rec))
}

func TestRollback(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, "POST", basePath+"/documents:beginTransaction", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txn := decode(t, rec)["transaction"].(string)

	rec = do(t, srv, "POST", basePath+"/documents:rollback", "", map[string]interface{}{"transaction": txn})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, "POST", basePath+"/documents:rollback", "", map[string]interface{}{"transaction": txn})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, "POST", basePath+"/documents:rollback", "", map[string]interface{}{"transaction": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchPreconditions(t *testing.T) {
	srv := newTestServer(t, nil)
	target := basePath + "/documents/cities/oslo"
	fields := map[string]interface{}{
		"fields": map[string]interface{}{"name": map[string]interface{}{"stringValue": "Oslo"}},
	}

	rec := do(t, srv, "PATCH", target, "", fields)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, "PATCH", target+"?currentDocument.exists=false", "", fields)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", errorStatus(t, rec))

	rec = do(t, srv, "PATCH", basePath+"/documents/cities/ghost?currentDocument.exists=true", "", fields)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FAILED_PRECONDITION", errorStatus(t, rec))
}

func TestPatchWithUpdateMask(t *testing.T) {
	srv := newTestServer(t, nil)
	target := basePath + "/documents/cities/bern"

	rec := do(t, srv, "PATCH", target, "", map[string]interface{}{
		"fields": map[string]interface{}{
			"name": map[string]interface{}{"stringValue": "Bern"},
			"pop":  map[string]interface{}{"integerValue": "130000"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "PATCH", target+"?updateMask.fieldPaths=pop", "", map[string]interface{}{
		"fields": map[string]interface{}{
			"pop": map[string]interface{}{"integerValue": "134000"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fields := decode(t, rec)["fields"].(map[string]interface{})
	assert.Equal(t, "Bern", fields["name"].(map[string]interface{})["stringValue"])
	assert.Equal(t, "134000", fields["pop"].(map[string]interface{})["integerValue"])
}

func TestDeleteDocument(t *testing.T) {
	srv := newTestServer(t, nil)
	name := docRoot + "/cities/gone"
	commitCreate(t, srv, name, map[string]interface{}{
		"x": map[string]interface{}{"integerValue": "1"},
	})

	rec := do(t, srv, "DELETE", basePath+"/documents/cities/gone", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, srv.Store().Exists(name))

	// Deleting again is a no-op without a precondition.
	rec = do(t, srv, "DELETE", basePath+"/documents/cities/gone", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "DELETE", basePath+"/documents/cities/gone?currentDocument.exists=true", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FAILED_PRECONDITION", errorStatus(t, rec))
}

func TestListCollection(t *testing.T) {
	srv := newTestServer(t, nil)
	commitCreate(t, srv, docRoot+"/cities/oslo", map[string]interface{}{
		"n": map[string]interface{}{"integerValue": "1"},
	})
	commitCreate(t, srv, docRoot+"/cities/bern", map[string]interface{}{
		"n": map[string]interface{}{"integerValue": "2"},
	})
	commitCreate(t, srv, docRoot+"/cities/oslo/districts/frogner", map[string]interface{}{
		"n": map[string]interface{}{"integerValue": "3"},
	})

	rec := do(t, srv, "GET", basePath+"/documents/cities", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	docs := decode(t, rec)["documents"].([]interface{})
	require.Len(t, docs, 2)
	assert.Equal(t, docRoot+"/cities/bern", docs[0].(map[string]interface{})["name"])
	assert.Equal(t, docRoot+"/cities/oslo", docs[1].(map[string]interface{})["name"])
}

const ownerNotesRules = `
service cloud.firestore {
  match /databases/{database}/documents {
    match /notes/{note} {
      allow read: if request.auth != null && request.auth.uid == resource.data.owner;
      allow write: if request.auth != null && request.auth.uid == request.resource.data.owner;
    }
  }
}
`

func TestRulesEnforcement(t *testing.T) {
	srv := newTestServer(t, nil)
	name := docRoot + "/notes/n1"
	commitCreate(t, srv, name, map[string]interface{}{
		"owner": map[string]interface{}{"stringValue": "alice"},
		"text":  map[string]interface{}{"stringValue": "hello"},
	})

	rec := do(t, srv, "PUT", "/emulator/v1/projects/demo:securityRules", "",
		map[string]string{"rules": ownerNotesRules})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Anonymous read: request.auth != null short-circuits to a plain
	// denial, never dereferencing the null auth.
	rec = do(t, srv, "GET", basePath+"/documents/notes/n1", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "PERMISSION_DENIED", errorStatus(t, rec))

	rec = do(t, srv, "GET", basePath+"/documents/notes/n1", userToken(t, "bob"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, "GET", basePath+"/documents/notes/n1", userToken(t, "alice"), nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The owner token bypasses rules entirely.
	rec = do(t, srv, "GET", basePath+"/documents/notes/n1", "owner", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Writes check the incoming document via request.resource.
	write := func(bearer, owner string) *httptest.ResponseRecorder {
		return do(t, srv, "POST", basePath+"/documents:commit", bearer, map[string]interface{}{
			"writes": []map[string]interface{}{
				{"update": map[string]interface{}{
					"name": docRoot + "/notes/n2",
					"fields": map[string]interface{}{
						"owner": map[string]interface{}{"stringValue": owner},
					},
				}},
			},
		})
	}
	rec = write(userToken(t, "bob"), "alice")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = write(userToken(t, "alice"), "alice")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Paths no rule matches are denied.
	rec = do(t, srv, "GET", basePath+"/documents/cities/tokyo", userToken(t, "alice"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRulesDisabled(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.EnforceRules = false })

	rec := do(t, srv, "PUT", "/emulator/v1/projects/demo:securityRules", "",
		map[string]string{"rules": ownerNotesRules})
	require.Equal(t, http.StatusOK, rec.Code)

	commitCreate(t, srv, docRoot+"/notes/n1", map[string]interface{}{
		"owner": map[string]interface{}{"stringValue": "alice"},
	})
	rec = do(t, srv, "GET", basePath+"/documents/notes/n1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRulesRoundTripAndValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, "PUT", "/emulator/v1/projects/demo:securityRules", "",
		map[string]string{"rules": "match /x {"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(t, rec))

	rec = do(t, srv, "PUT", "/emulator/v1/projects/demo:securityRules", "",
		map[string]string{"rules": ownerNotesRules})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "GET", "/emulator/v1/projects/demo:securityRules", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ownerNotesRules, decode(t, rec)["rules"])
}

func TestRulesPlayground(t *testing.T) {
	srv := newTestServer(t, nil)
	commitCreate(t, srv, docRoot+"/notes/n1", map[string]interface{}{
		"owner": map[string]interface{}{"stringValue": "alice"},
	})

	eval := func(bearer, expr string) *httptest.ResponseRecorder {
		return do(t, srv, "POST", "/emulator/v1/projects/demo:evalRules", bearer,
			map[string]string{"expression": expr})
	}

	rec := eval("", "1 + 2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decode(t, rec)["value"].(map[string]interface{})
	assert.Equal(t, "3", v["integerValue"])

	rec = eval(userToken(t, "alice"), "request.auth.uid")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v = decode(t, rec)["value"].(map[string]interface{})
	assert.Equal(t, "alice", v["stringValue"])

	rec = eval("", `exists(/databases/$(database)/documents/notes/n1)`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v = decode(t, rec)["value"].(map[string]interface{})
	assert.Equal(t, true, v["booleanValue"])

	rec = eval("", "1 +")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetAndHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	commitCreate(t, srv, docRoot+"/cities/oslo", map[string]interface{}{
		"n": map[string]interface{}{"integerValue": "1"},
	})

	rec := do(t, srv, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode(t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["documents"])

	rec = do(t, srv, "DELETE", basePath+"/documents", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, srv.Store().Len())
}

func TestExportImportRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)
	commitCreate(t, srv, docRoot+"/cities/oslo", map[string]interface{}{
		"n": map[string]interface{}{"integerValue": "1"},
	})
	commitCreate(t, srv, docRoot+"/cities/bern", map[string]interface{}{
		"n": map[string]interface{}{"integerValue": "2"},
	})

	rec := do(t, srv, "POST", "/emulator/v1/projects/demo:export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dump := rec.Body.Bytes()
	require.NotEmpty(t, dump)

	rec = do(t, srv, "DELETE", "/emulator/v1/projects/demo/databases/(default)/documents", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, srv.Store().Len())

	rec = do(t, srv, "POST", "/emulator/v1/projects/demo:import", "", dump)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decode(t, rec)["documents"])
	assert.Equal(t, 2, srv.Store().Len())

	rec = do(t, srv, "GET", basePath+"/documents/cities/oslo", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportGzipRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)
	commitCreate(t, srv, docRoot+"/cities/oslo", map[string]interface{}{
		"n": map[string]interface{}{"integerValue": "1"},
	})

	rec := do(t, srv, "POST", "/emulator/v1/projects/demo:export?codec=gzip", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dump := rec.Body.Bytes()

	do(t, srv, "DELETE", basePath+"/documents", "", nil)
	rec = do(t, srv, "POST", "/emulator/v1/projects/demo:import?codec=gzip", "", dump)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, srv.Store().Len())

	rec = do(t, srv, "POST", "/emulator/v1/projects/demo:export?codec=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	commitCreate(t, srv, docRoot+"/cities/oslo", map[string]interface{}{
		"n": map[string]interface{}{"integerValue": "1"},
	})

	rec := do(t, srv, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "flamestore_requests_total")
	assert.Contains(t, body, `route="commit"`)
	assert.Contains(t, body, "flamestore_documents 1")
}

func TestGraphQLEndpoint(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.EnableGraphQL = true })
	commitCreate(t, srv, docRoot+"/cities/oslo", map[string]interface{}{
		"n": map[string]interface{}{"integerValue": "1"},
	})

	rec := do(t, srv, "POST", "/graphql", "", map[string]string{
		"query": `{ stats { documents } }`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]interface{})
	stats := data["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["documents"])
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, "OPTIONS", basePath+"/documents:commit", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEmptyBodyRejected(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, "POST", basePath+"/documents:commit", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(t, rec))
}
