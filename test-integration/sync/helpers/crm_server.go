package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// CRMRecord is a contact as stored by the mock CRM
type CRMRecord map[string]any

// MockCRM is an in-memory REST CRM speaking the layout configured by WriteConfigYAML:
// records live under /contacts, list responses wrap them in "records" and the
// canonical id is kept in "externalRef".
type MockCRM struct {
	*httptest.Server

	mu      sync.Mutex
	token   string
	nextID  int
	records map[string]map[string]CRMRecord // tenant -> id -> record
}

// NewMockCRM starts a mock CRM accepting the given bearer token
func NewMockCRM(token string) *MockCRM {
	crm := &MockCRM{
		token:   token,
		records: make(map[string]map[string]CRMRecord),
	}
	crm.Server = httptest.NewServer(http.HandlerFunc(crm.serveHTTP))
	return crm
}

// SetToken changes the accepted bearer token, invalidating the one the server was configured with
func (c *MockCRM) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Create stores a record as if a user had entered it in the CRM and returns its id
func (c *MockCRM) Create(tenantID string, fields CRMRecord) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLocked(tenantID, fields)["id"].(string)
}

// Records returns a copy of the tenant's records
func (c *MockCRM) Records(tenantID string) []CRMRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CRMRecord, 0, len(c.records[tenantID]))
	for _, rec := range c.records[tenantID] {
		out = append(out, copyRecord(rec))
	}
	return out
}

// FindByExternalRef returns the record carrying the canonical id
func (c *MockCRM) FindByExternalRef(tenantID, entityID string) (CRMRecord, bool) {
	for _, rec := range c.Records(tenantID) {
		if rec["externalRef"] == entityID {
			return rec, true
		}
	}
	return nil, false
}

func (c *MockCRM) serveHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+c.token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant is required"})
		return
	}

	id, isItem := strings.CutPrefix(r.URL.Path, "/contacts/")
	switch {
	case r.URL.Path == "/contacts" && r.Method == http.MethodGet:
		c.list(w, r, tenantID)
	case r.URL.Path == "/contacts" && r.Method == http.MethodPost:
		var fields CRMRecord
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, c.createLocked(tenantID, fields))
	case isItem && r.Method == http.MethodGet:
		rec, ok := c.records[tenantID][id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case isItem && r.Method == http.MethodPut:
		rec, ok := c.records[tenantID][id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		var fields CRMRecord
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		for k, v := range fields {
			rec[k] = v
		}
		rec["version"] = rec["version"].(int) + 1
		rec["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
		writeJSON(w, http.StatusOK, rec)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (c *MockCRM) list(w http.ResponseWriter, r *http.Request, tenantID string) {
	query := r.URL.Query()
	var since time.Time
	if s := query.Get("updatedSince"); s != "" {
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		since = parsed
	}
	ref := query.Get("externalRef")

	out := make([]CRMRecord, 0)
	for _, rec := range c.records[tenantID] {
		if ref != "" && rec["externalRef"] != ref {
			continue
		}
		updated, _ := time.Parse(time.RFC3339Nano, rec["updatedAt"].(string))
		if !since.IsZero() && !updated.After(since) {
			continue
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (c *MockCRM) createLocked(tenantID string, fields CRMRecord) CRMRecord {
	c.nextID++
	rec := copyRecord(fields)
	rec["id"] = fmt.Sprintf("crm-%d", c.nextID)
	rec["version"] = 1
	rec["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)

	if c.records[tenantID] == nil {
		c.records[tenantID] = make(map[string]CRMRecord)
	}
	c.records[tenantID][rec["id"].(string)] = rec
	return rec
}

func copyRecord(rec CRMRecord) CRMRecord {
	out := make(CRMRecord, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
