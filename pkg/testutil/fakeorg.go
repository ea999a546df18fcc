package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// LeadCatalog is a catalog selecting the Lead entity served by FakeOrg.
const LeadCatalog = `{"streams":[{
	"stream": "Lead",
	"tap_stream_id": "Lead",
	"replication_key": "SystemModstamp",
	"schema": {
		"type": "object",
		"additionalProperties": false,
		"selected": true,
		"properties": {
			"Id": {"inclusion": "automatic", "selected": false, "type": ["string"]},
			"Email": {"inclusion": "available", "selected": true, "type": ["null", "string"]},
			"SystemModstamp": {"inclusion": "automatic", "selected": false, "type": ["string"], "format": "date-time"}
		}
	}
}]}`

// FakeOrg is an in-process CRM organization with a single Lead entity
// holding two records. It issues a token to any refresh request.
type FakeOrg struct {
	Server *httptest.Server

	mu      sync.Mutex
	queries []string
}

// NewFakeOrg starts a FakeOrg that is shut down when the test completes.
func NewFakeOrg(t *testing.T) *FakeOrg {
	t.Helper()
	org := &FakeOrg{}
	mux := http.NewServeMux()

	mux.HandleFunc("/services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok","token_type":"Bearer","instance_url":%q}`, org.Server.URL)
	})
	mux.HandleFunc("/services/data/v41.0/sobjects", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Sforce-Limit-Info", "api-usage=7/15000")
		_, _ = io.WriteString(w, `{"sobjects":[
			{"name":"Lead","queryable":true},
			{"name":"LeadChangeEvent","queryable":false}]}`)
	})
	mux.HandleFunc("/services/data/v41.0/sobjects/Lead/describe", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Sforce-Limit-Info", "api-usage=8/15000")
		_, _ = io.WriteString(w, `{"fields":[
			{"name":"Id","type":"id","nillable":false},
			{"name":"Email","type":"email","nillable":true},
			{"name":"SystemModstamp","type":"datetime","nillable":false}]}`)
	})
	mux.HandleFunc("/services/data/v41.0/query", func(w http.ResponseWriter, r *http.Request) {
		org.mu.Lock()
		org.queries = append(org.queries, r.URL.Query().Get("q"))
		org.mu.Unlock()
		_, _ = io.WriteString(w, `{"totalSize":2,"done":true,"records":[
			{"attributes":{"type":"Lead"},"Id":"00Q1","Email":"a@example.com","SystemModstamp":"2020-02-01T00:00:00.000+0000"},
			{"attributes":{"type":"Lead"},"Id":"00Q2","Email":null,"SystemModstamp":"2020-02-02T00:00:00.000+0000"}]}`)
	})

	org.Server = httptest.NewServer(mux)
	t.Cleanup(org.Server.Close)
	return org
}

// Queries returns the SOQL queries received so far.
func (o *FakeOrg) Queries() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.queries...)
}

// ConfigFile writes a tap configuration pointing at the org into dir.
// An empty checkpointDB disables the checkpoint journal.
func (o *FakeOrg) ConfigFile(t *testing.T, dir, checkpointDB string) string {
	t.Helper()
	return WriteFile(t, dir, "tap.json", fmt.Sprintf(`{
		"refresh_token": "rt",
		"client_id": "cid",
		"client_secret": "super-secret",
		"start_date": "2020-01-01T00:00:00Z",
		"login_url": %q,
		"retry_attempts": 0,
		"log_level": "error",
		"checkpoint_db": %q
	}`, o.Server.URL, checkpointDB))
}
