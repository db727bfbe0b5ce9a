package main

import (
	"net/http"
	"testing"

	"github.com/dragonx/sentinel/internal/testutil"
)

func TestHealthHandlerReportsOK(t *testing.T) {
	req := testutil.NewTestRequest(http.MethodGet, "/health")
	rec := testutil.NewTestRecorder()

	healthHandler(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if rec.Body.String() == "" {
		t.Error("expected a non-empty body")
	}
}
