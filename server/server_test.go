package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagemesh/triagemesh/core"
	"github.com/triagemesh/triagemesh/triage"
)

type stubProcessor struct {
	result string
	err    error
	seen   string
}

func (p *stubProcessor) ProcessCase(ctx context.Context, caseSheet string) (string, error) {
	p.seen = caseSheet
	if p.err != nil {
		return "", p.err
	}
	return p.result, nil
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New(&stubProcessor{})
	rec := doRequest(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
}

func TestSubmitCase(t *testing.T) {
	p := &stubProcessor{result: "Please use this as the final result of the automation workflow:\nadmitted"}
	s := New(p)

	rec := doRequest(t, s, http.MethodPost, "/cases", `{"case_sheet": "chest pain, BP 88/58"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chest pain, BP 88/58", p.seen)
	var body struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Result, "admitted")
}

func TestSubmitCaseMissingSheet(t *testing.T) {
	s := New(&stubProcessor{})
	rec := doRequest(t, s, http.MethodPost, "/cases", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCaseMalformedBody(t *testing.T) {
	s := New(&stubProcessor{})
	rec := doRequest(t, s, http.MethodPost, "/cases", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCaseEmptySheetRejected(t *testing.T) {
	s := New(&stubProcessor{err: triage.ErrEmptyCaseSheet})
	rec := doRequest(t, s, http.MethodPost, "/cases", `{"case_sheet": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCaseContractViolation(t *testing.T) {
	s := New(&stubProcessor{err: core.ErrContractViolation})
	rec := doRequest(t, s, http.MethodPost, "/cases", `{"case_sheet": "note"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSubmitCaseTimeout(t *testing.T) {
	s := New(&stubProcessor{err: context.DeadlineExceeded})
	rec := doRequest(t, s, http.MethodPost, "/cases", `{"case_sheet": "note"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestSubmitCaseInternalError(t *testing.T) {
	s := New(&stubProcessor{err: errors.New("workflow exploded")})
	rec := doRequest(t, s, http.MethodPost, "/cases", `{"case_sheet": "note"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
