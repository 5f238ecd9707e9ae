package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-cli/internal/backend"
	"github.com/sells-group/quote-cli/internal/config"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/pipeline"
	"github.com/sells-group/quote-cli/internal/store"
)

func newTestEnv(t *testing.T) *appEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	c := &config.Config{}
	c.Parse.Concurrency = 2
	c.Parse.MaxAttempts = 1
	return &appEnv{
		Store:    st,
		Pipeline: pipeline.New(c, st, []parser.Backend{backend.NewRules()}, nil, nil),
	}
}

func seedQuote(t *testing.T, env *appEnv, supplier, source string, total float64) *model.ParsedQuote {
	t.Helper()
	q := &model.ParsedQuote{
		SupplierName: supplier,
		FileName:     supplier + ".pdf",
		SourceSHA256: source,
		DocumentType: model.DocumentPDF,
		Items: []model.LineItem{
			{Description: "Fire collar to uPVC pipe", Code: "PE_PIPE_PVC", Quantity: 10, Unit: model.UnitEach, TotalPrice: &total},
		},
		Totals:     model.QuoteTotals{Penetrations: total, Grand: total},
		Confidence: 0.8,
	}
	require.NoError(t, env.Store.CreateQuote(context.Background(), q))
	return q
}

func TestRouter_Health(t *testing.T) {
	r := buildRouter(context.Background(), newTestEnv(t), 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "closed", body.Backends["rules"])
}

func TestRouter_GetQuote(t *testing.T) {
	env := newTestEnv(t)
	q := seedQuote(t, env, "Firestop Ltd", "aaa111", 450)
	r := buildRouter(context.Background(), env, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/quotes/"+q.ID, nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got model.ParsedQuote
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, q.ID, got.ID)
	assert.Len(t, got.Items, 1)
}

func TestRouter_GetQuote_NotFound(t *testing.T) {
	r := buildRouter(context.Background(), newTestEnv(t), 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/quotes/nope", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "quote not found")
}

func TestRouter_ListQuotes_SupplierFilter(t *testing.T) {
	env := newTestEnv(t)
	seedQuote(t, env, "Firestop Ltd", "aaa111", 450)
	seedQuote(t, env, "Sealit NZ", "bbb222", 500)
	r := buildRouter(context.Background(), env, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/quotes?supplier=Sealit+NZ", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got []model.ParsedQuote
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Sealit NZ", got[0].SupplierName)
}

func TestRouter_Risks_NotFound(t *testing.T) {
	env := newTestEnv(t)
	q := seedQuote(t, env, "Firestop Ltd", "aaa111", 450)
	r := buildRouter(context.Background(), env, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/quotes/"+q.ID+"/risks", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_Compare(t *testing.T) {
	env := newTestEnv(t)
	left := seedQuote(t, env, "Firestop Ltd", "aaa111", 450)
	right := seedQuote(t, env, "Sealit NZ", "bbb222", 500)
	r := buildRouter(context.Background(), env, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/compare?left="+left.ID+"&right="+right.ID, nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	var got model.Comparison
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "Firestop Ltd", got.LeftLabel)
	require.NotNil(t, got.Rows[0].VariancePct)
}

func TestRouter_Compare_MissingSide(t *testing.T) {
	env := newTestEnv(t)
	left := seedQuote(t, env, "Firestop Ltd", "aaa111", 450)
	r := buildRouter(context.Background(), env, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/compare?left="+left.ID+"&right=missing", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "right quote not found")
}

func TestRouter_DeleteQuote(t *testing.T) {
	env := newTestEnv(t)
	q := seedQuote(t, env, "Firestop Ltd", "aaa111", 450)
	r := buildRouter(context.Background(), env, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/quotes/"+q.ID, nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/quotes/"+q.ID, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_WebhookIngest_MissingFields(t *testing.T) {
	r := buildRouter(context.Background(), newTestEnv(t), 0)

	body, _ := json.Marshal(map[string]string{"path": "/tmp/quote.pdf"})
	req := httptest.NewRequest(http.MethodPost, "/v1/webhook/ingest", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "path and supplier are required")
}

func TestRouter_WebhookIngest_InvalidBody(t *testing.T) {
	r := buildRouter(context.Background(), newTestEnv(t), 0)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhook/ingest", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}
