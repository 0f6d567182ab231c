package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/internal/describer"
	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/internal/storage/implementations/file"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/models"
)

func surveyTable(n int) *models.Table {
	a := make([]models.Value, n)
	b := make([]models.Value, n)
	for i := 0; i < n; i++ {
		v := "x"
		if i%2 == 1 {
			v = "y"
		}
		a[i] = models.StringValue(v)
		b[i] = models.StringValue(v)
	}
	return &models.Table{Columns: []models.Column{
		{Name: "a", DataType: models.DataTypeString, Values: a},
		{Name: "b", DataType: models.DataTypeString, Values: b},
	}}
}

func newTestServer(t *testing.T, config *Config) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := file.NewFileStorage(&file.FileStorageConfig{BasePath: t.TempDir()}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))

	pm, err := metrics.NewPrometheusMetrics(nil, logger)
	require.NoError(t, err)

	srv, err := NewServer(config, NewHandlers(store, describer.DefaultConfig(), 1000, pm, logger), pm, logger)
	require.NoError(t, err)
	return srv
}

func do(srv *Server, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func createSurvey(t *testing.T, srv *Server) DescribeResponse {
	t.Helper()
	zero := 0.0
	rec := do(srv, http.MethodPost, "/api/v1/descriptions", DescribeRequest{
		ID:      "survey",
		Epsilon: &zero,
		Table:   surveyTable(200),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp DescribeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRequestID))

	rec = do(srv, http.MethodGet, "/health", nil, constants.HeaderRequestID, "req-42")
	assert.Equal(t, "req-42", rec.Header().Get(constants.HeaderRequestID))
}

func TestDescriptionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	created := createSurvey(t, srv)
	assert.Equal(t, "survey", created.ID)
	assert.Equal(t, constants.ModeCorrelated, created.Mode)
	assert.Equal(t, 0.0, created.EpsilonSpent)
	assert.Equal(t, 200, created.Description.Meta.NumTuples)
	assert.Len(t, created.Description.BayesianNetwork, 1)

	rec := do(srv, http.MethodGet, "/api/v1/descriptions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ids":["survey"]}`, rec.Body.String())

	rec = do(srv, http.MethodGet, "/api/v1/descriptions/survey", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var desc models.DatasetDescription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	assert.Equal(t, []string{"a", "b"}, desc.Meta.AttributesInBN)

	rec = do(srv, http.MethodDelete, "/api/v1/descriptions/survey", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(srv, http.MethodGet, "/api/v1/descriptions/survey", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "DATA_NOT_FOUND")

	rec = do(srv, http.MethodDelete, "/api/v1/descriptions/survey", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDescriptionAssignsID(t *testing.T) {
	srv := newTestServer(t, nil)

	zero := 0.0
	rec := do(srv, http.MethodPost, "/api/v1/descriptions", DescribeRequest{
		Mode:    constants.ModeIndependent,
		Epsilon: &zero,
		Table:   surveyTable(20),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp DescribeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.ID, 36)
	assert.Empty(t, resp.Description.BayesianNetwork)
}

func TestCreateDescriptionRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{name: "malformed json", body: `{"table":`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"tabel":{}}`, status: http.StatusBadRequest},
		{name: "missing table", body: DescribeRequest{ID: "x"}, status: http.StatusBadRequest},
		{name: "unsafe id", body: DescribeRequest{ID: "../x", Table: surveyTable(4)}, status: http.StatusBadRequest},
		{name: "bad histogram", body: DescribeRequest{HistogramBins: "many", Table: surveyTable(4)}, status: http.StatusBadRequest},
		{name: "unknown mode", body: DescribeRequest{Mode: "gan", Table: surveyTable(4)}, status: http.StatusBadRequest},
		{name: "single attribute", body: DescribeRequest{Table: &models.Table{Columns: surveyTable(4).Columns[:1]}}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(srv, http.MethodPost, "/api/v1/descriptions", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestGenerate(t *testing.T) {
	srv := newTestServer(t, nil)
	createSurvey(t, srv)

	rec := do(srv, http.MethodPost, "/api/v1/descriptions/survey/generate", GenerateRequest{N: 25, Seed: 7})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.GenerationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, constants.ModeCorrelated, result.Mode)
	require.Equal(t, 25, result.Table.NumRows())
	a, _ := result.Table.Column("a")
	b, _ := result.Table.Column("b")
	for i := range a.Values {
		assert.Equal(t, a.Values[i].Raw, b.Values[i].Raw, "row %d", i)
	}

	rec = do(srv, http.MethodPost, "/api/v1/descriptions/survey/generate",
		GenerateRequest{N: 3, Mode: constants.ModeRandom}, "Accept", constants.ContentTypeCSV)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.ContentTypeCSV, rec.Header().Get(constants.HeaderContentType))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, "a,b", lines[0])
	assert.Len(t, lines, 4)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, nil)
	createSurvey(t, srv)

	rec := do(srv, http.MethodPost, "/api/v1/descriptions/survey/generate", GenerateRequest{N: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(srv, http.MethodPost, "/api/v1/descriptions/survey/generate", GenerateRequest{N: 1001})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(srv, http.MethodPost, "/api/v1/descriptions/survey/generate", GenerateRequest{N: 5, Mode: "gan"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(srv, http.MethodPost, "/api/v1/descriptions/missing/generate", GenerateRequest{N: 5})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutingErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(srv, http.MethodGet, "/api/v1/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, constants.ContentTypeJSON, rec.Header().Get(constants.HeaderContentType))

	rec = do(srv, http.MethodPut, "/api/v1/descriptions", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestSizeLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxRequestSize = 16
	srv := newTestServer(t, config)

	rec := do(srv, http.MethodPost, "/api/v1/descriptions", DescribeRequest{Table: surveyTable(10)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	config := DefaultConfig()
	config.EnableCORS = true
	srv := newTestServer(t, config)

	rec := do(srv, http.MethodOptions, "/api/v1/descriptions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	do(srv, http.MethodGet, "/health", nil)

	rec := do(srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tabsynth_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	config := DefaultConfig()
	config.Port = 0
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.MaxRows = constants.MaxGenerationSize + 1
	assert.Error(t, config.Validate())

	_, err := NewServer(config, nil, nil, nil)
	assert.Error(t, err)

	assert.Equal(t, "0.0.0.0:8080", DefaultConfig().GetAddress())
}
