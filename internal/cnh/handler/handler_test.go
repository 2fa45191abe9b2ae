package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/extractor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/handler"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/processor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/service"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/storage"
	"github.com/cnhflow/cnhflow-backend/pkg/logger"
	"github.com/cnhflow/cnhflow-backend/pkg/testutil"
)

const consent = "2026-03-01T12:00:00Z"

// lineProducer returns one token per configured line. When gate is set it
// blocks until the gate is closed.
type lineProducer struct {
	lines []string
	gate  chan struct{}

	mu  sync.Mutex
	doc processor.Document
}

func (p *lineProducer) Name() string { return "lines" }

func (p *lineProducer) CanProcess(doc processor.Document) bool {
	return doc.Kind() == processor.KindPDF
}

func (p *lineProducer) Tokens(ctx context.Context, doc processor.Document) ([]domain.Token, error) {
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()

	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	tokens := make([]domain.Token, len(p.lines))
	for i, l := range p.lines {
		tokens[i] = domain.Token{Text: l, Index: i}
	}
	return tokens, nil
}

func (p *lineProducer) lastDocument() processor.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newRouter(t *testing.T, p processor.TokenProducer) http.Handler {
	t.Helper()
	store := storage.NewTempStorage(time.Minute)
	t.Cleanup(store.Close)

	svc := service.NewService(processor.NewRegistry(p), extractor.New(extractor.DefaultOptions()), store, logger.Nop()).
		WithTimeout(5 * time.Second)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	h := handler.NewHandler(svc, handler.Options{MaxUploadSize: 1 << 20, CSVSeparator: ';'}, logger.Nop()).
		WithHealthCheck("database", func(context.Context) map[string]string {
			return map[string]string{"status": "healthy"}
		})

	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Route("/api/v1", h.Routes)
	return r
}

func decode(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	return env
}

func upload(t *testing.T, router http.Handler, content []byte, fields map[string]string) (int, envelope) {
	t.Helper()
	req := testutil.NewMultipartRequest(t, "/api/v1/cnh/extract", "file", "cnh.pdf", content, fields)
	rr := testutil.ExecuteRequest(router, req)
	return rr.Code, decode(t, rr.Body.Bytes())
}

func waitCompleted(t *testing.T, router http.Handler, jobID string) domain.ExtractionJob {
	t.Helper()
	var job domain.ExtractionJob
	testutil.RequireEventually(t, func() bool {
		rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/cnh/extract/"+jobID, nil))
		if rr.Code != http.StatusOK {
			return false
		}
		env := decode(t, rr.Body.Bytes())
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return false
		}
		return job.Status == domain.StatusCompleted || job.Status == domain.StatusFailed
	}, 5*time.Second, 10*time.Millisecond, "job did not finish")
	return job
}

func TestHealth(t *testing.T) {
	router := newRouter(t, &lineProducer{})

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/health", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(decode(t, rr.Body.Bytes()).Data, &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "cnh-service", body["service"])
	assert.Equal(t, map[string]interface{}{"status": "healthy"}, body["database"])
}

func TestExtract_CompletesAsynchronously(t *testing.T) {
	p := &lineProducer{lines: testutil.SampleCNHLines}
	router := newRouter(t, p)

	status, env := upload(t, router, testutil.LinesPDF("CNH"), map[string]string{
		"consent_timestamp": consent,
		"page":              "1",
		"zoom":              "2.5",
		"roi":               "0,0,1,0.5",
	})
	require.Equal(t, http.StatusAccepted, status, "error: %+v", env.Error)
	assert.True(t, env.Success)

	var job domain.ExtractionJob
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, domain.StatusProcessing, job.Status)

	done := waitCompleted(t, router, job.JobID)
	require.Equal(t, domain.StatusCompleted, done.Status, done.Error)
	require.NotNil(t, done.Result)
	assert.Equal(t, "JOAO DA SILVA SANTOS", done.Result.Get(domain.FieldName).Value)
	assert.Equal(t, "12345678909", done.Result.Get(domain.FieldCPF).Value)
	assert.Equal(t, "lines", done.Result.Source)

	doc := p.lastDocument()
	assert.Equal(t, 1, doc.Page)
	assert.Equal(t, 2.5, doc.Zoom)
	assert.Equal(t, 0.5, doc.ROI.Bottom)
}

func TestExtract_RejectsBadRequests(t *testing.T) {
	pdf := testutil.LinesPDF("CNH")

	tests := []struct {
		name     string
		content  []byte
		fields   map[string]string
		noFile   bool
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing consent",
			content:  pdf,
			fields:   map[string]string{},
			wantCode: http.StatusBadRequest,
			wantErr:  "BAD_REQUEST",
		},
		{
			name:     "consent not RFC3339",
			content:  pdf,
			fields:   map[string]string{"consent_timestamp": "01/03/2026"},
			wantCode: http.StatusBadRequest,
			wantErr:  "BAD_REQUEST",
		},
		{
			name:     "missing file",
			fields:   map[string]string{"consent_timestamp": consent},
			noFile:   true,
			wantCode: http.StatusBadRequest,
			wantErr:  "BAD_REQUEST",
		},
		{
			name:     "page is not a number",
			content:  pdf,
			fields:   map[string]string{"consent_timestamp": consent, "page": "first"},
			wantCode: http.StatusBadRequest,
			wantErr:  "BAD_REQUEST",
		},
		{
			name:     "zoom out of range",
			content:  pdf,
			fields:   map[string]string{"consent_timestamp": consent, "zoom": "40"},
			wantCode: http.StatusBadRequest,
			wantErr:  "BAD_REQUEST",
		},
		{
			name:     "bad roi",
			content:  pdf,
			fields:   map[string]string{"consent_timestamp": consent, "roi": "0,0,1"},
			wantCode: http.StatusBadRequest,
			wantErr:  "BAD_REQUEST",
		},
		{
			name:     "unknown date strategy",
			content:  pdf,
			fields:   map[string]string{"consent_timestamp": consent, "date_strategy": "nearest"},
			wantCode: http.StatusBadRequest,
			wantErr:  "BAD_REQUEST",
		},
		{
			name:     "unknown producer",
			content:  pdf,
			fields:   map[string]string{"consent_timestamp": consent, "producer": "cloud"},
			wantCode: http.StatusBadRequest,
			wantErr:  "BAD_REQUEST",
		},
		{
			name:     "not a document",
			content:  []byte("just some text"),
			fields:   map[string]string{"consent_timestamp": consent},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "INVALID_DOCUMENT",
		},
		{
			name:     "page beyond the document",
			content:  pdf,
			fields:   map[string]string{"consent_timestamp": consent, "page": "3"},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "INVALID_DOCUMENT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(t, &lineProducer{lines: testutil.SampleCNHLines})

			field := "file"
			if tt.noFile {
				field = ""
			}
			req := testutil.NewMultipartRequest(t, "/api/v1/cnh/extract", field, "cnh.pdf", tt.content, tt.fields)
			rr := testutil.ExecuteRequest(router, req)

			testutil.AssertStatus(t, rr, tt.wantCode)
			env := decode(t, rr.Body.Bytes())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
		})
	}
}

func TestGetResult_NotFound(t *testing.T) {
	router := newRouter(t, &lineProducer{})

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/cnh/extract/missing", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
	assert.Equal(t, "NOT_FOUND", decode(t, rr.Body.Bytes()).Error.Code)
}

func TestExport(t *testing.T) {
	router := newRouter(t, &lineProducer{lines: testutil.SampleCNHLines})

	status, env := upload(t, router, testutil.LinesPDF("CNH"), map[string]string{"consent_timestamp": consent})
	require.Equal(t, http.StatusAccepted, status)
	var job domain.ExtractionJob
	require.NoError(t, json.Unmarshal(env.Data, &job))
	waitCompleted(t, router, job.JobID)

	t.Run("csv", func(t *testing.T) {
		rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/cnh/extract/"+job.JobID+"/export", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)

		assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Header().Get("Content-Disposition"), "cnh-"+job.JobID+".csv")

		lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "nome;cpf;data_nascimento;validade;filiacao;registro;categoria", lines[0])
		assert.True(t, strings.HasPrefix(lines[1], "JOAO DA SILVA SANTOS;12345678909;"), lines[1])
	})

	t.Run("xlsx", func(t *testing.T) {
		rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/cnh/extract/"+job.JobID+"/export?format=xlsx", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)

		assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rr.Header().Get("Content-Type"))
		// xlsx files are zip archives
		assert.True(t, strings.HasPrefix(rr.Body.String(), "PK"))
	})

	t.Run("unknown format", func(t *testing.T) {
		rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/cnh/extract/"+job.JobID+"/export?format=pdf", nil))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestExport_JobStillProcessing(t *testing.T) {
	gate := make(chan struct{})
	router := newRouter(t, &lineProducer{lines: testutil.SampleCNHLines, gate: gate})
	defer close(gate)

	status, env := upload(t, router, testutil.LinesPDF("CNH"), map[string]string{"consent_timestamp": consent})
	require.Equal(t, http.StatusAccepted, status)
	var job domain.ExtractionJob
	require.NoError(t, json.Unmarshal(env.Data, &job))

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/cnh/extract/"+job.JobID+"/export", nil))
	testutil.AssertStatus(t, rr, http.StatusConflict)
	assert.Equal(t, "CONFLICT", decode(t, rr.Body.Bytes()).Error.Code)
}

func tokenBody(texts ...string) []map[string]interface{} {
	out := make([]map[string]interface{}, len(texts))
	for i, s := range texts {
		out[i] = map[string]interface{}{"text": s, "index": i}
	}
	return out
}

func TestExtractTokens(t *testing.T) {
	router := newRouter(t, &lineProducer{})

	body := map[string]interface{}{
		"tokens": tokenBody("15/03/1990", "20/03/2030", "NOME", "MARIA SANT0S"),
		"options": map[string]interface{}{
			"date_strategy": "positional",
			"corrections":   map[string]string{"SANT0S": "SANTOS"},
		},
	}
	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/cnh/extract/tokens", body))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var res domain.ExtractionResult
	require.NoError(t, json.Unmarshal(decode(t, rr.Body.Bytes()).Data, &res))
	assert.Equal(t, service.SourceTokens, res.Source)
	assert.Equal(t, "MARIA SANTOS", res.Get(domain.FieldName).Value)
	assert.Equal(t, "15/03/1990", res.Get(domain.FieldBirthDate).Value)
	assert.Equal(t, "20/03/2030", res.Get(domain.FieldValidityDate).Value)
	assert.False(t, res.Get(domain.FieldCPF).Found)
}

func TestExtractTokens_Invalid(t *testing.T) {
	router := newRouter(t, &lineProducer{})

	tests := []struct {
		name     string
		body     interface{}
		wantCode string
	}{
		{
			name:     "no tokens",
			body:     map[string]interface{}{"tokens": []interface{}{}},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name: "confidence out of range",
			body: map[string]interface{}{"tokens": []map[string]interface{}{
				{"text": "NOME", "index": 0, "confidence": 1.5},
			}},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name: "unknown strategy",
			body: map[string]interface{}{
				"tokens":  tokenBody("NOME"),
				"options": map[string]string{"parentage_strategy": "greedy"},
			},
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "not json",
			body:     "tokens",
			wantCode: "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/cnh/extract/tokens", tt.body))
			testutil.AssertStatus(t, rr, http.StatusBadRequest)
			env := decode(t, rr.Body.Bytes())
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
		})
	}
}
