package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldlens-tech/fieldlens/internal/store"
	"github.com/fieldlens-tech/fieldlens/internal/worker"
)

type processCall struct {
	documentID string
	force      bool
}

type fakeProcessor struct {
	res   *worker.ProcessResult
	err   error
	calls []processCall
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, documentID string, force bool) (*worker.ProcessResult, error) {
	f.calls = append(f.calls, processCall{documentID: documentID, force: force})
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeRegionLister struct {
	fields []store.FieldRegion
	err    error
}

func (f *fakeRegionLister) ListRegions(ctx context.Context, documentID uuid.UUID) ([]store.FieldRegion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fields, nil
}

func processedResult(id string) *worker.ProcessResult {
	return &worker.ProcessResult{
		DocumentID:     id,
		Status:         store.StatusReady,
		FieldsFound:    4,
		PageCount:      2,
		AcroForm:       true,
		FieldsBySource: map[string]int{"structure": 3, "geometric": 1},
		FieldsByPage:   map[int]int{0: 2, 1: 2},
	}
}

func TestServer_HealthHandler(t *testing.T) {
	server := &Server{}

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkResponse  bool
	}{
		{
			name:           "GET request success",
			method:         "GET",
			expectedStatus: http.StatusOK,
			checkResponse:  true,
		},
		{
			name:           "POST request not allowed",
			method:         "POST",
			expectedStatus: http.StatusMethodNotAllowed,
			checkResponse:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			server.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.checkResponse {
				var response HealthResponse
				err := json.Unmarshal(w.Body.Bytes(), &response)
				require.NoError(t, err)

				assert.Equal(t, "healthy", response.Status)
				assert.NotEmpty(t, response.Time)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServer_ProcessHandler(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		name           string
		method         string
		body           string
		procErr        error
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "successful run",
			method:         "POST",
			body:           fmt.Sprintf(`{"document_id": %q}`, id),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "method not allowed",
			method:         "GET",
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "invalid JSON body",
			method:         "POST",
			body:           `{"document_id": `,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid JSON body",
		},
		{
			name:           "missing document id",
			method:         "POST",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "document_id is required",
		},
		{
			name:           "malformed document id",
			method:         "POST",
			body:           `{"document_id": "nope"}`,
			procErr:        fmt.Errorf("%w: document id %q", worker.ErrInvalidInput, "nope"),
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "invalid input",
		},
		{
			name:           "unknown document",
			method:         "POST",
			body:           fmt.Sprintf(`{"document_id": %q}`, id),
			procErr:        store.ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedDetail: "document not found",
		},
		{
			name:           "already claimed",
			method:         "POST",
			body:           fmt.Sprintf(`{"document_id": %q}`, id),
			procErr:        fmt.Errorf("%w: status is processing", store.ErrAlreadyClaimed),
			expectedStatus: http.StatusConflict,
			expectedDetail: "already claimed",
		},
		{
			name:           "processing failure",
			method:         "POST",
			body:           fmt.Sprintf(`{"document_id": %q}`, id),
			procErr:        errors.New("RenderFailure: opening form.pdf: xref table corrupt"),
			expectedStatus: http.StatusInternalServerError,
			expectedDetail: "RenderFailure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{res: processedResult(id), err: tt.procErr}
			server := NewServer(DefaultConfig(), proc, nil)

			req := httptest.NewRequest(tt.method, "/process", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			server.processHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var response worker.ProcessResult
				err := json.Unmarshal(w.Body.Bytes(), &response)
				require.NoError(t, err)

				assert.Equal(t, id, response.DocumentID)
				assert.Equal(t, store.StatusReady, response.Status)
				assert.Equal(t, 4, response.FieldsFound)
				assert.Equal(t, 2, response.PageCount)
				assert.True(t, response.AcroForm)
				require.Len(t, proc.calls, 1)
				assert.Equal(t, id, proc.calls[0].documentID)
				assert.False(t, proc.calls[0].force)
			}

			if tt.expectedDetail != "" {
				var response ErrorResponse
				err := json.Unmarshal(w.Body.Bytes(), &response)
				require.NoError(t, err)
				assert.Contains(t, response.Detail, tt.expectedDetail)
			}
		})
	}
}

func TestServer_ProcessHandlerForce(t *testing.T) {
	id := uuid.NewString()
	proc := &fakeProcessor{res: processedResult(id)}
	server := NewServer(DefaultConfig(), proc, nil)

	body := fmt.Sprintf(`{"document_id": %q, "force": true}`, id)
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(body))
	w := httptest.NewRecorder()

	server.processHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, proc.calls, 1)
	assert.True(t, proc.calls[0].force)
}

func TestServer_FieldsHandler(t *testing.T) {
	id := uuid.New()
	label := "applicant_name"
	regions := []store.FieldRegion{
		{ID: uuid.New(), DocumentID: id, PageIndex: 0, X: 0.1, Y: 0.8, Width: 0.3, Height: 0.05, FieldType: "text", Label: label, Confidence: 0.98},
		{ID: uuid.New(), DocumentID: id, PageIndex: 1, X: 0.2, Y: 0.4, Width: 0.2, Height: 0.04, FieldType: "checkbox", Label: "agree", Confidence: 0.8},
	}

	tests := []struct {
		name           string
		method         string
		path           string
		lister         *fakeRegionLister
		expectedStatus int
		expectedCount  int
	}{
		{
			name:           "lists persisted fields",
			method:         "GET",
			path:           "/documents/" + id.String() + "/fields",
			lister:         &fakeRegionLister{fields: regions},
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name:           "method not allowed",
			method:         "POST",
			path:           "/documents/" + id.String() + "/fields",
			lister:         &fakeRegionLister{},
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "invalid document id",
			method:         "GET",
			path:           "/documents/nope/fields",
			lister:         &fakeRegionLister{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown subresource",
			method:         "GET",
			path:           "/documents/" + id.String() + "/pages",
			lister:         &fakeRegionLister{},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "store failure",
			method:         "GET",
			path:           "/documents/" + id.String() + "/fields",
			lister:         &fakeRegionLister{err: errors.New("connection refused")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(DefaultConfig(), &fakeProcessor{}, tt.lister)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			server.fieldsHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var response FieldsResponse
				err := json.Unmarshal(w.Body.Bytes(), &response)
				require.NoError(t, err)

				assert.Equal(t, id.String(), response.DocumentID)
				assert.Equal(t, tt.expectedCount, response.Count)
				require.Len(t, response.Fields, tt.expectedCount)
				assert.Equal(t, label, response.Fields[0].Label)
			}
		})
	}
}

func TestServer_FieldsHandlerWithoutStore(t *testing.T) {
	server := NewServer(DefaultConfig(), &fakeProcessor{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents/"+uuid.NewString()+"/fields", nil)
	w := httptest.NewRecorder()

	server.fieldsHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_WriteErrorResponse(t *testing.T) {
	server := &Server{}

	tests := []struct {
		name       string
		detail     string
		statusCode int
	}{
		{
			name:       "bad request error",
			detail:     "document_id is required",
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "internal server error",
			detail:     "Something went wrong",
			statusCode: http.StatusInternalServerError,
		},
		{
			name:       "not found error",
			detail:     "document not found",
			statusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			server.writeErrorResponse(w, tt.detail, tt.statusCode)

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response ErrorResponse
			err := json.Unmarshal(w.Body.Bytes(), &response)
			require.NoError(t, err)

			assert.Equal(t, tt.detail, response.Detail)
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "invalid input",
			err:      fmt.Errorf("%w: document id \"x\"", worker.ErrInvalidInput),
			expected: http.StatusBadRequest,
		},
		{
			name:     "not found",
			err:      store.ErrNotFound,
			expected: http.StatusNotFound,
		},
		{
			name:     "already claimed",
			err:      fmt.Errorf("%w: status is processing", store.ErrAlreadyClaimed),
			expected: http.StatusConflict,
		},
		{
			name:     "anything else",
			err:      errors.New("PersistenceFailure: connection reset"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusForError(tt.err))
		})
	}
}

func TestServer_SetupRoutes(t *testing.T) {
	server := NewServer(DefaultConfig(), &fakeProcessor{}, &fakeRegionLister{})
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fieldlens_")
}

// Benchmark tests.
func BenchmarkServer_HealthHandler(b *testing.B) {
	server := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		server.healthHandler(w, req)
	}
}
