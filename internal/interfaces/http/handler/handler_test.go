package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	orchapp "github.com/ipaas/backend/internal/application/orchestration"
	"github.com/ipaas/backend/internal/domain/classification"
	"github.com/ipaas/backend/internal/domain/orchestration"
	"github.com/ipaas/backend/internal/domain/shared"
	"github.com/ipaas/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memoryRecordRepository is an in-memory CorrelationRecordRepository for
// handler tests
type memoryRecordRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*orchestration.CorrelationRecord
}

func newMemoryRecordRepository() *memoryRecordRepository {
	return &memoryRecordRepository{records: make(map[uuid.UUID]*orchestration.CorrelationRecord)}
}

func (r *memoryRecordRepository) Save(ctx context.Context, record *orchestration.CorrelationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.SourceSystem == record.SourceSystem && existing.SourceRef == record.SourceRef {
			return shared.ErrAlreadyExists
		}
	}
	r.records[record.ID] = record
	return nil
}

func (r *memoryRecordRepository) SaveWithLock(ctx context.Context, record *orchestration.CorrelationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; !ok {
		return shared.ErrNotFound
	}
	record.IncrementVersion()
	r.records[record.ID] = record
	return nil
}

func (r *memoryRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*orchestration.CorrelationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return record, nil
}

func (r *memoryRecordRepository) FindBySourceRef(ctx context.Context, sourceSystem, sourceRef string) (*orchestration.CorrelationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.SourceSystem == sourceSystem && record.SourceRef == sourceRef {
			return record, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRecordRepository) List(ctx context.Context, filter shared.Filter) (shared.Paginated[*orchestration.CorrelationRecord], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*orchestration.CorrelationRecord, 0, len(r.records))
	for _, record := range r.records {
		items = append(items, record)
	}
	return shared.NewPaginated(items, int64(len(items)), 1, 20), nil
}

// noopDeliveryClient accepts every delivery
type noopDeliveryClient struct{}

func (noopDeliveryClient) Deliver(ctx context.Context, req orchapp.DeliveryRequest) error {
	return nil
}

func setupTestRouter(t *testing.T) (*gin.Engine, *memoryRecordRepository) {
	t.Helper()

	repo := newMemoryRecordRepository()
	orchestrator := orchapp.NewFlowOrchestrator(
		repo,
		classification.NewClassifier(),
		noopDeliveryClient{},
		zap.NewNop(),
		orchapp.WithSynchronousDispatch(),
	)

	engine := gin.New()
	webhookHandler := NewWebhookHandler(orchestrator)
	callbackHandler := NewCallbackHandler(orchestrator)
	ticketHandler := NewTicketHandler(orchestrator)
	engine.POST("/webhook/:source", webhookHandler.Ingest)
	engine.POST("/callback/:source", callbackHandler.Apply)
	engine.GET("/api/v1/tickets", ticketHandler.List)
	engine.GET("/api/v1/tickets/:id", ticketHandler.Get)
	return engine, repo
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWebhookIngest(t *testing.T) {
	t.Run("accepts a new event and starts the flow", func(t *testing.T) {
		engine, repo := setupTestRouter(t)

		w := doJSON(t, engine, http.MethodPost, "/webhook/servicedesk", gin.H{
			"id":                "TICKET-1001",
			"category":          "incident",
			"short_description": "conveyor motor failure",
			"priority":          "critical",
		})

		require.Equal(t, http.StatusAccepted, w.Code)
		resp := decodeResponse(t, w)
		require.True(t, resp.Success)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "CASE_TO_WORKORDER", data["pipeline"])

		id, err := uuid.Parse(data["correlation_id"].(string))
		require.NoError(t, err)
		record, err := repo.FindByID(context.Background(), id)
		require.NoError(t, err)
		// Synchronous dispatch has already moved the flow to its first hop
		assert.Equal(t, orchestration.StatusPendingMaterialCheck, record.Status)
	})

	t.Run("redelivery is acknowledged as duplicate", func(t *testing.T) {
		engine, _ := setupTestRouter(t)

		body := gin.H{"id": "TICKET-1002", "category": "incident"}
		first := doJSON(t, engine, http.MethodPost, "/webhook/servicedesk", body)
		require.Equal(t, http.StatusAccepted, first.Code)

		second := doJSON(t, engine, http.MethodPost, "/webhook/servicedesk", body)
		require.Equal(t, http.StatusAccepted, second.Code)
		resp := decodeResponse(t, second)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, true, data["duplicate"])
	})

	t.Run("missing event id is rejected", func(t *testing.T) {
		engine, _ := setupTestRouter(t)

		w := doJSON(t, engine, http.MethodPost, "/webhook/servicedesk", gin.H{"category": "incident"})

		require.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
	})
}

func TestCallbackApply(t *testing.T) {
	ingest := func(t *testing.T, engine *gin.Engine) uuid.UUID {
		w := doJSON(t, engine, http.MethodPost, "/webhook/servicedesk", gin.H{
			"id":       "TICKET-2001",
			"category": "incident",
		})
		require.Equal(t, http.StatusAccepted, w.Code)
		data := decodeResponse(t, w).Data.(map[string]interface{})
		id, err := uuid.Parse(data["correlation_id"].(string))
		require.NoError(t, err)
		return id
	}

	t.Run("advances the flow and runs automatic follow-ups", func(t *testing.T) {
		engine, repo := setupTestRouter(t)
		id := ingest(t, engine)

		w := doJSON(t, engine, http.MethodPost, "/callback/workorder", gin.H{
			"correlation_id": id.String(),
			"new_status":     "MATERIALS_AVAILABLE",
		})

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "READY_TO_PROCEED", data["status"])

		record, err := repo.FindByID(context.Background(), id)
		require.NoError(t, err)
		last := record.History[len(record.History)-1]
		assert.Equal(t, orchestration.StatusReadyToProceed, last.ToStatus)
		assert.Equal(t, "orchestrator", last.Actor)
	})

	t.Run("out-of-order callback is rejected with conflict", func(t *testing.T) {
		engine, _ := setupTestRouter(t)
		id := ingest(t, engine)

		w := doJSON(t, engine, http.MethodPost, "/callback/workorder", gin.H{
			"correlation_id": id.String(),
			"new_status":     "PURCHASE_APPROVED",
		})

		require.Equal(t, http.StatusConflict, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)
	})

	t.Run("unknown correlation ID reports not found", func(t *testing.T) {
		engine, _ := setupTestRouter(t)

		w := doJSON(t, engine, http.MethodPost, "/callback/workorder", gin.H{
			"correlation_id": uuid.New().String(),
			"new_status":     "MATERIALS_AVAILABLE",
		})

		require.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("malformed correlation ID is rejected", func(t *testing.T) {
		engine, _ := setupTestRouter(t)

		w := doJSON(t, engine, http.MethodPost, "/callback/workorder", gin.H{
			"correlation_id": "not-a-uuid",
			"new_status":     "MATERIALS_AVAILABLE",
		})

		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTicketEndpoints(t *testing.T) {
	t.Run("returns a ticket with history", func(t *testing.T) {
		engine, _ := setupTestRouter(t)
		w := doJSON(t, engine, http.MethodPost, "/webhook/servicedesk", gin.H{
			"id":       "TICKET-3001",
			"category": "incident",
		})
		data := decodeResponse(t, w).Data.(map[string]interface{})
		id := data["correlation_id"].(string)

		get := doJSON(t, engine, http.MethodGet, "/api/v1/tickets/"+id, nil)
		require.Equal(t, http.StatusOK, get.Code)
		ticket := decodeResponse(t, get).Data.(map[string]interface{})
		assert.Equal(t, "CASE_TO_WORKORDER", ticket["pipeline"])
		history := ticket["history"].([]interface{})
		require.Len(t, history, 1)
	})

	t.Run("invalid ID format is rejected", func(t *testing.T) {
		engine, _ := setupTestRouter(t)

		w := doJSON(t, engine, http.MethodGet, "/api/v1/tickets/abc", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown ticket reports not found", func(t *testing.T) {
		engine, _ := setupTestRouter(t)

		w := doJSON(t, engine, http.MethodGet, "/api/v1/tickets/"+uuid.New().String(), nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("lists tickets with meta", func(t *testing.T) {
		engine, _ := setupTestRouter(t)
		doJSON(t, engine, http.MethodPost, "/webhook/servicedesk", gin.H{
			"id":       "TICKET-3002",
			"category": "incident",
		})

		w := doJSON(t, engine, http.MethodGet, "/api/v1/tickets", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(1), resp.Meta.Total)
	})
}
