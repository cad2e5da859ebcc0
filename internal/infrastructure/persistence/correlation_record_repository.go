package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/orchestration"
	"github.com/ipaas/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// correlationRecordModel is the persistence shape of a correlation record.
// Payload and History are stored as JSON text so the schema works on both
// PostgreSQL and SQLite.
type correlationRecordModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	SourceSystem string    `gorm:"size:64;not null;uniqueIndex:idx_source_ref"`
	SourceRef    string    `gorm:"size:255;not null;uniqueIndex:idx_source_ref"`
	Pipeline     string    `gorm:"size:32;not null;index"`
	Urgency      string    `gorm:"size:16;not null"`
	Status       string    `gorm:"size:32;not null;index"`
	Subject      string    `gorm:"size:512"`
	Payload      []byte
	History      []byte
	Version      int       `gorm:"not null;default:1"`
	CreatedAt    time.Time `gorm:"index"`
	UpdatedAt    time.Time
}

// TableName sets the table name for correlation records
func (correlationRecordModel) TableName() string {
	return "correlation_records"
}

func toCorrelationRecordModel(record *orchestration.CorrelationRecord) (*correlationRecordModel, error) {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(record.History)
	if err != nil {
		return nil, err
	}
	return &correlationRecordModel{
		ID:           record.ID,
		SourceSystem: record.SourceSystem,
		SourceRef:    record.SourceRef,
		Pipeline:     string(record.Pipeline),
		Urgency:      string(record.Urgency),
		Status:       string(record.Status),
		Subject:      record.Subject,
		Payload:      payload,
		History:      history,
		Version:      record.Version,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}, nil
}

func (m *correlationRecordModel) toDomain() (*orchestration.CorrelationRecord, error) {
	var payload map[string]interface{}
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			return nil, err
		}
	}
	history := make([]orchestration.TransitionEntry, 0)
	if len(m.History) > 0 {
		if err := json.Unmarshal(m.History, &history); err != nil {
			return nil, err
		}
	}
	record := &orchestration.CorrelationRecord{
		SourceSystem: m.SourceSystem,
		SourceRef:    m.SourceRef,
		Pipeline:     orchestration.PipelineKind(m.Pipeline),
		Urgency:      orchestration.Urgency(m.Urgency),
		Status:       orchestration.Status(m.Status),
		Subject:      m.Subject,
		Payload:      payload,
		History:      history,
	}
	record.ID = m.ID
	record.Version = m.Version
	record.CreatedAt = m.CreatedAt
	record.UpdatedAt = m.UpdatedAt
	return record, nil
}

// GormCorrelationRecordRepository implements CorrelationRecordRepository using GORM
type GormCorrelationRecordRepository struct {
	db *gorm.DB
}

// NewGormCorrelationRecordRepository creates a new GormCorrelationRecordRepository
func NewGormCorrelationRecordRepository(db *gorm.DB) *GormCorrelationRecordRepository {
	return &GormCorrelationRecordRepository{db: db}
}

// Save persists a new correlation record
func (r *GormCorrelationRecordRepository) Save(ctx context.Context, record *orchestration.CorrelationRecord) error {
	model, err := toCorrelationRecordModel(record)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SaveWithLock updates a record using optimistic locking on Version
func (r *GormCorrelationRecordRepository) SaveWithLock(ctx context.Context, record *orchestration.CorrelationRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var currentVersion int
		err := tx.Model(&correlationRecordModel{}).
			Where("id = ?", record.ID).
			Select("version").
			Scan(&currentVersion).Error
		if err != nil {
			return err
		}
		if currentVersion == 0 {
			return shared.ErrNotFound
		}
		if currentVersion != record.Version {
			return shared.ErrConcurrencyConflict
		}

		record.IncrementVersion()
		record.UpdatedAt = time.Now()

		model, err := toCorrelationRecordModel(record)
		if err != nil {
			return err
		}

		result := tx.Model(&correlationRecordModel{}).
			Where("id = ? AND version = ?", record.ID, currentVersion).
			Updates(map[string]interface{}{
				"urgency":    model.Urgency,
				"status":     model.Status,
				"subject":    model.Subject,
				"payload":    model.Payload,
				"history":    model.History,
				"version":    model.Version,
				"updated_at": model.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		return nil
	})
}

// FindByID retrieves a record by its ID
func (r *GormCorrelationRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*orchestration.CorrelationRecord, error) {
	var model correlationRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.toDomain()
}

// FindBySourceRef retrieves a record by its source system and reference
func (r *GormCorrelationRecordRepository) FindBySourceRef(ctx context.Context, sourceSystem, sourceRef string) (*orchestration.CorrelationRecord, error) {
	var model correlationRecordModel
	if err := r.db.WithContext(ctx).
		Where("source_system = ? AND source_ref = ?", sourceSystem, sourceRef).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.toDomain()
}

// List retrieves records matching the filter, newest first
func (r *GormCorrelationRecordRepository) List(ctx context.Context, filter shared.Filter) (shared.Paginated[*orchestration.CorrelationRecord], error) {
	var empty shared.Paginated[*orchestration.CorrelationRecord]

	query := r.db.WithContext(ctx).Model(&correlationRecordModel{})
	if pipeline, ok := filter.Filters["pipeline"]; ok {
		query = query.Where("pipeline = ?", pipeline)
	}
	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}
	if sourceSystem, ok := filter.Filters["source_system"]; ok {
		query = query.Where("source_system = ?", sourceSystem)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return empty, err
	}

	var models []correlationRecordModel
	if err := applyFilter(query, filter).Find(&models).Error; err != nil {
		return empty, err
	}

	records := make([]*orchestration.CorrelationRecord, 0, len(models))
	for i := range models {
		record, err := models[i].toDomain()
		if err != nil {
			return empty, err
		}
		records = append(records, record)
	}
	return shared.NewPaginated(records, total, filter.Page, filter.PageSize), nil
}

// applyFilter applies ordering and pagination to a query
func applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	orderDir := strings.ToLower(filter.OrderDir)
	if orderDir != "asc" {
		orderDir = "desc"
	}
	query = query.Order(orderBy + " " + orderDir)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	return query.Offset((page - 1) * pageSize).Limit(pageSize)
}

// isUniqueViolation detects unique constraint errors across drivers
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
