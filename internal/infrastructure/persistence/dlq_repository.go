package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/orchestration"
	"github.com/ipaas/backend/internal/domain/resilience"
	"github.com/ipaas/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// dlqEntryModel is the persistence shape of a dead letter entry
type dlqEntryModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index"`
	Target        string    `gorm:"size:64;not null;index"`
	Method        string    `gorm:"size:8;not null"`
	URL           string    `gorm:"size:1024;not null"`
	Payload       []byte
	LastError     string `gorm:"size:2048"`
	RetryCount    int    `gorm:"not null;default:0"`
	Status        string `gorm:"size:32;not null;index"`
	ResumeStatus  string `gorm:"size:32"`
	FailedAt      time.Time
	Version       int       `gorm:"not null;default:1"`
	CreatedAt     time.Time `gorm:"index"`
	UpdatedAt     time.Time
}

// TableName sets the table name for dead letter entries
func (dlqEntryModel) TableName() string {
	return "dlq_entries"
}

func toDLQEntryModel(entry *resilience.DLQEntry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:            entry.ID,
		CorrelationID: entry.CorrelationID,
		Target:        entry.Target,
		Method:        entry.Method,
		URL:           entry.URL,
		Payload:       entry.Payload,
		LastError:     entry.LastError,
		RetryCount:    entry.RetryCount,
		Status:        string(entry.Status),
		ResumeStatus:  string(entry.ResumeStatus),
		FailedAt:      entry.FailedAt,
		Version:       entry.Version,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
	}
}

func (m *dlqEntryModel) toDomain() *resilience.DLQEntry {
	entry := &resilience.DLQEntry{
		CorrelationID: m.CorrelationID,
		Target:        m.Target,
		Method:        m.Method,
		URL:           m.URL,
		Payload:       m.Payload,
		LastError:     m.LastError,
		RetryCount:    m.RetryCount,
		Status:        resilience.DLQStatus(m.Status),
		ResumeStatus:  orchestration.Status(m.ResumeStatus),
		FailedAt:      m.FailedAt,
	}
	entry.ID = m.ID
	entry.Version = m.Version
	entry.CreatedAt = m.CreatedAt
	entry.UpdatedAt = m.UpdatedAt
	return entry
}

// GormDLQRepository implements DLQRepository using GORM
type GormDLQRepository struct {
	db *gorm.DB
}

// NewGormDLQRepository creates a new GormDLQRepository
func NewGormDLQRepository(db *gorm.DB) *GormDLQRepository {
	return &GormDLQRepository{db: db}
}

// Save persists a new dead letter entry
func (r *GormDLQRepository) Save(ctx context.Context, entry *resilience.DLQEntry) error {
	return r.db.WithContext(ctx).Create(toDLQEntryModel(entry)).Error
}

// Update persists changes to an existing entry
func (r *GormDLQRepository) Update(ctx context.Context, entry *resilience.DLQEntry) error {
	result := r.db.WithContext(ctx).
		Model(&dlqEntryModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"last_error":  entry.LastError,
			"retry_count": entry.RetryCount,
			"status":      string(entry.Status),
			"updated_at":  entry.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID retrieves an entry by its ID
func (r *GormDLQRepository) FindByID(ctx context.Context, id uuid.UUID) (*resilience.DLQEntry, error) {
	var model dlqEntryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.toDomain(), nil
}

// List retrieves entries matching the filter, newest first
func (r *GormDLQRepository) List(ctx context.Context, filter shared.Filter) (shared.Paginated[*resilience.DLQEntry], error) {
	var empty shared.Paginated[*resilience.DLQEntry]

	query := r.db.WithContext(ctx).Model(&dlqEntryModel{})
	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}
	if target, ok := filter.Filters["target"]; ok {
		query = query.Where("target = ?", target)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return empty, err
	}

	var models []dlqEntryModel
	if err := applyFilter(query, filter).Find(&models).Error; err != nil {
		return empty, err
	}

	entries := make([]*resilience.DLQEntry, 0, len(models))
	for i := range models {
		entries = append(entries, models[i].toDomain())
	}
	return shared.NewPaginated(entries, total, filter.Page, filter.PageSize), nil
}

// CountByStatus returns the number of entries in each review state
func (r *GormDLQRepository) CountByStatus(ctx context.Context) (map[resilience.DLQStatus]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&dlqEntryModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[resilience.DLQStatus]int64, len(rows))
	for _, row := range rows {
		counts[resilience.DLQStatus(row.Status)] = row.Count
	}
	return counts, nil
}
