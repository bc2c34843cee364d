package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate reports a second entry for a request ID already recorded.
	ErrDuplicate = errors.New("store: duplicate request id")
)

// AuditEntry records one service call. It never carries images, embeddings
// or payloads.
type AuditEntry struct {
	ID          uint      `gorm:"primaryKey"`
	RequestID   string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Operation   string    `gorm:"column:operation;size:32;index"`
	OperationID int32     `gorm:"column:operation_id"`
	Success     bool      `gorm:"column:success"`
	Code        int32     `gorm:"column:code"`
	LatencyMS   int64     `gorm:"column:latency_ms"`
	Subject     string    `gorm:"column:subject;size:128"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// AuditLog persists audit entries.
type AuditLog interface {
	Record(ctx context.Context, entry *AuditEntry) error
	Find(ctx context.Context, requestID string) (*AuditEntry, error)
}

// GormAuditLog stores entries through gorm, normally backed by postgres.
type GormAuditLog struct {
	db *gorm.DB
}

func NewGormAuditLog(db *gorm.DB) *GormAuditLog {
	return &GormAuditLog{db: db}
}

// AutoMigrate ensures the schema is available.
func (r *GormAuditLog) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&AuditEntry{})
}

func (r *GormAuditLog) Record(ctx context.Context, entry *AuditEntry) error {
	err := withRetry(ctx, func() error {
		return r.db.WithContext(ctx).Create(entry).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (r *GormAuditLog) Find(ctx context.Context, requestID string) (*AuditEntry, error) {
	var entry AuditEntry
	err := r.db.WithContext(ctx).First(&entry, "request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MemoryAuditLog keeps entries in process memory. It backs the service when
// no database is configured.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries map[string]AuditEntry
	nextID  uint
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{entries: make(map[string]AuditEntry)}
}

func (m *MemoryAuditLog) Record(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.RequestID]; ok {
		return ErrDuplicate
	}
	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.entries[entry.RequestID] = *entry
	return nil
}

func (m *MemoryAuditLog) Find(_ context.Context, requestID string) (*AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Len returns the number of recorded entries.
func (m *MemoryAuditLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
