package service

import (
	"context"
	"fmt"
	"time"

	"iot-measurement-backend/internal/metrics"
	"iot-measurement-backend/internal/models"
	"iot-measurement-backend/internal/repository"
	pkglog "iot-measurement-backend/pkg/log"
)

// AuditRecorder persists audit entries and optionally publishes them.
// Failures are logged and counted, never returned.
type AuditRecorder struct {
	store     AuditStore
	publisher AuditPublisher
	metrics   *metrics.Metrics
	logger    pkglog.Logger
	now       func() time.Time
}

// NewAuditRecorder builds the sink. publisher and m may be nil.
func NewAuditRecorder(store AuditStore, publisher AuditPublisher, m *metrics.Metrics, logger pkglog.Logger) *AuditRecorder {
	return &AuditRecorder{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *AuditRecorder) Record(ctx context.Context, entry *models.AuditLog) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Str("action", entry.Action).Interface("panic", p).Msg("audit sink panicked")
		}
	}()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	// The primary operation may already be answering; the write must not be cut short with it.
	ctx = context.WithoutCancel(ctx)

	if r.metrics != nil {
		r.metrics.SecurityEvents.WithLabelValues(entry.Action, entry.Status).Inc()
	}

	if err := r.store.CreateAuditLog(ctx, entry); err != nil {
		if r.metrics != nil {
			r.metrics.AuditWriteFailures.Inc()
		}
		r.logger.Warn().Err(err).
			Str("action", entry.Action).
			Str("status", entry.Status).
			Msg("failed to write audit log")
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, entry); err != nil {
			r.logger.Debug().Err(err).Str("action", entry.Action).Msg("failed to publish audit event")
		}
	}
}

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200

	// MaxAuditPage bounds page so the row offset stays well inside int.
	MaxAuditPage = 100000
)

type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

type AuditQuery struct {
	Action  string
	ActorID *uint
	Status  string
	Page    int
	Limit   int
}

type AuditPage struct {
	Entries    []models.AuditLog `json:"entries"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int64             `json:"totalPages"`
}

// List returns one page of audit entries, newest first.
func (s *AuditService) List(ctx context.Context, q AuditQuery) (*AuditPage, error) {
	if q.Status != "" && q.Status != models.AuditStatusSuccess && q.Status != models.AuditStatusFailure {
		return nil, fieldError("status", "status must be success or failure")
	}
	if q.Page > MaxAuditPage {
		return nil, fieldError("page", fmt.Sprintf("page must be at most %d", MaxAuditPage))
	}
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit <= 0:
		q.Limit = defaultAuditPageSize
	case q.Limit > maxAuditPageSize:
		q.Limit = maxAuditPageSize
	}

	entries, total, err := s.store.ListAuditLogs(ctx, repository.AuditFilter{
		Action:  q.Action,
		ActorID: q.ActorID,
		Status:  q.Status,
		Offset:  (q.Page - 1) * q.Limit,
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}

	return &AuditPage{
		Entries:    entries,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: (total + int64(q.Limit) - 1) / int64(q.Limit),
	}, nil
}
