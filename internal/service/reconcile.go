package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"clearance/internal/middleware"
	"clearance/internal/models"
	"clearance/internal/observability"
)

// FixStatesReport summarises one reconciliation sweep.
type FixStatesReport struct {
	Found     int    `json:"found"`
	Fixed     int    `json:"fixed"`
	DryRun    bool   `json:"dry_run"`
	RequestID []uint `json:"request_ids,omitempty"`
}

// ReconcileService repairs a historical corruption mode: a request left
// is_active=true after its collection archived and its version published (a
// torn write between the archive check and the per-request update).
type ReconcileService struct {
	db *gorm.DB
}

// NewReconcileService returns a new ReconcileService.
func NewReconcileService(db *gorm.DB) *ReconcileService {
	return &ReconcileService{db: db}
}

// FixStates finds the inconsistent requests and, when performFix is set,
// forces them inactive. The sweep is idempotent: a second fixing run finds
// nothing left.
func (s *ReconcileService) FixStates(ctx context.Context, performFix bool) (*FixStatesReport, error) {
	span, ctx := observability.NewSpan(ctx, "reconcile.fix_states")
	defer span.End()
	span.AddAttributes(attribute.Bool("dry_run", !performFix))

	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.ModerationRequest{}).
		Joins("JOIN moderation_collections ON moderation_collections.id = moderation_requests.collection_id").
		Joins("JOIN versions ON versions.id = moderation_requests.version_id").
		Where("moderation_requests.is_active = ?", true).
		Where("moderation_collections.status = ?", models.StatusArchived).
		Where("versions.state = ?", models.VersionPublished).
		Order("moderation_requests.id ASC").
		Pluck("moderation_requests.id", &ids).Error
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	report := &FixStatesReport{
		Found:     len(ids),
		DryRun:    !performFix,
		RequestID: ids,
	}

	if !performFix || len(ids) == 0 {
		middleware.Logger.InfoContext(ctx, "state reconciliation sweep",
			slog.Int("found", report.Found),
			slog.Bool("dry_run", report.DryRun),
		)
		return report, nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.ModerationRequest{}).
		Where("id IN ?", ids).
		Update("is_active", false)
	if result.Error != nil {
		span.SetError(result.Error)
		return nil, result.Error
	}
	report.Fixed = int(result.RowsAffected)

	middleware.Logger.InfoContext(ctx, "state reconciliation sweep",
		slog.Int("found", report.Found),
		slog.Int("fixed", report.Fixed),
		slog.Bool("dry_run", false),
	)
	return report, nil
}
