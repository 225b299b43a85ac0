package audit

import (
	"context"

	"github.com/jmbarlow/roomkit/internal/infrastructure/logging"
)

// Recorder adapts the repository for callers that fire events without
// caring about the outcome. Failures are logged, never returned; losing
// an audit row must not fail a token operation.
type Recorder struct {
	repo   Repository
	logger *logging.Logger
}

// NewRecorder creates a best-effort event recorder.
func NewRecorder(repo Repository, logger *logging.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// RecordEvent writes a token lifecycle event to the audit trail.
func (r *Recorder) RecordEvent(ctx context.Context, action, entityID, userID, details string) {
	log := &AuditLog{
		Action:     action,
		EntityType: "oauth",
		EntityID:   entityID,
		UserID:     userID,
		Source:     "api",
	}
	if details != "" {
		log.Details = map[string]any{"info": details}
	}
	if err := r.repo.Create(ctx, log); err != nil {
		r.logger.Error("writing audit log", "action", action, "error", err)
	}
}
