package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/sentra-ai/sentra/internal/suppress"
)

// SuppressionRecorder adapts the emitter to the suppression filter's sink
// contract, turning LOG-actioned detections into audit events.
type SuppressionRecorder struct {
	emitter *Emitter
}

func NewSuppressionRecorder(emitter *Emitter) *SuppressionRecorder {
	return &SuppressionRecorder{emitter: emitter}
}

func (r *SuppressionRecorder) Audit(ctx context.Context, rec suppress.AuditRecord) {
	if r == nil || r.emitter == nil {
		return
	}
	r.emitter.Emit(NewSuppressionEvent(uuid.NewString(), SuppressionLog{
		RuleID:   rec.RuleID,
		Category: rec.Category,
		Severity: rec.Severity.String(),
		Reason:   rec.Reason,
	}))
}
