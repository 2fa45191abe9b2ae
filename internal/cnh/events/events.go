// Package events announces finished extraction jobs on the message broker.
package events

import (
	"context"
	"time"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/pkg/logger"
	"github.com/cnhflow/cnhflow-backend/pkg/messaging"
)

const publishTimeout = 5 * time.Second

// Publisher is satisfied by *messaging.Publisher
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Notifier turns job outcomes into broker events. A nil Notifier, or one
// without a publisher, does nothing, so the broker stays optional.
type Notifier struct {
	pub Publisher
	log *logger.Logger
}

// NewNotifier creates a notifier
func NewNotifier(pub Publisher, log *logger.Logger) *Notifier {
	return &Notifier{pub: pub, log: log.WithComponent("events")}
}

// Completed publishes cnh.extraction.completed
func (n *Notifier) Completed(ctx context.Context, jobID, fingerprint string, res *domain.ExtractionResult) {
	if n == nil || n.pub == nil {
		return
	}

	var found, missing []string
	for _, v := range res.Fields {
		if v.Found {
			found = append(found, string(v.Field))
		} else {
			missing = append(missing, string(v.Field))
		}
	}

	n.publish(ctx, messaging.EventExtractionCompleted, jobID, messaging.ExtractionCompletedEvent{
		JobID:                jobID,
		DocumentFingerprint:  fingerprint,
		Producer:             res.Source,
		FieldsFound:          found,
		FieldsMissing:        missing,
		Warnings:             len(res.Warnings),
		ProcessingDurationMs: res.ProcessingTimeMs,
	})
}

// Failed publishes cnh.extraction.failed
func (n *Notifier) Failed(ctx context.Context, jobID, fingerprint string, err error) {
	if n == nil || n.pub == nil {
		return
	}

	n.publish(ctx, messaging.EventExtractionFailed, jobID, messaging.ExtractionFailedEvent{
		JobID:               jobID,
		DocumentFingerprint: fingerprint,
		ErrorCode:           domain.Code(err),
		Message:             err.Error(),
	})
}

func (n *Notifier) publish(ctx context.Context, eventType, jobID string, data interface{}) {
	ctx, cancel := context.WithTimeout(messaging.WithCorrelationID(ctx, jobID), publishTimeout)
	defer cancel()

	if err := n.pub.Publish(ctx, eventType, data); err != nil {
		n.log.Warn().Err(err).Str("job_id", jobID).Str("event_type", eventType).Msg("failed to publish event")
	}
}
