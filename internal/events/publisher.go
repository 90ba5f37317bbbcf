package events

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"decision-service/internal/models"
)

// Event subjects published by the decision service
const (
	SubjectRequested = "approval.requested"
	SubjectApproved  = "approval.approved"
	SubjectRejected  = "approval.rejected"
	SubjectReturned  = "approval.returned"
	SubjectCancelled = "approval.cancelled"
	SubjectDelegated = "approval.delegated"
	SubjectExpired   = "approval.expired"
)

// ApprovalEvent is the payload published on every approval.* subject
type ApprovalEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	TenantID    string    `json:"tenant_id"`
	RequestID   string    `json:"request_id"`
	FlowID      string    `json:"flow_id"`
	RequestType string    `json:"request_type"`
	BusinessID  string    `json:"business_id"`
	Status      string    `json:"status"`
	CurrentStep *int      `json:"current_step,omitempty"`
	ActorID     string    `json:"actor_id,omitempty"`
	DelegatedTo string    `json:"delegated_to,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	ExpiresAt   string    `json:"expires_at,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher publishes approval lifecycle events to NATS. A publisher built
// without a NATS URL degrades to a no-op so decisions keep working when the
// broker is down.
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewPublisher connects to NATS using NATS_URL. When the variable is unset
// event publishing is disabled rather than failing startup.
func NewPublisher(logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	entry := logger.WithField("component", "events.publisher")

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		entry.Warn("NATS_URL not set, event publishing disabled")
		return &Publisher{conn: nil, logger: entry}, nil
	}

	conn, err := nats.Connect(natsURL,
		nats.Name("decision-service-publisher"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	entry.Info("NATS events publisher initialized for decision-service")
	return &Publisher{conn: conn, logger: entry}, nil
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// PublishRequested publishes an approval.requested event
func (p *Publisher) PublishRequested(request *models.ApprovalRequest) {
	event := p.buildEvent(SubjectRequested, request)
	event.ActorID = request.RequestedBy.String()
	p.publish(SubjectRequested, event)
}

// PublishTransition publishes the event matching a state machine transition
func (p *Publisher) PublishTransition(request *models.ApprovalRequest, entry *models.ApprovalHistory) {
	subject, ok := subjectForAction(entry.Action)
	if !ok {
		return
	}
	event := p.buildEvent(subject, request)
	event.ActorID = entry.ActedBy.String()
	event.Comment = entry.Comment
	if entry.DelegatedTo != nil {
		event.DelegatedTo = entry.DelegatedTo.String()
	}
	p.publish(subject, event)
}

// PublishExpired publishes an approval.expired event. Expiry is a
// notification only; the request stays pending.
func (p *Publisher) PublishExpired(request *models.ApprovalRequest) {
	event := p.buildEvent(SubjectExpired, request)
	p.publish(SubjectExpired, event)
}

func subjectForAction(action string) (string, bool) {
	switch action {
	case models.ActionApprove:
		return SubjectApproved, true
	case models.ActionReject:
		return SubjectRejected, true
	case models.ActionReturn:
		return SubjectReturned, true
	case models.ActionCancel:
		return SubjectCancelled, true
	case models.ActionDelegate:
		return SubjectDelegated, true
	default:
		return "", false
	}
}

func (p *Publisher) buildEvent(eventType string, request *models.ApprovalRequest) *ApprovalEvent {
	event := &ApprovalEvent{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		TenantID:    request.TenantID,
		RequestID:   request.ID.String(),
		FlowID:      request.FlowID.String(),
		RequestType: request.RequestType,
		BusinessID:  request.RequestID.String(),
		Status:      request.Status,
		CurrentStep: request.CurrentStep,
		Priority:    request.Priority,
		Timestamp:   time.Now().UTC(),
	}
	if request.ExpiresAt != nil {
		event.ExpiresAt = request.ExpiresAt.Format(time.RFC3339)
	}
	return event
}

// publish marshals and sends an event, logging failures instead of
// propagating them; a lost event never fails the transition that caused it.
func (p *Publisher) publish(subject string, event *ApprovalEvent) {
	if p.conn == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).Error("Failed to marshal approval event")
		return
	}

	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.WithFields(logrus.Fields{
			"subject":   subject,
			"requestId": event.RequestID,
			"tenantId":  event.TenantID,
		}).WithError(err).Error("Failed to publish approval event")
		return
	}

	p.logger.WithFields(logrus.Fields{
		"subject":   subject,
		"requestId": event.RequestID,
		"tenantId":  event.TenantID,
	}).Info("Approval event published")
}
