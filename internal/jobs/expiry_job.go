package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"decision-service/internal/events"
	"decision-service/internal/repository"
)

const expiryBatchSize = 100

// ExpiryJob periodically finds pending requests whose current step deadline
// has passed and publishes an expiry notification for each. The request
// itself is never mutated: expiry is a property of the clock, and the
// request stays actionable until someone approves, rejects or cancels it.
type ExpiryJob struct {
	repo      repository.ApprovalRepositoryInterface
	publisher *events.Publisher
	logger    *logrus.Entry
	interval  time.Duration
	stopCh    chan struct{}
}

// NewExpiryJob creates a new expiry notification job
func NewExpiryJob(repo repository.ApprovalRepositoryInterface, publisher *events.Publisher, logger *logrus.Logger) *ExpiryJob {
	return &ExpiryJob{
		repo:      repo,
		publisher: publisher,
		logger:    logger.WithField("component", "expiry-job"),
		interval:  5 * time.Minute,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the expiry job
func (j *ExpiryJob) Start(ctx context.Context) {
	j.logger.Info("Expiry job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.runExpiryCheck(ctx)

	for {
		select {
		case <-ticker.C:
			j.runExpiryCheck(ctx)
		case <-j.stopCh:
			j.logger.Info("Expiry job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Expiry job context cancelled")
			return
		}
	}
}

// Stop signals the job to stop
func (j *ExpiryJob) Stop() {
	close(j.stopCh)
}

// runExpiryCheck finds newly expired pending requests and notifies once each
func (j *ExpiryJob) runExpiryCheck(ctx context.Context) {
	now := time.Now()

	requests, err := j.repo.FindExpiredPending(ctx, now, expiryBatchSize)
	if err != nil {
		j.logger.WithError(err).Error("Failed to find expired requests")
		return
	}
	if len(requests) == 0 {
		return
	}

	j.logger.WithField("count", len(requests)).Info("Found expired pending requests")

	for i := range requests {
		request := &requests[i]

		// The mark is guarded on the notification stamp, so only one
		// instance publishes even with multiple pods running the job.
		marked, err := j.repo.MarkExpiryNotified(ctx, request.ID, now)
		if err != nil {
			j.logger.WithError(err).WithField("request_id", request.ID).Error("Failed to mark request expiry")
			continue
		}
		if !marked {
			continue
		}

		if j.publisher != nil {
			j.publisher.PublishExpired(request)
		}
		j.logger.WithField("request_id", request.ID).Info("Published expiry notification")
	}
}
