// Package worker provides async recommendation processing.
//
// The worker consumes reward analyses from the event bus, runs the
// action cascade over them, persists the outcome, and publishes issued
// recommendations for downstream consumers.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/action"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker processes analyzed transactions asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	selector *action.Selector

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, selector *action.Selector) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		selector: selector,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the analyzed-transaction topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionAnalyzed, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicTransactionAnalyzed,
	)

	return nil
}

// AnalyzedMessage is the message payload carrying a reward analysis
// through the pipeline.
type AnalyzedMessage struct {
	UserID         string                 `json:"userId"`
	TraceID        string                 `json:"traceId,omitempty"`
	Analysis       *domain.RewardAnalysis `json:"analysis"`
	OwnedCardIDs   []string               `json:"ownedCardIds,omitempty"`
	AnnualSpending map[string]float64     `json:"annualSpending,omitempty"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var analyzed AnalyzedMessage
	if err := json.Unmarshal(msg.Payload, &analyzed); err != nil {
		slog.Error("failed to parse analyzed message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if analyzed.Analysis == nil {
		slog.Error("analyzed message missing analysis",
			"message_id", msg.ID,
		)
		return nil
	}

	traceID := analyzed.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	// Run the action cascade
	rec := w.selector.Select(&action.Input{
		Analysis:       analyzed.Analysis,
		OwnedCardIDs:   analyzed.OwnedCardIDs,
		AnnualSpending: analyzed.AnnualSpending,
	})
	rec.ID = uuid.New().String()
	rec.UserID = analyzed.UserID
	rec.CreatedAt = time.Now().UTC()

	// Persist for the audit trail
	if w.repo != nil {
		if err := w.repo.SaveRecommendation(ctx, rec); err != nil {
			slog.Error("failed to save recommendation",
				"user_id", analyzed.UserID,
				"trace_id", traceID,
				"error", err,
			)
		}
	}

	// Publish for downstream consumers
	payload, _ := json.Marshal(rec)
	if err := w.bus.Publish(ctx, domain.TopicRecommendationIssued, payload); err != nil {
		slog.Error("failed to publish recommendation",
			"user_id", analyzed.UserID,
			"trace_id", traceID,
			"error", err,
		)
	}

	slog.Info("recommendation processed",
		"user_id", analyzed.UserID,
		"trace_id", traceID,
		"action", rec.Action,
		"rule", rec.Rule(),
		"confidence", rec.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
