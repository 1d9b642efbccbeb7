// Package notification pushes ETA-drift alerts to a user's browser
// subscriptions after a scrape cycle moved their outlook.
package notification

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"queuetrack-backend/internal/report"
	"queuetrack-backend/internal/store"
	"queuetrack-backend/internal/trend"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages the workers that build and send drift alerts.
type WorkerPool struct {
	size      int
	jobs      chan int64 // user ids
	store     store.Store
	projector trend.Projector
	// threshold is the minimum |1-day ETA drift| that triggers an alert.
	threshold int
	webpush   *webpush.Options
	sender    Sender
	log       *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, st store.Store, projector trend.Projector, thresholdDays int, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	return &WorkerPool{
		size:      size,
		jobs:      make(chan int64, size),
		store:     st,
		projector: projector,
		threshold: thresholdDays,
		webpush:   webpushOptions,
		sender:    &WebPushSender{},
		log:       log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// Dispatch queues a user for drift evaluation.
func (wp *WorkerPool) Dispatch(userID int64) {
	wp.jobs <- userID
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case userID := <-wp.jobs:
			wp.notifyUser(ctx, userID)
		case <-ctx.Done():
			wp.log.Debug("notification worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// notifyUser rebuilds the user's report and pushes a summary of every entry
// whose ETA drifted at least the threshold since yesterday, or slipped
// across the user's goal date.
func (wp *WorkerPool) notifyUser(ctx context.Context, userID int64) {
	subs, err := wp.store.SubscriptionsForUser(ctx, userID)
	if err != nil {
		wp.log.Error("failed to load subscriptions", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	rep, err := wp.buildReport(ctx, userID)
	if err != nil {
		wp.log.Error("failed to build report for alert", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	var lines []string
	for _, e := range rep.Entries {
		d := e.Projection.ETADrift1d
		if d == nil {
			continue
		}
		if abs(*d) >= wp.threshold || crossedGoal(e.Projection, rep.GoalDate) {
			lines = append(lines, e.Summary())
		}
	}
	if len(lines) == 0 {
		return
	}

	payload := []byte("Queue outlook moved:\n" + strings.Join(lines, "\n"))
	wp.log.Info("sending drift alerts",
		zap.Int64("user_id", userID),
		zap.Int("entries", len(lines)),
		zap.Int("subscriptions", len(subs)))

	for _, sub := range subs {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}
		resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
		if err != nil {
			wp.log.Error("push send failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusGone {
			wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
			if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
				wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
			}
		}
	}
}

func (wp *WorkerPool) buildReport(ctx context.Context, userID int64) (report.Report, error) {
	user, err := wp.store.UserByID(ctx, userID)
	if err != nil {
		return report.Report{}, err
	}
	rooms, err := wp.store.RoomsForUser(ctx, userID)
	if err != nil {
		return report.Report{}, err
	}
	histories := make(map[int64][]trend.Point, len(rooms))
	for _, room := range rooms {
		obs, err := wp.store.History(ctx, room.ID)
		if err != nil {
			return report.Report{}, err
		}
		histories[room.ID] = report.HistoryPoints(obs)
	}
	rep, err := report.Build(user, rooms, histories, store.DateOnly(time.Now()), wp.projector)
	if err != nil {
		// label failures only exclude their rooms; alert on the rest
		wp.log.Warn("report built with label errors", zap.Int64("user_id", userID), zap.Error(err))
	}
	return rep, nil
}

// crossedGoal reports whether yesterday's ETA and today's ETA sit on
// opposite sides of the user's goal date. Such a move is always worth an
// alert, even below the drift threshold.
func crossedGoal(p trend.Projection, goal time.Time) bool {
	if goal.IsZero() || p.ETA == nil || p.ETADrift1d == nil || *p.ETADrift1d == 0 {
		return false
	}
	previous := p.ETA.AddDate(0, 0, -*p.ETADrift1d)
	return p.ETA.After(goal) != previous.After(goal)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
