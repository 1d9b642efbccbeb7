// Package scraper drives the periodic ingestion cycle: per user it acquires
// a session, fetches the dashboard, and feeds each queue row through the
// ingestion store.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"queuetrack-backend/config"
	"queuetrack-backend/internal/auth"
	"queuetrack-backend/internal/metrics"
	"queuetrack-backend/internal/model"
	"queuetrack-backend/internal/notification"
	"queuetrack-backend/internal/store"
)

// Service orchestrates the scrape cycle.
type Service struct {
	cfg    *config.Config
	store  store.Store
	auth   *auth.Authenticator
	policy store.UpdatePolicy
	alerts *notification.WorkerPool // nil when push is not configured
	log    *zap.Logger
}

// NewService creates and initializes a new scraper service.
func NewService(cfg *config.Config, st store.Store, alerts *notification.WorkerPool, log *zap.Logger) (*Service, error) {
	authenticator, err := auth.New(&cfg.Scraper)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		auth:   authenticator,
		policy: store.PolicyFromString(cfg.Scraper.UpdatePolicy),
		alerts: alerts,
		log:    log,
	}, nil
}

// Run starts the scraping process in a loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Scraper.Enabled {
		s.log.Info("scraper is disabled, not starting")
		return
	}
	s.log.Info("starting scraper service", zap.Duration("interval", s.cfg.Scraper.Interval))

	if s.alerts != nil {
		s.alerts.Start(ctx)
	}

	s.ScrapeOnce(ctx)

	timer := time.NewTimer(s.cfg.Scraper.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scraper service shutting down")
			return
		case <-timer.C:
			s.ScrapeOnce(ctx)
			timer.Reset(s.cfg.Scraper.Interval)
		}
	}
}

// ScrapeOnce runs one full cycle across all users. Per-user failures are
// logged and isolated; they never stop the remaining users.
func (s *Service) ScrapeOnce(ctx context.Context) {
	start := time.Now()
	log := s.log.With(zap.String("run_id", uuid.NewString()))

	users, err := s.store.Users(ctx)
	if err != nil {
		log.Error("scrape cycle aborted, cannot list users", zap.Error(err))
		return
	}

	date := s.today()
	p := pool.New().WithMaxGoroutines(s.cfg.Scraper.Concurrency)
	for _, user := range users {
		p.Go(func() {
			if err := s.scrapeUser(ctx, log, user, date); err != nil {
				metrics.UserScrapeFailures.Inc()
				log.Error("user scrape failed",
					zap.Int64("user_id", user.ID),
					zap.String("email", user.Email),
					zap.Error(err))
			}
		})
	}
	p.Wait()

	metrics.ScrapeCycles.Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	log.Info("scrape cycle finished",
		zap.Int("users", len(users)),
		zap.String("date", date.Format("2006-01-02")),
		zap.Duration("elapsed", time.Since(start)))
}

// scrapeUser ingests one user's dashboard for the given observation date.
func (s *Service) scrapeUser(ctx context.Context, log *zap.Logger, user model.User, date time.Time) error {
	sess, err := s.auth.Login(ctx, user, time.Now())
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if sess.Refreshed {
		// persist the fresh token before anything else so a later crash
		// cannot lose it
		if err := s.store.SaveSession(ctx, user.ID, sess.Token, sess.Expiry); err != nil {
			return err
		}
		log.Info("session refreshed", zap.Int64("user_id", user.ID), zap.Time("expiry", sess.Expiry))
	}

	rows, err := s.fetchDashboard(ctx, sess)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	for _, row := range rows {
		roomID, err := s.store.ResolveRoom(ctx, row, user.ID)
		if err != nil {
			return err
		}
		res, err := s.store.UpsertObservation(ctx, roomID, date, row.Capacity, row.Position, s.policy)
		if err != nil {
			return err
		}
		metrics.IngestOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	}

	if s.alerts != nil && len(rows) > 0 {
		s.alerts.Dispatch(user.ID)
	}
	return nil
}

// fetchDashboard downloads and parses the rooms table, retrying transient
// failures a few times before giving up on this user's cycle.
func (s *Service) fetchDashboard(ctx context.Context, sess *auth.Session) ([]store.ScrapedRoom, error) {
	var rows []store.ScrapedRoom
	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Scraper.DashboardURL, nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("User-Agent", auth.UserAgent)

		resp, err := sess.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("dashboard returned status %d", resp.StatusCode)
		}

		rows, err = ParseDashboard(resp.Body)
		return err
	},
		retry.Attempts(3),
		retry.Delay(2*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	return rows, err
}

// today is the observation date for the current cycle, in the configured
// timezone so a scrape shortly after midnight lands on the right day.
func (s *Service) today() time.Time {
	loc := time.UTC
	if s.cfg.Scraper.Timezone != "" {
		if l, err := time.LoadLocation(s.cfg.Scraper.Timezone); err == nil {
			loc = l
		} else {
			s.log.Warn("invalid timezone, using UTC", zap.String("timezone", s.cfg.Scraper.Timezone))
		}
	}
	return store.DateOnly(time.Now().In(loc))
}
