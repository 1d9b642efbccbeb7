package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"queuetrack-backend/internal/model"
)

// Store defines the persistence operations of the ingestion pipeline and the
// query surface the report/API layers read from.
type Store interface {
	ResolveRoom(ctx context.Context, room ScrapedRoom, ownerID int64) (int64, error)
	UpsertObservation(ctx context.Context, roomID int64, date time.Time, capacity, pos int, policy UpdatePolicy) (UpsertResult, error)

	Users(ctx context.Context) ([]model.User, error)
	UserByID(ctx context.Context, userID int64) (model.User, error)
	SaveSession(ctx context.Context, userID int64, token string, expiry time.Time) error

	RoomsForUser(ctx context.Context, userID int64) ([]model.Room, error)
	History(ctx context.Context, roomID int64) ([]model.Observation, error)
	ObservationDateRange(ctx context.Context, userID int64) (min, max time.Time, err error)

	SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, log *zap.Logger) Store {
	return &gormStore{db: db, log: log}
}

// DB exposes the underlying handle for read-only handler queries.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ResolveRoom looks a room up by its external id, creating it on first
// sight. Concurrent resolution of the same unseen external id is serialized
// by the unique index on ext_id: the loser's insert fails and it re-reads
// the winner's row instead of erroring.
func (s *gormStore) ResolveRoom(ctx context.Context, room ScrapedRoom, ownerID int64) (int64, error) {
	var existing model.Room
	err := s.db.WithContext(ctx).Where("ext_id = ?", room.ExtID).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("room lookup for ext_id %d failed: %w", room.ExtID, err)
	}

	created := model.Room{
		UserID:      ownerID,
		ExtID:       room.ExtID,
		TypeCode:    room.Type,
		Description: room.Description,
	}
	if createErr := s.db.WithContext(ctx).Create(&created).Error; createErr != nil {
		var winner model.Room
		if err := s.db.WithContext(ctx).Where("ext_id = ?", room.ExtID).First(&winner).Error; err == nil {
			return winner.ID, nil
		}
		return 0, fmt.Errorf("room create for ext_id %d failed: %w", room.ExtID, createErr)
	}

	s.log.Info("room created",
		zap.Int64("room_id", created.ID),
		zap.Int64("ext_id", room.ExtID),
		zap.String("type", room.Type),
		zap.String("description", room.Description))
	return created.ID, nil
}

// UpsertObservation stores one (room, date) snapshot under a serializable
// check-then-act transaction. The row is read with a row lock, the decision
// is made against the incoming values, and the transaction commits on every
// path so no lock outlives the call.
func (s *gormStore) UpsertObservation(ctx context.Context, roomID int64, date time.Time, capacity, pos int, policy UpdatePolicy) (UpsertResult, error) {
	date = DateOnly(date)

	var res UpsertResult
	attempt := func() error {
		res = UpsertResult{}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			q := tx.Where("room_id = ? AND date = ?", roomID, date)
			if tx.Dialector.Name() == "postgres" {
				// sqlite has no FOR UPDATE; its transactions serialize anyway
				q = q.Clauses(clause.Locking{Strength: "UPDATE"})
			}

			var existing model.Observation
			err := q.First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				obs := model.Observation{RoomID: roomID, Date: date, Capacity: capacity, Position: pos}
				if err := tx.Create(&obs).Error; err != nil {
					return err
				}
				res = UpsertResult{Outcome: OutcomeCreated, NewCapacity: capacity, NewPosition: pos}
				return nil
			}
			if err != nil {
				return err
			}

			res.OldCapacity = existing.Capacity
			res.OldPosition = existing.Position
			res.NewCapacity = capacity
			res.NewPosition = pos

			if existing.Capacity == capacity && existing.Position == pos {
				res.Outcome = OutcomeUnchanged
				return nil
			}
			if policy != UpdateAllowed {
				res.Outcome = OutcomeConflict
				return nil
			}
			if err := tx.Model(&model.Observation{}).
				Where("room_id = ? AND date = ?", roomID, date).
				Updates(map[string]any{"capacity": capacity, "pos": pos}).Error; err != nil {
				return err
			}
			res.Outcome = OutcomeUpdated
			return nil
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	err := attempt()
	if err != nil && isWriteRace(err) {
		// lost the insert race for this key; rerun once to observe the
		// winner's committed row
		err = attempt()
	}
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert observation room=%d date=%s failed: %w",
			roomID, date.Format("2006-01-02"), err)
	}

	s.logOutcome(roomID, date, res)
	return res, nil
}

func (s *gormStore) logOutcome(roomID int64, date time.Time, res UpsertResult) {
	fields := []zap.Field{
		zap.Int64("room_id", roomID),
		zap.String("date", date.Format("2006-01-02")),
		zap.String("outcome", string(res.Outcome)),
	}
	switch res.Outcome {
	case OutcomeCreated:
		s.log.Info("observation created", append(fields,
			zap.Int("capacity", res.NewCapacity), zap.Int("pos", res.NewPosition))...)
	case OutcomeUnchanged:
		s.log.Debug("observation unchanged", fields...)
	case OutcomeUpdated, OutcomeConflict:
		s.log.Warn("observation differs from stored row", append(fields,
			zap.Int("old_capacity", res.OldCapacity), zap.Int("new_capacity", res.NewCapacity),
			zap.Int("old_pos", res.OldPosition), zap.Int("new_pos", res.NewPosition))...)
	}
}

// isWriteRace reports whether the error is a lost insert race (unique-key
// violation on the (room_id, date) index) or a serialization failure, both
// of which resolve on a rerun that sees the winner's row.
func isWriteRace(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 40001")
}

func (s *gormStore) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *gormStore) UserByID(ctx context.Context, userID int64) (model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return model.User{}, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return user, nil
}

// SaveSession persists a freshly issued remember-me token. Called right
// after a successful login, before any scraping proceeds.
func (s *gormStore) SaveSession(ctx context.Context, userID int64, token string, expiry time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"session_token": token, "session_expiry": expiry}).Error
	if err != nil {
		return fmt.Errorf("failed to save session for user %d: %w", userID, err)
	}
	return nil
}

func (s *gormStore) RoomsForUser(ctx context.Context, userID int64) ([]model.Room, error) {
	var rooms []model.Room
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms for user %d: %w", userID, err)
	}
	return rooms, nil
}

func (s *gormStore) History(ctx context.Context, roomID int64) ([]model.Observation, error) {
	var obs []model.Observation
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("date").Find(&obs).Error; err != nil {
		return nil, fmt.Errorf("failed to load history for room %d: %w", roomID, err)
	}
	return obs, nil
}

// ObservationDateRange returns the earliest and latest observation dates
// across all of a user's rooms. Zero times when the user has no data yet.
func (s *gormStore) ObservationDateRange(ctx context.Context, userID int64) (time.Time, time.Time, error) {
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.Observation{}).
			Joins("JOIN rooms ON rooms.id = observations.room_id").
			Where("rooms.user_id = ?", userID)
	}

	var first, last model.Observation
	err := base().Order("observations.date ASC").First(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to find earliest observation for user %d: %w", userID, err)
	}
	if err := base().Order("observations.date DESC").First(&last).Error; err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to find latest observation for user %d: %w", userID, err)
	}
	return DateOnly(first.Date), DateOnly(last.Date), nil
}

func (s *gormStore) SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for user %d: %w", userID, err)
	}
	return subs, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", endpoint, err)
	}
	return nil
}
