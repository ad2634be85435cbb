package alerts

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
)

//go:embed schema.sql
var ddl string

// Store is what the evaluator needs from persistence.
type Store interface {
	ActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	// CommitSweep applies the triggers in one transaction and returns the
	// ones whose subscription was still active.
	CommitSweep(ctx context.Context, triggers []Trigger) ([]Trigger, error)
}

// SQLStore keeps subscriptions and notifications in SQLite.
type SQLStore struct {
	db     *sqlx.DB
	clock  clock.Clock
	logger *slog.Logger
}

var validate = newValidator()

// newValidator reports fields by their json names so that validation errors
// can be returned to API callers unchanged.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// OpenSQLStore opens (and migrates) the database at path, which may be ":memory:".
func OpenSQLStore(path string, clk clock.Clock, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alerts database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &SQLStore{
		db:     db,
		clock:  clk,
		logger: logger.With(slog.String("component", "alerts_store")),
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(ddl, "-- migrate") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB exposes the pool for stats collection.
func (s *SQLStore) DB() *sql.DB {
	return s.db.DB
}

type subscriptionRow struct {
	ID               string         `db:"id"`
	UserID           string         `db:"user_id"`
	StopID           string         `db:"stop_id"`
	RouteID          sql.NullString `db:"route_id"`
	ThresholdMinutes float64        `db:"threshold_minutes"`
	IsActive         bool           `db:"is_active"`
	CreatedAt        int64          `db:"created_at"`
	LastTriggeredAt  sql.NullInt64  `db:"last_triggered_at"`
}

func (r subscriptionRow) toSubscription() Subscription {
	sub := Subscription{
		ID:               r.ID,
		UserID:           r.UserID,
		StopID:           r.StopID,
		ThresholdMinutes: r.ThresholdMinutes,
		IsActive:         r.IsActive,
		CreatedAt:        time.UnixMilli(r.CreatedAt).UTC(),
	}
	if r.RouteID.Valid {
		routeID := r.RouteID.String
		sub.RouteID = &routeID
	}
	if r.LastTriggeredAt.Valid {
		t := time.UnixMilli(r.LastTriggeredAt.Int64).UTC()
		sub.LastTriggeredAt = &t
	}
	return sub
}

type notificationRow struct {
	ID             string `db:"id"`
	SubscriptionID string `db:"subscription_id"`
	Message        string `db:"message"`
	CreatedAt      int64  `db:"created_at"`
	IsRead         bool   `db:"is_read"`
}

func (r notificationRow) toEvent() NotificationEvent {
	return NotificationEvent{
		ID:             r.ID,
		SubscriptionID: r.SubscriptionID,
		Message:        r.Message,
		CreatedAt:      time.UnixMilli(r.CreatedAt).UTC(),
		IsRead:         r.IsRead,
	}
}

const subscriptionColumns = `id, user_id, stop_id, route_id, threshold_minutes, is_active, created_at, last_triggered_at`

// ActiveSubscriptions returns active subscriptions ordered by creation time.
func (s *SQLStore) ActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	var rows []subscriptionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+subscriptionColumns+` FROM alert_subscriptions WHERE is_active = 1 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load active subscriptions: %w", err)
	}
	return toSubscriptions(rows), nil
}

// CommitSweep stamps each trigger's subscription and inserts its
// notification, all in one transaction. Triggers whose subscription was
// deactivated or deleted since the sweep loaded it are dropped. Any other
// failure rolls back every write. The triggers that were applied are returned.
func (s *SQLStore) CommitSweep(ctx context.Context, triggers []Trigger) ([]Trigger, error) {
	if len(triggers) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	defer logging.SafeRollbackWithLogging(tx, s.logger, "alert_sweep_commit")

	applied := make([]Trigger, 0, len(triggers))
	for _, t := range triggers {
		res, err := tx.ExecContext(ctx,
			`UPDATE alert_subscriptions SET last_triggered_at = ? WHERE id = ? AND is_active = 1`,
			t.TriggeredAt.UnixMilli(), t.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("%w: update subscription %s: %w", ErrPersistence, t.SubscriptionID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("%w: update subscription %s: %w", ErrPersistence, t.SubscriptionID, err)
		}
		if affected == 0 {
			s.logger.Info("dropping trigger for inactive subscription",
				slog.String("subscription_id", t.SubscriptionID))
			continue
		}

		n := t.Notification
		_, err = tx.ExecContext(ctx,
			`INSERT INTO notification_events (id, subscription_id, message, created_at, is_read)
			 SELECT ?, ?, ?, ?, 0
			 WHERE EXISTS (SELECT 1 FROM alert_subscriptions WHERE id = ? AND is_active = 1)`,
			n.ID, t.SubscriptionID, n.Message, n.CreatedAt.UnixMilli(), t.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("%w: insert notification for %s: %w", ErrPersistence, t.SubscriptionID, err)
		}
		applied = append(applied, t)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return applied, nil
}

// CreateSubscription validates and stores a new active subscription.
func (s *SQLStore) CreateSubscription(ctx context.Context, in NewSubscription) (Subscription, error) {
	if err := validate.Struct(in); err != nil {
		return Subscription{}, fmt.Errorf("invalid subscription: %w", err)
	}

	sub := Subscription{
		ID:               uuid.NewString(),
		UserID:           in.UserID,
		StopID:           in.StopID,
		RouteID:          in.RouteID,
		ThresholdMinutes: in.ThresholdMinutes,
		IsActive:         true,
		CreatedAt:        s.clock.Now().UTC().Truncate(time.Millisecond),
	}

	var routeID sql.NullString
	if in.RouteID != nil {
		routeID = sql.NullString{String: *in.RouteID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_subscriptions (id, user_id, stop_id, route_id, threshold_minutes, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		sub.ID, sub.UserID, sub.StopID, routeID, sub.ThresholdMinutes, sub.CreatedAt.UnixMilli())
	if err != nil {
		return Subscription{}, fmt.Errorf("failed to create subscription: %w", err)
	}

	logging.LogOperation(s.logger, "subscription_created",
		slog.String("subscription_id", sub.ID),
		slog.String("stop_id", sub.StopID))
	return sub, nil
}

func (s *SQLStore) Subscription(ctx context.Context, id string) (Subscription, error) {
	var row subscriptionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+subscriptionColumns+` FROM alert_subscriptions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrSubscriptionNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("failed to load subscription %s: %w", id, err)
	}
	return row.toSubscription(), nil
}

// SubscriptionsForUser returns the user's active subscriptions.
func (s *SQLStore) SubscriptionsForUser(ctx context.Context, userID string) ([]Subscription, error) {
	var rows []subscriptionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+subscriptionColumns+` FROM alert_subscriptions
		 WHERE user_id = ? AND is_active = 1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions for user: %w", err)
	}
	return toSubscriptions(rows), nil
}

// DeactivateSubscription is permanent: the evaluator never reactivates.
func (s *SQLStore) DeactivateSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alert_subscriptions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// NotificationsForUser returns the newest notifications across the user's
// subscriptions, newest first.
func (s *SQLStore) NotificationsForUser(ctx context.Context, userID string, limit int) ([]NotificationEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT n.id, n.subscription_id, n.message, n.created_at, n.is_read
		FROM notification_events n
		JOIN alert_subscriptions s ON s.id = n.subscription_id
		WHERE s.user_id = ?
		ORDER BY n.created_at DESC, n.id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications for user: %w", err)
	}

	events := make([]NotificationEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toEvent())
	}
	return events, nil
}

// MarkNotificationRead only touches notifications on the user's own
// subscriptions. Anything else reports ErrNotificationNotFound.
func (s *SQLStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_events SET is_read = 1
		WHERE id = ? AND subscription_id IN (SELECT id FROM alert_subscriptions WHERE user_id = ?)`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// Counts summarises the store for the admin endpoint.
func (s *SQLStore) Counts(ctx context.Context) (map[string]int, error) {
	var c struct {
		Active        int `db:"active"`
		Total         int `db:"total"`
		Notifications int `db:"notifications"`
	}
	err := s.db.GetContext(ctx, &c, `
		SELECT
			(SELECT COUNT(*) FROM alert_subscriptions WHERE is_active = 1) AS active,
			(SELECT COUNT(*) FROM alert_subscriptions) AS total,
			(SELECT COUNT(*) FROM notification_events) AS notifications`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alert rows: %w", err)
	}
	return map[string]int{
		"subscriptions_active": c.Active,
		"subscriptions_total":  c.Total,
		"notifications":        c.Notifications,
	}, nil
}

func toSubscriptions(rows []subscriptionRow) []Subscription {
	subs := make([]Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toSubscription())
	}
	return subs
}
