package livequery

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/studynote/internal/dbx"
	"github.com/dmitrijs2005/studynote/internal/logging"
	"github.com/jackc/pgx/v5/stdlib"
)

// Channel is the PostgreSQL NOTIFY channel carrying changes.
const Channel = "studynote_changes"

// PostgresPublisher publishes changes with pg_notify so every backend
// instance listening on Channel sees them.
type PostgresPublisher struct {
	db dbx.DBTX
}

func NewPostgresPublisher(db dbx.DBTX) *PostgresPublisher {
	return &PostgresPublisher{db: db}
}

func (p *PostgresPublisher) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, Channel, string(payload)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// listenFunc blocks delivering NOTIFY payloads until ctx ends or the
// connection fails. It calls ready once LISTEN is in effect.
type listenFunc func(ctx context.Context, ready func(), deliver func(payload string)) error

// Listener relays NOTIFY payloads from PostgreSQL into a Hub.
type Listener struct {
	hub     *Hub
	logger  logging.Logger
	listen  listenFunc
	backoff time.Duration
}

func NewListener(db *sql.DB, hub *Hub, logger logging.Logger) *Listener {
	return &Listener{
		hub:     hub,
		logger:  logger.With("module", "livequery_listener"),
		listen:  pgxListen(db),
		backoff: time.Second,
	}
}

// Run listens until ctx is cancelled, reconnecting after failures. Every
// (re)established LISTEN wakes all subscriptions, since changes committed
// while the connection was down were never delivered.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx, l.hub.WakeAll, l.deliver(ctx))
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn(ctx, "listen connection lost", "error", err, "retry_in", l.backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) deliver(ctx context.Context) func(string) {
	return func(payload string) {
		var change Change
		if err := json.Unmarshal([]byte(payload), &change); err != nil || change.Collection == "" {
			l.logger.Warn(ctx, "dropping malformed notification", "payload", payload)
			return
		}
		_ = l.hub.Publish(ctx, change)
	}
}

func pgxListen(db *sql.DB) listenFunc {
	return func(ctx context.Context, ready func(), deliver func(string)) error {
		conn, err := db.Conn(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = conn.ExecContext(context.Background(), "UNLISTEN *")
			_ = conn.Close()
		}()

		if _, err := conn.ExecContext(ctx, "LISTEN "+Channel); err != nil {
			return err
		}
		ready()

		return conn.Raw(func(driverConn any) error {
			sc, ok := driverConn.(*stdlib.Conn)
			if !ok {
				return errors.New("listener requires the pgx driver")
			}
			for {
				n, err := sc.Conn().WaitForNotification(ctx)
				if err != nil {
					return err
				}
				deliver(n.Payload)
			}
		})
	}
}
