package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one row of the append-only audit log. Seq is assigned by the DB.
type Event struct {
	Seq       int64  `json:"seq"`
	SiteID    string `json:"site_id"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

const (
	TypeAttemptSubmitted = "attempt.submitted"
	TypeTestCreated      = "test.created"
	TypeTestCombined     = "test.combined"
	TypeUserCreated      = "user.created"
	TypeUserDeleted      = "user.deleted"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type EventRepo struct {
	db     *sql.DB
	siteID string
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db, siteID: "local"} }

// NewEvent marshals data into an Event of the given type.
func NewEvent(typ, key string, data any) Event {
	b, err := json.Marshal(data)
	if err != nil {
		b = []byte("{}")
	}
	return Event{Type: typ, Key: key, DataJSON: string(b)}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	return r.append(ctx, r.db, e)
}

// AppendTx writes the event inside the caller's transaction.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, e Event) error {
	return r.append(ctx, tx, e)
}

// Record appends and only logs failures. Used where the audit row must not
// fail the surrounding operation.
func (r *EventRepo) Record(ctx context.Context, e Event) {
	if r == nil {
		return
	}
	if err := r.Append(ctx, e); err != nil {
		log.Warn().Err(err).Str("type", e.Type).Str("key", e.Key).Msg("event log append failed")
	}
}

func (r *EventRepo) append(ctx context.Context, x execer, e Event) error {
	site := e.SiteID
	if site == "" {
		site = r.siteID
	}
	data := e.DataJSON
	if data == "" {
		data = "{}"
	}
	_, err := x.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		site, e.Type, e.Key, data, time.Now().Unix())
	return err
}

// List returns events after seq (exclusive), oldest first, optionally filtered by type.
func (r *EventRepo) List(ctx context.Context, after int64, typ string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE seq > $1`
	args := []any{after}
	if typ != "" {
		q += ` AND typ = $2 ORDER BY seq LIMIT $3`
		args = append(args, typ, limit)
	} else {
		q += ` ORDER BY seq LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
