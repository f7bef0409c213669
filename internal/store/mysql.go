package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/cinepass/seat-reservation/internal/model"
)

// MySQLStore persists seat records in the seats table and enforces the
// conditional-write contract with a version column: every UPDATE is
// guarded by `AND version = ?` and bumps the version, so exactly one of
// two racing writers succeeds.  Change notifications are fanned out
// through Redis pub/sub so Subscribe works across processes; when no
// Redis client is configured the store still functions, it just cannot
// stream changes.
//
// Expected schema:
//
//	CREATE TABLE seats (
//	    showing_id  VARCHAR(64)  NOT NULL,
//	    label       VARCHAR(8)   NOT NULL,
//	    status      VARCHAR(16)  NOT NULL,
//	    class       VARCHAR(16)  NOT NULL,
//	    price_cents INT UNSIGNED NOT NULL,
//	    holder_id   VARCHAR(64)  NOT NULL DEFAULT '',
//	    held_at     DATETIME(3)  NULL,
//	    sold_to     VARCHAR(64)  NOT NULL DEFAULT '',
//	    sold_at     DATETIME(3)  NULL,
//	    version     BIGINT UNSIGNED NOT NULL,
//	    PRIMARY KEY (showing_id, label)
//	);
type MySQLStore struct {
	db  *sql.DB
	rdb *redis.Client // optional, enables Subscribe
}

// NewMySQLStore returns a MySQLStore bound to the given database.  The
// Redis client may be nil; Subscribe then returns a closed stream.
func NewMySQLStore(db *sql.DB, rdb *redis.Client) *MySQLStore {
	return &MySQLStore{db: db, rdb: rdb}
}

const seatColumns = `showing_id, label, status, class, price_cents, holder_id, held_at, sold_to, sold_at, version`

// Get loads a single seat record, returning ErrNotFound when no row
// exists for the key.
func (s *MySQLStore) Get(ctx context.Context, key model.SeatKey) (*model.Seat, error) {
	const q = `SELECT ` + seatColumns + ` FROM seats WHERE showing_id = ? AND label = ?`
	row := s.db.QueryRowContext(ctx, q, key.ShowingID, key.Label)
	seat, err := scanSeat(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return seat, nil
}

// ConditionalWrite updates the seat row only when the stored version
// still equals w.ExpectedVersion.  An expected version of zero inserts
// the row instead, giving provisioning create-if-absent semantics; a
// duplicate-key failure on that path is reported as ErrVersionConflict.
func (s *MySQLStore) ConditionalWrite(ctx context.Context, w Write) (uint64, error) {
	seat := w.Seat
	seat.Key = w.Key
	newVersion := w.ExpectedVersion + 1

	if w.ExpectedVersion == 0 {
		const ins = `INSERT INTO seats (` + seatColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := s.db.ExecContext(ctx, ins,
			w.Key.ShowingID, w.Key.Label, seat.Status, seat.Class, seat.PriceCents,
			seat.HolderID, nullTime(seat.HeldAt), seat.SoldTo, nullTime(seat.SoldAt), newVersion,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return 0, ErrVersionConflict
			}
			return 0, err
		}
		seat.Version = newVersion
		s.publish(ctx, seat)
		return newVersion, nil
	}

	const upd = `UPDATE seats
	             SET status = ?, class = ?, price_cents = ?, holder_id = ?, held_at = ?,
	                 sold_to = ?, sold_at = ?, version = version + 1
	             WHERE showing_id = ? AND label = ? AND version = ?`
	res, err := s.db.ExecContext(ctx, upd,
		seat.Status, seat.Class, seat.PriceCents, seat.HolderID, nullTime(seat.HeldAt),
		seat.SoldTo, nullTime(seat.SoldAt),
		w.Key.ShowingID, w.Key.Label, w.ExpectedVersion,
	)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		// Either the row is gone or another writer bumped the version.
		if _, getErr := s.Get(ctx, w.Key); getErr == ErrNotFound {
			return 0, ErrNotFound
		}
		return 0, ErrVersionConflict
	}
	seat.Version = newVersion
	s.publish(ctx, seat)
	return newVersion, nil
}

// BatchWrite applies each conditional write in turn and collects the
// keys that failed into a PartialFailureError.  MySQL gives us no
// cross-row CAS, so the batch is best-effort by design and the caller
// decides what a partial outcome means.
func (s *MySQLStore) BatchWrite(ctx context.Context, writes []Write) error {
	var failed []model.SeatKey
	for _, w := range writes {
		if _, err := s.ConditionalWrite(ctx, w); err != nil {
			failed = append(failed, w.Key)
		}
	}
	if len(failed) > 0 {
		return &PartialFailureError{Failed: failed}
	}
	return nil
}

// ListByShowing returns every seat of a showing ordered by label
// length then label, so A9 precedes A10.
func (s *MySQLStore) ListByShowing(ctx context.Context, showingID string) ([]model.Seat, error) {
	const q = `SELECT ` + seatColumns + ` FROM seats WHERE showing_id = ? ORDER BY LENGTH(label), label`
	return s.list(ctx, q, showingID)
}

// ListByStatus returns all seats in the given status across showings.
func (s *MySQLStore) ListByStatus(ctx context.Context, status model.SeatStatus) ([]model.Seat, error) {
	const q = `SELECT ` + seatColumns + ` FROM seats WHERE status = ? ORDER BY showing_id, LENGTH(label), label`
	return s.list(ctx, q, string(status))
}

func (s *MySQLStore) list(ctx context.Context, query string, arg interface{}) ([]model.Seat, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Seat
	for rows.Next() {
		seat, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *seat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscribe streams seat change events for a showing via Redis pub/sub.
// The returned channel closes when ctx is cancelled.  Without a Redis
// client the channel is returned already closed so callers degrade to
// polling.
func (s *MySQLStore) Subscribe(ctx context.Context, showingID string) (<-chan Event, error) {
	out := make(chan Event, 64)
	if s.rdb == nil {
		close(out)
		return out, nil
	}
	sub := s.rdb.Subscribe(ctx, seatChannel(showingID))
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("seat-store: drop malformed event: %v", err)
					continue
				}
				select {
				case out <- ev:
				default: // slow subscriber, drop
				}
			}
		}
	}()
	return out, nil
}

// publish fans a change event out over Redis.  Failures are logged and
// ignored: notification is best effort and never blocks a write.
func (s *MySQLStore) publish(ctx context.Context, seat model.Seat) {
	if s.rdb == nil {
		return
	}
	body, err := json.Marshal(Event{Seat: seat})
	if err != nil {
		log.Printf("seat-store: marshal event failed: %v", err)
		return
	}
	if err := s.rdb.Publish(ctx, seatChannel(seat.Key.ShowingID), body).Err(); err != nil {
		log.Printf("seat-store: publish event failed: %v", err)
	}
}

func seatChannel(showingID string) string { return "seats." + showingID }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSeat(row rowScanner) (*model.Seat, error) {
	var seat model.Seat
	var heldAt, soldAt sql.NullTime
	err := row.Scan(
		&seat.Key.ShowingID, &seat.Key.Label, &seat.Status, &seat.Class, &seat.PriceCents,
		&seat.HolderID, &heldAt, &seat.SoldTo, &soldAt, &seat.Version,
	)
	if err != nil {
		return nil, err
	}
	if heldAt.Valid {
		t := heldAt.Time.UTC()
		seat.HeldAt = &t
	}
	if soldAt.Valid {
		t := soldAt.Time.UTC()
		seat.SoldAt = &t
	}
	return &seat, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// isDuplicateKey detects MySQL duplicate-entry failures (error 1062)
// raised when a create-if-absent insert loses to a concurrent writer.
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
