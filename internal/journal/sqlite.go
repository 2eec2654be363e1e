package journal

import (
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"time"

	"github.com/petrijr/gframe/pkg/api"
)

func init() {
	// The record slice travels inside an interface-encoded gob blob.
	gob.Register([]routineRecord{})
}

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB opened with a SQLite driver; the caller imports the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS frame_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			frame_id TEXT NOT NULL,
			at_ns INTEGER NOT NULL,
			topic TEXT NOT NULL,
			routine TEXT NOT NULL,
			detail TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_frame_events_frame ON frame_events(frame_id);
		CREATE TABLE IF NOT EXISTS frame_results (
			frame_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			reason TEXT NOT NULL,
			routines BLOB
		);`,
	)
	return err
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frame_events (frame_id, at_ns, topic, routine, detail)
		VALUES (?, ?, ?, ?, ?)`,
		ev.FrameID,
		ev.At.UnixNano(),
		ev.Topic,
		ev.Routine,
		ev.Detail,
	)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, frameID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_id, at_ns, topic, routine, detail
		FROM frame_events
		WHERE frame_id = ?
		ORDER BY id`,
		frameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var atNs int64
		if err := rows.Scan(&ev.FrameID, &atNs, &ev.Topic, &ev.Routine, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, atNs)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// routineRecord is the serialized form of one RoutineResult.
type routineRecord struct {
	Name       string
	Key        int
	State      string
	Value      []byte
	Err        string
	DurationNs int64
}

func (s *SQLiteStore) SaveResult(ctx context.Context, res *api.Result) error {
	records := make([]routineRecord, 0, len(res.Routines))
	for _, rr := range res.Routines {
		value, err := EncodeValue(rr.Value)
		if err != nil {
			return err
		}
		errStr := ""
		if rr.Err != nil {
			errStr = rr.Err.Error()
		}
		records = append(records, routineRecord{
			Name:       rr.Name,
			Key:        rr.Key,
			State:      string(rr.State),
			Value:      value,
			Err:        errStr,
			DurationNs: rr.Duration.Nanoseconds(),
		})
	}

	blob, err := EncodeValue(records)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO frame_results (frame_id, state, reason, routines)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(frame_id) DO UPDATE SET
			state = excluded.state,
			reason = excluded.reason,
			routines = excluded.routines`,
		res.FrameID,
		string(res.State),
		res.Reason,
		blob,
	)
	return err
}

func (s *SQLiteStore) GetResult(ctx context.Context, frameID string) (*api.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT frame_id, state, reason, routines
		FROM frame_results
		WHERE frame_id = ?`,
		frameID,
	)

	res := &api.Result{}
	var state string
	var blob []byte
	if err := row.Scan(&res.FrameID, &state, &res.Reason, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	res.State = api.State(state)

	decoded, err := DecodeValue(blob)
	if err != nil {
		return nil, err
	}
	records, _ := decoded.([]routineRecord)
	res.Routines = make([]api.RoutineResult, 0, len(records))
	for _, rec := range records {
		value, err := DecodeValue(rec.Value)
		if err != nil {
			return nil, err
		}
		rr := api.RoutineResult{
			Name:     rec.Name,
			Key:      rec.Key,
			State:    api.RoutineState(rec.State),
			Value:    value,
			Duration: time.Duration(rec.DurationNs),
		}
		if rec.Err != "" {
			rr.Err = errors.New(rec.Err)
		}
		res.Routines = append(res.Routines, rr)
	}
	return res, nil
}
