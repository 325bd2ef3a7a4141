package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ayusman/handscene/internal/model"
)

// TickRecord is one processed tick as stored.
type TickRecord struct {
	Seq       int                    `json:"seq"`
	Timestamp time.Duration          `json:"timestamp"`
	Hands     []model.HandSample     `json:"hands"`
	Events    []model.GestureEvent   `json:"events,omitempty"`
	Commands  []model.ControlCommand `json:"commands,omitempty"`
}

// EventRecord is a stored gesture event with its tick sequence number.
type EventRecord struct {
	Seq int `json:"seq"`
	model.GestureEvent
}

// TickRepository records and reads back session ticks.
type TickRepository struct {
	db *sql.DB
}

// Ticks returns the tick repository for this store.
func (s *Store) Ticks() *TickRepository {
	return &TickRepository{db: s.db}
}

// Append stores a tick with its events and commands in a single
// transaction and bumps the session tick count.
func (r *TickRepository) Append(sessionID string, rec TickRecord) error {
	hands, err := json.Marshal(rec.Hands)
	if err != nil {
		return fmt.Errorf("encode hands: %w", err)
	}

	return withTx(r.db, func(tx *sql.Tx) error {
		return appendTick(tx, sessionID, rec, string(hands))
	})
}

func appendTick(tx *sql.Tx, sessionID string, rec TickRecord, hands string) error {
	if _, err := tx.Exec(
		`INSERT INTO ticks (session_id, seq, timestamp_ns, hands) VALUES (?, ?, ?, ?)`,
		sessionID, rec.Seq, int64(rec.Timestamp), hands,
	); err != nil {
		return err
	}

	for _, ev := range rec.Events {
		ids, err := json.Marshal(ev.HandIDs)
		if err != nil {
			return fmt.Errorf("encode hand ids: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO events (session_id, seq, timestamp_ns, kind, hand_ids, magnitude) VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, rec.Seq, int64(ev.Timestamp), string(ev.Kind), string(ids), ev.Magnitude,
		); err != nil {
			return err
		}
	}

	for _, cmd := range rec.Commands {
		if _, err := tx.Exec(
			`INSERT INTO commands (session_id, seq, timestamp_ns, type, source, delta, target) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, rec.Seq, int64(cmd.Timestamp), string(cmd.Type), string(cmd.Source), cmd.Payload.Delta, cmd.Payload.Target,
		); err != nil {
			return err
		}
	}

	result, err := tx.Exec(`UPDATE sessions SET ticks = ticks + 1 WHERE id = ?`, sessionID)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

// List returns the recorded hands of a session in tick order. Events and
// commands are not loaded; replay recomputes them.
func (r *TickRepository) List(sessionID string) ([]TickRecord, error) {
	rows, err := r.db.Query(
		`SELECT seq, timestamp_ns, hands FROM ticks WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []TickRecord
	for rows.Next() {
		var rec TickRecord
		var ts int64
		var hands string
		if err := rows.Scan(&rec.Seq, &ts, &hands); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Duration(ts)
		if err := json.Unmarshal([]byte(hands), &rec.Hands); err != nil {
			return nil, fmt.Errorf("decode hands at seq %d: %w", rec.Seq, err)
		}
		ticks = append(ticks, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ticks, nil
}

// Events returns the gesture events of a session in the order recorded.
func (r *TickRepository) Events(sessionID string) ([]EventRecord, error) {
	rows, err := r.db.Query(
		`SELECT seq, timestamp_ns, kind, hand_ids, magnitude FROM events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var rec EventRecord
		var ts int64
		var kind, ids string
		if err := rows.Scan(&rec.Seq, &ts, &kind, &ids, &rec.Magnitude); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Duration(ts)
		rec.Kind = model.GestureKind(kind)
		if err := json.Unmarshal([]byte(ids), &rec.HandIDs); err != nil {
			return nil, fmt.Errorf("decode hand ids: %w", err)
		}
		events = append(events, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Commands returns the dispatched commands of a session in the order recorded.
func (r *TickRepository) Commands(sessionID string) ([]model.ControlCommand, error) {
	rows, err := r.db.Query(
		`SELECT timestamp_ns, type, source, delta, target FROM commands WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []model.ControlCommand
	for rows.Next() {
		var cmd model.ControlCommand
		var ts int64
		var typ, source string
		if err := rows.Scan(&ts, &typ, &source, &cmd.Payload.Delta, &cmd.Payload.Target); err != nil {
			return nil, err
		}
		cmd.Timestamp = time.Duration(ts)
		cmd.Type = model.CommandType(typ)
		cmd.Source = model.GestureKind(source)
		cmds = append(cmds, cmd)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cmds, nil
}
