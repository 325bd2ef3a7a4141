package store

import (
	"database/sql"
	"errors"
	"time"
)

// Binding is a persisted override of one gesture's command mapping.
type Binding struct {
	Kind       string    `json:"kind"`
	Command    string    `json:"command"`
	Scale      float64   `json:"scale"`
	CooldownMs int64     `json:"cooldown_ms"`
	Enabled    bool      `json:"enabled"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BindingRepository provides CRUD operations for binding overrides.
type BindingRepository struct {
	db *sql.DB
}

// Bindings returns the binding repository for this store.
func (s *Store) Bindings() *BindingRepository {
	return &BindingRepository{db: s.db}
}

// Upsert inserts or replaces the binding for b.Kind.
func (r *BindingRepository) Upsert(b *Binding) error {
	b.UpdatedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO bindings (kind, command, scale, cooldown_ms, enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kind) DO UPDATE SET
		   command = excluded.command,
		   scale = excluded.scale,
		   cooldown_ms = excluded.cooldown_ms,
		   enabled = excluded.enabled,
		   updated_at = excluded.updated_at`,
		b.Kind, b.Command, b.Scale, b.CooldownMs, b.Enabled, b.UpdatedAt,
	)
	return err
}

// Get retrieves the override for kind.
func (r *BindingRepository) Get(kind string) (*Binding, error) {
	b := &Binding{}
	var enabled int

	err := r.db.QueryRow(
		`SELECT kind, command, scale, cooldown_ms, enabled, updated_at FROM bindings WHERE kind = ?`,
		kind,
	).Scan(&b.Kind, &b.Command, &b.Scale, &b.CooldownMs, &enabled, &b.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	b.Enabled = enabled != 0
	return b, nil
}

// List retrieves every override ordered by kind.
func (r *BindingRepository) List() ([]*Binding, error) {
	rows, err := r.db.Query(
		`SELECT kind, command, scale, cooldown_ms, enabled, updated_at FROM bindings ORDER BY kind`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []*Binding
	for rows.Next() {
		b := &Binding{}
		var enabled int
		if err := rows.Scan(&b.Kind, &b.Command, &b.Scale, &b.CooldownMs, &enabled, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Enabled = enabled != 0
		bindings = append(bindings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bindings, nil
}

// Delete removes the override for kind.
func (r *BindingRepository) Delete(kind string) error {
	result, err := r.db.Exec(`DELETE FROM bindings WHERE kind = ?`, kind)
	if err != nil {
		return err
	}
	return affectedOne(result)
}
