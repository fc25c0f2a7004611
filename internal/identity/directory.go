package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/crafthub/engage/internal/models"
)

var ErrNotFound = errors.New("actor not found")

// Actor is a directory record for either actor kind. AverageRating is the
// provider's reputation score; it is zero for requesters and for providers
// with no rated engagements.
type Actor struct {
	ID            uuid.UUID        `json:"id"`
	Kind          models.ActorKind `json:"kind"`
	DisplayName   string           `json:"displayName"`
	Contact       string           `json:"contact"`
	Experience    string           `json:"experience,omitempty"`
	AverageRating float64          `json:"averageRating"`
}

// Directory is the thin adapter over the external identity system. The core
// uses it for attribution, bid-time snapshots, notification fan-out targets,
// and the provider reputation write-back.
type Directory interface {
	Resolve(ctx context.Context, id uuid.UUID) (Actor, error)
	ListProviderIDs(ctx context.Context) ([]uuid.UUID, error)
	UpdateProviderScore(ctx context.Context, id uuid.UUID, score float64) error
}

// PGDirectory reads the actors table the identity system maintains.
//
// Expected schema:
//
//	actors (id uuid PK, kind text, display_name text, contact text,
//	        experience text, average_rating double precision DEFAULT 0)
type PGDirectory struct {
	db *sql.DB
}

func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

func (d *PGDirectory) Resolve(ctx context.Context, id uuid.UUID) (Actor, error) {
	const query = `
		SELECT id, kind, display_name, contact, experience, average_rating
		FROM actors
		WHERE id = $1
	`
	var (
		a          Actor
		experience sql.NullString
	)
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID,
		&a.Kind,
		&a.DisplayName,
		&a.Contact,
		&experience,
		&a.AverageRating,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Actor{}, ErrNotFound
		}
		return Actor{}, fmt.Errorf("select actor: %w", err)
	}
	a.Experience = experience.String
	return a, nil
}

func (d *PGDirectory) ListProviderIDs(ctx context.Context) ([]uuid.UUID, error) {
	const query = `SELECT id FROM actors WHERE kind = 'provider'`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan provider id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("providers rows err: %w", err)
	}
	return ids, nil
}

func (d *PGDirectory) UpdateProviderScore(ctx context.Context, id uuid.UUID, score float64) error {
	res, err := d.db.ExecContext(ctx, `UPDATE actors SET average_rating = $2 WHERE id = $1`, id, score)
	if err != nil {
		return fmt.Errorf("update provider score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update provider score rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryDirectory is an in-process Directory for tests.
type MemoryDirectory struct {
	mu     sync.RWMutex
	actors map[uuid.UUID]Actor
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{actors: map[uuid.UUID]Actor{}}
}

func (d *MemoryDirectory) Put(a Actor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actors[a.ID] = a
}

func (d *MemoryDirectory) Resolve(ctx context.Context, id uuid.UUID) (Actor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.actors[id]
	if !ok {
		return Actor{}, ErrNotFound
	}
	return a, nil
}

func (d *MemoryDirectory) ListProviderIDs(ctx context.Context) ([]uuid.UUID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []uuid.UUID
	for id, a := range d.actors {
		if a.Kind == models.ActorKindProvider {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (d *MemoryDirectory) UpdateProviderScore(ctx context.Context, id uuid.UUID, score float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.actors[id]
	if !ok {
		return ErrNotFound
	}
	a.AverageRating = score
	d.actors[id] = a
	return nil
}
