package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the repository for the users table. It doubles as the local
// Profiles backend: updates performed through it are published to row
// subscribers, standing in for the hosted backend's change-notification
// channel.
type Users interface {
	Profiles

	GetByEmail(ctx context.Context, email string) (*UserProfile, error)
	IncrementTokenCount(ctx context.Context, id uuid.UUID, delta int) (*UserProfile, error)
}

type users struct {
	repository.Repository[*UserProfile]
	db  *bun.DB
	hub *rowHub
}

var (
	_ Users    = (*users)(nil)
	_ Profiles = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*UserProfile](db, repository.ModelHandlers[*UserProfile]{
		NewRecord: func() *UserProfile { return &UserProfile{} },
		GetID: func(p *UserProfile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *UserProfile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
		hub:        newRowHub(),
	}
}

// Insert creates the profile row. Defaults are applied for status, role,
// and timestamps; a duplicate id surfaces the driver's error unmodified.
func (a *users) Insert(ctx context.Context, record *UserProfile) (*UserProfile, error) {
	prepareProfileDefaults(record)
	return a.Repository.CreateTx(ctx, a.db, record)
}

// Select loads the row for the id, returning a record-not-found error
// when none exists.
func (a *users) Select(ctx context.Context, id uuid.UUID) (*UserProfile, error) {
	record := &UserProfile{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

// Update applies a partial column update and publishes the fresh row to
// subscribers, mirroring the hosted backend's UPDATE notifications.
func (a *users) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	q := a.db.NewUpdate().
		Model((*UserProfile)(nil)).
		Where("?TableAlias.id = ?", id)
	for column, value := range fields {
		q = q.Set("? = ?", bun.Ident(column), value)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	if record, err := a.Select(ctx, id); err == nil {
		a.hub.publish(record)
	}
	return nil
}

func (a *users) OnRowUpdate(id uuid.UUID, fn func(*UserProfile)) Unsubscribe {
	return a.hub.subscribe(id, fn)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*UserProfile, error) {
	return a.Repository.GetByIdentifierTx(ctx, a.db, email)
}

// IncrementTokenCount bumps the profile's token counter atomically in the
// database and publishes the result.
func (a *users) IncrementTokenCount(ctx context.Context, id uuid.UUID, delta int) (*UserProfile, error) {
	now := time.Now()
	_, err := a.db.NewUpdate().
		Model((*UserProfile)(nil)).
		Set("token_count = token_count + ?", delta).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	record, err := a.Select(ctx, id)
	if err != nil {
		return nil, err
	}
	a.hub.publish(record)
	return record, nil
}

func prepareProfileDefaults(record *UserProfile) {
	if record == nil {
		return
	}
	record.EnsureStatus()
	if record.Role == "" {
		record.Role = RoleStudent
	}
	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}

// rowHub fans row updates out to per-id subscribers.
type rowHub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[int]func(*UserProfile)
	next int
}

func newRowHub() *rowHub {
	return &rowHub{subs: map[uuid.UUID]map[int]func(*UserProfile){}}
}

func (h *rowHub) subscribe(id uuid.UUID, fn func(*UserProfile)) Unsubscribe {
	h.mu.Lock()
	token := h.next
	h.next++
	if h.subs[id] == nil {
		h.subs[id] = map[int]func(*UserProfile){}
	}
	h.subs[id][token] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if m := h.subs[id]; m != nil {
				delete(m, token)
				if len(m) == 0 {
					delete(h.subs, id)
				}
			}
			h.mu.Unlock()
		})
	}
}

func (h *rowHub) publish(record *UserProfile) {
	if record == nil {
		return
	}
	h.mu.Lock()
	fns := make([]func(*UserProfile), 0, len(h.subs[record.ID]))
	for _, fn := range h.subs[record.ID] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(record.Clone())
	}
}
