package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

// IdempotencyRepository хранит ключи идемпотентности в памяти процесса.
type IdempotencyRepository struct {
	mu      sync.RWMutex
	records map[string]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт пустое in-memory хранилище ключей.
func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		records: make(map[string]domain.IdempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateProcessing занимает ключ. Просроченный, но ещё не удалённый ключ
// занимается заново, как будто его не было.
func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	now := r.now()
	fresh, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	held, ok := r.records[fresh.Key]
	switch {
	case !ok || held.Expired(now):
		r.records[fresh.Key] = fresh
		return copyRecord(fresh), nil
	case held.RequestHash != fresh.RequestHash:
		return copyRecord(held), domain.ErrIdempotencyHashMismatch
	default:
		return copyRecord(held), domain.ErrIdempotencyKeyAlreadyExists
	}
}

func (r *IdempotencyRepository) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(rec), nil
}

func (r *IdempotencyRepository) MarkDone(_ context.Context, key string, body []byte, code int) error {
	return r.settle(key, domain.IdempotencyStatusDone, body, code)
}

func (r *IdempotencyRepository) MarkFailed(_ context.Context, key string, body []byte, code int) error {
	return r.settle(key, domain.IdempotencyStatusFailed, body, code)
}

// DeleteExpired удаляет до limit просроченных ключей, начиная с истёкших раньше всех.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var victims []domain.IdempotencyRecord
	for _, rec := range r.records {
		if rec.Expired(before) {
			victims = append(victims, rec)
		}
	}
	slices.SortFunc(victims, func(a, b domain.IdempotencyRecord) int { return a.TTLAt.Compare(b.TTLAt) })
	if limit > 0 {
		victims = victims[:min(limit, len(victims))]
	}
	for _, rec := range victims {
		delete(r.records, rec.Key)
	}
	return len(victims), nil
}

func (r *IdempotencyRepository) settle(key string, status domain.IdempotencyStatus, body []byte, code int) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	rec.Status, rec.StatusCode = status, code
	rec.ResponseBody = slices.Clone(body)
	rec.UpdatedAt = r.now()
	r.records[key] = rec
	return nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}

func copyRecord(rec domain.IdempotencyRecord) domain.IdempotencyRecord {
	rec.ResponseBody = slices.Clone(rec.ResponseBody)
	return rec
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
