package service

import (
	"context"
	"sync"
	"time"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/queue"
	"github.com/rami-aouinti/shopware-sub000/internal/ratelimit"
	"github.com/rami-aouinti/shopware-sub000/internal/repository"
)

// memoryExportRepo keeps records in memory and copies on every read and write.
type memoryExportRepo struct {
	mu      sync.Mutex
	records map[string]domain.ExportRecord
	order   []string
	updates []domain.ExportRecord

	getDueFn  func(ctx context.Context, now time.Time, limit int) ([]domain.ExportRecord, error)
	claimFn   func(ctx context.Context, id string, now time.Time) (bool, error)
	updateErr error
}

func newMemoryExportRepo() *memoryExportRepo {
	return &memoryExportRepo{records: map[string]domain.ExportRecord{}}
}

func (r *memoryExportRepo) Create(_ context.Context, record *domain.ExportRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = *record
	r.order = append(r.order, record.ID)
	return nil
}

func (r *memoryExportRepo) Update(_ context.Context, record *domain.ExportRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.records[record.ID]; !ok {
		return domain.ErrNotFound
	}
	r.records[record.ID] = *record
	r.updates = append(r.updates, *record)
	return nil
}

func (r *memoryExportRepo) GetByID(_ context.Context, id string) (*domain.ExportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (r *memoryExportRepo) GetLatestByOrderID(_ context.Context, orderID string) (*domain.ExportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		record := r.records[r.order[i]]
		if record.OrderID == orderID {
			return &record, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryExportRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.ExportRecord, error) {
	if r.getDueFn != nil {
		return r.getDueFn(ctx, now, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]domain.ExportRecord, 0)
	for _, id := range r.order {
		record := r.records[id]
		if record.IsDueForRetry(now) {
			due = append(due, record)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (r *memoryExportRepo) ClaimForRetry(ctx context.Context, id string, now time.Time) (bool, error) {
	if r.claimFn != nil {
		return r.claimFn(ctx, id, now)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok || !record.IsDueForRetry(now) {
		return false, nil
	}
	record.Status = domain.ExportStatusProcessing
	record.NextRetryAt = nil
	record.UpdatedAt = now
	r.records[id] = record
	return true, nil
}

func (r *memoryExportRepo) get(id string) domain.ExportRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id]
}

func (r *memoryExportRepo) put(record domain.ExportRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; !ok {
		r.order = append(r.order, record.ID)
	}
	r.records[record.ID] = record
}

// memoryOrderRepo emulates the conditional update of the order table.
type memoryOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order

	getByIDErr     error
	beforeUpdateFn func()
	updateCalls    int
}

func newMemoryOrderRepo(orders ...domain.Order) *memoryOrderRepo {
	repo := &memoryOrderRepo{orders: map[string]domain.Order{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memoryOrderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	if r.getByIDErr != nil {
		return nil, r.getByIDErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &order, nil
}

func (r *memoryOrderRepo) GetStatusSnapshot(ctx context.Context, id string) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryOrderRepo) UpdateStatusIfUnmodified(_ context.Context, id string, expected time.Time, change repository.OrderStatusChange) (bool, error) {
	if r.beforeUpdateFn != nil {
		r.beforeUpdateFn()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	order, ok := r.orders[id]
	if !ok || !order.UpdatedAt.Equal(expected) {
		return false, nil
	}
	order.Status = change.Status
	order.StatusChangedBy = change.ChangedBy
	order.UpdatedAt = change.UpdatedAt
	order.RetryQueue = append([]domain.RetryQueueEntry(nil), change.RetryQueue...)
	r.orders[id] = order
	return true, nil
}

func (r *memoryOrderRepo) get(id string) domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

type fakeSender struct {
	mu       sync.Mutex
	posts    [][]byte
	pulls    []string
	response string
	err      error
	sendFn   func(call int) (string, error)
	calls    int
}

func (f *fakeSender) next() (string, error) {
	f.calls++
	if f.sendFn != nil {
		return f.sendFn(f.calls)
	}
	return f.response, f.err
}

func (f *fakeSender) SendByDirectPost(_ context.Context, _, _ string, xmlBody []byte, _ time.Duration, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, append([]byte(nil), xmlBody...))
	return f.next()
}

func (f *fakeSender) SendBySignedURLPull(_ context.Context, _, _, callbackURL string, _ time.Duration, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, callbackURL)
	return f.next()
}

type fakeSigner struct {
	verifyFn func(token string) (string, error)
}

func (f *fakeSigner) Mint(id string) (string, error) {
	return "tok-" + id, nil
}

func (f *fakeSigner) Verify(token string) (string, error) {
	if f.verifyFn != nil {
		return f.verifyFn(token)
	}
	return "", errInvalidTestToken
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	err      error
}

func (f *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[key] {
		return nil, ratelimit.ErrLockHeld
	}
	f.held[key] = true
	f.acquired = append(f.acquired, key)
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
		return nil
	}, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, scope string) error
	waits  int
}

func (f *fakeRateLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (f *fakeRateLimiter) Wait(ctx context.Context, scope string) error {
	f.waits++
	if f.waitFn != nil {
		return f.waitFn(ctx, scope)
	}
	return nil
}

type publishedMessage struct {
	queue string
	msg   queue.ExportMessage
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, queueName string, msg queue.ExportMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{queue: queueName, msg: msg})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }
