package services_test

import (
	"context"
	"errors"
	"sync"

	"lootbox-backend/internal/models"
)

type fakeSubmitter struct {
	mu         sync.Mutex
	calls      []models.TransactionSpec
	SubmitFunc func(ctx context.Context, tx models.TransactionSpec) (models.SubmitResult, error)
}

func (f *fakeSubmitter) Submit(ctx context.Context, tx models.TransactionSpec) (models.SubmitResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tx)
	f.mu.Unlock()

	if f.SubmitFunc == nil {
		return models.SubmitResult{Digest: "D1", Status: "success"}, nil
	}
	return f.SubmitFunc(ctx, tx)
}

func (f *fakeSubmitter) Calls() []models.TransactionSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TransactionSpec(nil), f.calls...)
}

type fakeLedger struct {
	mu     sync.Mutex
	counts map[string]int

	GetTransactionOutcomeFunc func(ctx context.Context, digest string) (*models.TransactionOutcome, error)
	GetObjectFunc             func(ctx context.Context, id string) (*models.LedgerObject, error)
	ListOwnedObjectsFunc      func(ctx context.Context, owner, structType string) ([]models.LedgerObject, error)
	GetBalanceFunc            func(ctx context.Context, owner, coinType string) (uint64, error)
}

func (f *fakeLedger) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[name]++
}

func (f *fakeLedger) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

func (f *fakeLedger) GetTransactionOutcome(ctx context.Context, digest string, _ models.OutcomeOptions) (*models.TransactionOutcome, error) {
	f.count("GetTransactionOutcome")
	if f.GetTransactionOutcomeFunc == nil {
		return &models.TransactionOutcome{Digest: digest, Status: "success"}, nil
	}
	return f.GetTransactionOutcomeFunc(ctx, digest)
}

func (f *fakeLedger) GetObject(ctx context.Context, id string) (*models.LedgerObject, error) {
	f.count("GetObject")
	if f.GetObjectFunc == nil {
		return nil, errors.New("object not found")
	}
	return f.GetObjectFunc(ctx, id)
}

func (f *fakeLedger) ListOwnedObjects(ctx context.Context, owner, structType string) ([]models.LedgerObject, error) {
	f.count("ListOwnedObjects")
	if f.ListOwnedObjectsFunc == nil {
		return nil, nil
	}
	return f.ListOwnedObjectsFunc(ctx, owner, structType)
}

func (f *fakeLedger) GetBalance(ctx context.Context, owner, coinType string) (uint64, error) {
	f.count("GetBalance")
	if f.GetBalanceFunc == nil {
		return 0, nil
	}
	return f.GetBalanceFunc(ctx, owner, coinType)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (r *recordingNotifier) Notify(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) Notes() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.notes...)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []*models.OpeningRecord
}

func (f *fakeHistory) SaveOpening(_ context.Context, rec *models.OpeningRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeHistory) Records() []*models.OpeningRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.OpeningRecord(nil), f.records...)
}

type countingRefresher struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRefresher) bump(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
	return nil
}

func (c *countingRefresher) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

func (c *countingRefresher) RefreshBalance(context.Context, string) error {
	return c.bump("balance")
}

func (c *countingRefresher) RefreshInventory(context.Context, string) error {
	return c.bump("inventory")
}

func (c *countingRefresher) RefreshLootBoxes(context.Context, string) error {
	return c.bump("lootboxes")
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	phases []models.Phase
	notes  int
}

func (r *recordingBroadcaster) BroadcastSession(_ string, s models.OpeningSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, s.Phase)
}

func (r *recordingBroadcaster) BroadcastNotification(models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes++
}

func (r *recordingBroadcaster) Phases() []models.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Phase(nil), r.phases...)
}
