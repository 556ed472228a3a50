package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"lootbox-backend/internal/models"
	"lootbox-backend/internal/services"
)

const (
	testOwner      = "0xa11ce"
	testRewardType = "0xpkg::loot_box::GameItem"
)

type harness struct {
	clock     *clockwork.FakeClock
	submitter *fakeSubmitter
	ledger    *fakeLedger
	notifier  *recordingNotifier
	history   *fakeHistory
	refresher *countingRefresher
	broadcast *recordingBroadcaster
	cfg       services.OpenerConfig
}

func newHarness() *harness {
	return &harness{
		clock:     clockwork.NewFakeClock(),
		submitter: &fakeSubmitter{},
		ledger:    &fakeLedger{},
		notifier:  &recordingNotifier{},
		history:   &fakeHistory{},
		refresher: &countingRefresher{},
		broadcast: &recordingBroadcaster{},
		cfg: services.OpenerConfig{
			OpenTarget:         "0xpkg::loot_box::open_loot_box",
			OpenManyTarget:     "0xpkg::loot_box::open_loot_boxes",
			TypeArguments:      []string{"0x2::sui::SUI"},
			GameConfigID:       "0xcfg",
			RandomObjectID:     "0x8",
			RewardType:         testRewardType,
			ShakeDuration:      2 * time.Second,
			IntenseDuration:    1500 * time.Millisecond,
			FrameDuration:      100 * time.Millisecond,
			RevealFrames:       5,
			SubmissionInterval: 500 * time.Millisecond,
			SettleDelay:        time.Second,
			MaxBatchSize:       10,
			TxLink: func(digest string) string {
				return "https://explorer/tx/" + digest
			},
		},
	}
}

func (h *harness) deps() services.OpenerDeps {
	resolver := services.NewConfirmationResolver(h.ledger, services.ResolverConfig{
		RewardType: testRewardType,
		Retry:      services.RetryPolicy{MaxRetries: 5, Delay: 500 * time.Millisecond, Clock: h.clock},
		Logger:     zerolog.Nop(),
	})
	return services.OpenerDeps{
		Submitter:   h.submitter,
		Ledger:      h.ledger,
		Resolver:    resolver,
		Refresher:   h.refresher,
		Notifier:    h.notifier,
		Broadcaster: h.broadcast,
		History:     h.history,
		Clock:       h.clock,
		Logger:      zerolog.Nop(),
	}
}

func (h *harness) opener() *services.Opener {
	return services.NewOpener(testOwner, h.cfg, h.deps())
}

// await blocks until the flow is parked on a timer.
func (h *harness) await(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
}

func (h *harness) step(t *testing.T, d time.Duration) {
	t.Helper()
	h.await(t)
	h.clock.Advance(d)
}

// finish fires every remaining timer until the flow settles.
func (h *harness) finish(t *testing.T, o *services.Opener) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Wait(ctx) }()

	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			return
		default:
		}

		waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Millisecond)
		if h.clock.BlockUntilContext(waitCtx, 1) == nil {
			h.clock.Advance(time.Minute)
		}
		waitCancel()
	}
}

func rewardEvent(id string, rarity, power int) models.LedgerEvent {
	return models.LedgerEvent{
		Type:       "0xpkg::loot_box::LootBoxOpened",
		ParsedJSON: json.RawMessage(fmt.Sprintf(`{"item_id":%q,"rarity":%d,"power":"%d"}`, id, rarity, power)),
	}
}

func compact(phases []models.Phase) []models.Phase {
	var out []models.Phase
	for _, p := range phases {
		if len(out) == 0 || out[len(out)-1] != p {
			out = append(out, p)
		}
	}
	return out
}

func TestOpenRevealsEventReward(t *testing.T) {
	h := newHarness()
	h.ledger.GetTransactionOutcomeFunc = func(_ context.Context, digest string) (*models.TransactionOutcome, error) {
		return &models.TransactionOutcome{Digest: digest, Events: []models.LedgerEvent{rewardEvent("0xitem", 2, 42)}}, nil
	}
	o := h.opener()

	s, err := o.Open(t.Context(), models.LootBox{ID: "0xbox"})
	require.NoError(t, err)
	require.Equal(t, models.PhaseShaking, s.Phase)
	require.False(t, s.SubmissionStarted)

	h.finish(t, o)

	s = o.Session()
	require.Equal(t, models.PhaseRevealing, s.Phase)
	require.True(t, s.SubmissionStarted)
	require.Equal(t, []models.RewardRecord{{ID: "0xitem", Name: "Epic Weapon", Rarity: models.RarityEpic, Power: 42}}, s.Results)
	require.Equal(t, []string{"D1"}, s.Digests)
	require.Zero(t, h.ledger.Count("GetObject"))

	calls := h.submitter.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "0xpkg::loot_box::open_loot_box", calls[0].Target)
	require.Equal(t, []any{"0xcfg", "0xbox", "0x8"}, calls[0].Arguments)

	notes := h.notifier.Notes()
	require.Len(t, notes, 1)
	require.Equal(t, models.NotificationSuccess, notes[0].Kind)
	require.Equal(t, "https://explorer/tx/D1", notes[0].Link)

	records := h.history.Records()
	require.Len(t, records, 1)
	require.Equal(t, models.OutcomeRevealed, records[0].Outcome)

	require.Equal(t, 1, h.refresher.Count("inventory"))
	require.Equal(t, 1, h.refresher.Count("balance"))
	require.Equal(t, 1, h.refresher.Count("lootboxes"))

	require.Equal(t, []models.Phase{
		models.PhaseShaking,
		models.PhaseIntense,
		models.PhaseAwaitingSubmission,
		models.PhaseRevealingAnimation,
		models.PhaseRevealing,
	}, compact(h.broadcast.Phases()))
}

func TestOpenFallsBackToInventoryDiff(t *testing.T) {
	h := newHarness()
	old := models.LedgerObject{ID: "0xold", Version: 3, Fields: json.RawMessage(`{"name":"Common Sword","rarity":0,"power":5}`)}
	fresh := models.LedgerObject{ID: "0xnew", Version: 9, Fields: json.RawMessage(`{"name":"Rare Blade","rarity":"1","power":"17"}`)}

	var listed int
	h.ledger.ListOwnedObjectsFunc = func(_ context.Context, owner, structType string) ([]models.LedgerObject, error) {
		require.Equal(t, testOwner, owner)
		require.Equal(t, testRewardType, structType)
		listed++
		if listed == 1 {
			return []models.LedgerObject{old}, nil
		}
		return []models.LedgerObject{fresh, old}, nil
	}
	o := h.opener()

	_, err := o.Open(t.Context(), models.LootBox{ID: "0xbox"})
	require.NoError(t, err)
	h.finish(t, o)

	s := o.Session()
	require.Equal(t, models.PhaseRevealing, s.Phase)
	require.Equal(t, []models.RewardRecord{{ID: "0xnew", Name: "Rare Blade", Rarity: models.RarityRare, Power: 17}}, s.Results)
	require.Equal(t, 1, h.ledger.Count("GetTransactionOutcome"))
	require.Equal(t, 2, listed)
}

func TestOpenWithoutRewardDataCompletes(t *testing.T) {
	h := newHarness()
	h.ledger.GetTransactionOutcomeFunc = func(context.Context, string) (*models.TransactionOutcome, error) {
		return nil, errors.New("transaction not indexed yet")
	}
	o := h.opener()

	_, err := o.Open(t.Context(), models.LootBox{ID: "0xbox"})
	require.NoError(t, err)
	h.finish(t, o)

	require.Equal(t, models.PhaseIdle, o.Session().Phase)
	require.Equal(t, 6, h.ledger.Count("GetTransactionOutcome"))

	notes := h.notifier.Notes()
	require.Len(t, notes, 1)
	require.Equal(t, "Item received! Check your inventory.", notes[0].Message)

	records := h.history.Records()
	require.Len(t, records, 1)
	require.Equal(t, models.OutcomeUnseen, records[0].Outcome)
	require.Equal(t, []string{"D1"}, records[0].Digests)
}

func TestOpenRejectedSubmissionFails(t *testing.T) {
	h := newHarness()
	h.submitter.SubmitFunc = func(context.Context, models.TransactionSpec) (models.SubmitResult, error) {
		return models.SubmitResult{}, errors.New("user rejected the request")
	}
	o := h.opener()

	_, err := o.Open(t.Context(), models.LootBox{ID: "0xbox"})
	require.NoError(t, err)
	h.finish(t, o)

	require.Equal(t, models.PhaseIdle, o.Session().Phase)
	require.Zero(t, h.ledger.Count("GetTransactionOutcome"))
	require.Len(t, h.submitter.Calls(), 1)

	notes := h.notifier.Notes()
	require.Len(t, notes, 1)
	require.Equal(t, models.NotificationError, notes[0].Kind)
	require.Contains(t, notes[0].Message, "user rejected")

	records := h.history.Records()
	require.Len(t, records, 1)
	require.Equal(t, models.OutcomeFailed, records[0].Outcome)
	require.Contains(t, compact(h.broadcast.Phases()), models.PhaseFailed)
}

func TestCancelDuringIntense(t *testing.T) {
	h := newHarness()
	o := h.opener()

	_, err := o.Open(t.Context(), models.LootBox{ID: "0xbox"})
	require.NoError(t, err)

	h.step(t, 2*time.Second)
	h.await(t)
	require.Equal(t, models.PhaseIntense, o.Session().Phase)

	_, err = o.Open(t.Context(), models.LootBox{ID: "0xother"})
	require.ErrorIs(t, err, services.ErrSessionActive)

	ok, err := o.Cancel()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, o.Wait(t.Context()))

	s := o.Session()
	require.Equal(t, models.PhaseIdle, s.Phase)
	require.False(t, s.SubmissionStarted)
	require.Empty(t, h.submitter.Calls())

	notes := h.notifier.Notes()
	require.Len(t, notes, 1)
	require.Equal(t, models.NotificationInfo, notes[0].Kind)
	require.Equal(t, "Opening cancelled", notes[0].Message)

	records := h.history.Records()
	require.Len(t, records, 1)
	require.Equal(t, models.OutcomeCancelled, records[0].Outcome)

	_, err = o.Cancel()
	require.ErrorIs(t, err, services.ErrNoActiveSession)

	// A fresh open works and can be cancelled straight away.
	_, err = o.Open(t.Context(), models.LootBox{ID: "0xbox2"})
	require.NoError(t, err)
	ok, err = o.Cancel()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, o.Wait(t.Context()))
	require.Empty(t, h.submitter.Calls())
}

func TestCancelAfterSubmissionStarted(t *testing.T) {
	h := newHarness()
	entered := make(chan struct{})
	release := make(chan struct{})
	h.submitter.SubmitFunc = func(context.Context, models.TransactionSpec) (models.SubmitResult, error) {
		close(entered)
		<-release
		return models.SubmitResult{Digest: "D1", Status: "success"}, nil
	}
	o := h.opener()

	_, err := o.Open(t.Context(), models.LootBox{ID: "0xbox"})
	require.NoError(t, err)
	h.step(t, 2*time.Second)
	h.step(t, 1500*time.Millisecond)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never started")
	}

	ok, err := o.Cancel()
	require.ErrorIs(t, err, services.ErrAlreadySubmitted)
	require.False(t, ok)

	s := o.Session()
	require.Equal(t, models.PhaseAwaitingSubmission, s.Phase)
	require.True(t, s.SubmissionStarted)
	require.False(t, s.Cancelled)

	notes := h.notifier.Notes()
	require.Len(t, notes, 1)
	require.Equal(t, models.NotificationInfo, notes[0].Kind)

	close(release)
	h.finish(t, o)
	require.Len(t, h.submitter.Calls(), 1)
	require.Equal(t, models.PhaseIdle, o.Session().Phase)
}

func TestOpenBatchPerBoxPartialFailure(t *testing.T) {
	h := newHarness()
	h.submitter.SubmitFunc = func(_ context.Context, tx models.TransactionSpec) (models.SubmitResult, error) {
		box := tx.Arguments[1].(string)
		if box == "0xb2" {
			return models.SubmitResult{}, errors.New("insufficient gas")
		}
		return models.SubmitResult{Digest: "D-" + box, Status: "success"}, nil
	}
	h.ledger.GetTransactionOutcomeFunc = func(_ context.Context, digest string) (*models.TransactionOutcome, error) {
		switch digest {
		case "D-0xb1":
			return &models.TransactionOutcome{Digest: digest, Events: []models.LedgerEvent{rewardEvent("0xi1", 1, 10)}}, nil
		case "D-0xb3":
			return &models.TransactionOutcome{Digest: digest, Events: []models.LedgerEvent{rewardEvent("0xi3", 3, 99)}}, nil
		}
		return nil, fmt.Errorf("unknown digest %s", digest)
	}
	o := h.opener()

	s, err := o.OpenBatch(t.Context(), []models.LootBox{{ID: "0xb1"}, {ID: "0xb2"}, {ID: "0xb3"}})
	require.NoError(t, err)
	require.Equal(t, models.ModeBatch, s.Mode)
	h.finish(t, o)

	calls := h.submitter.Calls()
	require.Len(t, calls, 3)
	for i, box := range []string{"0xb1", "0xb2", "0xb3"} {
		require.Equal(t, box, calls[i].Arguments[1])
	}

	s = o.Session()
	require.Equal(t, models.PhaseRevealing, s.Phase)
	require.Equal(t, []models.RewardRecord{
		{ID: "0xi1", Name: "Rare Blade", Rarity: models.RarityRare, Power: 10},
		{ID: "0xi3", Name: "Legendary Artifact", Rarity: models.RarityLegendary, Power: 99},
	}, s.Results)
	require.Len(t, s.Failures, 1)
	require.Equal(t, "0xb2", s.Failures[0].BoxID)
	require.Contains(t, s.Failures[0].Reason, "insufficient gas")
	require.Equal(t, []string{"D-0xb1", "D-0xb3"}, s.Digests)

	notes := h.notifier.Notes()
	require.Len(t, notes, 1)
	require.Equal(t, "Opened 2 of 3 boxes, 1 failed", notes[0].Message)
	require.Equal(t, 1, h.refresher.Count("lootboxes"))
}

func TestOpenBatchAllRejectedFails(t *testing.T) {
	h := newHarness()
	h.submitter.SubmitFunc = func(context.Context, models.TransactionSpec) (models.SubmitResult, error) {
		return models.SubmitResult{}, errors.New("rejected")
	}
	o := h.opener()

	_, err := o.OpenBatch(t.Context(), []models.LootBox{{ID: "0xb1"}, {ID: "0xb2"}})
	require.NoError(t, err)
	h.finish(t, o)

	require.Equal(t, models.PhaseIdle, o.Session().Phase)
	require.Len(t, h.submitter.Calls(), 2)

	notes := h.notifier.Notes()
	require.Len(t, notes, 1)
	require.Equal(t, models.NotificationError, notes[0].Kind)

	records := h.history.Records()
	require.Len(t, records, 1)
	require.Equal(t, models.OutcomeFailed, records[0].Outcome)
	require.Len(t, records[0].Failures, 2)
}

func TestOpenBatchAggregate(t *testing.T) {
	h := newHarness()
	h.cfg.Aggregate = true
	h.ledger.GetTransactionOutcomeFunc = func(_ context.Context, digest string) (*models.TransactionOutcome, error) {
		return &models.TransactionOutcome{Digest: digest, Events: []models.LedgerEvent{
			rewardEvent("0xi1", 0, 1),
			rewardEvent("0xi2", 1, 2),
			rewardEvent("0xi3", 2, 3),
		}}, nil
	}
	o := h.opener()

	s, err := o.OpenBatch(t.Context(), []models.LootBox{{ID: "0xb1"}, {ID: "0xb2"}, {ID: "0xb3"}})
	require.NoError(t, err)
	require.Equal(t, models.ModeAggregate, s.Mode)
	h.finish(t, o)

	calls := h.submitter.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "0xpkg::loot_box::open_loot_boxes", calls[0].Target)
	require.Equal(t, []any{"0xcfg", []string{"0xb1", "0xb2", "0xb3"}, "0x8"}, calls[0].Arguments)

	s = o.Session()
	require.Equal(t, models.PhaseRevealing, s.Phase)
	require.Len(t, s.Results, 3)
	require.Equal(t, "Opened 3 boxes!", h.notifier.Notes()[0].Message)
}

func TestOpenBatchValidation(t *testing.T) {
	h := newHarness()
	h.cfg.MaxBatchSize = 2
	o := h.opener()

	_, err := o.OpenBatch(t.Context(), nil)
	require.ErrorIs(t, err, services.ErrNothingToOpen)

	_, err = o.Open(t.Context(), models.LootBox{})
	require.ErrorIs(t, err, services.ErrNothingToOpen)

	_, err = o.OpenBatch(t.Context(), []models.LootBox{{ID: "0xb1"}, {ID: "0xb1"}})
	require.ErrorIs(t, err, services.ErrDuplicateTarget)

	_, err = o.OpenBatch(t.Context(), []models.LootBox{{ID: "0xb1"}, {ID: "0xb2"}, {ID: "0xb3"}})
	require.ErrorIs(t, err, services.ErrBatchTooLarge)

	require.Equal(t, models.PhaseIdle, o.Session().Phase)
	require.Empty(t, h.broadcast.Phases())
	require.Empty(t, h.submitter.Calls())
	require.NoError(t, o.Wait(t.Context()))
}

func TestDismiss(t *testing.T) {
	h := newHarness()
	h.ledger.GetTransactionOutcomeFunc = func(_ context.Context, digest string) (*models.TransactionOutcome, error) {
		return &models.TransactionOutcome{Digest: digest, Events: []models.LedgerEvent{rewardEvent("0xitem", 0, 3)}}, nil
	}
	o := h.opener()

	require.False(t, o.Dismiss())
	require.False(t, o.Dismiss())
	require.Equal(t, models.PhaseIdle, o.Session().Phase)
	require.Empty(t, h.broadcast.Phases())

	_, err := o.Open(t.Context(), models.LootBox{ID: "0xbox"})
	require.NoError(t, err)
	h.finish(t, o)
	require.Equal(t, models.PhaseRevealing, o.Session().Phase)

	require.True(t, o.Dismiss())
	require.Equal(t, models.PhaseIdle, o.Session().Phase)
	require.False(t, o.Dismiss())
}

func TestOpenersPerOwner(t *testing.T) {
	h := newHarness()
	openers := services.NewOpeners(h.cfg, services.OpenerDeps{Clock: h.clock, Logger: zerolog.Nop()})

	a := openers.For("0xa")
	require.Same(t, a, openers.For("0xa"))
	require.NotSame(t, a, openers.For("0xb"))
}

func TestOpenersReadsDoNotRegister(t *testing.T) {
	h := newHarness()
	openers := services.NewOpeners(h.cfg, h.deps())

	require.Equal(t, models.PhaseIdle, openers.Session(testOwner).Phase)
	_, err := openers.Cancel(testOwner)
	require.ErrorIs(t, err, services.ErrNoActiveSession)
	require.False(t, openers.Dismiss(testOwner))
	require.Zero(t, openers.Len())
	require.Empty(t, h.notifier.Notes())
}

func TestOpenersCleanupIdle(t *testing.T) {
	h := newHarness()
	openers := services.NewOpeners(h.cfg, h.deps())

	first, s, err := openers.Open(t.Context(), testOwner, models.LootBox{ID: "0xbox"})
	require.NoError(t, err)
	require.Equal(t, models.PhaseShaking, s.Phase)
	require.Equal(t, 1, openers.Len())

	// An opening in flight keeps its opener.
	require.Zero(t, openers.CleanupIdle())
	require.Equal(t, models.PhaseShaking, openers.Session(testOwner).Phase)

	ok, err := openers.Cancel(testOwner)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, first.Wait(t.Context()))

	require.Equal(t, 1, openers.CleanupIdle())
	require.Zero(t, openers.Len())

	// A stale reference cannot start a second opening beside the registry.
	_, err = first.Open(t.Context(), models.LootBox{ID: "0xbox"})
	require.Error(t, err)
	require.Equal(t, models.PhaseIdle, first.Session().Phase)

	second, _, err := openers.Open(t.Context(), testOwner, models.LootBox{ID: "0xbox"})
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Equal(t, 1, openers.Len())

	_, _, err = openers.Open(t.Context(), testOwner, models.LootBox{ID: "0xother"})
	require.ErrorIs(t, err, services.ErrSessionActive)

	ok, err = openers.Cancel(testOwner)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, second.Wait(t.Context()))
	require.Empty(t, h.submitter.Calls())
}
