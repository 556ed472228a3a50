package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lootbox-backend/internal/config"
	"lootbox-backend/internal/models"
)

type Submitter interface {
	Submit(ctx context.Context, tx models.TransactionSpec) (models.SubmitResult, error)
}

type Refresher interface {
	RefreshBalance(ctx context.Context, owner string) error
	RefreshInventory(ctx context.Context, owner string) error
	RefreshLootBoxes(ctx context.Context, owner string) error
}

type HistoryStore interface {
	SaveOpening(ctx context.Context, rec *models.OpeningRecord) error
}

type OpenerConfig struct {
	OpenTarget     string
	OpenManyTarget string
	TypeArguments  []string
	GameConfigID   string
	RandomObjectID string
	RewardType     string

	ShakeDuration      time.Duration
	IntenseDuration    time.Duration
	FrameDuration      time.Duration
	RevealFrames       int
	SubmissionInterval time.Duration
	SettleDelay        time.Duration

	// Aggregate submits a whole batch in one transaction.
	Aggregate    bool
	MaxBatchSize int

	TxLink func(digest string) string
}

func NewOpenerConfig(cfg *config.Config) OpenerConfig {
	return OpenerConfig{
		OpenTarget:         cfg.MoveTarget("open_loot_box"),
		OpenManyTarget:     cfg.MoveTarget("open_loot_boxes"),
		TypeArguments:      []string{cfg.CoinType},
		GameConfigID:       cfg.GameConfigID,
		RandomObjectID:     cfg.RandomObjectID,
		RewardType:         cfg.GameItemType(),
		ShakeDuration:      cfg.Opening.ShakeDuration,
		IntenseDuration:    cfg.Opening.IntenseDuration,
		FrameDuration:      cfg.Opening.FrameDuration,
		RevealFrames:       cfg.Opening.RevealFrames,
		SubmissionInterval: cfg.Opening.SubmissionInterval,
		SettleDelay:        cfg.Opening.SettleDelay,
		Aggregate:          cfg.Opening.BatchMode == config.BatchModeAggregate,
		MaxBatchSize:       cfg.Opening.MaxBatchSize,
		TxLink:             cfg.TxLink,
	}
}

type OpenerDeps struct {
	Submitter   Submitter
	Ledger      LedgerClient
	Resolver    *ConfirmationResolver
	Refresher   Refresher
	Notifier    Notifier
	Broadcaster Broadcaster
	History     HistoryStore
	Clock       clockwork.Clock
	Logger      zerolog.Logger
}

// Openers hands out one Opener per owner so each wallet has at most one
// opening in flight.
type Openers struct {
	mu      sync.Mutex
	cfg     OpenerConfig
	deps    OpenerDeps
	byOwner map[string]*Opener
}

func NewOpeners(cfg OpenerConfig, deps OpenerDeps) *Openers {
	return &Openers{
		cfg:     cfg,
		deps:    deps,
		byOwner: make(map[string]*Opener),
	}
}

func (o *Openers) For(owner string) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()

	opener, ok := o.byOwner[owner]
	if !ok {
		opener = NewOpener(owner, o.cfg, o.deps)
		o.byOwner[owner] = opener
	}
	return opener
}

func (o *Openers) lookup(owner string) (*Opener, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	opener, ok := o.byOwner[owner]
	return opener, ok
}

// Open starts a single open for owner and returns the opener driving it.
func (o *Openers) Open(ctx context.Context, owner string, box models.LootBox) (*Opener, models.OpeningSession, error) {
	for {
		opener := o.For(owner)
		s, err := opener.Open(ctx, box)
		if errors.Is(err, errOpenerRetired) {
			continue
		}
		return opener, s, err
	}
}

func (o *Openers) OpenBatch(ctx context.Context, owner string, boxes []models.LootBox) (*Opener, models.OpeningSession, error) {
	for {
		opener := o.For(owner)
		s, err := opener.OpenBatch(ctx, boxes)
		if errors.Is(err, errOpenerRetired) {
			continue
		}
		return opener, s, err
	}
}

// Session reports owner's current session without registering an opener.
func (o *Openers) Session(owner string) models.OpeningSession {
	if opener, ok := o.lookup(owner); ok {
		return opener.Session()
	}
	return models.IdleSession()
}

func (o *Openers) Cancel(owner string) (bool, error) {
	opener, ok := o.lookup(owner)
	if !ok {
		return false, ErrNoActiveSession
	}
	return opener.Cancel()
}

func (o *Openers) Dismiss(owner string) bool {
	opener, ok := o.lookup(owner)
	if !ok {
		return false
	}
	return opener.Dismiss()
}

// CleanupIdle drops the openers of owners with nothing in flight and reports
// how many were removed.
func (o *Openers) CleanupIdle() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	for owner, opener := range o.byOwner {
		if opener.retireIfIdle() {
			delete(o.byOwner, owner)
			removed++
		}
	}
	return removed
}

func (o *Openers) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.byOwner)
}

// Opener drives loot box openings for one owner through the phases of
// models.OpeningSession.
type Opener struct {
	owner  string
	cfg    OpenerConfig
	deps   OpenerDeps
	clock  clockwork.Clock
	logger zerolog.Logger

	mu       sync.Mutex
	session  models.OpeningSession
	current  *openingRun
	lastDone chan struct{}
	// retired openers have left the registry and refuse new runs.
	retired bool
}

type openingRun struct {
	id    string
	ctrl  *CancellationController
	work  context.Context
	done  chan struct{}
	known map[string]struct{}
}

var (
	errStaleRun      = errors.New("opening run was replaced")
	errOpenerRetired = errors.New("opener retired")
)

func NewOpener(owner string, cfg OpenerConfig, deps OpenerDeps) *Opener {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Opener{
		owner:   owner,
		cfg:     cfg,
		deps:    deps,
		clock:   clock,
		logger:  deps.Logger.With().Str("owner", owner).Logger(),
		session: models.IdleSession(),
	}
}

func (o *Opener) Session() models.OpeningSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Clone()
}

// Open starts opening one box. The flow continues in the background; the
// returned snapshot is the session as it entered the shaking phase.
func (o *Opener) Open(ctx context.Context, box models.LootBox) (models.OpeningSession, error) {
	if box.ID == "" {
		return o.Session(), ErrNothingToOpen
	}
	run, snapshot, err := o.begin(ctx, models.ModeSingle, []models.LootBox{box})
	if err != nil {
		return snapshot, err
	}
	go o.execute(run, o.runSingle)
	return snapshot, nil
}

// OpenBatch starts opening boxes in order, either one submission per box or
// one aggregate submission depending on configuration.
func (o *Opener) OpenBatch(ctx context.Context, boxes []models.LootBox) (models.OpeningSession, error) {
	if len(boxes) == 0 {
		return o.Session(), ErrNothingToOpen
	}
	if !o.cfg.Aggregate && o.cfg.MaxBatchSize > 0 && len(boxes) > o.cfg.MaxBatchSize {
		return o.Session(), fmt.Errorf("%w: %d boxes, limit is %d", ErrBatchTooLarge, len(boxes), o.cfg.MaxBatchSize)
	}
	seen := make(map[string]struct{}, len(boxes))
	for _, box := range boxes {
		if _, dup := seen[box.ID]; dup {
			return o.Session(), fmt.Errorf("%w: %s", ErrDuplicateTarget, box.ID)
		}
		seen[box.ID] = struct{}{}
	}

	mode, flow := models.ModeBatch, o.runPerBox
	if o.cfg.Aggregate {
		mode, flow = models.ModeAggregate, o.runAggregate
	}

	run, snapshot, err := o.begin(ctx, mode, boxes)
	if err != nil {
		return snapshot, err
	}
	go o.execute(run, flow)
	return snapshot, nil
}

// Wait blocks until the most recent opening flow has settled.
func (o *Opener) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.lastDone
	o.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts the current opening if nothing has been submitted yet.
func (o *Opener) Cancel() (bool, error) {
	o.mu.Lock()
	s, run := o.session, o.current

	if !s.Phase.Active() {
		o.mu.Unlock()
		return false, ErrNoActiveSession
	}
	if run == nil || s.SubmissionStarted || !s.Phase.Cancellable() || run.ctrl.RequestCancel() != nil {
		o.mu.Unlock()
		o.notify(models.NotificationInfo, "Cannot cancel: the box was already submitted", "")
		return false, ErrAlreadySubmitted
	}

	cancelled, err := models.Transition(s, models.Event{Kind: models.EventCancel, At: o.clock.Now()})
	if err != nil {
		o.mu.Unlock()
		return false, err
	}
	o.setLocked(cancelled)
	o.settleLocked(cancelled)
	rec := o.record(cancelled, models.OutcomeCancelled, "")
	o.mu.Unlock()

	o.logger.Info().Str("session_id", s.ID).Str("phase", string(s.Phase)).Msg("opening cancelled")
	o.notify(models.NotificationInfo, "Opening cancelled", "")
	o.saveHistory(rec)
	return true, nil
}

// Dismiss closes the reveal screen. It is a no-op outside the revealing phase.
func (o *Opener) Dismiss() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	next, err := models.Transition(o.session, models.Event{Kind: models.EventDismiss, At: o.clock.Now()})
	if err != nil {
		return false
	}
	o.setLocked(next)
	return true
}

func (o *Opener) retireIfIdle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session.Phase != models.PhaseIdle || o.current != nil {
		return false
	}
	o.retired = true
	return true
}

func (o *Opener) begin(ctx context.Context, mode models.OpeningMode, boxes []models.LootBox) (*openingRun, models.OpeningSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.retired {
		return nil, o.session.Clone(), errOpenerRetired
	}
	if o.session.Phase.Active() {
		return nil, o.session.Clone(), ErrSessionActive
	}

	id := models.GenerateSessionID()
	next, err := models.Transition(o.session, models.Event{
		Kind:      models.EventOpen,
		At:        o.clock.Now(),
		SessionID: id,
		Owner:     o.owner,
		Mode:      mode,
		Targets:   boxes,
	})
	if err != nil {
		return nil, o.session.Clone(), err
	}

	work := context.WithoutCancel(ctx)
	run := &openingRun{
		id:   id,
		ctrl: NewCancellationController(work),
		work: work,
		done: make(chan struct{}),
	}
	o.current = run
	o.lastDone = run.done
	o.setLocked(next)

	o.logger.Info().Str("session_id", id).Str("mode", string(mode)).Int("boxes", len(boxes)).Msg("opening started")
	return run, next.Clone(), nil
}

func (o *Opener) execute(run *openingRun, flow func(context.Context, *openingRun)) {
	ctx, span := tracer.Start(run.work, "opener.Open", trace.WithAttributes(
		attribute.String("opening.session_id", run.id),
		attribute.String("opening.owner", o.owner),
	))

	defer close(run.done)
	defer span.End()
	defer run.ctrl.Release()
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("opening panicked: %v", p)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.fail(run, err, "Failed to open: unexpected error")
		}
	}()

	flow(ctx, run)
}

func (o *Opener) runSingle(ctx context.Context, run *openingRun) {
	s := o.Session()
	box := s.Targets[0]

	run.known = o.snapshotInventory(run)

	if !o.prelude(run) {
		return
	}

	res, err := o.submit(ctx, o.openSpec(box))
	if err != nil {
		o.fail(run, err, "Failed to open: "+err.Error())
		return
	}
	if o.advance(run, models.Event{Kind: models.EventSubmissionAcknowledged, Digest: res.Digest}) != nil {
		return
	}

	o.playReveal(ctx)

	resolution := o.deps.Resolver.Resolve(ctx, ResolveRequest{
		Digest: res.Digest,
		Owner:  o.owner,
		Limit:  1,
		Known:  run.known,
	})

	if len(resolution.Records) > 0 {
		rec := resolution.Records[0]
		o.reveal(run, resolution.Records,
			fmt.Sprintf("You got %s (%s, power %d)!", rec.Name, rec.Rarity, rec.Power),
			o.txLink(res.Digest))
	} else {
		o.complete(run, "Item received! Check your inventory.", o.txLink(res.Digest))
	}

	o.refreshAll(ctx)
}

func (o *Opener) runPerBox(ctx context.Context, run *openingRun) {
	if !o.prelude(run) {
		return
	}

	targets := o.Session().Targets
	submitted := 0
	for i, box := range targets {
		if i > 0 {
			if err := wait(ctx, o.clock, o.cfg.SubmissionInterval); err != nil {
				o.fail(run, err, "Failed to open boxes: "+err.Error())
				return
			}
		}

		res, err := o.submit(ctx, o.openSpec(box))
		if err != nil {
			o.logger.Warn().Err(err).Str("session_id", run.id).Str("box_id", box.ID).Msg("box submission rejected")
			if o.advance(run, models.Event{
				Kind:    models.EventTargetFailed,
				Failure: models.TargetFailure{BoxID: box.ID, Reason: err.Error()},
			}) != nil {
				return
			}
			continue
		}

		submitted++
		if o.advance(run, models.Event{Kind: models.EventSubmissionAcknowledged, Digest: res.Digest}) != nil {
			return
		}

		resolution := o.deps.Resolver.Resolve(ctx, ResolveRequest{Digest: res.Digest, Owner: o.owner, Limit: 1})
		if len(resolution.Records) > 0 {
			if o.advance(run, models.Event{Kind: models.EventResult, Records: resolution.Records[:1]}) != nil {
				return
			}
		}
	}

	if submitted == 0 {
		o.fail(run, fmt.Errorf("all %d submissions rejected", len(targets)),
			fmt.Sprintf("Failed to open %d boxes", len(targets)))
		return
	}

	if o.advance(run, models.Event{Kind: models.EventSubmissionsComplete}) != nil {
		return
	}
	o.playReveal(ctx)
	o.finishBatch(ctx, run, "")
}

func (o *Opener) runAggregate(ctx context.Context, run *openingRun) {
	if !o.prelude(run) {
		return
	}

	targets := o.Session().Targets
	res, err := o.submit(ctx, o.openManySpec(targets))
	if err != nil {
		o.fail(run, err, fmt.Sprintf("Failed to open %d boxes: %s", len(targets), err.Error()))
		return
	}
	if o.advance(run, models.Event{Kind: models.EventSubmissionAcknowledged, Digest: res.Digest}) != nil {
		return
	}

	o.playReveal(ctx)

	resolution := o.deps.Resolver.Resolve(ctx, ResolveRequest{Digest: res.Digest, Owner: o.owner, Limit: len(targets)})
	if len(resolution.Records) > 0 {
		if o.advance(run, models.Event{Kind: models.EventResult, Records: resolution.Records}) != nil {
			return
		}
	}

	o.finishBatch(ctx, run, o.txLink(res.Digest))
}

// prelude runs the cancellable shaking and intense phases and then locks the
// run in. It reports false when the run must stop.
func (o *Opener) prelude(run *openingRun) bool {
	token := run.ctrl.Context()

	if err := wait(token, o.clock, o.cfg.ShakeDuration); err != nil {
		o.abandon(run, err)
		return false
	}
	if o.advance(run, models.Event{Kind: models.EventShakeElapsed}) != nil {
		return false
	}

	if err := wait(token, o.clock, o.cfg.IntenseDuration); err != nil {
		o.abandon(run, err)
		return false
	}
	return o.lockIn(run) == nil
}

func (o *Opener) finishBatch(ctx context.Context, run *openingRun, link string) {
	s := o.Session()
	total := len(s.Targets)
	opened := total - len(s.Failures)

	if len(s.Results) > 0 {
		msg := fmt.Sprintf("Opened %d boxes!", opened)
		if len(s.Failures) > 0 {
			msg = fmt.Sprintf("Opened %d of %d boxes, %d failed", opened, total, len(s.Failures))
		}
		o.reveal(run, nil, msg, link)
	} else {
		msg := "Boxes opened! Check your inventory."
		if len(s.Failures) > 0 {
			msg = fmt.Sprintf("Opened %d of %d boxes, %d failed. Check your inventory.", opened, total, len(s.Failures))
		}
		o.complete(run, msg, link)
	}

	if err := wait(ctx, o.clock, o.cfg.SettleDelay); err == nil {
		o.refreshAll(ctx)
	}
}

func (o *Opener) submit(ctx context.Context, tx models.TransactionSpec) (models.SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "opener.Submit", trace.WithAttributes(attribute.String("tx.target", tx.Target)))
	defer span.End()

	res, err := o.deps.Submitter.Submit(ctx, tx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.String("tx.digest", res.Digest))
	return res, nil
}

func (o *Opener) playReveal(ctx context.Context) {
	d := o.cfg.FrameDuration * time.Duration(o.cfg.RevealFrames)
	if err := wait(ctx, o.clock, d); err != nil {
		o.logger.Debug().Err(err).Msg("reveal animation interrupted")
	}
}

// snapshotInventory records the rewards owned before submission so a new one
// can be told apart later. A nil result disables that fallback.
func (o *Opener) snapshotInventory(run *openingRun) map[string]struct{} {
	if o.deps.Ledger == nil {
		return nil
	}

	objects, err := o.deps.Ledger.ListOwnedObjects(run.ctrl.Context(), o.owner, o.cfg.RewardType)
	if err != nil {
		o.logger.Warn().Err(err).Str("session_id", run.id).Msg("inventory snapshot unavailable")
		return nil
	}

	known := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		known[obj.ID] = struct{}{}
	}
	return known
}

func (o *Opener) advance(run *openingRun, ev models.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != run {
		return errStaleRun
	}
	return o.applyLocked(ev)
}

func (o *Opener) lockIn(run *openingRun) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != run {
		return errStaleRun
	}
	if err := run.ctrl.LockIn(); err != nil {
		return err
	}
	if err := o.applyLocked(models.Event{Kind: models.EventSubmissionStarted}); err != nil {
		return err
	}

	o.logger.Info().Str("session_id", run.id).Msg("submission started")
	return nil
}

func (o *Opener) applyLocked(ev models.Event) error {
	ev.At = o.clock.Now()
	next, err := models.Transition(o.session, ev)
	if err != nil {
		o.logger.Error().Err(err).Str("session_id", o.session.ID).Msg("rejected session transition")
		return err
	}
	o.setLocked(next)
	return nil
}

func (o *Opener) reveal(run *openingRun, records []models.RewardRecord, msg, link string) {
	o.mu.Lock()
	if o.current != run {
		o.mu.Unlock()
		return
	}
	if len(records) > 0 {
		if err := o.applyLocked(models.Event{Kind: models.EventResult, Records: records}); err != nil {
			o.mu.Unlock()
			o.fail(run, err, "Failed to open: "+err.Error())
			return
		}
	}
	if err := o.applyLocked(models.Event{Kind: models.EventReveal}); err != nil {
		o.mu.Unlock()
		o.fail(run, err, "Failed to open: "+err.Error())
		return
	}
	s := o.session.Clone()
	o.current = nil
	o.mu.Unlock()

	o.logger.Info().Str("session_id", s.ID).Int("results", len(s.Results)).Msg("opening revealed")
	o.notify(models.NotificationSuccess, msg, link)
	o.saveHistory(o.record(s, models.OutcomeRevealed, ""))
}

func (o *Opener) complete(run *openingRun, msg, link string) {
	o.mu.Lock()
	if o.current != run {
		o.mu.Unlock()
		return
	}
	s := o.session.Clone()
	if err := o.applyLocked(models.Event{Kind: models.EventComplete}); err != nil {
		o.mu.Unlock()
		o.fail(run, err, "Failed to open: "+err.Error())
		return
	}
	o.current = nil
	o.mu.Unlock()

	o.logger.Info().Str("session_id", s.ID).Msg("opening completed without visible reward")
	o.notify(models.NotificationSuccess, msg, link)
	o.saveHistory(o.record(s, models.OutcomeUnseen, ""))
}

func (o *Opener) fail(run *openingRun, cause error, msg string) {
	o.mu.Lock()
	if o.current != run {
		o.mu.Unlock()
		return
	}
	failed, err := models.Transition(o.session, models.Event{Kind: models.EventFail, At: o.clock.Now()})
	if err != nil {
		o.mu.Unlock()
		o.logger.Error().Err(err).Str("session_id", run.id).Msg("cannot fail session")
		return
	}
	o.setLocked(failed)
	o.settleLocked(failed)
	o.mu.Unlock()

	o.logger.Error().Err(cause).Str("session_id", run.id).Msg("opening failed")
	o.notify(models.NotificationError, msg, "")
	o.saveHistory(o.record(failed, models.OutcomeFailed, cause.Error()))
}

// abandon handles a pre-submission wait that returned early. A wait cut short
// by Cancel needs nothing more: Cancel has already reset the session.
func (o *Opener) abandon(run *openingRun, err error) {
	if run.ctrl.Cancelled() {
		return
	}
	o.fail(run, err, "Failed to open: "+err.Error())
}

// settleLocked resets a cancelled or failed session to idle and releases the run.
func (o *Opener) settleLocked(s models.OpeningSession) {
	idle, err := models.Transition(s, models.Event{Kind: models.EventReset, At: o.clock.Now()})
	if err != nil {
		o.logger.Error().Err(err).Str("session_id", s.ID).Msg("cannot reset session")
		return
	}
	o.current = nil
	o.setLocked(idle)
}

func (o *Opener) setLocked(s models.OpeningSession) {
	o.session = s
	if o.deps.Broadcaster != nil {
		o.deps.Broadcaster.BroadcastSession(o.owner, s.Clone())
	}
}

func (o *Opener) record(s models.OpeningSession, outcome models.OpeningOutcome, errMsg string) *models.OpeningRecord {
	return &models.OpeningRecord{
		SessionID: s.ID,
		Owner:     o.owner,
		Mode:      s.Mode,
		Outcome:   outcome,
		Targets:   s.Targets,
		Results:   s.Results,
		Failures:  s.Failures,
		Digests:   s.Digests,
		Error:     errMsg,
		StartedAt: s.StartedAt,
		EndedAt:   o.clock.Now(),
	}
}

func (o *Opener) saveHistory(rec *models.OpeningRecord) {
	if o.deps.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deps.History.SaveOpening(ctx, rec); err != nil {
		o.logger.Warn().Err(err).Str("session_id", rec.SessionID).Msg("failed to save opening history")
	}
}

func (o *Opener) notify(kind models.NotificationKind, msg, link string) {
	if o.deps.Notifier == nil {
		return
	}
	o.deps.Notifier.Notify(models.Notification{
		Owner:   o.owner,
		Kind:    kind,
		Message: msg,
		Link:    link,
	})
}

func (o *Opener) refreshAll(ctx context.Context) {
	if o.deps.Refresher == nil {
		return
	}
	if err := o.deps.Refresher.RefreshLootBoxes(ctx, o.owner); err != nil {
		o.logger.Warn().Err(err).Msg("failed to refresh loot boxes")
	}
	if err := o.deps.Refresher.RefreshInventory(ctx, o.owner); err != nil {
		o.logger.Warn().Err(err).Msg("failed to refresh inventory")
	}
	if err := o.deps.Refresher.RefreshBalance(ctx, o.owner); err != nil {
		o.logger.Warn().Err(err).Msg("failed to refresh balance")
	}
}

func (o *Opener) openSpec(box models.LootBox) models.TransactionSpec {
	return models.TransactionSpec{
		Sender:        o.owner,
		Target:        o.cfg.OpenTarget,
		TypeArguments: o.cfg.TypeArguments,
		Arguments:     []any{o.cfg.GameConfigID, box.ID, o.cfg.RandomObjectID},
	}
}

func (o *Opener) openManySpec(boxes []models.LootBox) models.TransactionSpec {
	ids := make([]string, 0, len(boxes))
	for _, box := range boxes {
		ids = append(ids, box.ID)
	}
	return models.TransactionSpec{
		Sender:        o.owner,
		Target:        o.cfg.OpenManyTarget,
		TypeArguments: o.cfg.TypeArguments,
		Arguments:     []any{o.cfg.GameConfigID, ids, o.cfg.RandomObjectID},
	}
}

func (o *Opener) txLink(digest string) string {
	if o.cfg.TxLink == nil || digest == "" {
		return ""
	}
	return o.cfg.TxLink(digest)
}

// wait is a suspension point that honours ctx and stops its timer on return.
func wait(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return context.Cause(ctx)
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.Chan():
		return nil
	}
}
