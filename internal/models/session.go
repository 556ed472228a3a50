package models

import (
	"errors"
	"fmt"
	"time"
)

type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseShaking            Phase = "shaking"
	PhaseIntense            Phase = "intense"
	PhaseAwaitingSubmission Phase = "awaiting_submission"
	PhaseRevealingAnimation Phase = "revealing_animation"
	PhaseRevealing          Phase = "revealing"
	PhaseCancelled          Phase = "cancelled"
	PhaseFailed             Phase = "failed"
)

// Cancellable reports whether the phase is before the point of no return.
func (p Phase) Cancellable() bool {
	return p == PhaseShaking || p == PhaseIntense
}

// Active reports whether a session in this phase blocks a new open.
func (p Phase) Active() bool {
	return p != PhaseIdle
}

type OpeningMode string

const (
	ModeSingle    OpeningMode = "single"
	ModeBatch     OpeningMode = "batch"
	ModeAggregate OpeningMode = "aggregate"
)

type TargetFailure struct {
	BoxID  string `json:"box_id"`
	Reason string `json:"reason"`
}

type OpeningSession struct {
	ID                string          `json:"id,omitempty"`
	Owner             string          `json:"owner,omitempty"`
	Mode              OpeningMode     `json:"mode,omitempty"`
	Phase             Phase           `json:"phase"`
	Targets           []LootBox       `json:"targets"`
	Results           []RewardRecord  `json:"results"`
	Failures          []TargetFailure `json:"failures"`
	Digests           []string        `json:"digests"`
	SubmissionStarted bool            `json:"submission_started"`
	Cancelled         bool            `json:"cancelled"`
	StartedAt         time.Time       `json:"started_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at,omitempty"`
}

func IdleSession() OpeningSession {
	return OpeningSession{Phase: PhaseIdle}
}

// Clone returns a copy that shares no slices with s.
func (s OpeningSession) Clone() OpeningSession {
	s.Targets = append([]LootBox(nil), s.Targets...)
	s.Results = append([]RewardRecord(nil), s.Results...)
	s.Failures = append([]TargetFailure(nil), s.Failures...)
	s.Digests = append([]string(nil), s.Digests...)
	return s
}

func (s OpeningSession) maxResults() int {
	if s.Mode == ModeSingle {
		return 1
	}
	return len(s.Targets)
}

type EventKind string

const (
	EventOpen                   EventKind = "open"
	EventShakeElapsed           EventKind = "shake_elapsed"
	EventSubmissionStarted      EventKind = "submission_started"
	EventSubmissionAcknowledged EventKind = "submission_acknowledged"
	EventSubmissionsComplete    EventKind = "submissions_complete"
	EventResult                 EventKind = "result"
	EventTargetFailed           EventKind = "target_failed"
	EventReveal                 EventKind = "reveal"
	EventComplete               EventKind = "complete"
	EventDismiss                EventKind = "dismiss"
	EventCancel                 EventKind = "cancel"
	EventFail                   EventKind = "fail"
	EventReset                  EventKind = "reset"
)

// Event is an input to Transition. Only the fields relevant to Kind are read.
type Event struct {
	Kind EventKind
	At   time.Time

	// open
	SessionID string
	Owner     string
	Mode      OpeningMode
	Targets   []LootBox

	// submission_acknowledged
	Digest string

	// result
	Records []RewardRecord

	// target_failed
	Failure TargetFailure
}

var ErrInvalidTransition = errors.New("invalid session transition")

func invalid(s OpeningSession, ev Event) error {
	return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Kind, s.Phase)
}

// Transition applies ev to s and returns the next session. s is never modified.
func Transition(s OpeningSession, ev Event) (OpeningSession, error) {
	next := s.Clone()
	next.UpdatedAt = ev.At

	switch ev.Kind {
	case EventOpen:
		if s.Phase != PhaseIdle {
			return s, invalid(s, ev)
		}
		if len(ev.Targets) == 0 {
			return s, fmt.Errorf("%w: open without targets", ErrInvalidTransition)
		}
		if ev.Mode == ModeSingle && len(ev.Targets) != 1 {
			return s, fmt.Errorf("%w: single open with %d targets", ErrInvalidTransition, len(ev.Targets))
		}
		return OpeningSession{
			ID:        ev.SessionID,
			Owner:     ev.Owner,
			Mode:      ev.Mode,
			Phase:     PhaseShaking,
			Targets:   append([]LootBox(nil), ev.Targets...),
			StartedAt: ev.At,
			UpdatedAt: ev.At,
		}, nil

	case EventShakeElapsed:
		if s.Phase != PhaseShaking {
			return s, invalid(s, ev)
		}
		next.Phase = PhaseIntense

	case EventSubmissionStarted:
		if s.Phase != PhaseIntense || s.Cancelled || s.SubmissionStarted {
			return s, invalid(s, ev)
		}
		next.Phase = PhaseAwaitingSubmission
		next.SubmissionStarted = true

	case EventSubmissionAcknowledged:
		if s.Phase != PhaseAwaitingSubmission {
			return s, invalid(s, ev)
		}
		if ev.Digest != "" {
			next.Digests = append(next.Digests, ev.Digest)
		}
		if s.Mode != ModeBatch {
			next.Phase = PhaseRevealingAnimation
		}

	case EventResult:
		if s.Phase != PhaseAwaitingSubmission && s.Phase != PhaseRevealingAnimation {
			return s, invalid(s, ev)
		}
		if len(s.Results)+len(ev.Records) > s.maxResults() {
			return s, fmt.Errorf("%w: %d results exceed %d targets",
				ErrInvalidTransition, len(s.Results)+len(ev.Records), s.maxResults())
		}
		next.Results = append(next.Results, ev.Records...)

	case EventTargetFailed:
		if s.Phase != PhaseAwaitingSubmission || s.Mode != ModeBatch {
			return s, invalid(s, ev)
		}
		next.Failures = append(next.Failures, ev.Failure)

	case EventSubmissionsComplete:
		if s.Phase != PhaseAwaitingSubmission || s.Mode != ModeBatch {
			return s, invalid(s, ev)
		}
		next.Phase = PhaseRevealingAnimation

	case EventReveal:
		if s.Phase != PhaseRevealingAnimation {
			return s, invalid(s, ev)
		}
		if len(s.Results) == 0 {
			return s, fmt.Errorf("%w: reveal without results", ErrInvalidTransition)
		}
		next.Phase = PhaseRevealing

	case EventComplete:
		if s.Phase != PhaseRevealingAnimation {
			return s, invalid(s, ev)
		}
		return IdleSession(), nil

	case EventDismiss:
		if s.Phase != PhaseRevealing {
			return s, invalid(s, ev)
		}
		return IdleSession(), nil

	case EventCancel:
		if !s.Phase.Cancellable() || s.SubmissionStarted {
			return s, invalid(s, ev)
		}
		next.Phase = PhaseCancelled
		next.Cancelled = true

	case EventFail:
		switch s.Phase {
		case PhaseIdle, PhaseCancelled, PhaseFailed, PhaseRevealing:
			return s, invalid(s, ev)
		}
		next.Phase = PhaseFailed

	case EventReset:
		if s.Phase != PhaseCancelled && s.Phase != PhaseFailed {
			return s, invalid(s, ev)
		}
		return IdleSession(), nil

	default:
		return s, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Kind)
	}

	return next, nil
}

// OpeningOutcome classifies how a session ended.
type OpeningOutcome string

const (
	OutcomeRevealed  OpeningOutcome = "revealed"
	OutcomeUnseen    OpeningOutcome = "opened_unseen"
	OutcomeCancelled OpeningOutcome = "cancelled"
	OutcomeFailed    OpeningOutcome = "failed"
)

// OpeningRecord is the history entry written when a session settles.
type OpeningRecord struct {
	SessionID string          `json:"session_id"`
	Owner     string          `json:"owner"`
	Mode      OpeningMode     `json:"mode"`
	Outcome   OpeningOutcome  `json:"outcome"`
	Targets   []LootBox       `json:"targets"`
	Results   []RewardRecord  `json:"results"`
	Failures  []TargetFailure `json:"failures,omitempty"`
	Digests   []string        `json:"digests,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
}
