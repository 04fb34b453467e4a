package survey

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/wordmine/wordmine/internal/errs"
)

// SessionStore persists survey sessions between steps. Implementations must
// return errs.ErrNotFound for unknown ids and errs.ErrConflict from Acquire
// while another step holds the session.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error

	// Acquire takes the session's in-flight lock. The returned release
	// must be called once the step finishes.
	Acquire(ctx context.Context, id string) (release func(), err error)
}

// Service wires the survey engine to session storage and enforces the
// one-step-in-flight rule per session.
type Service struct {
	engine *Engine
	store  SessionStore
	seed   func() int64
}

// NewService creates the survey step service.
func NewService(engine *Engine, store SessionStore) *Service {
	return &Service{
		engine: engine,
		store:  store,
		seed:   func() int64 { return time.Now().UnixNano() },
	}
}

// Seed replaces the per-step PRNG seed source. The simulator fixes it for
// reproducible sessions; production keeps the clock default.
func (s *Service) Seed(fn func() int64) {
	if fn != nil {
		s.seed = fn
	}
}

// ProcessStep runs one survey step end to end. A call without a session id
// starts a new session. Graded progress is persisted even when the next
// question cannot be generated, so the session stays resumable.
func (s *Service) ProcessStep(ctx context.Context, in *StepInput) (*StepResult, error) {
	rng := rand.New(rand.NewSource(s.seed()))

	if in.SessionID == "" {
		if in.PriorAnswer != nil {
			return nil, errs.Validation("prior answer submitted without a session id")
		}
		sess := NewSession(newSessionID(), s.engine.now())
		result, err := s.engine.Step(rng, sess, in)
		if err != nil {
			return nil, err
		}
		if err := s.store.Put(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to persist new survey session %s: %w", sess.ID, err)
		}
		return result, nil
	}

	release, err := s.store.Acquire(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.store.Get(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	result, stepErr := s.engine.Step(rng, sess, in)
	if stepErr == nil || errors.Is(stepErr, errs.ErrNoCandidate) {
		if err := s.store.Put(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to persist survey session %s: %w", sess.ID, err)
		}
	}
	return result, stepErr
}

func newSessionID() string {
	return "svy_" + uuid.New().String()
}
