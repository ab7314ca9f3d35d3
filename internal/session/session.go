// Package session maps session ids to running games. It creates games in the
// background, serializes the turns of each game and fans updates out to
// every observer of a session.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tatianab/roguellm/internal/apperr"
	"github.com/tatianab/roguellm/internal/game"
	"github.com/tatianab/roguellm/internal/models"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusCreating Status = "creating"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

// subscriberBuffer is how many updates an observer may fall behind before it
// is dropped.
const subscriberBuffer = 64

// Session is one game and its observers.
type Session struct {
	id       string
	registry *Registry

	// turn serializes every access to machine.
	turn    sync.Mutex
	machine *game.Machine
	seq     uint64

	mu         sync.Mutex
	status     Status
	err        error
	hash       string
	subs       map[*Subscription]struct{}
	lastActive time.Time
}

func (s *Session) ID() string { return s.id }

// Status returns the session status and, when it failed, why.
func (s *Session) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

// ContentHash identifies the session's world once it is ready.
func (s *Session) ContentHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hash
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.registry.now()
	s.mu.Unlock()
}

// Subscription receives the updates of one session in order.
type Subscription struct {
	C <-chan models.Update

	ch      chan models.Update
	session *Session
	once    sync.Once
}

// Close detaches the subscription. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.session.unsubscribe(sub)
}

// Subscribe attaches a new observer.
func (s *Session) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeLocked()
}

func (s *Session) subscribeLocked() *Subscription {
	ch := make(chan models.Update, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, session: s}
	s.subs[sub] = struct{}{}
	s.lastActive = s.registry.now()
	return sub
}

func (s *Session) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(sub)
}

func (s *Session) dropLocked(sub *Subscription) {
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	sub.once.Do(func() { close(sub.ch) })
}

// Observers returns the number of attached observers.
func (s *Session) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Attach subscribes a new observer and reports the status at that moment.
// Status changes after the call arrive on the subscription.
func (s *Session) Attach() (*Subscription, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeLocked(), s.status, s.err
}

// broadcast delivers u to every observer. An observer whose buffer is full
// is dropped rather than allowed to stall the session.
func (s *Session) broadcast(u models.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(u)
}

func (s *Session) broadcastLocked(u models.Update) {
	for sub := range s.subs {
		select {
		case sub.ch <- u:
		default:
			log.Printf("session %s: dropping slow observer", s.id)
			s.dropLocked(sub)
		}
	}
}

func (s *Session) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		s.dropLocked(sub)
	}
}

func (s *Session) ready(m *game.Machine) {
	s.turn.Lock()
	s.machine = m
	s.turn.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusReady
	s.hash = m.ContentHash()
	s.broadcastLocked(StatusUpdate(StatusReady))
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
	s.err = err
	s.broadcastLocked(ErrorUpdate(FailureMessage(err), nil))
}

// StatusUpdate reports a lifecycle status to observers.
func StatusUpdate(status Status) models.Update {
	return models.Update{Type: models.UpdateTypeStatus, DescriptionRaw: string(status), Description: string(status)}
}

// ErrorUpdate reports msg to observers, with the game state when there is one.
func ErrorUpdate(msg string, state *models.GameState) models.Update {
	return models.Update{Type: models.UpdateTypeError, State: state, DescriptionRaw: msg, Description: msg}
}

// FailureMessage is the user-facing explanation of a failed creation.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Creating the world took too long. Please try again."
	case apperr.CodeOf(err) == apperr.CodeNotFound:
		return "That world does not exist."
	case apperr.CodeOf(err) == apperr.CodeValidation:
		return err.Error()
	case apperr.CodeOf(err) == apperr.CodeStorage:
		return "The world could not be saved. Please try again."
	}
	return "The world could not be created. Please try again."
}

// Turn is the result of one action. Update is the mechanical result, already
// delivered to every observer. If the update is narrated, an enriched copy
// with the same Seq follows it; Wait returns that copy.
type Turn struct {
	Update   models.Update
	enriched models.Update
	done     chan struct{}
}

// Wait blocks until the enriched update exists and returns it. Turns without
// narration return the mechanical update at once.
func (t *Turn) Wait(ctx context.Context) (models.Update, error) {
	select {
	case <-t.done:
		return t.enriched, nil
	case <-ctx.Done():
		return models.Update{}, ctx.Err()
	}
}

// Do applies one action. The mechanical update is broadcast before Do
// returns; the narrated follow-up is produced in the background and always
// reaches observers after it.
func (s *Session) Do(ctx context.Context, a game.Action) (*Turn, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	status, _ := s.Status()
	if status != StatusReady {
		return nil, apperr.New(apperr.CodeState, "session is not ready")
	}
	s.touch()

	s.turn.Lock()
	res := s.machine.Handle(ctx, a)
	s.seq++
	res.Update.Seq = s.seq
	s.broadcast(res.Update)
	s.turn.Unlock()

	t := &Turn{Update: res.Update, enriched: res.Update, done: make(chan struct{})}
	if res.Narration == nil {
		close(t.done)
		return t, nil
	}
	if !s.registry.goEnrich(func(ctx context.Context) { s.enrich(ctx, t, res.Narration) }) {
		close(t.done)
	}
	return t, nil
}

func (s *Session) enrich(ctx context.Context, t *Turn, n *game.Narration) {
	defer close(t.done)
	text := s.machine.Narrate(ctx, n)

	s.turn.Lock()
	s.machine.Remember(n, text)
	s.turn.Unlock()

	u := t.Update
	u.Description = text
	u.Enriched = true
	t.enriched = u
	s.broadcast(u)
}

// Snapshot returns the current game state, or nil while creating.
func (s *Session) Snapshot() *models.GameState {
	s.turn.Lock()
	defer s.turn.Unlock()
	if s.machine == nil {
		return nil
	}
	return s.machine.State()
}

func (s *Session) idleSince() (time.Time, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, len(s.subs)
}
