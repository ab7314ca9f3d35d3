package session

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tatianab/roguellm/internal/apperr"
	"github.com/tatianab/roguellm/internal/definitions"
	"github.com/tatianab/roguellm/internal/dice"
	"github.com/tatianab/roguellm/internal/game"
	"github.com/tatianab/roguellm/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// layoutSalt derives the map layout seed from a session seed.
const layoutSalt = 0x6c61796f7574

// CreateRequest asks for a new game on a theme or on an existing world.
type CreateRequest struct {
	Theme       string  `json:"theme"`
	Language    string  `json:"language"`
	ContentHash string  `json:"content_hash,omitempty"`
	Seed        *uint64 `json:"seed,omitempty"`
}

func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.Theme) == "" && r.ContentHash == "" {
		return apperr.New(apperr.CodeValidation, "a theme or a content hash is required")
	}
	return nil
}

// Options tunes a Registry. Zero values select the defaults.
type Options struct {
	Rules         models.Rules
	CreateTimeout time.Duration
	IdleTTL       time.Duration
	// EnrichTimeout bounds the narration of a single update.
	EnrichTimeout time.Duration
}

// Registry owns every live session.
type Registry struct {
	defs     *definitions.Manager
	builder  *game.Builder
	narrator game.Narrator
	opts     Options
	now      func() time.Time
	tracer   trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewRegistry(defs *definitions.Manager, builder *game.Builder, narrator game.Narrator, opts Options) *Registry {
	if opts.Rules.Width == 0 {
		opts.Rules = models.DefaultRules()
	}
	if opts.CreateTimeout <= 0 {
		opts.CreateTimeout = 90 * time.Second
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 2 * time.Hour
	}
	if opts.EnrichTimeout <= 0 {
		opts.EnrichTimeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		defs:     defs,
		builder:  builder,
		narrator: narrator,
		opts:     opts,
		now:      time.Now,
		tracer:   otel.Tracer("github.com/tatianab/roguellm/internal/session"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Create registers a session and builds its game in the background. The
// session is returned immediately in the creating state.
func (r *Registry) Create(req CreateRequest) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		id:       uuid.NewString(),
		registry: r,
		status:   StatusCreating,
		subs:     make(map[*Subscription]struct{}),
	}
	s.lastActive = r.now()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, apperr.New(apperr.CodeState, "server is shutting down")
	}
	r.sessions[s.id] = s
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.build(s, req)
	}()
	return s, nil
}

func (r *Registry) build(s *Session, req CreateRequest) {
	ctx, cancel := context.WithTimeout(r.ctx, r.opts.CreateTimeout)
	defer cancel()
	ctx, span := r.tracer.Start(ctx, "session.Create", trace.WithAttributes(
		attribute.String("roguellm.session_id", s.id),
	))
	defer span.End()

	m, err := r.newMachine(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		log.Printf("session %s: creation failed: %v", s.id, err)
		s.fail(err)
		return
	}
	span.SetAttributes(attribute.String("roguellm.content_hash", m.ContentHash()))
	s.ready(m)
	log.Printf("session %s: ready (%s)", s.id, m.ContentHash())
}

func (r *Registry) newMachine(ctx context.Context, req CreateRequest) (*game.Machine, error) {
	defs, err := r.defs.LoadOrCreate(ctx, req.Theme, req.Language, req.ContentHash)
	if err != nil {
		return nil, err
	}
	seed := rand.Uint64()
	if req.Seed != nil {
		seed = *req.Seed
	}
	// Game rolls for a seed must not depend on whether the world was cached.
	world, err := r.builder.Build(ctx, defs, r.opts.Rules, dice.New(seed^layoutSalt))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return game.New(defs, world, r.builder.CellTypes(defs), r.opts.Rules, r.narrator, dice.New(seed)), nil
}

// Get returns a live session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperr.WithMetadata(apperr.CodeNotFound, "session not found", map[string]string{"session_id": id})
	}
	return s, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// goEnrich runs fn in the background unless the registry is closing.
func (r *Registry) goEnrich(fn func(ctx context.Context)) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.ctx, r.opts.EnrichTimeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}

// Sweep removes sessions that have had no observers and no actions for the
// idle TTL, and returns how many it removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.opts.IdleTTL)
	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		last, observers := s.idleSince()
		if observers == 0 && last.Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.closeAll()
		log.Printf("session %s: expired", s.id)
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx ends.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(max(r.opts.IdleTTL/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close cancels pending creations and narrations, waits for them, and
// detaches every observer.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(errors.New("sessions did not stop in time"), ctx.Err())
	}

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.closeAll()
	}
	return err
}
