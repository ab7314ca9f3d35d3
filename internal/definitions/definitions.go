// Package definitions loads or builds the definition set of a theme.
package definitions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/tatianab/roguellm/internal/apperr"
	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// MaxThemeLength bounds the theme text accepted from clients.
const MaxThemeLength = 2000

// Manager builds definition sets once per theme and reuses them afterwards.
type Manager struct {
	store   store.ContentStore
	gw      *gateway.Gateway
	samples *models.DefinitionSet
	group   singleflight.Group
	tracer  trace.Tracer
}

func New(st store.ContentStore, gw *gateway.Gateway) (*Manager, error) {
	samples, err := models.Samples()
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	return &Manager{
		store:   st,
		gw:      gw,
		samples: samples,
		tracer:  otel.Tracer("github.com/tatianab/roguellm/internal/definitions"),
	}, nil
}

// LoadOrCreate returns the definition set for existingHash when given, and a
// miss is a NOT_FOUND error. Otherwise it returns the set previously built for
// the same theme and language, or builds, stores and returns a new one.
func (m *Manager) LoadOrCreate(ctx context.Context, theme, lang, existingHash string) (*models.DefinitionSet, error) {
	ctx, span := m.tracer.Start(ctx, "definitions.LoadOrCreate", trace.WithAttributes(
		attribute.String("roguellm.content_hash", existingHash),
		attribute.String("roguellm.language", lang),
	))
	defer span.End()

	defs, err := m.loadOrCreate(ctx, theme, lang, existingHash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("roguellm.content_hash", defs.Hash))
	return defs, nil
}

func (m *Manager) loadOrCreate(ctx context.Context, theme, lang, existingHash string) (*models.DefinitionSet, error) {
	if existingHash != "" {
		return m.Load(ctx, existingHash)
	}

	theme = strings.TrimSpace(theme)
	if theme == "" {
		return nil, apperr.New(apperr.CodeValidation, "theme is required")
	}
	if len(theme) > MaxThemeLength {
		return nil, apperr.New(apperr.CodeValidation, fmt.Sprintf("theme is longer than %d bytes", MaxThemeLength))
	}
	lang, err := gateway.NormalizeLanguage(lang)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, "invalid language", err)
	}

	key := models.AliasKey(theme, lang)
	v, err, _ := m.group.Do(key, func() (any, error) {
		if defs, err := m.lookupAlias(ctx, key); err == nil || !errors.Is(err, store.ErrNotFound) {
			return defs, err
		}
		return m.create(ctx, key, theme, lang)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.DefinitionSet), nil
}

// Load fetches the definition set stored under hash.
func (m *Manager) Load(ctx context.Context, hash string) (*models.DefinitionSet, error) {
	defs, err := m.store.GetDefinitions(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.WithMetadata(apperr.CodeNotFound, "no world with this content hash", map[string]string{"content_hash": hash})
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorage, "load definitions", err)
	}
	return defs, nil
}

// lookupAlias returns store.ErrNotFound when the theme was never built.
func (m *Manager) lookupAlias(ctx context.Context, key string) (*models.DefinitionSet, error) {
	hash, err := m.store.GetAlias(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorage, "look up theme", err)
	}
	return m.Load(ctx, hash)
}

func (m *Manager) create(ctx context.Context, key, raw, lang string) (*models.DefinitionSet, error) {
	expanded := m.gw.ExpandTheme(ctx, raw, lang, "")
	theme := gateway.Theme{Raw: raw, Expanded: expanded, Language: lang}

	defs := &models.DefinitionSet{Theme: raw, ExpandedTheme: expanded, Language: lang}

	// The four transforms are independent. A failed one leaves its
	// collection empty and never cancels the others.
	var g errgroup.Group
	g.Go(func() error {
		defs.Players = transform(ctx, m.gw, gateway.KindPlayers, m.samples.Players, theme)
		return nil
	})
	g.Go(func() error {
		defs.Items = transform(ctx, m.gw, gateway.KindItems, m.samples.Items, theme)
		return nil
	})
	g.Go(func() error {
		defs.Enemies = transform(ctx, m.gw, gateway.KindEnemies, m.samples.Enemies, theme)
		return nil
	})
	g.Go(func() error {
		defs.CellTypes = transform(ctx, m.gw, gateway.KindCellTypes, m.samples.CellTypes, theme)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.CodeGeneration, "generate definitions", err)
	}

	hash, err := defs.ContentHash()
	if err != nil {
		return nil, fmt.Errorf("hash definitions: %w", err)
	}
	defs.Hash = hash

	if _, err := m.store.PutDefinitions(ctx, defs); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorage, "store definitions", err)
	}
	stored, err := m.store.PutAlias(ctx, key, hash)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorage, "store theme alias", err)
	}
	if !stored {
		// Another process built this theme first; converge on its world.
		if winner, err := m.lookupAlias(ctx, key); err == nil {
			return winner, nil
		}
	}
	log.Printf("definitions: built %q (%s) as %s", models.TitleOf(expanded), lang, hash)
	return defs, nil
}

func transform[T any](ctx context.Context, gw *gateway.Gateway, kind gateway.Kind, sample []T, theme gateway.Theme) []T {
	out, err := gateway.TransformTemplates(ctx, gw, kind, sample, theme)
	if err != nil {
		log.Printf("definitions: %s unavailable: %v", kind.Name, err)
		return nil
	}
	return out
}
