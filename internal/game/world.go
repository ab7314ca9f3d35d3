package game

import (
	"context"
	"errors"
	"log"

	"github.com/tatianab/roguellm/internal/apperr"
	"github.com/tatianab/roguellm/internal/dice"
	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/placement"
	"github.com/tatianab/roguellm/internal/store"
)

// Builder realizes worlds: a map and its placements for a definition set.
type Builder struct {
	store     store.ContentStore
	gw        *gateway.Gateway
	placement *placement.Engine
	fallback  []models.CellType
}

func NewBuilder(st store.ContentStore, gw *gateway.Gateway) (*Builder, error) {
	samples, err := models.Samples()
	if err != nil {
		return nil, err
	}
	return &Builder{
		store:     st,
		gw:        gw,
		placement: placement.New(gw),
		fallback:  samples.CellTypes,
	}, nil
}

// CellTypes returns the cell types a world over defs is built from.
func (b *Builder) CellTypes(defs *models.DefinitionSet) []models.CellType {
	if len(defs.CellTypes) > 0 {
		return defs.CellTypes
	}
	return b.fallback
}

// Build returns the world cached for defs, or lays out, places and caches a
// new one. A generated map of the wrong shape fails the build. A world whose
// placements could not be generated is played but not cached.
func (b *Builder) Build(ctx context.Context, defs *models.DefinitionSet, rules models.Rules, rng dice.Roller) (*models.Instance, error) {
	cached, err := b.store.GetInstance(ctx, defs.Hash)
	switch {
	case err == nil && cached.Map.Width == rules.Width && cached.Map.Height == rules.Height:
		return cached, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, apperr.Wrap(apperr.CodeStorage, "load world", err)
	}

	theme := gateway.Theme{Raw: defs.Theme, Expanded: defs.ExpandedTheme, Language: defs.Language}
	m, err := b.layOut(ctx, theme, defs, rules, rng)
	if err != nil {
		return nil, err
	}

	placements, err := b.placement.Generate(ctx, theme, m, defs)
	degraded := err != nil
	if degraded {
		log.Printf("game: placing entities for %s: %v", defs.Hash, err)
		placements = nil
	}

	inst := &models.Instance{Hash: defs.Hash, Map: m, Placements: placements}
	switch {
	case cached != nil:
		// Built for other rules; do not replace the cached world.
		return inst, nil
	case degraded:
		// Play the empty world but let a later build place entities again.
		return inst, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	stored, err := b.store.PutInstance(ctx, inst)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorage, "store world", err)
	}
	if !stored {
		// Someone else built this world first; play theirs.
		if winner, err := b.store.GetInstance(ctx, defs.Hash); err == nil {
			return winner, nil
		}
	}
	return inst, nil
}

func (b *Builder) layOut(ctx context.Context, theme gateway.Theme, defs *models.DefinitionSet, rules models.Rules, rng dice.Roller) (models.Map, error) {
	cellTypes := b.CellTypes(defs)
	if fixed, ok := rules.FixedMap(); ok {
		err := fixed.Validate(&models.DefinitionSet{CellTypes: cellTypes})
		if err == nil {
			return fixed, nil
		}
		log.Printf("game: ignoring fixed map: %v", err)
	}
	if len(defs.CellTypes) == 0 {
		return RandomMap(cellTypes, rules.Width, rules.Height, rng), nil
	}
	return b.gw.LayOutMap(ctx, theme, cellTypes, rules.Width, rules.Height)
}

// RandomMap fills a width x height grid with cell types drawn from rng.
func RandomMap(cellTypes []models.CellType, width, height int, rng dice.Roller) models.Map {
	cells := make([][]string, height)
	for y := range cells {
		cells[y] = make([]string, width)
		for x := range cells[y] {
			cells[y][x] = cellTypes[rng.IntN(len(cellTypes))].ID
		}
	}
	return models.Map{Width: width, Height: height, Cells: cells}
}
