// Package placement decides where enemies and items go and projects those
// placements onto a game.
package placement

import (
	"context"
	"log"

	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/icons"
	"github.com/tatianab/roguellm/internal/models"
)

// Engine produces placements through the gateway.
type Engine struct {
	gw *gateway.Gateway
}

func New(gw *gateway.Gateway) *Engine {
	return &Engine{gw: gw}
}

// Generate asks for a placement list over m and drops every entry that is out
// of bounds, names an unknown template, or repeats a kind at the same cell.
func (e *Engine) Generate(ctx context.Context, theme gateway.Theme, m models.Map, defs *models.DefinitionSet) ([]models.Placement, error) {
	if len(defs.Enemies) == 0 && len(defs.Items) == 0 {
		return nil, nil
	}
	raw, err := e.gw.PlaceEntities(ctx, theme, m, defs.Enemies, defs.Items)
	if err != nil {
		return nil, err
	}
	return Sanitize(raw, m, defs), nil
}

// Sanitize filters placements down to the ones a game can use.
func Sanitize(raw []models.Placement, m models.Map, defs *models.DefinitionSet) []models.Placement {
	type slot struct {
		kind string
		pos  models.Position
	}
	seen := make(map[slot]bool)
	out := make([]models.Placement, 0, len(raw))
	for _, p := range raw {
		if !m.In(p.X, p.Y) {
			log.Printf("placement: dropping %s %q at (%d,%d): out of bounds", p.Type, p.EntityID, p.X, p.Y)
			continue
		}
		switch p.Type {
		case models.PlacementEnemy:
			if _, ok := defs.Enemy(p.EntityID); !ok {
				log.Printf("placement: dropping unknown enemy %q", p.EntityID)
				continue
			}
		case models.PlacementItem:
			if _, ok := defs.Item(p.EntityID); !ok {
				log.Printf("placement: dropping unknown item %q", p.EntityID)
				continue
			}
		default:
			log.Printf("placement: dropping unknown placement type %q", p.Type)
			continue
		}
		s := slot{p.Type, p.Pos()}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, p)
	}
	return out
}

// Apply replaces the live placements and the enemy and item rosters of st.
// Enemies at positions already recorded as defeated join the roster as
// defeated and are not live; items are always fresh. Applying a list again
// rebuilds the rosters rather than adding to them.
func Apply(placements []models.Placement, defs *models.DefinitionSet, st *models.GameState) {
	live := make([]models.Placement, 0, len(placements))
	st.Enemies = nil
	st.Items = nil

	for _, p := range placements {
		switch p.Type {
		case models.PlacementEnemy:
			t, ok := defs.Enemy(p.EntityID)
			if !ok {
				continue
			}
			defeated := st.IsDefeatedAt(p.Pos())
			st.Enemies = append(st.Enemies, models.EnemyMarker{
				ID:         st.NewID("enemy"),
				TemplateID: t.ID,
				Name:       t.Name,
				Icon:       icons.Or(t.Icon, icons.DefaultEnemy),
				X:          p.X,
				Y:          p.Y,
				Defeated:   defeated,
			})
			if !defeated {
				live = append(live, p)
			}
		case models.PlacementItem:
			t, ok := defs.Item(p.EntityID)
			if !ok {
				continue
			}
			st.Items = append(st.Items, models.ItemMarker{
				ID:         st.NewID("item"),
				TemplateID: t.ID,
				Name:       t.Name,
				Icon:       icons.Or(t.Icon, icons.DefaultItem),
				X:          p.X,
				Y:          p.Y,
			})
			live = append(live, p)
		}
	}
	st.Placements = live
}
