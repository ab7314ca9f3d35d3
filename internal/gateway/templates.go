package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/tatianab/roguellm/internal/icons"
	"github.com/tatianab/roguellm/internal/models"
)

// Kind names a template collection and the JSON key wrapping it.
type Kind struct {
	Name string
	Key  string
}

var (
	KindPlayers   = Kind{Name: "players", Key: "player_defs"}
	KindItems     = Kind{Name: "items", Key: "item_defs"}
	KindEnemies   = Kind{Name: "enemies", Key: "enemy_defs"}
	KindCellTypes = Kind{Name: "celltypes", Key: "celltype_defs"}
)

// TransformTemplates recolors sample under theme, keeping its JSON shape.
// Output that does not parse or validate yields sample unchanged; only
// provider failures are returned as errors.
func TransformTemplates[T any](ctx context.Context, g *Gateway, kind Kind, sample []T, theme Theme) ([]T, error) {
	sampleJSON, err := json.MarshalIndent(map[string][]T{kind.Key: sample}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s sample: %w", kind.Name, err)
	}
	out, err := g.complete(ctx, "transform_"+kind.Name, tierTemplates, newPromptData(theme, string(sampleJSON)))
	if err != nil {
		return nil, err
	}
	parsed, err := parseTemplates[T](stripFences(out), kind)
	if err != nil {
		log.Printf("gateway: %s: falling back to sample: %v", kind.Name, err)
		return sample, nil
	}
	return parsed, nil
}

func parseTemplates[T any](body string, kind Kind) ([]T, error) {
	var list []T
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &wrapped); err == nil {
		raw, ok := wrapped[kind.Key]
		if !ok {
			return nil, fmt.Errorf("missing %q", kind.Key)
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal([]byte(body), &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("empty %s list", kind.Name)
	}
	if err := validateTemplates(list); err != nil {
		return nil, err
	}
	return list, nil
}

func validateTemplates(list any) error {
	switch l := list.(type) {
	case []models.PlayerArchetype:
		for i := range l {
			l[i].Icon = icons.Or(l[i].Icon, icons.DefaultPlayer)
		}
		return models.ValidatePlayers(l)
	case []models.ItemTemplate:
		for i := range l {
			l[i].Icon = icons.Or(l[i].Icon, icons.DefaultItem)
		}
		return models.ValidateItems(l)
	case []models.EnemyTemplate:
		for i := range l {
			l[i].Icon = icons.Or(l[i].Icon, icons.DefaultEnemy)
		}
		return models.ValidateEnemies(l)
	case []models.CellType:
		return models.ValidateCellTypes(l)
	}
	return nil
}
