package models

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed samples/*.json
var samples embed.FS

// Sample files hold the built-in template sets. Generation recolors them under
// a theme and falls back to them when the output is unusable.
const (
	SamplePlayers   = "samples/players.json"
	SampleItems     = "samples/items.json"
	SampleEnemies   = "samples/enemies.json"
	SampleCellTypes = "samples/celltypes.json"
)

// SampleJSON returns the raw contents of a sample file.
func SampleJSON(name string) ([]byte, error) {
	return samples.ReadFile(name)
}

// Samples returns a definition set built only from the sample files.
func Samples() (*DefinitionSet, error) {
	d := &DefinitionSet{}
	var players struct {
		Players []PlayerArchetype `json:"player_defs"`
	}
	var items struct {
		Items []ItemTemplate `json:"item_defs"`
	}
	var enemies struct {
		Enemies []EnemyTemplate `json:"enemy_defs"`
	}
	var cells struct {
		CellTypes []CellType `json:"celltype_defs"`
	}
	for name, dst := range map[string]any{
		SamplePlayers:   &players,
		SampleItems:     &items,
		SampleEnemies:   &enemies,
		SampleCellTypes: &cells,
	} {
		data, err := samples.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, dst); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}
	d.Players = players.Players
	d.Items = items.Items
	d.Enemies = enemies.Enemies
	d.CellTypes = cells.CellTypes
	return d, nil
}
