package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Range is an inclusive numeric range for rolled stats.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Effect keys. The set is closed: any other key is rejected when decoding.
const (
	EffectAttack   = "attack"
	EffectDefense  = "defense"
	EffectHealth   = "health"
	EffectDuration = "duration"
)

// Effect is the stat modification an item carries.
type Effect struct {
	Attack   int
	Defense  int
	Health   int
	Duration int
}

func (e Effect) MarshalJSON() ([]byte, error) {
	m := make(map[string]int)
	if e.Attack != 0 {
		m[EffectAttack] = e.Attack
	}
	if e.Defense != 0 {
		m[EffectDefense] = e.Defense
	}
	if e.Health != 0 {
		m[EffectHealth] = e.Health
	}
	if e.Duration != 0 {
		m[EffectDuration] = e.Duration
	}
	return json.Marshal(m)
}

func (e *Effect) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("effect: %w", err)
	}
	var out Effect
	for k, v := range m {
		switch k {
		case EffectAttack:
			out.Attack = v
		case EffectDefense:
			out.Defense = v
		case EffectHealth:
			out.Health = v
		case EffectDuration:
			out.Duration = v
		default:
			return fmt.Errorf("effect: unknown key %q", k)
		}
	}
	*e = out
	return nil
}

// Item types.
const (
	ItemWeapon     = "weapon"
	ItemArmor      = "armor"
	ItemConsumable = "consumable"
)

// PlayerArchetype is a generated starting character.
type PlayerArchetype struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"font_awesome_icon"`
	HP          int    `json:"hp"`
	Attack      int    `json:"attack"`
	Defense     int    `json:"defense"`
}

// ItemTemplate describes an item kind that can be placed on the map.
type ItemTemplate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Icon        string `json:"font_awesome_icon,omitempty"`
	Effect      Effect `json:"effect"`
}

// EnemyTemplate describes an enemy kind. Defense is optional and defaults to 0..5.
type EnemyTemplate struct {
	ID          string `json:"enemy_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"font_awesome_icon"`
	HP          Range  `json:"hp"`
	Attack      Range  `json:"attack"`
	Defense     *Range `json:"defense,omitempty"`
	XP          int    `json:"xp"`
}

// DefenseRange returns the template's defense range or the default one.
func (t EnemyTemplate) DefenseRange() Range {
	if t.Defense == nil {
		return Range{Min: 0, Max: 5}
	}
	return *t.Defense
}

// XPReward returns the template's xp or the default reward.
func (t EnemyTemplate) XPReward() int {
	if t.XP <= 0 {
		return 10
	}
	return t.XP
}

// CellType is one kind of map cell.
type CellType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefinitionSet is the generated ruleset for one world. Once hashed it is
// shared read-only by every game that references it.
type DefinitionSet struct {
	Hash          string            `json:"content_hash"`
	Theme         string            `json:"theme"`
	ExpandedTheme string            `json:"expanded_theme"`
	Language      string            `json:"language"`
	Players       []PlayerArchetype `json:"player_defs"`
	Items         []ItemTemplate    `json:"item_defs"`
	Enemies       []EnemyTemplate   `json:"enemy_defs"`
	CellTypes     []CellType        `json:"celltype_defs"`
}

// Title is the first line of the expanded theme.
func (d *DefinitionSet) Title() string {
	return TitleOf(d.ExpandedTheme)
}

func (d *DefinitionSet) Enemy(id string) (EnemyTemplate, bool) {
	for _, e := range d.Enemies {
		if e.ID == id {
			return e, true
		}
	}
	return EnemyTemplate{}, false
}

func (d *DefinitionSet) Item(id string) (ItemTemplate, bool) {
	for _, it := range d.Items {
		if it.ID == id {
			return it, true
		}
	}
	return ItemTemplate{}, false
}

func (d *DefinitionSet) CellType(id string) (CellType, bool) {
	for _, ct := range d.CellTypes {
		if ct.ID == id {
			return ct, true
		}
	}
	return CellType{}, false
}

// CellTypeIDs returns the sorted cell type ids.
func (d *DefinitionSet) CellTypeIDs() []string {
	ids := make([]string, 0, len(d.CellTypes))
	for _, ct := range d.CellTypes {
		ids = append(ids, ct.ID)
	}
	sort.Strings(ids)
	return ids
}

// Position is a grid coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Placement kinds.
const (
	PlacementEnemy = "enemy"
	PlacementItem  = "item"
)

// Placement locates a template on the map.
type Placement struct {
	Type     string `json:"type"`
	EntityID string `json:"entity_id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

func (p Placement) Pos() Position {
	return Position{X: p.X, Y: p.Y}
}

// Map is a width x height grid of cell type ids, indexed [y][x].
type Map struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Cells  [][]string `json:"cells"`
}

// In reports whether (x, y) lies inside the map.
func (m Map) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

// At returns the cell type id at (x, y).
func (m Map) At(x, y int) string {
	return m.Cells[y][x]
}

// Validate checks the grid dimensions and that every cell names a known cell type.
func (m Map) Validate(defs *DefinitionSet) error {
	if len(m.Cells) != m.Height {
		return fmt.Errorf("map has %d rows, want %d", len(m.Cells), m.Height)
	}
	for y, row := range m.Cells {
		if len(row) != m.Width {
			return fmt.Errorf("map row %d has %d cells, want %d", y, len(row), m.Width)
		}
		for x, id := range row {
			if _, ok := defs.CellType(id); !ok {
				return fmt.Errorf("map cell (%d,%d) references unknown cell type %q", x, y, id)
			}
		}
	}
	return nil
}

// Instance is a realized world: the laid out map and its placements.
type Instance struct {
	Hash       string      `json:"content_hash"`
	Map        Map         `json:"map"`
	Placements []Placement `json:"placements"`
}
