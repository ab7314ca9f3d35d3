package models

import (
	"fmt"
	"slices"
)

// Enemy is a spawned enemy in the current encounter.
type Enemy struct {
	ID         string  `json:"id"`
	TemplateID string  `json:"enemy_id"`
	Name       string  `json:"name"`
	Icon       string  `json:"font_awesome_icon"`
	HP         int     `json:"hp"`
	MaxHP      int     `json:"max_hp"`
	Attack     int     `json:"attack"`
	Defense    int     `json:"defense"`
	Rewards    Rewards `json:"rewards"`
}

// Rewards are granted when the enemy is defeated.
type Rewards struct {
	XP int `json:"xp"`
	HP int `json:"hp"`
}

// Item is an item instance in the player's inventory.
type Item struct {
	ID          string `json:"id"`
	TemplateID  string `json:"item_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Icon        string `json:"font_awesome_icon"`
	Effect      Effect `json:"effect"`
	Equipped    bool   `json:"is_equipped"`
}

// Equipment holds the ids of the equipped inventory items.
type Equipment struct {
	Weapon string `json:"weapon,omitempty"`
	Armor  string `json:"armor,omitempty"`
}

// Stats a temporary effect can modify.
const (
	StatAttack  = "attack"
	StatDefense = "defense"
)

// TemporaryEffect is a stat boost that is reversed when it runs out.
type TemporaryEffect struct {
	Name           string `json:"name"`
	Stat           string `json:"type"`
	Amount         int    `json:"amount"`
	TurnsRemaining int    `json:"turns_remaining"`
}

// PlayerState is the player's mutable state.
type PlayerState struct {
	Name      string            `json:"name"`
	Icon      string            `json:"font_awesome_icon"`
	Pos       Position          `json:"player_pos"`
	PrevPos   Position          `json:"player_pos_prev"`
	HP        int               `json:"hp"`
	MaxHP     int               `json:"max_hp"`
	Attack    int               `json:"attack"`
	Defense   int               `json:"defense"`
	XP        int               `json:"xp"`
	Inventory []Item            `json:"inventory"`
	Equipment Equipment         `json:"equipment"`
	Effects   []TemporaryEffect `json:"temporary_effects"`
}

// ItemByID returns a pointer into the inventory.
func (p *PlayerState) ItemByID(id string) *Item {
	for i := range p.Inventory {
		if p.Inventory[i].ID == id {
			return &p.Inventory[i]
		}
	}
	return nil
}

// HasItemNamed reports whether the inventory holds an item with this name.
func (p *PlayerState) HasItemNamed(name string) bool {
	return slices.ContainsFunc(p.Inventory, func(it Item) bool { return it.Name == name })
}

// EnemyMarker is an enemy on the map roster.
type EnemyMarker struct {
	ID         string `json:"id"`
	TemplateID string `json:"enemy_id"`
	Name       string `json:"name"`
	Icon       string `json:"font_awesome_icon"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Defeated   bool   `json:"is_defeated"`
}

// ItemMarker is an item lying on the map.
type ItemMarker struct {
	ID         string `json:"id"`
	TemplateID string `json:"item_id"`
	Name       string `json:"name"`
	Icon       string `json:"font_awesome_icon"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Collected  bool   `json:"is_collected"`
}

// GameState is the authoritative state of one game. Its JSON form is the
// session snapshot sent to clients.
type GameState struct {
	ContentHash  string        `json:"content_hash"`
	Title        string        `json:"game_title"`
	Map          Map           `json:"map"`
	CellTypes    []CellType    `json:"cell_types"`
	Player       PlayerState   `json:"player"`
	Placements   []Placement   `json:"-"`
	Enemies      []EnemyMarker `json:"enemies"`
	Items        []ItemMarker  `json:"item_placements"`
	Explored     [][]bool      `json:"explored"`
	Defeated     []Position    `json:"defeated_enemies"`
	Escaped      []Position    `json:"escaped_enemies"`
	InCombat     bool          `json:"in_combat"`
	CurrentEnemy *Enemy        `json:"current_enemy"`
	GameOver     bool          `json:"game_over"`
	GameWon      bool          `json:"game_won"`

	lastID int
}

// NewID returns a new id unique within this game, such as "enemy_3".
func (s *GameState) NewID(prefix string) string {
	s.lastID++
	return fmt.Sprintf("%s_%d", prefix, s.lastID)
}

// Terminal reports whether the game has ended.
func (s *GameState) Terminal() bool {
	return s.GameOver || s.GameWon
}

func (s *GameState) IsDefeatedAt(p Position) bool {
	return slices.Contains(s.Defeated, p)
}

func (s *GameState) IsEscapedAt(p Position) bool {
	return slices.Contains(s.Escaped, p)
}

// MarkDefeated records a defeated enemy at p and flags its roster entry.
func (s *GameState) MarkDefeated(p Position) {
	if !s.IsDefeatedAt(p) {
		s.Defeated = append(s.Defeated, p)
	}
	for i := range s.Enemies {
		if s.Enemies[i].X == p.X && s.Enemies[i].Y == p.Y {
			s.Enemies[i].Defeated = true
		}
	}
}

// RemainingEnemies counts roster entries not yet defeated.
func (s *GameState) RemainingEnemies() int {
	n := 0
	for _, e := range s.Enemies {
		if !e.Defeated {
			n++
		}
	}
	return n
}

// PlacementAt returns the index of the first live placement of kind at p, or -1.
func (s *GameState) PlacementAt(kind string, p Position) int {
	return slices.IndexFunc(s.Placements, func(pl Placement) bool {
		return pl.Type == kind && pl.X == p.X && pl.Y == p.Y
	})
}

// RemovePlacements drops every live placement of kind at p.
func (s *GameState) RemovePlacements(kind string, p Position) {
	s.Placements = slices.DeleteFunc(s.Placements, func(pl Placement) bool {
		return pl.Type == kind && pl.X == p.X && pl.Y == p.Y
	})
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *GameState) Clone() *GameState {
	c := *s
	c.Map.Cells = make([][]string, len(s.Map.Cells))
	for i, row := range s.Map.Cells {
		c.Map.Cells[i] = slices.Clone(row)
	}
	c.Explored = make([][]bool, len(s.Explored))
	for i, row := range s.Explored {
		c.Explored[i] = slices.Clone(row)
	}
	c.CellTypes = slices.Clone(s.CellTypes)
	c.Player.Inventory = slices.Clone(s.Player.Inventory)
	c.Player.Effects = slices.Clone(s.Player.Effects)
	c.Placements = slices.Clone(s.Placements)
	c.Enemies = slices.Clone(s.Enemies)
	c.Items = slices.Clone(s.Items)
	c.Defeated = slices.Clone(s.Defeated)
	c.Escaped = slices.Clone(s.Escaped)
	if s.CurrentEnemy != nil {
		e := *s.CurrentEnemy
		c.CurrentEnemy = &e
	}
	return &c
}

// Update message types.
const (
	UpdateTypeUpdate = "update"
	UpdateTypeError  = "error"
	UpdateTypeStatus = "status"
)

// Update is the message sent to every observer of a session. An empty
// DescriptionRaw means there is nothing to display.
type Update struct {
	Type           string     `json:"type"`
	State          *GameState `json:"state,omitempty"`
	DescriptionRaw string     `json:"description_raw"`
	Description    string     `json:"description"`
	// Seq orders the updates of one session; an enrichment repeats the Seq of
	// the mechanical update it follows.
	Seq      uint64 `json:"seq"`
	Enriched bool   `json:"enriched,omitempty"`
}
