package models

import (
	"errors"
	"fmt"
)

// MaxMapSize bounds both map dimensions.
const MaxMapSize = 50

// Rules are the fixed parameters of a game: map size, start position and
// starting player stats. CellTypes optionally pins the map layout.
type Rules struct {
	Width         int        `yaml:"map_width"`
	Height        int        `yaml:"map_height"`
	StartX        int        `yaml:"start_x"`
	StartY        int        `yaml:"start_y"`
	PlayerHP      int        `yaml:"player_hp"`
	PlayerMaxHP   int        `yaml:"player_max_hp"`
	PlayerAttack  int        `yaml:"player_attack"`
	PlayerDefense int        `yaml:"player_defense"`
	CellTypes     [][]string `yaml:"cell_types,omitempty"`
}

func DefaultRules() Rules {
	return Rules{
		Width:         10,
		Height:        10,
		PlayerHP:      100,
		PlayerMaxHP:   100,
		PlayerAttack:  10,
		PlayerDefense: 5,
	}
}

func (r Rules) Start() Position {
	return Position{X: r.StartX, Y: r.StartY}
}

// Validate checks everything except the fixed layout, which can only be
// checked against a definition set.
func (r Rules) Validate() error {
	var errs []error
	if r.Width <= 0 || r.Height <= 0 || r.Width > MaxMapSize || r.Height > MaxMapSize {
		errs = append(errs, fmt.Errorf("map size %dx%d must be between 1 and %d", r.Width, r.Height, MaxMapSize))
	} else if r.StartX < 0 || r.StartY < 0 || r.StartX >= r.Width || r.StartY >= r.Height {
		errs = append(errs, fmt.Errorf("start (%d,%d) is outside the map", r.StartX, r.StartY))
	}
	if r.PlayerHP <= 0 || r.PlayerMaxHP < r.PlayerHP {
		errs = append(errs, fmt.Errorf("player hp %d/%d is invalid", r.PlayerHP, r.PlayerMaxHP))
	}
	if r.PlayerAttack < 0 || r.PlayerDefense < 0 {
		errs = append(errs, errors.New("player attack and defense must not be negative"))
	}
	return errors.Join(errs...)
}

// FixedMap returns the pinned layout, if any.
func (r Rules) FixedMap() (Map, bool) {
	if len(r.CellTypes) == 0 {
		return Map{}, false
	}
	return Map{Width: r.Width, Height: r.Height, Cells: r.CellTypes}, true
}
