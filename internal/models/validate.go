package models

import (
	"errors"
	"fmt"
	"strings"
)

// NormalizeItemType maps generated item type spellings onto the closed set.
func NormalizeItemType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "weapon":
		return ItemWeapon
	case "armor", "armour":
		return ItemArmor
	case "consumable", "potion":
		return ItemConsumable
	default:
		return t
	}
}

func ValidatePlayers(players []PlayerArchetype) error {
	var errs []error
	for i, p := range players {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("player %d: missing name", i))
		}
		if p.HP < 0 || p.Attack < 0 || p.Defense < 0 {
			errs = append(errs, fmt.Errorf("player %d: negative stats", i))
		}
	}
	return errors.Join(errs...)
}

// ValidateItems normalizes item types in place and checks ids and effects.
func ValidateItems(items []ItemTemplate) error {
	var errs []error
	seen := make(map[string]bool)
	for i := range items {
		it := &items[i]
		it.Type = NormalizeItemType(it.Type)
		if it.ID == "" {
			errs = append(errs, fmt.Errorf("item %d: missing id", i))
		} else if seen[it.ID] {
			errs = append(errs, fmt.Errorf("item %q: duplicate id", it.ID))
		}
		seen[it.ID] = true
		switch it.Type {
		case ItemWeapon, ItemArmor, ItemConsumable:
		default:
			errs = append(errs, fmt.Errorf("item %q: unknown type %q", it.ID, it.Type))
		}
		if it.Effect.Duration < 0 {
			errs = append(errs, fmt.Errorf("item %q: negative duration", it.ID))
		}
	}
	return errors.Join(errs...)
}

func ValidateEnemies(enemies []EnemyTemplate) error {
	var errs []error
	seen := make(map[string]bool)
	for i, e := range enemies {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("enemy %d: missing enemy_id", i))
		} else if seen[e.ID] {
			errs = append(errs, fmt.Errorf("enemy %q: duplicate id", e.ID))
		}
		seen[e.ID] = true
		if e.HP.Max <= 0 || e.HP.Min > e.HP.Max {
			errs = append(errs, fmt.Errorf("enemy %q: bad hp range %d..%d", e.ID, e.HP.Min, e.HP.Max))
		}
		if e.Attack.Min > e.Attack.Max {
			errs = append(errs, fmt.Errorf("enemy %q: bad attack range %d..%d", e.ID, e.Attack.Min, e.Attack.Max))
		}
		if d := e.DefenseRange(); d.Min > d.Max {
			errs = append(errs, fmt.Errorf("enemy %q: bad defense range %d..%d", e.ID, d.Min, d.Max))
		}
	}
	return errors.Join(errs...)
}

func ValidateCellTypes(cellTypes []CellType) error {
	var errs []error
	seen := make(map[string]bool)
	for i, ct := range cellTypes {
		if ct.ID == "" {
			errs = append(errs, fmt.Errorf("cell type %d: missing id", i))
		} else if seen[ct.ID] {
			errs = append(errs, fmt.Errorf("cell type %q: duplicate id", ct.ID))
		}
		if strings.ContainsAny(ct.ID, ",\n") {
			errs = append(errs, fmt.Errorf("cell type %q: id must not contain separators", ct.ID))
		}
		seen[ct.ID] = true
	}
	return errors.Join(errs...)
}
