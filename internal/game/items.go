package game

import (
	"fmt"
	"slices"

	"github.com/tatianab/roguellm/internal/models"
)

// DefaultEffectDuration applies to temporary boosts without a duration.
const DefaultEffectDuration = 3

// Names of the temporary effects consumables create.
const (
	EffectStrength   = "strength"
	EffectProtection = "protection"
)

func (m *Machine) useItem(id string) Result {
	p := &m.state.Player
	it := p.ItemByID(id)
	if it == nil {
		return m.errorResult("You don't have that item.")
	}
	if it.Type != models.ItemConsumable {
		return m.result(fmt.Sprintf("You can't use the %s. Try equipping it.", it.Name), nil)
	}
	used := *it

	var msgs []string
	if h := used.Effect.Health; h > 0 {
		healed := max(0, min(h, p.MaxHP-p.HP))
		p.HP += healed
		msgs = append(msgs, fmt.Sprintf("Used %s and restored %d HP!", used.Name, healed))
	}
	duration := used.Effect.Duration
	if duration <= 0 {
		duration = DefaultEffectDuration
	}
	if a := used.Effect.Attack; a != 0 {
		m.addEffect(EffectStrength, models.StatAttack, a, duration)
		msgs = append(msgs, fmt.Sprintf("Used %s! Attack increased by %d for %d turns.", used.Name, a, duration))
	}
	if d := used.Effect.Defense; d != 0 {
		m.addEffect(EffectProtection, models.StatDefense, d, duration)
		msgs = append(msgs, fmt.Sprintf("Used %s! Defense increased by %d for %d turns.", used.Name, d, duration))
	}
	if len(msgs) == 0 {
		msgs = append(msgs, fmt.Sprintf("Used %s, but nothing happened.", used.Name))
	}

	p.Inventory = slices.DeleteFunc(p.Inventory, func(i models.Item) bool { return i.ID == id })
	return m.event(joinSentences(msgs), true)
}

func (m *Machine) equipItem(id string) Result {
	p := &m.state.Player
	it := p.ItemByID(id)
	if it == nil {
		return m.errorResult("You don't have that item.")
	}
	var slot *string
	switch it.Type {
	case models.ItemWeapon:
		slot = &p.Equipment.Weapon
	case models.ItemArmor:
		slot = &p.Equipment.Armor
	default:
		return m.result(fmt.Sprintf("You can't equip the %s.", it.Name), nil)
	}

	if it.Equipped {
		m.unequip(it)
		*slot = ""
		return m.event(fmt.Sprintf("Unequipped %s.", it.Name), true)
	}

	var msgs []string
	if *slot != "" {
		if old := p.ItemByID(*slot); old != nil {
			m.unequip(old)
			msgs = append(msgs, fmt.Sprintf("Unequipped %s.", old.Name))
		}
	}
	applyStats(p, it.Effect.Attack, it.Effect.Defense)
	it.Equipped = true
	*slot = it.ID
	msgs = append(msgs, fmt.Sprintf("Equipped %s.", it.Name))
	return m.event(joinSentences(msgs), true)
}

func (m *Machine) unequip(it *models.Item) {
	applyStats(&m.state.Player, -it.Effect.Attack, -it.Effect.Defense)
	it.Equipped = false
}

func applyStats(p *models.PlayerState, attack, defense int) {
	p.Attack += attack
	p.Defense += defense
}

// addEffect starts a temporary boost. An active effect with the same name
// is reversed first so that expiry never undoes more than is applied.
func (m *Machine) addEffect(name, stat string, amount, turns int) {
	p := &m.state.Player
	if i := slices.IndexFunc(p.Effects, func(e models.TemporaryEffect) bool { return e.Name == name }); i >= 0 {
		reverseEffect(p, p.Effects[i])
		p.Effects = slices.Delete(p.Effects, i, i+1)
	}
	eff := models.TemporaryEffect{Name: name, Stat: stat, Amount: amount, TurnsRemaining: turns}
	applyEffect(p, eff, 1)
	p.Effects = append(p.Effects, eff)
}

func applyEffect(p *models.PlayerState, e models.TemporaryEffect, sign int) {
	switch e.Stat {
	case models.StatAttack:
		applyStats(p, sign*e.Amount, 0)
	case models.StatDefense:
		applyStats(p, 0, sign*e.Amount)
	}
}

func reverseEffect(p *models.PlayerState, e models.TemporaryEffect) {
	applyEffect(p, e, -1)
}

// tickEffects counts down every effect by one turn and reverses the ones
// that run out, returning a message for each.
func (m *Machine) tickEffects() []string {
	p := &m.state.Player
	var msgs []string
	kept := p.Effects[:0]
	for _, e := range p.Effects {
		e.TurnsRemaining--
		if e.TurnsRemaining <= 0 {
			reverseEffect(p, e)
			msgs = append(msgs, fmt.Sprintf("The %s effect has worn off.", e.Name))
			continue
		}
		kept = append(kept, e)
	}
	p.Effects = kept
	return msgs
}
