package game

import (
	"fmt"
	"slices"

	"github.com/tatianab/roguellm/internal/combat"
	"github.com/tatianab/roguellm/internal/icons"
	"github.com/tatianab/roguellm/internal/models"
)

func (m *Machine) move(dir string) Result {
	st := m.state
	if st.InCombat {
		return m.result(CannotMoveCombat, nil)
	}
	d := directions[dir]
	to := models.Position{X: st.Player.Pos.X + d[0], Y: st.Player.Pos.Y + d[1]}
	if !st.Map.In(to.X, to.Y) {
		return m.result(CannotMove, nil)
	}

	st.Player.PrevPos = st.Player.Pos
	st.Player.Pos = to
	explored := st.Explored[to.Y][to.X]
	st.Explored[to.Y][to.X] = true
	m.clearDistantEscapes()

	msgs, encountered := m.encounter(to)
	expired := m.tickEffects()

	if encountered {
		return m.event(joinSentences(append(expired, msgs...)), explored)
	}
	if id := st.Map.At(to.X, to.Y); id != m.lastCell {
		return m.describeRoom(expired, explored)
	}
	return m.event(joinSentences(expired), explored)
}

// clearDistantEscapes forgets escapes more than one cell away from the
// player, so those enemies can be met again.
func (m *Machine) clearDistantEscapes() {
	p := m.state.Player.Pos
	m.state.Escaped = slices.DeleteFunc(m.state.Escaped, func(e models.Position) bool {
		return max(abs(e.X-p.X), abs(e.Y-p.Y)) > 1
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// encounter resolves entering pos and reports whether anything happened.
func (m *Machine) encounter(pos models.Position) ([]string, bool) {
	st := m.state
	var msgs []string

	switch {
	case st.IsDefeatedAt(pos):
		msgs = append(msgs, fmt.Sprintf("You see a defeated %s here.", m.enemyNameAt(pos)))
	case st.IsEscapedAt(pos):
		msgs = append(msgs, fmt.Sprintf("You see the %s you escaped from. It seems agitated but doesn't immediately attack.", m.enemyNameAt(pos)))
	default:
		if i := st.PlacementAt(models.PlacementEnemy, pos); i >= 0 {
			if t, ok := m.defs.Enemy(st.Placements[i].EntityID); ok {
				e := m.combat.Spawn(t, st.NewID("enemy"))
				combat.Engage(st, e)
				return []string{fmt.Sprintf("A %s appears! (HP: %d, Attack: %d)", e.Name, e.HP, e.Attack)}, true
			}
		}
	}

	if i := st.PlacementAt(models.PlacementItem, pos); i >= 0 {
		if msg, ok := m.collect(st.Placements[i], pos); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs, len(msgs) > 0
}

func (m *Machine) enemyNameAt(pos models.Position) string {
	for _, e := range m.state.Enemies {
		if e.X == pos.X && e.Y == pos.Y {
			return e.Name
		}
	}
	return "enemy"
}

// collect picks up the item placed at pos. A second copy of an item already
// carried is left behind and the placement is consumed either way.
func (m *Machine) collect(p models.Placement, pos models.Position) (string, bool) {
	st := m.state
	t, ok := m.defs.Item(p.EntityID)
	if !ok {
		return "", false
	}
	st.RemovePlacements(models.PlacementItem, pos)
	for i := range st.Items {
		if st.Items[i].X == pos.X && st.Items[i].Y == pos.Y {
			st.Items[i].Collected = true
		}
	}
	if st.Player.HasItemNamed(t.Name) {
		return fmt.Sprintf("You found another %s, but you already have one.", t.Name), true
	}
	st.Player.Inventory = append(st.Player.Inventory, models.Item{
		ID:          st.NewID("item"),
		TemplateID:  t.ID,
		Name:        t.Name,
		Type:        t.Type,
		Description: t.Description,
		Icon:        icons.Or(t.Icon, icons.DefaultItem),
		Effect:      t.Effect,
	})
	return joinSentences([]string{fmt.Sprintf("You found a %s!", t.Name), t.Description}), true
}
