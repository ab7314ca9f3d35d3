package game

import (
	"context"
	"fmt"
	"strings"

	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/models"
)

type narrationKind int

const (
	narrateEvent narrationKind = iota
	narrateRoom
)

// Narration is a pending enrichment of one update. It captures everything
// it needs at the time of the turn.
type Narration struct {
	kind     narrationKind
	sentence string
	prefix   string
	scene    gateway.Scene
	epoch    int
}

// Narrate produces the enriched description. It does not touch game state,
// so it may run outside the caller's turn lock.
func (m *Machine) Narrate(ctx context.Context, n *Narration) string {
	if m.narrator == nil {
		return n.fallback()
	}
	switch n.kind {
	case narrateRoom:
		room := m.narrator.DescribeRoom(ctx, m.theme, n.scene)
		return joinSentences([]string{n.prefix, room})
	default:
		return m.narrator.AdaptSentence(ctx, m.theme, n.scene, n.sentence)
	}
}

func (n *Narration) fallback() string {
	return joinSentences([]string{n.prefix, n.sentence})
}

// Remember stores an enriched room description as context for later turns.
// Narration started before a restart is dropped.
func (m *Machine) Remember(n *Narration, text string) {
	if n.kind == narrateRoom && text != "" && n.epoch == m.epoch {
		m.rooms[n.scene.Pos] = strings.TrimSpace(strings.TrimPrefix(text, n.prefix))
	}
}

// describeRoom reports the current cell. prefix carries messages that
// precede the description, such as expired effects.
func (m *Machine) describeRoom(prefix []string, explored bool) Result {
	pos := m.state.Player.Pos
	id := m.state.Map.At(pos.X, pos.Y)
	m.lastCell = id

	ct := m.cellType(id)
	room := ct.Name
	if ct.Description != "" {
		room = fmt.Sprintf("%s: %s", ct.Name, ct.Description)
	}
	pre := joinSentences(prefix)
	raw := joinSentences([]string{pre, room})
	n := &Narration{kind: narrateRoom, sentence: room, prefix: pre, scene: m.scene(explored), epoch: m.epoch}
	m.remember(raw)
	return m.result(raw, n)
}

func (m *Machine) cellType(id string) models.CellType {
	for _, ct := range m.cellTypes {
		if ct.ID == id {
			return ct
		}
	}
	return models.CellType{ID: id, Name: id}
}

// scene captures the narrative context of the current position. explored
// reports whether the cell had been visited before this turn.
func (m *Machine) scene(explored bool) gateway.Scene {
	p := m.state.Player
	cur := m.cellType(m.state.Map.At(p.Pos.X, p.Pos.Y))
	prev := m.cellType(m.state.Map.At(p.PrevPos.X, p.PrevPos.Y))
	s := gateway.Scene{
		Pos:             p.Pos,
		CellName:        cur.Name,
		CellDescription: cur.Description,
		PrevPos:         p.PrevPos,
		PrevCellName:    prev.Name,
		Explored:        explored,
		LastDescription: m.rooms[p.Pos],
		Recent:          append([]string(nil), m.history[max(0, len(m.history)-recentEvents):]...),
	}
	if p.MaxHP > 0 {
		s.HPPercent = p.HP * 100 / p.MaxHP
	}
	if it := p.ItemByID(p.Equipment.Weapon); it != nil {
		s.Weapon = it.Name
	}
	if it := p.ItemByID(p.Equipment.Armor); it != nil {
		s.Armor = it.Name
	}
	return s
}

// joinSentences joins the non-empty parts with spaces.
func joinSentences(parts []string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
