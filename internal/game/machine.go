// Package game holds the state machine of one game: movement, encounters,
// combat turns, items and the narration attached to each turn.
package game

import (
	"context"
	"fmt"

	"github.com/tatianab/roguellm/internal/combat"
	"github.com/tatianab/roguellm/internal/dice"
	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/icons"
	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/placement"
)

// Fixed messages.
const (
	GameOverMessage  = "The game is over. Restart to play again."
	CannotMove       = "You can't move that way."
	CannotMoveCombat = "You can't move while in combat!"
)

const (
	defaultPlayerName = "Adventurer"
	historyLimit      = 20
	recentEvents      = 5
)

// Narrator turns mechanical events into narrative text. Both calls must
// fall back to usable text on failure.
type Narrator interface {
	AdaptSentence(ctx context.Context, theme gateway.Theme, scene gateway.Scene, sentence string) string
	DescribeRoom(ctx context.Context, theme gateway.Theme, scene gateway.Scene) string
}

// Result is the outcome of one action. Update is the mechanical result with
// Description equal to DescriptionRaw; when Narration is non-nil the caller
// may enrich it with Narrate and then Remember the text.
type Result struct {
	Update    models.Update
	Narration *Narration
}

// Machine owns one game's state. It is not safe for concurrent use: callers
// serialize actions per game.
type Machine struct {
	defs      *models.DefinitionSet
	world     *models.Instance
	cellTypes []models.CellType
	rules     models.Rules
	theme     gateway.Theme
	narrator  Narrator
	rng       dice.Roller
	combat    *combat.Resolver

	state       *models.GameState
	history     []string
	rooms       map[models.Position]string
	lastCell    string
	initialSent bool
	// epoch counts restarts; narration from an earlier game is not remembered.
	epoch int
}

// New starts a game on world. cellTypes are the types world's map refers to.
func New(defs *models.DefinitionSet, world *models.Instance, cellTypes []models.CellType, rules models.Rules, narrator Narrator, rng dice.Roller) *Machine {
	m := &Machine{
		defs:      defs,
		world:     world,
		cellTypes: cellTypes,
		rules:     rules,
		theme:     gateway.Theme{Raw: defs.Theme, Expanded: defs.ExpandedTheme, Language: defs.Language},
		narrator:  narrator,
		rng:       rng,
		combat:    combat.NewResolver(rng),
	}
	m.reset()
	return m
}

// State returns a snapshot of the game.
func (m *Machine) State() *models.GameState {
	return m.state.Clone()
}

// ContentHash identifies the world being played.
func (m *Machine) ContentHash() string {
	return m.defs.Hash
}

func (m *Machine) reset() {
	w := m.world.Map
	st := &models.GameState{
		ContentHash: m.defs.Hash,
		Title:       m.defs.Title(),
		Map:         w,
		CellTypes:   m.cellTypes,
		Player:      m.newPlayer(),
		Explored:    make([][]bool, w.Height),
	}
	for y := range st.Explored {
		st.Explored[y] = make([]bool, w.Width)
	}
	start := st.Player.Pos
	if w.In(start.X, start.Y) {
		st.Explored[start.Y][start.X] = true
	}
	placement.Apply(m.world.Placements, m.defs, st)

	m.state = st
	m.history = nil
	m.rooms = make(map[models.Position]string)
	m.lastCell = ""
	m.initialSent = false
	m.epoch++
}

// newPlayer seeds the player from the rules and the first archetype.
func (m *Machine) newPlayer() models.PlayerState {
	r := m.rules
	p := models.PlayerState{
		Name:    defaultPlayerName,
		Icon:    icons.DefaultPlayer,
		Pos:     r.Start(),
		PrevPos: r.Start(),
		HP:      r.PlayerHP,
		MaxHP:   max(r.PlayerMaxHP, r.PlayerHP),
		Attack:  r.PlayerAttack,
		Defense: r.PlayerDefense,
	}
	if len(m.defs.Players) == 0 {
		return p
	}
	a := m.defs.Players[0]
	if a.Name != "" {
		p.Name = a.Name
	}
	p.Icon = icons.Or(a.Icon, icons.DefaultPlayer)
	if a.HP > 0 {
		p.HP, p.MaxHP = a.HP, a.HP
	}
	if a.Attack > 0 {
		p.Attack = a.Attack
	}
	if a.Defense > 0 {
		p.Defense = a.Defense
	}
	return p
}

// Handle applies one validated action.
func (m *Machine) Handle(ctx context.Context, a Action) Result {
	if err := a.Validate(); err != nil {
		return m.errorResult(err.Error())
	}
	if m.state.Terminal() && a.Action != ActionRestart {
		return m.result(GameOverMessage, nil)
	}

	switch a.Action {
	case ActionInitialize, ActionGetInitialState:
		return m.initialState()
	case ActionRestart:
		m.reset()
		return m.initialState()
	case ActionMove:
		return m.move(a.Direction)
	case ActionAttack:
		return m.fight(m.combat.Attack(m.state))
	case ActionRun:
		return m.fight(m.combat.Flee(m.state))
	case ActionUseItem:
		return m.useItem(a.ItemID)
	case ActionEquipItem:
		return m.equipItem(a.ItemID)
	}
	return m.errorResult(fmt.Sprintf("unknown action %q", a.Action))
}

// initialState describes the start cell the first time and returns a silent
// snapshot afterwards.
func (m *Machine) initialState() Result {
	if m.initialSent {
		return m.result("", nil)
	}
	m.initialSent = true
	return m.describeRoom(nil, false)
}

func (m *Machine) fight(res combat.Result) Result {
	if res.Outcome == combat.OutcomeNoEnemy {
		return m.result(res.Messages[0], nil)
	}
	msgs := res.Messages
	if res.TurnConsumed && !m.state.Terminal() {
		msgs = append(msgs, m.tickEffects()...)
	}
	return m.event(joinSentences(msgs), false)
}

// result returns an update that is not narrated.
func (m *Machine) result(raw string, n *Narration) Result {
	return Result{
		Update: models.Update{
			Type:           models.UpdateTypeUpdate,
			State:          m.state.Clone(),
			DescriptionRaw: raw,
			Description:    raw,
		},
		Narration: n,
	}
}

func (m *Machine) errorResult(msg string) Result {
	r := m.result(msg, nil)
	r.Update.Type = models.UpdateTypeError
	return r
}

// event records raw in the history and returns it for narration.
func (m *Machine) event(raw string, explored bool) Result {
	if raw == "" {
		return m.result("", nil)
	}
	n := &Narration{kind: narrateEvent, sentence: raw, scene: m.scene(explored), epoch: m.epoch}
	m.remember(raw)
	return m.result(raw, n)
}

func (m *Machine) remember(event string) {
	m.history = append(m.history, event)
	if over := len(m.history) - historyLimit; over > 0 {
		m.history = append(m.history[:0], m.history[over:]...)
	}
}
