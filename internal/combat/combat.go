// Package combat resolves attack and flee turns against the current enemy.
package combat

import (
	"fmt"

	"github.com/tatianab/roguellm/internal/dice"
	"github.com/tatianab/roguellm/internal/icons"
	"github.com/tatianab/roguellm/internal/models"
)

const (
	// PlayerSpread is the +/- variance of the player's damage roll.
	PlayerSpread = 5
	// EnemySpread is the +/- variance of an enemy's damage roll.
	EnemySpread = 3
	// FleeChance is the probability that running away succeeds.
	FleeChance = 0.6
	// HPRewardDivisor sets the hp restored on victory to the enemy's max hp over it.
	HPRewardDivisor = 5
)

// NoEnemyMessage answers combat actions outside of combat.
const NoEnemyMessage = "No enemy to fight!"

// Outcome is how a combat turn ended.
type Outcome int

const (
	OutcomeNoEnemy Outcome = iota
	OutcomeExchange
	OutcomeVictory
	OutcomeDefeat
	OutcomeEscaped
	OutcomeCaught
)

// Result describes one combat turn.
type Result struct {
	Outcome      Outcome
	DamageDealt  int
	DamageTaken  int
	XPGained     int
	HPRestored   int
	Messages     []string
	TurnConsumed bool
}

// Resolver rolls combat outcomes from an injected random source.
type Resolver struct {
	rng dice.Roller
}

func NewResolver(rng dice.Roller) *Resolver {
	return &Resolver{rng: rng}
}

// Spawn rolls a new enemy from its template.
func (r *Resolver) Spawn(t models.EnemyTemplate, id string) *models.Enemy {
	hp := max(1, dice.Between(r.rng, t.HP.Min, t.HP.Max))
	def := t.DefenseRange()
	return &models.Enemy{
		ID:         id,
		TemplateID: t.ID,
		Name:       t.Name,
		Icon:       icons.Or(t.Icon, icons.DefaultEnemy),
		HP:         hp,
		MaxHP:      hp,
		Attack:     dice.Between(r.rng, t.Attack.Min, t.Attack.Max),
		Defense:    dice.Between(r.rng, def.Min, def.Max),
		Rewards: models.Rewards{
			XP: t.XPReward(),
			HP: max(1, hp/HPRewardDivisor),
		},
	}
}

// Engage puts st into combat with e.
func Engage(st *models.GameState, e *models.Enemy) {
	st.InCombat = true
	st.CurrentEnemy = e
}

func disengage(st *models.GameState) {
	st.InCombat = false
	st.CurrentEnemy = nil
}

// Attack plays one attack turn.
func (r *Resolver) Attack(st *models.GameState) Result {
	if !st.InCombat || st.CurrentEnemy == nil {
		return Result{Outcome: OutcomeNoEnemy, Messages: []string{NoEnemyMessage}}
	}
	e := st.CurrentEnemy
	p := &st.Player
	res := Result{Outcome: OutcomeExchange, TurnConsumed: true}

	dmg := dice.Between(r.rng, p.Attack-PlayerSpread, p.Attack+PlayerSpread)
	e.HP = min(max(e.HP-dmg, 0), e.MaxHP)
	res.DamageDealt = dmg
	res.Messages = append(res.Messages, fmt.Sprintf("You hit the %s for %d damage.", e.Name, dmg))

	if e.HP <= 0 {
		r.victory(st, &res)
		return res
	}
	r.strike(st, &res)
	return res
}

// Flee tries to run from the current enemy.
func (r *Resolver) Flee(st *models.GameState) Result {
	if !st.InCombat || st.CurrentEnemy == nil {
		return Result{Outcome: OutcomeNoEnemy, Messages: []string{NoEnemyMessage}}
	}
	e := st.CurrentEnemy
	res := Result{TurnConsumed: true}

	if dice.Chance(r.rng, FleeChance) {
		res.Outcome = OutcomeEscaped
		if !st.IsEscapedAt(st.Player.Pos) {
			st.Escaped = append(st.Escaped, st.Player.Pos)
		}
		st.Player.Pos = st.Player.PrevPos
		disengage(st)
		res.Messages = append(res.Messages, fmt.Sprintf("You managed to escape from the %s!", e.Name))
		return res
	}

	res.Outcome = OutcomeCaught
	res.Messages = append(res.Messages, fmt.Sprintf("You failed to escape from the %s!", e.Name))
	r.strike(st, &res)
	return res
}

// strike applies the enemy's counter-attack.
func (r *Resolver) strike(st *models.GameState, res *Result) {
	e := st.CurrentEnemy
	p := &st.Player
	roll := dice.Between(r.rng, e.Attack-EnemySpread, e.Attack+EnemySpread)
	dmg := max(1, roll-p.Defense)
	p.HP -= dmg
	res.DamageTaken = dmg
	res.Messages = append(res.Messages, fmt.Sprintf("The %s hits you for %d damage.", e.Name, dmg))
	if p.HP <= 0 {
		p.HP = 0
		st.GameOver = true
		res.Outcome = OutcomeDefeat
		res.Messages = append(res.Messages, fmt.Sprintf("You have been defeated by the %s! Game over.", e.Name))
		disengage(st)
	}
}

func (r *Resolver) victory(st *models.GameState, res *Result) {
	e := st.CurrentEnemy
	p := &st.Player
	pos := p.Pos

	res.Outcome = OutcomeVictory
	res.XPGained = e.Rewards.XP
	p.XP += e.Rewards.XP
	res.HPRestored = max(0, min(e.Rewards.HP, p.MaxHP-p.HP))
	p.HP += res.HPRestored

	st.MarkDefeated(pos)
	st.RemovePlacements(models.PlacementEnemy, pos)
	disengage(st)

	msg := fmt.Sprintf("You defeated the %s! Gained %d XP.", e.Name, e.Rewards.XP)
	if res.HPRestored > 0 {
		msg += fmt.Sprintf(" Recovered %d HP.", res.HPRestored)
	}
	res.Messages = append(res.Messages, msg)

	if len(st.Enemies) > 0 && st.RemainingEnemies() == 0 {
		st.GameWon = true
		res.Messages = append(res.Messages, "You have defeated every enemy. You win!")
	}
}
