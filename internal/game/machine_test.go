package game

import (
	"context"
	"strings"
	"testing"

	"github.com/tatianab/roguellm/internal/dice"
	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/models"
)

type recordingNarrator struct {
	sentences []string
	rooms     []gateway.Scene
}

func (r *recordingNarrator) AdaptSentence(ctx context.Context, theme gateway.Theme, scene gateway.Scene, sentence string) string {
	r.sentences = append(r.sentences, sentence)
	return "Narrated: " + sentence
}

func (r *recordingNarrator) DescribeRoom(ctx context.Context, theme gateway.Theme, scene gateway.Scene) string {
	r.rooms = append(r.rooms, scene)
	return "A narrated room."
}

var (
	grass  = models.CellType{ID: "grass", Name: "Grass", Description: "Tall grass."}
	forest = models.CellType{ID: "forest", Name: "Forest", Description: "Dark trees."}

	crabTemplate = models.EnemyTemplate{ID: "crab", Name: "Crab", Icon: "fa-solid fa-shrimp", HP: models.Range{Min: 10, Max: 10}, Attack: models.Range{Min: 5, Max: 5}}
	eelTemplate  = models.EnemyTemplate{ID: "eel", Name: "Eel", Icon: "fa-solid fa-fish", HP: models.Range{Min: 30, Max: 30}, Attack: models.Range{Min: 5, Max: 5}}
)

func testDefs() *models.DefinitionSet {
	return &models.DefinitionSet{
		Hash:          "0123456789abcdef",
		Theme:         "test",
		ExpandedTheme: "Test Realm\nA place for tests.",
		Language:      "en",
		Enemies:       []models.EnemyTemplate{crabTemplate, eelTemplate},
		Items: []models.ItemTemplate{
			{ID: "rope", Name: "Rope", Type: models.ItemConsumable, Description: "Sturdy rope."},
			{ID: "sword", Name: "Sword", Type: models.ItemWeapon, Effect: models.Effect{Attack: 3}},
			{ID: "axe", Name: "Axe", Type: models.ItemWeapon, Effect: models.Effect{Attack: 9}},
			{ID: "mail", Name: "Mail", Type: models.ItemArmor, Effect: models.Effect{Defense: 4}},
			{ID: "tonic", Name: "Tonic", Type: models.ItemConsumable, Effect: models.Effect{Health: 30}},
			{ID: "might", Name: "Might Draught", Type: models.ItemConsumable, Effect: models.Effect{Attack: 5, Duration: 3}},
		},
		CellTypes: []models.CellType{grass, forest},
	}
}

// grid returns a 5x5 grass map with the given cells replaced.
func grid(overrides map[models.Position]string) models.Map {
	cells := make([][]string, 5)
	for y := range cells {
		cells[y] = []string{"grass", "grass", "grass", "grass", "grass"}
	}
	for p, id := range overrides {
		cells[p.Y][p.X] = id
	}
	return models.Map{Width: 5, Height: 5, Cells: cells}
}

func newMachine(t *testing.T, m models.Map, placements []models.Placement, rng dice.Roller) (*Machine, *recordingNarrator) {
	t.Helper()
	defs := testDefs()
	rules := models.DefaultRules()
	rules.Width, rules.Height = m.Width, m.Height
	n := &recordingNarrator{}
	world := &models.Instance{Hash: defs.Hash, Map: m, Placements: placements}
	return New(defs, world, defs.CellTypes, rules, n, rng), n
}

func do(t *testing.T, m *Machine, a Action) Result {
	t.Helper()
	return m.Handle(context.Background(), a)
}

func move(t *testing.T, m *Machine, dir string) Result {
	t.Helper()
	return do(t, m, Action{Action: ActionMove, Direction: dir})
}

func giveItem(t *testing.T, m *Machine, templateID string) string {
	t.Helper()
	tmpl, ok := m.defs.Item(templateID)
	if !ok {
		t.Fatalf("no item template %q", templateID)
	}
	id := m.state.NewID("item")
	m.state.Player.Inventory = append(m.state.Player.Inventory, models.Item{
		ID: id, TemplateID: tmpl.ID, Name: tmpl.Name, Type: tmpl.Type, Effect: tmpl.Effect,
	})
	return id
}

func TestWinningScenario(t *testing.T) {
	// Spawn rolls hp, attack and defense; the attack roll of 5 in [5, 15] deals 10.
	rng := &dice.Script{Ints: []int{0, 0, 0, 5}}
	m, _ := newMachine(t, grid(nil), []models.Placement{{Type: models.PlacementEnemy, EntityID: "crab", X: 1, Y: 0}}, rng)

	res := move(t, m, "e")
	st := res.Update.State
	if !st.InCombat || st.CurrentEnemy == nil || st.CurrentEnemy.HP != 10 {
		t.Fatalf("expected combat with a 10 hp crab, got %+v", st.CurrentEnemy)
	}
	if res.Update.DescriptionRaw != "A Crab appears! (HP: 10, Attack: 5)" {
		t.Fatalf("description = %q", res.Update.DescriptionRaw)
	}

	res = do(t, m, Action{Action: ActionAttack})
	st = res.Update.State
	if !st.GameWon || st.InCombat || st.CurrentEnemy != nil {
		t.Fatalf("expected a won game, got won=%v in_combat=%v", st.GameWon, st.InCombat)
	}
	if st.Player.Pos != (models.Position{X: 1, Y: 0}) || len(st.Player.Inventory) != 0 {
		t.Fatalf("player changed unexpectedly: %+v", st.Player)
	}

	res = move(t, m, "e")
	if res.Update.DescriptionRaw != GameOverMessage {
		t.Fatalf("move after winning = %q", res.Update.DescriptionRaw)
	}
	if res.Update.State.Player.Pos != (models.Position{X: 1, Y: 0}) || res.Narration != nil {
		t.Fatalf("move after winning changed state")
	}

	res = do(t, m, Action{Action: ActionRestart})
	st = res.Update.State
	if st.GameWon || st.Player.Pos != (models.Position{}) || st.RemainingEnemies() != 1 || len(st.Defeated) != 0 {
		t.Fatalf("restart did not reset the game: %+v", st)
	}
}

func TestGameOverAcceptsOnlyRestart(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))
	m.state.GameOver = true
	for _, a := range []Action{
		{Action: ActionAttack},
		{Action: ActionRun},
		{Action: ActionGetInitialState},
		{Action: ActionUseItem, ItemID: "item_1"},
	} {
		if res := do(t, m, a); res.Update.DescriptionRaw != GameOverMessage {
			t.Errorf("%s after game over = %q", a.Action, res.Update.DescriptionRaw)
		}
	}
	if res := do(t, m, Action{Action: ActionRestart}); res.Update.State.GameOver {
		t.Fatalf("restart must leave the terminal state")
	}
}

func TestMoveOutOfBounds(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))
	for _, dir := range []string{"n", "w"} {
		res := move(t, m, dir)
		if res.Update.DescriptionRaw != CannotMove || res.Narration != nil {
			t.Fatalf("move %s = %q", dir, res.Update.DescriptionRaw)
		}
		if res.Update.State.Player.Pos != (models.Position{}) {
			t.Fatalf("player moved to %+v", res.Update.State.Player.Pos)
		}
	}
}

func TestRoomDescriptions(t *testing.T) {
	m, n := newMachine(t, grid(map[models.Position]string{{X: 2, Y: 0}: "forest"}), nil, dice.New(1))

	res := do(t, m, Action{Action: ActionGetInitialState})
	if res.Update.DescriptionRaw != "Grass: Tall grass." || res.Narration == nil {
		t.Fatalf("initial state = %q", res.Update.DescriptionRaw)
	}
	if text := m.Narrate(context.Background(), res.Narration); text != "A narrated room." {
		t.Fatalf("Narrate() = %q", text)
	}

	res = do(t, m, Action{Action: ActionGetInitialState})
	if res.Update.DescriptionRaw != "" || res.Narration != nil {
		t.Fatalf("second initial state = %q", res.Update.DescriptionRaw)
	}

	res = move(t, m, "e")
	if res.Update.DescriptionRaw != "" || res.Narration != nil {
		t.Fatalf("moving within the same cell type = %q", res.Update.DescriptionRaw)
	}
	if !res.Update.State.Explored[0][1] {
		t.Fatalf("cell not marked explored")
	}

	res = move(t, m, "e")
	if res.Update.DescriptionRaw != "Forest: Dark trees." || res.Narration == nil {
		t.Fatalf("entering the forest = %q", res.Update.DescriptionRaw)
	}
	text := m.Narrate(context.Background(), res.Narration)
	m.Remember(res.Narration, text)

	move(t, m, "w")
	res = move(t, m, "e")
	if res.Narration == nil {
		t.Fatalf("re-entering the forest after grass must be described")
	}
	m.Narrate(context.Background(), res.Narration)
	last := n.rooms[len(n.rooms)-1]
	if !last.Explored || last.LastDescription != "A narrated room." || last.PrevCellName != "Grass" {
		t.Fatalf("scene = %+v", last)
	}
}

func TestRestartDropsPendingRoomText(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))

	stale := do(t, m, Action{Action: ActionGetInitialState}).Narration
	text := m.Narrate(context.Background(), stale)

	fresh := do(t, m, Action{Action: ActionRestart}).Narration
	m.Remember(stale, text)
	if len(m.rooms) != 0 {
		t.Fatalf("room text from before the restart was kept: %v", m.rooms)
	}

	m.Remember(fresh, m.Narrate(context.Background(), fresh))
	if m.rooms[models.Position{}] != "A narrated room." {
		t.Fatalf("rooms = %v", m.rooms)
	}
}

func TestItemPickup(t *testing.T) {
	m, _ := newMachine(t, grid(nil), []models.Placement{
		{Type: models.PlacementItem, EntityID: "rope", X: 1, Y: 0},
		{Type: models.PlacementItem, EntityID: "rope", X: 2, Y: 0},
	}, dice.New(1))

	res := move(t, m, "e")
	if res.Update.DescriptionRaw != "You found a Rope! Sturdy rope." {
		t.Fatalf("first pickup = %q", res.Update.DescriptionRaw)
	}
	res = move(t, m, "e")
	if res.Update.DescriptionRaw != "You found another Rope, but you already have one." {
		t.Fatalf("second pickup = %q", res.Update.DescriptionRaw)
	}
	st := res.Update.State
	if len(st.Player.Inventory) != 1 || len(st.Placements) != 0 {
		t.Fatalf("inventory %d, placements %d", len(st.Player.Inventory), len(st.Placements))
	}
	if !st.Items[0].Collected || !st.Items[1].Collected {
		t.Fatalf("item markers not consumed: %+v", st.Items)
	}

	move(t, m, "w")
	if res := move(t, m, "e"); strings.Contains(res.Update.DescriptionRaw, "Rope") {
		t.Fatalf("consumed item found again: %q", res.Update.DescriptionRaw)
	}
}

func TestEquipSymmetry(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))
	base := m.state.Player.Attack
	sword := giveItem(t, m, "sword")
	axe := giveItem(t, m, "axe")
	mail := giveItem(t, m, "mail")

	equip := func(id string) *models.GameState {
		t.Helper()
		res := do(t, m, Action{Action: ActionEquipItem, ItemID: id})
		if res.Update.Type != models.UpdateTypeUpdate {
			t.Fatalf("equip %s: %q", id, res.Update.DescriptionRaw)
		}
		return res.Update.State
	}

	st := equip(sword)
	if st.Player.Attack != base+3 || st.Player.Equipment.Weapon != sword {
		t.Fatalf("after sword: attack %d, weapon %q", st.Player.Attack, st.Player.Equipment.Weapon)
	}
	st = equip(axe)
	if st.Player.Attack != base+9 || st.Player.Equipment.Weapon != axe {
		t.Fatalf("after swapping to the axe: attack %d", st.Player.Attack)
	}
	if st.Player.ItemByID(sword).Equipped {
		t.Fatalf("sword still flagged equipped")
	}
	st = equip(axe)
	if st.Player.Attack != base || st.Player.Equipment.Weapon != "" {
		t.Fatalf("after unequipping: attack %d, weapon %q", st.Player.Attack, st.Player.Equipment.Weapon)
	}

	def := st.Player.Defense
	st = equip(mail)
	if st.Player.Defense != def+4 || st.Player.Attack != base {
		t.Fatalf("armor: defense %d attack %d", st.Player.Defense, st.Player.Attack)
	}
	st = equip(mail)
	if st.Player.Defense != def {
		t.Fatalf("armor not reversed: %d", st.Player.Defense)
	}

	rope := giveItem(t, m, "rope")
	if res := do(t, m, Action{Action: ActionEquipItem, ItemID: rope}); res.Update.State.Player.Attack != base {
		t.Fatalf("equipping a consumable changed stats")
	}
	if res := do(t, m, Action{Action: ActionEquipItem, ItemID: "item_404"}); res.Update.Type != models.UpdateTypeError {
		t.Fatalf("equipping a missing item must be an error, got %q", res.Update.Type)
	}
}

func TestTemporaryEffectExpiry(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))
	base := m.state.Player.Attack
	might := giveItem(t, m, "might")

	res := do(t, m, Action{Action: ActionUseItem, ItemID: might})
	if got := res.Update.State.Player.Attack; got != base+5 {
		t.Fatalf("attack after potion = %d, want %d", got, base+5)
	}
	if len(res.Update.State.Player.Inventory) != 0 {
		t.Fatalf("consumable not removed")
	}

	for turn, dir := range []string{"e", "e", "e", "e", "e"} {
		res = move(t, m, dir)
		st := res.Update.State
		worn := strings.Contains(res.Update.DescriptionRaw, "The strength effect has worn off.")
		switch {
		case turn < 2:
			if st.Player.Attack != base+5 || worn {
				t.Fatalf("turn %d: attack %d, worn=%v", turn+1, st.Player.Attack, worn)
			}
		case turn == 2:
			if st.Player.Attack != base || !worn || len(st.Player.Effects) != 0 {
				t.Fatalf("turn 3: attack %d, worn=%v, effects %v", st.Player.Attack, worn, st.Player.Effects)
			}
		default:
			if st.Player.Attack != base || worn {
				t.Fatalf("turn %d: attack %d, worn=%v", turn+1, st.Player.Attack, worn)
			}
		}
	}
}

func TestReusedEffectDoesNotStack(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))
	base := m.state.Player.Attack
	do(t, m, Action{Action: ActionUseItem, ItemID: giveItem(t, m, "might")})
	move(t, m, "e")
	res := do(t, m, Action{Action: ActionUseItem, ItemID: giveItem(t, m, "might")})
	st := res.Update.State
	if st.Player.Attack != base+5 || len(st.Player.Effects) != 1 || st.Player.Effects[0].TurnsRemaining != 3 {
		t.Fatalf("attack %d, effects %+v", st.Player.Attack, st.Player.Effects)
	}
	for range 3 {
		res = move(t, m, "s")
	}
	if res.Update.State.Player.Attack != base {
		t.Fatalf("attack after expiry = %d, want %d", res.Update.State.Player.Attack, base)
	}
}

func TestHealthPotion(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))
	m.state.Player.HP = 80
	res := do(t, m, Action{Action: ActionUseItem, ItemID: giveItem(t, m, "tonic")})
	if res.Update.State.Player.HP != 100 || res.Update.DescriptionRaw != "Used Tonic and restored 20 HP!" {
		t.Fatalf("hp %d, %q", res.Update.State.Player.HP, res.Update.DescriptionRaw)
	}
	sword := giveItem(t, m, "sword")
	if res := do(t, m, Action{Action: ActionUseItem, ItemID: sword}); len(res.Update.State.Player.Inventory) != 1 {
		t.Fatalf("using a weapon must not consume it")
	}
}

func TestDefeatedEnemyIsNotFoughtAgain(t *testing.T) {
	rng := &dice.Script{Ints: []int{0, 0, 0, 10}}
	m, _ := newMachine(t, grid(nil), []models.Placement{
		{Type: models.PlacementEnemy, EntityID: "crab", X: 1, Y: 0},
		{Type: models.PlacementEnemy, EntityID: "eel", X: 4, Y: 4},
	}, rng)

	move(t, m, "e")
	res := do(t, m, Action{Action: ActionAttack})
	if res.Update.State.InCombat || res.Update.State.GameWon {
		t.Fatalf("expected a victory that does not win the game")
	}
	move(t, m, "w")
	res = move(t, m, "e")
	if res.Update.State.InCombat || res.Update.DescriptionRaw != "You see a defeated Crab here." {
		t.Fatalf("re-entering a defeated cell = %q (in combat %v)", res.Update.DescriptionRaw, res.Update.State.InCombat)
	}
}

func TestEscapedEnemy(t *testing.T) {
	rng := &dice.Script{Floats: []float64{0.1}}
	m, _ := newMachine(t, grid(nil), []models.Placement{{Type: models.PlacementEnemy, EntityID: "crab", X: 1, Y: 0}}, rng)

	move(t, m, "s")
	move(t, m, "n")
	move(t, m, "e")
	if !m.state.InCombat {
		t.Fatalf("expected combat")
	}
	if res := move(t, m, "e"); res.Update.DescriptionRaw != CannotMoveCombat {
		t.Fatalf("moving in combat = %q", res.Update.DescriptionRaw)
	}

	res := do(t, m, Action{Action: ActionRun})
	if res.Update.State.InCombat || res.Update.State.Player.Pos != (models.Position{}) {
		t.Fatalf("escape failed: %+v", res.Update.State.Player.Pos)
	}

	res = move(t, m, "e")
	if res.Update.State.InCombat || !strings.HasPrefix(res.Update.DescriptionRaw, "You see the Crab you escaped from.") {
		t.Fatalf("re-entering an escaped cell = %q", res.Update.DescriptionRaw)
	}

	move(t, m, "e")
	move(t, m, "e")
	if len(m.state.Escaped) != 0 {
		t.Fatalf("escape not cleared two cells away: %+v", m.state.Escaped)
	}
	move(t, m, "w")
	move(t, m, "w")
	if !m.state.InCombat {
		t.Fatalf("expected the crab to attack again once the escape is forgotten")
	}
}

func TestCombatActionsOutsideCombat(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))
	res := do(t, m, Action{Action: ActionAttack})
	if res.Update.DescriptionRaw != "No enemy to fight!" || res.Update.Type != models.UpdateTypeUpdate || res.Narration != nil {
		t.Fatalf("attack outside combat = %+v", res.Update)
	}
}

func TestInvalidActionIsRejected(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))
	res := do(t, m, Action{Action: "dance"})
	if res.Update.Type != models.UpdateTypeError {
		t.Fatalf("unknown action = %+v", res.Update)
	}
}

func TestPlayerSeededFromArchetype(t *testing.T) {
	defs := testDefs()
	defs.Players = []models.PlayerArchetype{{Name: "Keeper", Icon: "broken", HP: 80, Attack: 12}}
	world := &models.Instance{Map: grid(nil)}
	rules := models.DefaultRules()
	rules.Width, rules.Height = 5, 5
	m := New(defs, world, defs.CellTypes, rules, nil, dice.New(1))
	p := m.State().Player
	if p.Name != "Keeper" || p.HP != 80 || p.MaxHP != 80 || p.Attack != 12 || p.Defense != rules.PlayerDefense {
		t.Fatalf("player = %+v", p)
	}
	if p.Icon != "fa-solid fa-user" {
		t.Fatalf("icon = %q", p.Icon)
	}
	if m.State().Title != "Test Realm" {
		t.Fatalf("title = %q", m.State().Title)
	}
}

func TestNarrateWithoutNarratorFallsBack(t *testing.T) {
	defs := testDefs()
	rules := models.DefaultRules()
	rules.Width, rules.Height = 5, 5
	m := New(defs, &models.Instance{Map: grid(nil)}, defs.CellTypes, rules, nil, dice.New(1))
	res := m.Handle(context.Background(), Action{Action: ActionGetInitialState})
	if got := m.Narrate(context.Background(), res.Narration); got != "Grass: Tall grass." {
		t.Fatalf("Narrate() = %q", got)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	m, _ := newMachine(t, grid(nil), nil, dice.New(1))
	for range 30 {
		do(t, m, Action{Action: ActionUseItem, ItemID: giveItem(t, m, "rope")})
	}
	if len(m.history) != historyLimit {
		t.Fatalf("history has %d entries, want %d", len(m.history), historyLimit)
	}
	if s := m.scene(false); len(s.Recent) != recentEvents {
		t.Fatalf("scene carries %d events, want %d", len(s.Recent), recentEvents)
	}
}
