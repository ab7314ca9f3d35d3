package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tatianab/roguellm/internal/game"
	"github.com/tatianab/roguellm/internal/models"
)

func testState() *models.GameState {
	return &models.GameState{
		Map: models.Map{Width: 3, Height: 2, Cells: [][]string{{"a", "a", "a"}, {"a", "a", "a"}}},
		Player: models.PlayerState{
			Pos:   models.Position{X: 1, Y: 0},
			HP:    40,
			MaxHP: 100,
			Inventory: []models.Item{
				{ID: "item_1", Name: "Health Potion", Type: "consumable"},
				{ID: "item_2", Name: "Rusty Sword", Type: "weapon", Equipped: true},
			},
		},
		Explored: [][]bool{{true, true, true}, {true, false, true}},
		Enemies: []models.EnemyMarker{
			{Name: "Goblin", X: 0, Y: 0},
			{Name: "Orc", X: 2, Y: 1, Defeated: true},
			{Name: "Troll", X: 1, Y: 1},
		},
		Items: []models.ItemMarker{{Name: "Axe", X: 2, Y: 0}},
	}
}

func TestParseCommand(t *testing.T) {
	st := testState()
	tests := []struct {
		input   string
		want    game.Action
		wantErr bool
	}{
		{input: "n", want: game.Action{Action: game.ActionMove, Direction: "n"}},
		{input: "West", want: game.Action{Action: game.ActionMove, Direction: "w"}},
		{input: "go south", want: game.Action{Action: game.ActionMove, Direction: "s"}},
		{input: "attack", want: game.Action{Action: game.ActionAttack}},
		{input: "flee", want: game.Action{Action: game.ActionRun}},
		{input: "restart", want: game.Action{Action: game.ActionRestart}},
		{input: "look", want: game.Action{Action: game.ActionGetInitialState}},
		{input: "use health potion", want: game.Action{Action: game.ActionUseItem, ItemID: "item_1"}},
		{input: "equip Rusty Sword", want: game.Action{Action: game.ActionEquipItem, ItemID: "item_2"}},
		{input: "use", wantErr: true},
		{input: "use elixir", wantErr: true},
		{input: "go", wantErr: true},
		{input: "dance", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseCommand(tt.input, st)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseCommand(%q) = %+v, want an error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCommand(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("parseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if err := got.Validate(); err != nil {
				t.Fatalf("parsed action is invalid: %v", err)
			}
		})
	}
}

func TestGameLogReplacesNarratedText(t *testing.T) {
	l := &gameLog{}
	l.apply(models.Update{Seq: 1, DescriptionRaw: "You found a Sword!", Description: "You found a Sword!"})
	l.apply(models.Update{Seq: 2, DescriptionRaw: "You can't move that way.", Description: "You can't move that way."})
	l.apply(models.Update{Seq: 3, DescriptionRaw: ""})
	l.apply(models.Update{Seq: 1, DescriptionRaw: "You found a Sword!", Description: "A blade glints in the moss.", Enriched: true})

	if len(l.entries) != 2 {
		t.Fatalf("entries = %+v", l.entries)
	}
	if l.entries[0].kind != entryNarrated || l.entries[0].text != "A blade glints in the moss." {
		t.Fatalf("first entry = %+v", l.entries[0])
	}
	if l.entries[1].kind != entryEvent {
		t.Fatalf("second entry = %+v", l.entries[1])
	}
	if out := l.render(40); !strings.Contains(out, "glints") || strings.Contains(out, "found a Sword") {
		t.Fatalf("render = %q", out)
	}
}

func TestRenderMap(t *testing.T) {
	got := renderMap(testState())
	want := "E@i\n. x\n"
	if got != want {
		t.Fatalf("renderMap() = %q, want %q", got, want)
	}
}

func TestRenderPanel(t *testing.T) {
	st := testState()
	st.InCombat = true
	st.CurrentEnemy = &models.Enemy{Name: "Goblin", HP: 5, MaxHP: 20}
	st.GameOver = true
	out := renderPanel(st)
	for _, want := range []string{"HP: 40/100", "Goblin HP: 5/20", "Rusty Sword [equipped]", "Game over"} {
		if !strings.Contains(out, want) {
			t.Errorf("panel is missing %q:\n%s", want, out)
		}
	}
}

func TestLoadingFailure(t *testing.T) {
	m := NewModel(nil, "en")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if next.(model).state != stateLoading || cmd == nil {
		t.Fatalf("enter did not start loading")
	}
	next, _ = next.(model).handleUpdate(models.Update{Type: models.UpdateTypeError, DescriptionRaw: "That world does not exist."})
	got := next.(model)
	if got.state != stateError || !strings.Contains(got.View(), "That world does not exist.") {
		t.Fatalf("failure not shown: %s", got.View())
	}
}
