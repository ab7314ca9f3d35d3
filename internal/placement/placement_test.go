package placement

import (
	"context"
	"testing"
	"time"

	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/icons"
	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/retry"
)

type cannedLLM string

func (c cannedLLM) Complete(ctx context.Context, tier gateway.Tier, system, user string) (string, error) {
	return string(c), nil
}

func testDefs() *models.DefinitionSet {
	return &models.DefinitionSet{
		Enemies: []models.EnemyTemplate{
			{ID: "crab", Name: "Crab", Icon: "not-an-icon", HP: models.Range{Min: 10, Max: 10}, Attack: models.Range{Min: 5, Max: 5}},
			{ID: "eel", Name: "Eel", Icon: "fa-solid fa-fish", HP: models.Range{Min: 8, Max: 8}, Attack: models.Range{Min: 4, Max: 4}},
		},
		Items:     []models.ItemTemplate{{ID: "rope", Name: "Rope", Type: models.ItemConsumable}},
		CellTypes: []models.CellType{{ID: "rock", Name: "Rock"}},
	}
}

func testMap() models.Map {
	return models.Map{Width: 3, Height: 2, Cells: [][]string{{"rock", "rock", "rock"}, {"rock", "rock", "rock"}}}
}

func TestGenerateSanitizes(t *testing.T) {
	llm := cannedLLM(`{"placements": [
		{"type": "enemy", "entity_id": "crab", "x": 1, "y": 0},
		{"type": "enemy", "entity_id": "eel", "x": 1, "y": 0},
		{"type": "item", "entity_id": "rope", "x": 1, "y": 0},
		{"type": "enemy", "entity_id": "kraken", "x": 2, "y": 1},
		{"type": "item", "entity_id": "rope", "x": 3, "y": 0},
		{"type": "enemy", "entity_id": "eel", "x": -1, "y": 0},
		{"type": "npc", "entity_id": "crab", "x": 0, "y": 1},
		{"type": "enemy", "entity_id": "eel", "x": 2, "y": 1}
	]}`)
	e := New(gateway.New(llm, gateway.WithRetryPolicy(retry.Policy{MaxTries: 1, BaseDelay: time.Millisecond})))

	got, err := e.Generate(context.Background(), gateway.Theme{Raw: "sea"}, testMap(), testDefs())
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	want := []models.Placement{
		{Type: "enemy", EntityID: "crab", X: 1, Y: 0},
		{Type: "item", EntityID: "rope", X: 1, Y: 0},
		{Type: "enemy", EntityID: "eel", X: 2, Y: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("placement %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestGenerateWithoutTemplates(t *testing.T) {
	e := New(gateway.New(cannedLLM("unused")))
	got, err := e.Generate(context.Background(), gateway.Theme{}, testMap(), &models.DefinitionSet{})
	if err != nil || len(got) != 0 {
		t.Fatalf("Generate() = %v, %v; want nothing", got, err)
	}
}

func TestApply(t *testing.T) {
	defs := testDefs()
	placements := []models.Placement{
		{Type: "enemy", EntityID: "crab", X: 1, Y: 0},
		{Type: "item", EntityID: "rope", X: 1, Y: 0},
		{Type: "enemy", EntityID: "eel", X: 2, Y: 1},
	}
	st := &models.GameState{Defeated: []models.Position{{X: 2, Y: 1}}}

	Apply(placements, defs, st)

	if len(st.Enemies) != 2 || len(st.Items) != 1 {
		t.Fatalf("rosters: %d enemies, %d items", len(st.Enemies), len(st.Items))
	}
	if st.Enemies[0].Defeated || !st.Enemies[1].Defeated {
		t.Fatalf("defeated flags: %+v", st.Enemies)
	}
	if st.Enemies[0].Icon != icons.DefaultEnemy {
		t.Errorf("invalid icon not replaced: %q", st.Enemies[0].Icon)
	}
	if st.Items[0].Icon != icons.DefaultItem {
		t.Errorf("missing item icon not replaced: %q", st.Items[0].Icon)
	}
	if len(st.Placements) != 2 {
		t.Fatalf("expected the defeated enemy to be dropped from live placements, got %+v", st.Placements)
	}
	if st.PlacementAt(models.PlacementEnemy, models.Position{X: 1, Y: 0}) < 0 || st.PlacementAt(models.PlacementItem, models.Position{X: 1, Y: 0}) < 0 {
		t.Fatalf("enemy and item must share a cell independently: %+v", st.Placements)
	}
	if st.RemainingEnemies() != 1 {
		t.Fatalf("RemainingEnemies() = %d, want 1", st.RemainingEnemies())
	}

	Apply(st.Placements, defs, st)
	if len(st.Enemies) != 1 || len(st.Items) != 1 || len(st.Placements) != 2 {
		t.Fatalf("re-applying duplicated entries: %d enemies, %d items, %d placements", len(st.Enemies), len(st.Items), len(st.Placements))
	}
	if st.Enemies[0].ID == st.Items[0].ID {
		t.Fatalf("ids must be unique, got %q twice", st.Enemies[0].ID)
	}
}
