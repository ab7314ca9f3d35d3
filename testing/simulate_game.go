package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/tatianab/roguellm/internal/config"
	"github.com/tatianab/roguellm/internal/definitions"
	"github.com/tatianab/roguellm/internal/game"
	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/session"
	"github.com/tatianab/roguellm/internal/store/memory"
	"google.golang.org/api/option"
)

const maxTurns = 200

func main() {
	ctx := context.Background()

	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	theme := fs.String("theme", "", "world theme; empty asks the player model for one")
	llmPlayer := fs.Bool("llm-player", false, "let a Gemini model choose the actions")
	cfg, err := config.ParseConfig(fs, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		log.Fatalf("Failed to load rules: %v", err)
	}

	// The game master.
	llm, err := gateway.NewGemini(ctx, cfg.GeminiAPIKey, cfg.LowModel, cfg.HighModel)
	if err != nil {
		log.Fatalf("Failed to create GM client: %v", err)
	}
	defer llm.Close()
	gw := gateway.New(llm)
	st := memory.New()
	defs, err := definitions.New(st, gw)
	if err != nil {
		log.Fatalf("Failed to load definitions: %v", err)
	}
	builder, err := game.NewBuilder(st, gw)
	if err != nil {
		log.Fatalf("Failed to load definitions: %v", err)
	}
	reg := session.NewRegistry(defs, builder, gw, session.Options{Rules: rules, CreateTimeout: cfg.SessionCreateTimeout})
	defer reg.Close(ctx)

	// The player.
	playerClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create player client: %v", err)
	}
	defer playerClient.Close()
	playerModel := playerClient.GenerativeModel(cfg.HighModel)

	// 1. Pick a theme
	if *theme == "" {
		fmt.Println("--- Step 1: Requesting a theme from the Player LLM ---")
		*theme = askPlayer(ctx, playerModel, "You are a player about to start a roguelike game. Provide a short, creative theme for its world (e.g., 'steampunk underwater city', 'noir detective in a world of cats'). Return ONLY the theme string.")
		if *theme == "" {
			*theme = "a classic fantasy dungeon"
		}
	}
	fmt.Printf("Theme: %s\n\n", *theme)

	// 2. Create the world
	fmt.Println("--- Step 2: Generating World ---")
	sess, err := reg.Create(session.CreateRequest{Theme: *theme, Language: "en"})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	sub, status, failure := sess.Attach()
	defer sub.Close()
	for status == session.StatusCreating {
		u, ok := <-sub.C
		if !ok {
			log.Fatalf("Session closed while generating the world")
		}
		if u.Type == models.UpdateTypeError {
			log.Fatalf("Failed to generate world: %s", u.DescriptionRaw)
		}
		status, failure = sess.Status()
	}
	if status == session.StatusFailed {
		log.Fatalf("Failed to generate world: %v", failure)
	}
	fmt.Printf("World %s is ready.\n\n", sess.ContentHash())

	// 3. Play the game
	var history []string
	a := game.Action{Action: game.ActionGetInitialState}
	for turn := 1; turn <= maxTurns; turn++ {
		turnResult, err := sess.Do(ctx, a)
		if err != nil {
			log.Fatalf("Turn %d failed: %v", turn, err)
		}
		u, err := turnResult.Wait(ctx)
		if err != nil {
			log.Fatalf("Turn %d narration failed: %v", turn, err)
		}
		state := u.State
		fmt.Printf("--- Turn %d: %s %s%s ---\n", turn, a.Action, a.Direction, a.ItemID)
		if u.Description != "" {
			fmt.Println(u.Description)
			history = append(history, u.DescriptionRaw)
		}
		p := state.Player
		fmt.Printf("HP=%d/%d ATK=%d DEF=%d XP=%d Inventory=%d\n\n", p.HP, p.MaxHP, p.Attack, p.Defense, p.XP, len(p.Inventory))

		if state.GameWon {
			fmt.Println("Game Ended: Player Won!")
			return
		}
		if state.GameOver {
			fmt.Println("Game Ended: Player Lost!")
			return
		}

		a = chooseAction(state)
		if *llmPlayer {
			a = askPlayerAction(ctx, playerModel, state, history, a)
		}
	}
	fmt.Println("Game Ended: turn limit reached.")
}

func askPlayer(ctx context.Context, model *genai.GenerativeModel, prompt string) string {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]))
}

// askPlayerAction lets the player model pick the next action. Anything it
// answers that is not a valid action falls back to the scripted choice.
func askPlayerAction(ctx context.Context, model *genai.GenerativeModel, st *models.GameState, history []string, fallback game.Action) game.Action {
	snapshot, err := json.Marshal(st.Player)
	if err != nil {
		return fallback
	}
	recent := history[max(0, len(history)-5):]
	prompt := fmt.Sprintf(`You are playing a turn-based roguelike on a %dx%d grid.
Player: %s
In combat: %v

Recent events:
%s

Answer with ONE JSON object and nothing else, for example {"action": "move", "direction": "n"}.
Valid actions: move (direction n, s, e or w), attack, run, use_item (item_id), equip_item (item_id).`,
		st.Map.Width, st.Map.Height, snapshot, st.InCombat, strings.Join(recent, "\n"))

	text := askPlayer(ctx, model, prompt)
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(text), "```json"), "```"))
	a, err := game.ParseAction([]byte(text))
	if err != nil {
		log.Printf("player model answered %q: %v", text, err)
		return fallback
	}
	return a
}

// chooseAction is a simple greedy strategy: heal when low, equip the best
// gear, fight what is in front of it and walk towards the nearest
// unexplored cell or live enemy.
func chooseAction(st *models.GameState) game.Action {
	p := st.Player
	if potion := healingItem(p); potion != nil && p.HP*100 < p.MaxHP*40 {
		return game.Action{Action: game.ActionUseItem, ItemID: potion.ID}
	}
	if st.InCombat {
		return game.Action{Action: game.ActionAttack}
	}
	if it := betterGear(p); it != nil {
		return game.Action{Action: game.ActionEquipItem, ItemID: it.ID}
	}
	return game.Action{Action: game.ActionMove, Direction: stepTowards(st, target(st))}
}

func healingItem(p models.PlayerState) *models.Item {
	for i, it := range p.Inventory {
		if it.Type == models.ItemConsumable && it.Effect.Health > 0 {
			return &p.Inventory[i]
		}
	}
	return nil
}

// betterGear returns an unequipped weapon or armor that beats what is
// equipped.
func betterGear(p models.PlayerState) *models.Item {
	weapon, armor := p.ItemByID(p.Equipment.Weapon), p.ItemByID(p.Equipment.Armor)
	for i, it := range p.Inventory {
		if it.Equipped {
			continue
		}
		switch {
		case it.Type == models.ItemWeapon && (weapon == nil || it.Effect.Attack > weapon.Effect.Attack):
			return &p.Inventory[i]
		case it.Type == models.ItemArmor && (armor == nil || it.Effect.Defense > armor.Effect.Defense):
			return &p.Inventory[i]
		}
	}
	return nil
}

func target(st *models.GameState) models.Position {
	pos := st.Player.Pos
	best, bestDist := pos, -1
	consider := func(q models.Position) {
		if d := abs(q.X-pos.X) + abs(q.Y-pos.Y); d > 0 && (bestDist < 0 || d < bestDist) {
			best, bestDist = q, d
		}
	}
	for _, e := range st.Enemies {
		if !e.Defeated {
			consider(models.Position{X: e.X, Y: e.Y})
		}
	}
	for y, row := range st.Explored {
		for x, seen := range row {
			if !seen {
				consider(models.Position{X: x, Y: y})
			}
		}
	}
	return best
}

func stepTowards(st *models.GameState, to models.Position) string {
	from := st.Player.Pos
	switch {
	case to.X > from.X:
		return "e"
	case to.X < from.X:
		return "w"
	case to.Y > from.Y:
		return "s"
	case to.Y < from.Y:
		return "n"
	}
	// Nothing left to explore; wander.
	if from.X+1 < st.Map.Width {
		return "e"
	}
	return "w"
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
