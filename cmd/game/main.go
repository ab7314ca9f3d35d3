// Command game plays RogueLLM in the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tatianab/roguellm/internal/config"
	"github.com/tatianab/roguellm/internal/definitions"
	"github.com/tatianab/roguellm/internal/game"
	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/session"
	"github.com/tatianab/roguellm/internal/store/sqlite"
	"github.com/tatianab/roguellm/internal/tui"
)

func main() {
	ctx := context.Background()

	fs := flag.NewFlagSet("game", flag.ExitOnError)
	language := fs.String("lang", "en", "language of the generated world")
	cfg, err := config.ParseConfig(fs, os.Args[1:])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		fmt.Printf("Error loading rules: %v\n", err)
		os.Exit(1)
	}

	// The alt screen owns stdout, so log lines go to a file.
	logFile, err := os.OpenFile("roguellm-tui.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Printf("Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	log.SetPrefix("[game] ")

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	llm, err := gateway.NewGemini(ctx, cfg.GeminiAPIKey, cfg.LowModel, cfg.HighModel)
	if err != nil {
		fmt.Printf("Error creating Gemini client: %v\n", err)
		os.Exit(1)
	}
	defer llm.Close()
	gw := gateway.New(llm)

	defs, err := definitions.New(st, gw)
	if err != nil {
		fmt.Printf("Error loading definitions: %v\n", err)
		os.Exit(1)
	}
	builder, err := game.NewBuilder(st, gw)
	if err != nil {
		fmt.Printf("Error loading definitions: %v\n", err)
		os.Exit(1)
	}
	reg := session.NewRegistry(defs, builder, gw, session.Options{
		Rules:         rules,
		CreateTimeout: cfg.SessionCreateTimeout,
	})
	defer reg.Close(ctx)

	if err := tui.Run(reg, *language); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
