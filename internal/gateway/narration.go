package gateway

import (
	"context"
	"log"

	"github.com/tatianab/roguellm/internal/models"
)

// FallbackRoomDescription is used when a room cannot be described.
const FallbackRoomDescription = "You enter a mysterious location."

// Scene is the narrative context of one turn.
type Scene struct {
	Pos             models.Position
	CellName        string
	CellDescription string
	PrevPos         models.Position
	PrevCellName    string
	Explored        bool
	LastDescription string
	HPPercent       int
	Weapon          string
	Armor           string
	Recent          []string
}

type narrationRequest struct {
	Scene    Scene
	Sentence string
}

// AdaptSentence rewrites a mechanical event sentence as narrative in the
// game's theme and language. On failure the sentence comes back unchanged.
func (g *Gateway) AdaptSentence(ctx context.Context, theme Theme, scene Scene, sentence string) string {
	if sentence == "" {
		return ""
	}
	out, err := g.complete(ctx, "adapt_sentence", tierNarration, newPromptData(theme, narrationRequest{Scene: scene, Sentence: sentence}))
	if err != nil {
		log.Printf("gateway: adapt sentence: %v", err)
		return sentence
	}
	if out = stripFences(out); out == "" {
		return sentence
	}
	return out
}

// DescribeRoom narrates the cell the player just entered.
func (g *Gateway) DescribeRoom(ctx context.Context, theme Theme, scene Scene) string {
	out, err := g.complete(ctx, "describe_room", tierNarration, newPromptData(theme, narrationRequest{Scene: scene}))
	if err != nil {
		log.Printf("gateway: describe room: %v", err)
		return FallbackRoomDescription
	}
	if out = stripFences(out); out == "" {
		return FallbackRoomDescription
	}
	return out
}
