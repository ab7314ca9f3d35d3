package game

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tatianab/roguellm/internal/apperr"
)

// Action names.
const (
	ActionInitialize      = "initialize"
	ActionGetInitialState = "get_initial_state"
	ActionRestart         = "restart"
	ActionMove            = "move"
	ActionAttack          = "attack"
	ActionRun             = "run"
	ActionUseItem         = "use_item"
	ActionEquipItem       = "equip_item"
)

// MaxItemIDLength bounds item ids accepted from clients.
const MaxItemIDLength = 100

// Action is a turn message from a client.
type Action struct {
	Action    string `json:"action"`
	Direction string `json:"direction,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
}

var directions = map[string][2]int{
	"n": {0, -1},
	"s": {0, 1},
	"e": {1, 0},
	"w": {-1, 0},
}

// ParseAction decodes and validates a turn message.
func ParseAction(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, apperr.Wrap(apperr.CodeValidation, "malformed action message", err)
	}
	return a, a.Validate()
}

// Validate rejects unknown actions and malformed arguments.
func (a Action) Validate() error {
	switch a.Action {
	case ActionInitialize, ActionGetInitialState, ActionRestart, ActionAttack, ActionRun:
		return nil
	case ActionMove:
		if _, ok := directions[a.Direction]; !ok {
			return apperr.WithMetadata(apperr.CodeValidation, "invalid direction", map[string]string{"direction": a.Direction})
		}
		return nil
	case ActionUseItem, ActionEquipItem:
		return validateItemID(a.ItemID)
	}
	return apperr.WithMetadata(apperr.CodeValidation, fmt.Sprintf("unknown action %q", a.Action), map[string]string{"action": a.Action})
}

func validateItemID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.New(apperr.CodeValidation, "item_id is required")
	}
	if len(id) > MaxItemIDLength {
		return apperr.New(apperr.CodeValidation, "item_id is too long")
	}
	if strings.ContainsAny(id, "<>\"'&\n\r\t") {
		return apperr.New(apperr.CodeValidation, "item_id contains invalid characters")
	}
	return nil
}
