package gateway

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/tatianab/roguellm/internal/apperr"
	"github.com/tatianab/roguellm/internal/models"
)

// ExpandTheme turns a short theme into a richer setting whose first line is
// the game title. A non-empty prior expansion is returned unchanged. On
// failure the raw theme stands in for the expansion.
func (g *Gateway) ExpandTheme(ctx context.Context, raw, lang, prior string) string {
	if prior != "" {
		return prior
	}
	out, err := g.complete(ctx, "expand_theme", tierTheme, newPromptData(Theme{Raw: raw, Language: lang}, nil))
	if err != nil {
		log.Printf("gateway: expand theme: using raw theme: %v", err)
		return raw
	}
	out = stripFences(out)
	if out == "" {
		return raw
	}
	return out
}

type mapRequest struct {
	CellTypes []models.CellType
	Width     int
	Height    int
}

// LayOutMap asks for a width x height grid over cellTypes. The result must
// match the requested dimensions and reference only known cell types;
// anything else is a generation error.
func (g *Gateway) LayOutMap(ctx context.Context, theme Theme, cellTypes []models.CellType, width, height int) (models.Map, error) {
	if len(cellTypes) == 0 {
		return models.Map{}, apperr.New(apperr.CodeGeneration, "no cell types to lay out")
	}
	out, err := g.complete(ctx, "lay_out_map", tierMap, newPromptData(theme, mapRequest{
		CellTypes: cellTypes,
		Width:     width,
		Height:    height,
	}))
	if err != nil {
		return models.Map{}, apperr.Wrap(apperr.CodeGeneration, "lay out map", err)
	}
	cells, err := parseGrid(stripFences(out))
	if err != nil {
		return models.Map{}, apperr.Wrap(apperr.CodeGeneration, "parse map", err)
	}
	m := models.Map{Width: width, Height: height, Cells: cells}
	if err := m.Validate(&models.DefinitionSet{CellTypes: cellTypes}); err != nil {
		return models.Map{}, apperr.Wrap(apperr.CodeGeneration, "invalid map", err)
	}
	return m, nil
}

// parseGrid reads CSV rows, skipping blank lines. Row lengths are checked by
// the caller so a ragged grid is reported with its dimensions.
func parseGrid(body string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]string, len(rec))
		for i, c := range rec {
			row[i] = strings.TrimSpace(c)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty grid")
	}
	return rows, nil
}

type placementRequest struct {
	Map     models.Map
	Enemies []models.EnemyTemplate
	Items   []models.ItemTemplate
}

// PlaceEntities asks where enemies and items go. Provider failures are
// returned; output that cannot be parsed yields no placements.
func (g *Gateway) PlaceEntities(ctx context.Context, theme Theme, m models.Map, enemies []models.EnemyTemplate, items []models.ItemTemplate) ([]models.Placement, error) {
	out, err := g.complete(ctx, "place_entities", tierPlacement, newPromptData(theme, placementRequest{
		Map:     m,
		Enemies: enemies,
		Items:   items,
	}))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeGeneration, "place entities", err)
	}
	placements, err := parsePlacements(stripFences(out))
	if err != nil {
		log.Printf("gateway: place entities: no placements: %v", err)
		return nil, nil
	}
	return placements, nil
}

func parsePlacements(body string) ([]models.Placement, error) {
	var list []models.Placement
	if strings.HasPrefix(body, "[") {
		err := json.Unmarshal([]byte(body), &list)
		return list, err
	}
	var wrapped struct {
		Placements []models.Placement `json:"placements"`
	}
	if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Placements, nil
}
