package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// hashInput is the part of a definition set that determines its identity.
type hashInput struct {
	Theme         string            `json:"theme"`
	ExpandedTheme string            `json:"expanded_theme"`
	Language      string            `json:"language"`
	Players       []PlayerArchetype `json:"player_defs"`
	Items         []ItemTemplate    `json:"item_defs"`
	Enemies       []EnemyTemplate   `json:"enemy_defs"`
	CellTypes     []CellType        `json:"celltype_defs"`
}

// ContentHash computes the identity of the definition set: the first 16 hex
// characters of a SHA-256 over its canonical, sorted-key JSON form.
func (d *DefinitionSet) ContentHash() (string, error) {
	in := hashInput{
		Theme:         d.Theme,
		ExpandedTheme: d.ExpandedTheme,
		Language:      d.Language,
		Players:       nonNil(d.Players),
		Items:         nonNil(d.Items),
		Enemies:       nonNil(d.Enemies),
		CellTypes:     nonNil(d.CellTypes),
	}
	canon, err := CanonicalJSON(in)
	if err != nil {
		return "", fmt.Errorf("canonicalize definitions: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:16], nil
}

// AliasKey identifies a theme request independently of what was generated for it.
func AliasKey(theme, language string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(theme)), " ")
	sum := sha256.Sum256([]byte(language + "\x00" + norm))
	return hex.EncodeToString(sum[:])[:16]
}

// CanonicalJSON encodes v with object keys sorted at every level.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	// encoding/json writes map keys in sorted order.
	return json.Marshal(generic)
}

// TitleOf returns the first non-empty line of text.
func TitleOf(text string) string {
	for line := range strings.SplitSeq(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return strings.Trim(line, "# *")
		}
	}
	return ""
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
