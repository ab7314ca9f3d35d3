package tui

import "github.com/tatianab/roguellm/internal/models"

type entryKind int

const (
	entryInput entryKind = iota
	// entryEvent is mechanical text that narration may still replace.
	entryEvent
	entryNarrated
	entryError
)

type entry struct {
	seq  uint64
	kind entryKind
	text string
}

// gameLog is the scrollback of one game.
type gameLog struct {
	entries []entry
}

func (l *gameLog) addInput(text string) {
	l.entries = append(l.entries, entry{kind: entryInput, text: "> " + text})
}

func (l *gameLog) addError(text string) {
	l.entries = append(l.entries, entry{kind: entryError, text: text})
}

// apply records an update. An enriched update replaces the mechanical text
// of the same turn.
func (l *gameLog) apply(u models.Update) {
	if u.DescriptionRaw == "" {
		return
	}
	if !u.Enriched {
		l.entries = append(l.entries, entry{seq: u.Seq, kind: entryEvent, text: u.DescriptionRaw})
		return
	}
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := &l.entries[i]
		if e.kind == entryEvent && e.seq == u.Seq {
			e.kind = entryNarrated
			e.text = u.Description
			return
		}
	}
	l.entries = append(l.entries, entry{seq: u.Seq, kind: entryNarrated, text: u.Description})
}

func (l *gameLog) render(width int) string {
	var out string
	for _, e := range l.entries {
		switch e.kind {
		case entryInput:
			out += "\n" + userStyle.Width(width).Render(e.text) + "\n\n"
		case entryEvent:
			out += pendingStyle.Width(width).Render(e.text) + "\n\n"
		case entryNarrated:
			out += gameStyle.Width(width).Render(e.text) + "\n\n"
		case entryError:
			out += errorStyle.Width(width).Render(e.text) + "\n\n"
		}
	}
	return out
}
