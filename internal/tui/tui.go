// Package tui is a terminal client that plays one session of a registry.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tatianab/roguellm/internal/game"
	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/session"
)

type sessionState int

const (
	stateInputTheme sessionState = iota
	stateLoading
	statePlaying
	stateError
)

const themePlaceholder = "Enter a theme, or leave empty for a classic dungeon..."

type model struct {
	state    sessionState
	registry *session.Registry
	language string

	session *session.Session
	sub     *session.Subscription
	game    *models.GameState
	log     *gameLog

	textInput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	err       error
	width     int
	height    int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

func NewModel(reg *session.Registry, language string) model {
	ti := textinput.New()
	ti.Placeholder = themePlaceholder
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		state:     stateInputTheme,
		registry:  reg,
		language:  language,
		log:       &gameLog{},
		textInput: ti,
		spinner:   sp,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

type sessionCreatedMsg struct {
	session *session.Session
	sub     *session.Subscription
	status  session.Status
}

type updateMsg struct {
	sub    *session.Subscription
	update models.Update
}

// subscriptionClosedMsg means the session dropped this client.
type subscriptionClosedMsg struct {
	sub *session.Subscription
}

type errMsg struct {
	err error
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.detach()
			return m, tea.Quit

		case tea.KeyEnter:
			if m.state == stateInputTheme {
				theme := strings.TrimSpace(m.textInput.Value())
				if theme == "" {
					theme = "a classic fantasy dungeon"
				}
				m.state = stateLoading
				m.textInput.Reset()
				return m, tea.Batch(m.spinner.Tick, m.createSession(theme))
			}
			if m.state == statePlaying {
				input := strings.TrimSpace(m.textInput.Value())
				if input == "" {
					return m, nil
				}
				m.textInput.Reset()

				switch input {
				case "/quit":
					m.detach()
					return m, tea.Quit
				case "/new":
					m.detach()
					m.state = stateInputTheme
					m.game = nil
					m.log = &gameLog{}
					m.textInput.Placeholder = themePlaceholder
					return m, nil
				}

				m.log.addInput(input)
				a, err := parseCommand(input, m.game)
				if err != nil {
					m.log.addError(err.Error())
					m.refresh()
					return m, nil
				}
				m.refresh()
				return m, m.do(a)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = msg.Height - 6
		if m.state == statePlaying {
			m.refresh()
		}

	case spinner.TickMsg:
		if m.state == stateLoading {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case sessionCreatedMsg:
		m.session = msg.session
		m.sub = msg.sub
		if msg.status == session.StatusReady {
			return m.handleUpdate(session.StatusUpdate(session.StatusReady))
		}
		return m, waitForUpdate(m.sub)

	case updateMsg:
		if msg.sub != m.sub {
			return m, nil
		}
		return m.handleUpdate(msg.update)

	case subscriptionClosedMsg:
		if msg.sub == m.sub && m.state != stateInputTheme {
			m.err = fmt.Errorf("the session was closed")
			m.state = stateError
		}
		return m, nil

	case errMsg:
		if m.state == statePlaying {
			m.log.addError(msg.err.Error())
			m.refresh()
			return m, nil
		}
		m.err = msg.err
		m.state = stateError
		return m, nil
	}

	if m.state == stateInputTheme || m.state == statePlaying {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) handleUpdate(u models.Update) (tea.Model, tea.Cmd) {
	next := waitForUpdate(m.sub)
	switch u.Type {
	case models.UpdateTypeStatus:
		if u.DescriptionRaw == string(session.StatusReady) && m.state == stateLoading {
			m.state = statePlaying
			if m.viewport.Width == 0 {
				m.viewport = viewport.New(m.logWidth(), m.height-6)
			}
			m.textInput.Placeholder = "What do you do? (n/s/e/w, attack, run, use <item>, equip <item>)"
			return m, tea.Batch(next, m.do(game.Action{Action: game.ActionGetInitialState}))
		}
	case models.UpdateTypeError:
		if m.state == stateLoading {
			m.err = fmt.Errorf("%s", u.DescriptionRaw)
			m.state = stateError
			m.detach()
			return m, nil
		}
		m.log.addError(u.DescriptionRaw)
	default:
		m.log.apply(u)
	}
	if u.State != nil {
		m.game = u.State
	}
	m.refresh()
	return m, next
}

func (m *model) refresh() {
	m.viewport.SetContent(m.log.render(m.logWidth()))
	m.viewport.GotoBottom()
}

func (m *model) detach() {
	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
	m.session = nil
}

func (m model) logWidth() int {
	return int(float64(m.width) * 0.6)
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateInputTheme:
		s = fmt.Sprintf(
			"Welcome to RogueLLM!\n\n%s\n\n%s",
			"Describe the world you want to explore:",
			m.textInput.View(),
		)

	case stateLoading:
		s = fmt.Sprintf("\n  %s Generating your world... please wait.\n", m.spinner.View())

	case statePlaying:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderState(),
		)
		help := helpStyle.Render("Commands: n/s/e/w, attack, run, use <item>, equip <item>, restart, /new, /quit")
		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			"\n"+m.textInput.View(),
			"\n"+help,
		)

	case stateError:
		s = fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.", m.err)
	}

	return "\n" + s + "\n"
}

func (m model) renderState() string {
	if m.game == nil {
		return ""
	}
	width := int(float64(m.width) * 0.38)
	return stateStyle.Width(width).Height(m.viewport.Height).Render(renderPanel(m.game))
}

// renderPanel shows the map, player stats, the current enemy and the
// inventory.
func renderPanel(st *models.GameState) string {
	var b strings.Builder
	if st.Title != "" {
		b.WriteString(titleStyle.Render(strings.ToUpper(st.Title)) + "\n\n")
	}
	b.WriteString(renderMap(st) + "\n")

	p := st.Player
	b.WriteString(titleStyle.Render("STATS") + "\n")
	fmt.Fprintf(&b, "HP: %d/%d\nAttack: %d\nDefense: %d\nXP: %d\n", p.HP, p.MaxHP, p.Attack, p.Defense, p.XP)
	for _, e := range p.Effects {
		fmt.Fprintf(&b, "%s (%d turns)\n", e.Name, e.TurnsRemaining)
	}
	b.WriteString("\n")

	if st.InCombat && st.CurrentEnemy != nil {
		e := st.CurrentEnemy
		b.WriteString(titleStyle.Render("COMBAT") + "\n")
		fmt.Fprintf(&b, "%s HP: %d/%d\n\n", e.Name, e.HP, e.MaxHP)
	}

	b.WriteString(titleStyle.Render("INVENTORY") + "\n")
	if len(p.Inventory) == 0 {
		b.WriteString("(empty)\n")
	}
	for _, it := range p.Inventory {
		mark := ""
		if it.Equipped {
			mark = " [equipped]"
		}
		fmt.Fprintf(&b, "- %s%s\n", it.Name, mark)
	}
	if st.GameWon {
		b.WriteString("\nYou won! Type restart to play again.\n")
	} else if st.GameOver {
		b.WriteString("\nGame over. Type restart to play again.\n")
	}
	return b.String()
}

// renderMap draws the explored part of the map: @ is the player, E a live
// enemy, x a defeated one, i an item and . an empty explored cell.
func renderMap(st *models.GameState) string {
	var b strings.Builder
	for y := range st.Map.Height {
		for x := range st.Map.Width {
			b.WriteByte(mapGlyph(st, x, y))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func mapGlyph(st *models.GameState, x, y int) byte {
	if st.Player.Pos == (models.Position{X: x, Y: y}) {
		return '@'
	}
	if y >= len(st.Explored) || x >= len(st.Explored[y]) || !st.Explored[y][x] {
		return ' '
	}
	for _, e := range st.Enemies {
		if e.X == x && e.Y == y {
			if e.Defeated {
				return 'x'
			}
			return 'E'
		}
	}
	for _, it := range st.Items {
		if it.X == x && it.Y == y && !it.Collected {
			return 'i'
		}
	}
	return '.'
}

// parseCommand turns typed input into an action. Items are named by their
// inventory name, case-insensitively.
func parseCommand(input string, st *models.GameState) (game.Action, error) {
	verb, rest, _ := strings.Cut(strings.ToLower(strings.TrimSpace(input)), " ")
	rest = strings.TrimSpace(rest)
	switch verb {
	case "n", "north", "s", "south", "e", "east", "w", "west":
		return game.Action{Action: game.ActionMove, Direction: verb[:1]}, nil
	case "go", "move":
		if rest == "" {
			return game.Action{}, fmt.Errorf("go where? Try n, s, e or w")
		}
		return parseCommand(rest, st)
	case "a", "attack", "fight":
		return game.Action{Action: game.ActionAttack}, nil
	case "r", "run", "flee":
		return game.Action{Action: game.ActionRun}, nil
	case "restart":
		return game.Action{Action: game.ActionRestart}, nil
	case "look", "l":
		return game.Action{Action: game.ActionGetInitialState}, nil
	case "use", "equip":
		if rest == "" {
			return game.Action{}, fmt.Errorf("%s what?", verb)
		}
		it := findItem(st, rest)
		if it == nil {
			return game.Action{}, fmt.Errorf("you don't have %q", rest)
		}
		action := game.ActionUseItem
		if verb == "equip" {
			action = game.ActionEquipItem
		}
		return game.Action{Action: action, ItemID: it.ID}, nil
	}
	return game.Action{}, fmt.Errorf("unknown command %q", input)
}

func findItem(st *models.GameState, name string) *models.Item {
	if st == nil {
		return nil
	}
	for i := range st.Player.Inventory {
		it := &st.Player.Inventory[i]
		if strings.EqualFold(it.Name, name) || it.ID == name {
			return it
		}
	}
	return nil
}

func (m model) createSession(theme string) tea.Cmd {
	reg, lang := m.registry, m.language
	return func() tea.Msg {
		s, err := reg.Create(session.CreateRequest{Theme: theme, Language: lang})
		if err != nil {
			return errMsg{err}
		}
		sub, status, failure := s.Attach()
		if status == session.StatusFailed {
			sub.Close()
			return errMsg{fmt.Errorf("%s", session.FailureMessage(failure))}
		}
		return sessionCreatedMsg{session: s, sub: sub, status: status}
	}
}

func (m model) do(a game.Action) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		if s == nil {
			return errMsg{fmt.Errorf("no game is running")}
		}
		if _, err := s.Do(context.Background(), a); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func waitForUpdate(sub *session.Subscription) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-sub.C
		if !ok {
			return subscriptionClosedMsg{sub}
		}
		return updateMsg{sub, u}
	}
}

func Run(reg *session.Registry, language string) error {
	p := tea.NewProgram(NewModel(reg, language), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
