package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/ability-forge/internal/forge"
	"github.com/jwebster45206/ability-forge/internal/handlers"
	"github.com/jwebster45206/ability-forge/internal/services/events"
	"github.com/jwebster45206/ability-forge/pkg/effect"
	"github.com/jwebster45206/ability-forge/pkg/queue"
)

const (
	PlaceHolderText = "Combine elements, e.g. fire water"
	pollInterval    = 500 * time.Millisecond
)

type entryKind int

const (
	entryInput entryKind = iota
	entryAbility
	entryInfo
	entryError
)

type logEntry struct {
	kind    entryKind
	text    string
	ability *handlers.AbilityResponse
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	logViewport  viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int

	entries   []logEntry
	abilities []handlers.AbilityResponse
	pending   map[string]handlers.PendingResponse
	polling   bool
	lastJSON  string

	events     <-chan events.Event
	streamDone <-chan error
	streaming  bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type abilityRequestedMsg struct {
	hit     *handlers.AbilityResponse
	pending *handlers.PendingResponse
	err     error
}

type requestStatusMsg struct {
	state *forge.RequestState
	err   error
}

type abilityLoadedMsg struct {
	ability *handlers.AbilityResponse
	err     error
}

type abilitiesListedMsg struct {
	abilities []handlers.AbilityResponse
	err       error
}

type cacheClearedMsg struct {
	err error
}

type eventMsg struct {
	event events.Event
}

type eventsClosedMsg struct {
	err error
}

type progressTickMsg struct{}

type pollTickMsg struct{}

var (
	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client, evs <-chan events.Event, streamDone <-chan error) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 200
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	logVp := viewport.New(50, 20)
	logVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:       cfg,
		client:       client,
		textarea:     ta,
		logViewport:  logVp,
		metaViewport: metaVp,
		pending:      map[string]handlers.PendingResponse{},
		events:       evs,
		streamDone:   streamDone,
	}
}

// parsePrimitives splits input like "fire water", "fire+water" or
// "fire, water" into element ids.
func parsePrimitives(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ' ' || r == '+' || r == ',' || r == '\t'
	})
	return effect.NormalizePrimitives(fields)
}

func elementStyle(ability *effect.AbilityV2) lipgloss.Style {
	color := ability.Color
	if color == "" && len(ability.Primitives) > 0 {
		color = effect.ElementColor(ability.Primitives[0])
	}
	if color == "" {
		return titleStyle
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}

func comboTitle(primitives []string) string {
	names := make([]string, len(primitives))
	for i, p := range primitives {
		names[i] = effect.TitleCase(p)
	}
	return strings.Join(names, " + ")
}

// formatAbility renders one ability card wrapped to width.
func formatAbility(rec *handlers.AbilityResponse, width int) string {
	a := rec.Ability
	if a == nil {
		return errorStyle.Render("(unreadable ability " + rec.ComboKey + ")")
	}
	var b strings.Builder
	name := a.Name
	if name == "" {
		name = "Unnamed Ability"
	}
	b.WriteString(elementStyle(a).Render(name))
	b.WriteString(promptStyle.Render("  " + comboTitle(a.Primitives)))
	b.WriteString("\n")
	if a.Description != "" {
		b.WriteString(wordwrap.String(a.Description, width) + "\n")
	}
	b.WriteString(promptStyle.Render(wordwrap.String(effect.Describe(a.Effects), width)) + "\n")
	b.WriteString(promptStyle.Render(fmt.Sprintf("cooldown %.1fs  uses %d  v%d", a.Cooldown, rec.UseCount, rec.Version)))
	return b.String()
}

func writeMetadata(m *ConsoleUI) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("FORGE") + "\n\n")

	content.WriteString("Player:\n")
	content.WriteString(m.config.PlayerID + "\n\n")

	content.WriteString("Events:\n")
	if m.streaming {
		content.WriteString(infoStyle.Render("live") + "\n\n")
	} else {
		content.WriteString(promptStyle.Render("polling") + "\n\n")
	}

	content.WriteString("Forging:\n")
	if len(m.pending) == 0 {
		content.WriteString("Nothing\n\n")
	} else {
		keys := make([]string, 0, len(m.pending))
		for _, p := range m.pending {
			keys = append(keys, p.ComboKey)
		}
		sort.Strings(keys)
		for _, k := range keys {
			content.WriteString(loadingStyle.Render("• "+k) + "\n")
		}
		content.WriteString("\n")
	}

	content.WriteString(fmt.Sprintf("Cached (%d):\n", len(m.abilities)))
	for _, rec := range m.abilities {
		name := rec.ComboKey
		if rec.Ability != nil && rec.Ability.Name != "" {
			name = rec.Ability.Name
		}
		content.WriteString(fmt.Sprintf("• %s ×%d\n", name, rec.UseCount))
	}

	content.WriteString("\n")
	content.WriteString("Commands:\n")
	content.WriteString("• Enter: Forge\n")
	content.WriteString("• /force: Regenerate\n")
	content.WriteString("• /copy: Copy JSON\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• Ctrl+C: Quit\n")

	return content.String()
}

// writeLogContent rebuilds the log for the current viewport width.
func (m *ConsoleUI) writeLogContent() {
	width := max(m.logViewport.Width-6, 20) // Account for left(3) + right(3) padding

	var content strings.Builder
	content.WriteString(titleStyle.Render("ABILITY FORGE") + "\n\n")
	content.WriteString("Type two or more elements to forge an ability.\n")
	content.WriteString(promptStyle.Render("Elements: "+strings.Join(effect.Elements(), ", ")) + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(width-6, 1))) + "\n\n")

	for _, e := range m.entries {
		switch e.kind {
		case entryInput:
			content.WriteString(userStyle.Render("You: ") + wordwrap.String(e.text, width-6) + "\n\n")
		case entryAbility:
			content.WriteString(formatAbility(e.ability, width) + "\n\n")
		case entryInfo:
			content.WriteString(infoStyle.Render(wordwrap.String(e.text, width)) + "\n\n")
		case entryError:
			content.WriteString(errorStyle.Render(wordwrap.String("Error: "+e.text, width)) + "\n\n")
		}
	}

	if len(m.pending) > 0 {
		content.WriteString(m.renderProgressBar())
	}

	m.logViewport.SetContent(content.String())
	m.logViewport.GotoBottom()
}

func (m *ConsoleUI) refresh() {
	m.writeLogContent()
	m.metaViewport.SetContent(writeMetadata(m))
}

func (m *ConsoleUI) addEntry(kind entryKind, text string) {
	m.entries = append(m.entries, logEntry{kind: kind, text: text})
}

func (m *ConsoleUI) addAbility(rec *handlers.AbilityResponse) {
	m.entries = append(m.entries, logEntry{kind: entryAbility, ability: rec})
	if rec.Ability != nil {
		if data, err := json.MarshalIndent(rec.Ability, "", "  "); err == nil {
			m.lastJSON = string(data)
		}
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.loadAbilities(), m.waitForEvent(), m.waitForStreamEnd())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.logViewport, vpCmd = m.logViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		logWidth := int(float64(m.width)*0.7) - 4
		metaWidth := m.width - logWidth - 6

		m.logViewport.Width = logWidth - 2
		m.logViewport.Height = m.height - 5
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(logWidth - 4)
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}
			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}
			return m.forge(input, false)
		}

	case abilityRequestedMsg:
		switch {
		case msg.err != nil:
			m.addEntry(entryError, msg.err.Error())
		case msg.hit != nil:
			m.addAbility(msg.hit)
			m.refresh()
			return m, m.loadAbilities()
		case msg.pending != nil:
			m.pending[msg.pending.RequestID] = *msg.pending
			m.addEntry(entryInfo, fmt.Sprintf("Forging %s...", msg.pending.ComboKey))
			m.refresh()
			return m, tea.Batch(m.startPolling(), progressTick())
		}
		m.refresh()

	case pollTickMsg:
		m.polling = false
		if len(m.pending) == 0 {
			return m, nil
		}
		cmds := []tea.Cmd{m.startPolling()}
		for id := range m.pending {
			cmds = append(cmds, m.checkRequest(id))
		}
		return m, tea.Batch(cmds...)

	case requestStatusMsg:
		if msg.err != nil || msg.state == nil || !msg.state.Status.Terminal() {
			return m, nil
		}
		return m, m.finish(msg.state.RequestID, msg.state.Status == queue.StatusCompleted, msg.state.Fallback, msg.state.Error)

	case eventMsg:
		cmds := []tea.Cmd{m.waitForEvent()}
		switch msg.event.Type {
		case "connected":
			m.streaming = true
			m.refresh()
		case events.EventTypeCompleted:
			fallback, _ := msg.event.Data["fallback"].(bool)
			cmds = append(cmds, m.finish(msg.event.RequestID, true, fallback, ""))
		case events.EventTypeFailed:
			errMsg, _ := msg.event.Data["error"].(string)
			cmds = append(cmds, m.finish(msg.event.RequestID, false, false, errMsg))
		}
		return m, tea.Batch(cmds...)

	case eventsClosedMsg:
		m.streaming = false
		m.refresh()

	case abilityLoadedMsg:
		if msg.err != nil {
			m.addEntry(entryError, msg.err.Error())
		} else {
			m.addAbility(msg.ability)
		}
		m.refresh()
		return m, m.loadAbilities()

	case abilitiesListedMsg:
		if msg.err == nil {
			m.abilities = msg.abilities
			m.metaViewport.SetContent(writeMetadata(&m))
		}

	case cacheClearedMsg:
		if msg.err != nil {
			m.addEntry(entryError, msg.err.Error())
		} else {
			m.addEntry(entryInfo, "Ability cache cleared.")
		}
		m.refresh()
		return m, m.loadAbilities()

	case progressTickMsg:
		if len(m.pending) > 0 {
			m.progressTick++
			m.writeLogContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.logViewport, vpCmd = m.logViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// finish settles a pending request reported by polling or by the event
// stream, whichever arrives first.
func (m *ConsoleUI) finish(requestID string, completed, fallback bool, errMsg string) tea.Cmd {
	p, ok := m.pending[requestID]
	if !ok {
		return nil
	}
	delete(m.pending, requestID)
	defer m.refresh()

	if !completed {
		if errMsg == "" {
			errMsg = "generation failed"
		}
		m.addEntry(entryError, fmt.Sprintf("%s: %s", p.ComboKey, errMsg))
		return nil
	}
	if fallback {
		m.addEntry(entryInfo, fmt.Sprintf("The model fumbled %s; a fallback ability was cached.", p.ComboKey))
	}
	return m.fetchAbility(p.ComboKey)
}

func (m ConsoleUI) forge(input string, force bool) (tea.Model, tea.Cmd) {
	prims := parsePrimitives(input)
	if len(prims) == 0 {
		m.addEntry(entryError, "name at least one element")
		m.refresh()
		return m, nil
	}
	m.addEntry(entryInput, comboTitle(prims))
	m.refresh()
	return m, m.requestAbility(prims, force)
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	rest := strings.Join(fields[1:], " ")

	switch cmd {
	case "/help":
		m.addEntry(entryInfo, `Commands:
• fire water - forge (or recall) an ability
• /force fire water - regenerate even if cached
• /list - show cached abilities
• /copy - copy the last ability's JSON
• /clear - delete this player's cached abilities
• Ctrl+C - Quit`)

	case "/force":
		return m.forge(rest, true)

	case "/list":
		if len(m.abilities) == 0 {
			m.addEntry(entryInfo, "No abilities cached yet.")
		}
		for i := range m.abilities {
			rec := m.abilities[i]
			m.entries = append(m.entries, logEntry{kind: entryAbility, ability: &rec})
		}

	case "/copy":
		if m.lastJSON == "" {
			m.addEntry(entryError, "no ability to copy yet")
		} else if err := clipboard.WriteAll(m.lastJSON); err != nil {
			m.addEntry(entryError, "clipboard: "+err.Error())
		} else {
			m.addEntry(entryInfo, "Ability JSON copied to clipboard.")
		}

	case "/clear":
		return m, m.clearCache()

	default:
		m.addEntry(entryError, "unknown command "+cmd)
	}

	m.refresh()
	return m, nil
}

func (m ConsoleUI) requestAbility(prims []string, force bool) tea.Cmd {
	return func() tea.Msg {
		hit, pending, err := requestAbility(m.client, m.config.APIBaseURL, m.config.PlayerID, prims, force)
		return abilityRequestedMsg{hit: hit, pending: pending, err: err}
	}
}

func (m ConsoleUI) checkRequest(id string) tea.Cmd {
	return func() tea.Msg {
		st, err := getRequest(m.client, m.config.APIBaseURL, id)
		return requestStatusMsg{state: st, err: err}
	}
}

func (m ConsoleUI) fetchAbility(comboKey string) tea.Cmd {
	return func() tea.Msg {
		rec, err := getAbility(m.client, m.config.APIBaseURL, m.config.PlayerID, comboKey)
		return abilityLoadedMsg{ability: rec, err: err}
	}
}

func (m ConsoleUI) loadAbilities() tea.Cmd {
	return func() tea.Msg {
		list, err := listAbilities(m.client, m.config.APIBaseURL, m.config.PlayerID)
		return abilitiesListedMsg{abilities: list, err: err}
	}
}

func (m ConsoleUI) clearCache() tea.Cmd {
	return func() tea.Msg {
		return cacheClearedMsg{err: clearCache(m.client, m.config.APIBaseURL, m.config.PlayerID)}
	}
}

func (m ConsoleUI) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func (m ConsoleUI) waitForStreamEnd() tea.Cmd {
	if m.streamDone == nil {
		return nil
	}
	return func() tea.Msg {
		return eventsClosedMsg{err: <-m.streamDone}
	}
}

// startPolling schedules the next status poll unless one is already due.
func (m *ConsoleUI) startPolling() tea.Cmd {
	if m.polling {
		return nil
	}
	m.polling = true
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Abilities still forging will be cached by the server.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	logWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - logWidth - 6

	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.logViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(logWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, logPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.logViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	// Clamp bar width to a sensible range
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
