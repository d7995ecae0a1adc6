package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pollctl/internal/client/api"
	"pollctl/internal/client/events"
	"pollctl/internal/client/stats"
	"pollctl/internal/client/voting"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version can be set at build time
var Version = "dev"

// RequestEntry is a recent API call, shown with --inspect.
type RequestEntry struct {
	Method   string
	Path     string
	Status   int
	Duration time.Duration
	Time     time.Time
}

// Config wires the watch view.
type Config struct {
	Poll      api.Poll
	Machine   *voting.Machine
	Bus       *events.Bus
	Stats     *stats.Stats
	ShareLink string
	// Close stops the live channel. Called when the view quits.
	Close func()
	// Offer hands vote results to the live channel and returns the
	// sequence they were applied under.
	Offer func(api.Results) uint64
	// Context for vote requests. Defaults to context.Background().
	Context context.Context
}

// Model is the watch-and-vote Bubble Tea model.
type Model struct {
	// Live socket state: "polling", "live"
	status string

	poll    api.Poll
	results api.Results
	lastSeq uint64
	link    string

	machine    *voting.Machine
	cursor     int
	input      textinput.Model
	submitting bool

	stats    *stats.Stats
	eventBus *events.Bus
	eventSub <-chan events.Event
	closer   func()
	offer    func(api.Results) uint64
	ctx      context.Context

	width  int
	height int

	requests    []RequestEntry
	maxRequests int

	notice    string
	lastError string
}

func NewModel(cfg Config) Model {
	var eventSub <-chan events.Event
	if cfg.Bus != nil {
		eventSub = cfg.Bus.Subscribe()
	}
	machine := cfg.Machine
	if machine == nil {
		machine = voting.New(nil)
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	input := textinput.New()
	input.Placeholder = "voter token"
	input.CharLimit = 128
	input.Width = 40

	m := Model{
		status:      "polling",
		poll:        cfg.Poll,
		results:     cfg.Poll.Results.Clone(),
		link:        cfg.ShareLink,
		machine:     machine,
		input:       input,
		stats:       cfg.Stats,
		eventBus:    cfg.Bus,
		eventSub:    eventSub,
		closer:      cfg.Close,
		offer:       cfg.Offer,
		ctx:         ctx,
		requests:    make([]RequestEntry, 0),
		maxRequests: 5,
	}
	if machine.State() == voting.StateNeedsToken {
		m.input.Focus()
	}
	return m
}

// Messages
type tickMsg time.Time
type eventMsg events.Event

type voteResultMsg struct {
	results api.Results
	err     error
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		if sub == nil {
			return nil
		}
		event, ok := <-sub
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

func voteCmd(ctx context.Context, machine *voting.Machine, choiceID int64) tea.Cmd {
	return func() tea.Msg {
		results, err := machine.Select(ctx, choiceID)
		return voteResultMsg{results: results, err: err}
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	if m.eventSub != nil {
		cmds = append(cmds, waitForEvent(m.eventSub))
	}
	if m.input.Focused() {
		cmds = append(cmds, textinput.Blink)
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case eventMsg:
		m = m.handleEvent(events.Event(msg))
		return m, waitForEvent(m.eventSub)

	case voteResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.notice = ""
			m.lastError = errorText(msg.err)
			return m, nil
		}
		m.results = msg.results.Clone()
		if m.offer != nil {
			if seq := m.offer(msg.results); seq > m.lastSeq {
				m.lastSeq = seq
			}
		}
		m.lastError = ""
		m.notice = "Vote recorded"
		if m.eventBus != nil {
			m.eventBus.Publish(events.Event{
				Type: events.EventVoteCast,
				Data: events.VoteData{PollID: m.poll.PublicID, ChoiceID: m.selectedChoice(), Results: msg.results},
			})
		}
	}

	if m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m.quit()
	}

	if m.machine.State() == voting.StateNeedsToken {
		if msg.String() == "enter" {
			if err := m.machine.AcceptToken(m.input.Value()); err != nil {
				m.lastError = errorText(err)
				return m, nil
			}
			m.lastError = ""
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m.quit()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.poll.Choices)-1 {
			m.cursor++
		}
	case "enter", " ":
		if m.submitting || len(m.poll.Choices) == 0 {
			return m, nil
		}
		if m.machine.State() == voting.StateVoted {
			m.notice = "You have already voted"
			return m, nil
		}
		m.submitting = true
		m.notice = "Submitting..."
		m.lastError = ""
		return m, voteCmd(m.ctx, m.machine, m.selectedChoice())
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.closer != nil {
		m.closer()
	}
	if m.eventBus != nil && m.eventSub != nil {
		m.eventBus.Unsubscribe(m.eventSub)
	}
	return m, tea.Quit
}

func (m Model) selectedChoice() int64 {
	if m.cursor < 0 || m.cursor >= len(m.poll.Choices) {
		return 0
	}
	return m.poll.Choices[m.cursor].ID
}

func (m Model) handleEvent(event events.Event) Model {
	switch event.Type {
	case events.EventConnecting:
		m.status = "polling"

	case events.EventConnected:
		m.status = "live"

	case events.EventDisconnected:
		m.status = "polling"

	case events.EventSnapshot:
		if data, ok := event.Data.(events.SnapshotData); ok && data.PollID == m.poll.PublicID {
			if data.Seq <= m.lastSeq {
				break
			}
			m.lastSeq = data.Seq
			m.results = api.Results(data.Results).Clone()
		}

	case events.EventRequestComplete:
		if data, ok := event.Data.(events.RequestData); ok {
			entry := RequestEntry{
				Method:   data.Method,
				Path:     data.Path,
				Status:   data.Status,
				Duration: data.Duration,
				Time:     time.Now(),
			}
			m.requests = append([]RequestEntry{entry}, m.requests...)
			if len(m.requests) > m.maxRequests {
				m.requests = m.requests[:m.maxRequests]
			}
		}
	}

	return m
}

// errorText is the message shown for a failed action.
func errorText(err error) string {
	var ve *api.VotingError
	if errors.As(err, &ve) {
		return "Vote rejected: " + ve.Message
	}
	switch {
	case errors.Is(err, voting.ErrAlreadyVoted):
		return "You have already voted"
	case errors.Is(err, voting.ErrEmptyToken):
		return "Enter a voter token"
	}
	return err.Error()
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	b.WriteString(m.renderPoll())
	b.WriteString("\n")

	if m.machine.State() == voting.StateNeedsToken {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Voter token"))
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("This poll is restricted. Enter your token and press enter."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderChoices())

	b.WriteString(m.renderStats())
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.notice) + "\n")
	}
	if m.lastError != "" {
		b.WriteString("\n" + errorStyle.Render(m.lastError) + "\n")
	}

	if len(m.requests) > 0 {
		b.WriteString(m.renderRequests())
	}

	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("pollctl")
	hint := hintStyle.Render("(↑/↓ select, enter vote, q quit)")

	spacing := ""
	if m.width > 0 {
		spaces := m.width - lipgloss.Width(title) - lipgloss.Width(hint)
		if spaces > 0 {
			spacing = strings.Repeat(" ", spaces)
		}
	} else {
		spacing = strings.Repeat(" ", 20)
	}

	return title + spacing + hint
}

func (m Model) renderPoll() string {
	var lines []string
	lines = append(lines, pollTitleStyle.Render(m.poll.Title))
	if m.poll.Description != "" {
		lines = append(lines, m.poll.Description)
	}
	lines = append(lines, "")
	lines = append(lines, m.renderField("Mode", m.poll.Mode))
	lines = append(lines, m.renderField("Status", m.poll.Status))
	lines = append(lines, m.renderField("Updates", StatusText(m.status)))
	lines = append(lines, m.renderField("Your vote", m.machine.State().String()))
	if m.link != "" {
		lines = append(lines, m.renderField("Link", urlStyle.Render(m.link)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderField(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func (m Model) renderChoices() string {
	total := m.results.Total()

	nameWidth := 0
	for _, c := range m.poll.Choices {
		if w := lipgloss.Width(c.Text); w > nameWidth {
			nameWidth = w
		}
	}
	nameStyle := lipgloss.NewStyle().Width(nameWidth + 2)

	var b strings.Builder
	for i, c := range m.poll.Choices {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		n := m.results.Count(c.ID)
		filled, empty := bar(n, total, barWidth)
		b.WriteString(prefix)
		b.WriteString(nameStyle.Render(c.Text))
		b.WriteString(barStyle.Render(strings.Repeat("█", filled)))
		b.WriteString(barEmptyStyle.Render(strings.Repeat("░", empty)))
		b.WriteString(percentStyle.Render(fmt.Sprintf("%.1f%%", percent(n, total))))
		b.WriteString(fmt.Sprintf("  (%d)\n", n))
	}
	b.WriteString(fmt.Sprintf("\n  Total votes: %d\n", total))
	return b.String()
}

func (m Model) renderStats() string {
	var lines []string
	lines = append(lines, "")

	var snap stats.Snapshot
	if m.stats != nil {
		snap = m.stats.Snapshot()
	}

	headers := []string{"fetch", "err", "push", "apply", "stale", "rt1", "p50", "p90"}
	headerRow := labelStyle.Render("Live")
	for _, h := range headers {
		headerRow += statsHeaderStyle.Render(h)
	}
	lines = append(lines, headerRow)

	valueRow := labelStyle.Render("")
	valueRow += statsValueStyle.Render(fmt.Sprintf("%d", snap.Fetches))
	valueRow += statsValueStyle.Render(fmt.Sprintf("%d", snap.FetchErrors))
	valueRow += statsValueStyle.Render(fmt.Sprintf("%d", snap.SocketMessages))
	valueRow += statsValueStyle.Render(fmt.Sprintf("%d", snap.Applied))
	valueRow += statsValueStyle.Render(fmt.Sprintf("%d", snap.Stale))
	valueRow += statsValueStyle.Render(formatDuration(snap.RT1))
	valueRow += statsValueStyle.Render(formatDuration(snap.P50))
	valueRow += statsValueStyle.Render(formatDuration(snap.P90))
	lines = append(lines, valueRow)

	return strings.Join(lines, "\n")
}

func (m Model) renderRequests() string {
	var lines []string
	lines = append(lines, "")
	lines = append(lines, labelStyle.Render("API Requests"))

	for _, req := range m.requests {
		method := MethodText(req.Method)
		path := pathStyle.Render(truncatePath(req.Path, 40))
		status := StatusCodeText(req.Status)
		duration := durationStyle.Render(formatDuration(req.Duration))
		lines = append(lines, fmt.Sprintf("%s %s %s %s", method, path, status, duration))
	}

	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0.00"
	}
	secs := d.Seconds()
	if secs < 1 {
		return fmt.Sprintf("%.2f", secs)
	}
	return fmt.Sprintf("%.1f", secs)
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return path[:maxLen-3] + "..."
}

// Run shows the view until the user quits. cfg.Close runs on quit and
// again on return, so it must be idempotent.
func Run(cfg Config) error {
	p := tea.NewProgram(NewModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	if cfg.Close != nil {
		cfg.Close()
	}
	return err
}
