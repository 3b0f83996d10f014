package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/search"
)

// Searcher is the session-facing subset of the search engine.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, threshold float64) ([]search.Result, error)
}

// Options are the per-session query parameters.
type Options struct {
	TopK      int
	Threshold float64
	// Timeout bounds each query, including the embedding call.
	Timeout time.Duration
}

// Model is the Bubble Tea model of an interactive search session. A failed
// query is reported in the status line and the session keeps running.
type Model struct {
	searcher  Searcher
	opts      Options
	input     textinput.Model
	viewport  viewport.Model
	results   []search.Result
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

type resultsMsg struct {
	query   string
	results []search.Result
	err     error
	elapsed time.Duration
}

// New creates a session model. summary is shown under the title.
func New(s Searcher, opts Options, summary string) Model {
	if opts.TopK <= 0 {
		opts.TopK = search.DefaultTopK
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the manual and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{searcher: s, opts: opts, input: ti, viewport: vp, summary: summary, status: "Loaded. Type to search."}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and query completion events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case resultsMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q (%s)", len(msg.results), msg.query, msg.elapsed.Round(time.Millisecond))
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			if q == "quit" || q == "exit" {
				return m, tea.Quit
			}
			m.busy = true
			m.status = fmt.Sprintf("Searching %q...", q)
			m.input.SetValue("")
			return m, m.query(q)
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) query(q string) tea.Cmd {
	s, opts := m.searcher, m.opts
	return func() tea.Msg {
		ctx := context.Background()
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		start := time.Now()
		res, err := s.Search(ctx, q, opts.TopK, opts.Threshold)
		return resultsMsg{query: q, results: res, err: err, elapsed: time.Since(start)}
	}
}

// View renders the session.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Vehicle Manual Search")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	statusStyle := okStyle
	if strings.HasPrefix(m.status, "Error: ") {
		statusStyle = errStyle
	}
	status := statusStyle.Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		if m.lastQuery != "" {
			return "No chunk passed the similarity threshold."
		}
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  score=%.3f  (%s)", m.cursor+1, len(m.results), r.Score, r.Why)
	return title + "\n" + labelStyle.Render(Location(r)) + "\n\n" + r.Text
}

// Location formats the section path of a result, e.g. "Engine > Oil".
func Location(r search.Result) string {
	parts := make([]string, 0, 2)
	if r.Metadata.Section != "" {
		parts = append(parts, r.Metadata.Section)
	}
	if r.Metadata.Subsection != "" {
		parts = append(parts, r.Metadata.Subsection)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("chunk %d", r.ChunkID)
	}
	return strings.Join(parts, " > ")
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
