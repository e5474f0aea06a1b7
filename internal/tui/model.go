package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"edurag/internal/citation"
	"edurag/internal/domain"
	"edurag/internal/service"
)

// AskPort is the TUI-facing subset of the RAG service.
type AskPort interface {
	Ask(ctx context.Context, q domain.Query) (*service.Answer, error)
}

type answerMsg struct {
	question string
	answer   *service.Answer
	err      error
}

// Model is the Bubble Tea model for the question console.
type Model struct {
	service    AskPort
	lang       domain.Language
	filter     domain.Filter
	input      textinput.Model
	viewport   viewport.Model
	answer     *service.Answer
	summary    string
	status     string
	cursor     int
	showPrompt bool
	ready      bool
	busy       bool
	lastQuery  string
}

// New creates a new TUI model instance.
func New(svc AskPort, lang domain.Language, filter domain.Filter, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  svc,
		lang:     lang,
		filter:   filter,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready. Enter asks, ↑/↓ browse passages, Tab toggles the prompt.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	svc, lang, filter := m.service, m.lang, m.filter
	return func() tea.Msg {
		ans, err := svc.Ask(context.Background(), domain.Query{Text: q, Language: lang, Filter: filter})
		return answerMsg{question: q, answer: ans, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.answer = nil
			if errors.Is(msg.err, domain.ErrEmbeddingUnavailable) {
				m.status = "Search temporarily unavailable: " + msg.err.Error()
			} else {
				m.status = "Error: " + msg.err.Error()
			}
		} else {
			m.answer = msg.answer
			m.cursor = 0
			m.lastQuery = msg.question
			if msg.answer.Grounded {
				m.status = fmt.Sprintf("%d passages for %q (confidence %.2f)", len(msg.answer.Result.Items), msg.question, msg.answer.Confidence)
			} else {
				m.status = fmt.Sprintf("No grounded material for %q", msg.question)
			}
		}
		m.viewport.SetContent(m.renderCurrent())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = "Searching..."
				return m, m.ask(q)
			}
		case "tab":
			if m.answer != nil {
				m.showPrompt = !m.showPrompt
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "down":
			if n := m.passages(); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if n := m.passages(); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) passages() int {
	if m.answer == nil {
		return 0
	}
	return len(m.answer.Result.Items)
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("EduRAG")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if m.answer == nil {
		return "No results yet."
	}
	if m.showPrompt {
		return m.answer.Prompt
	}
	if !m.answer.Grounded {
		return warnStyle.Render("The indexed material does not cover this question.") + "\n\n" + m.answer.Prompt
	}
	r := m.answer.Result.Items[m.cursor]
	title := fmt.Sprintf("Passage %d/%d  score=%.3f", m.cursor+1, len(m.answer.Result.Items), r.Score)
	body := highlightBestSentence(r.Chunk.Text, m.lastQuery)
	sources := sourceStyle.Render(citation.Render(m.answer.Citations, m.answer.Language))
	return title + "\n\n" + body + "\n\n" + sources
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+(?:['’][\p{L}\p{M}]+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?।॥]+[.!?।॥]`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := splitSentences(text)
	best := bestSentence(sentences, query)
	if best < 0 {
		return strings.Join(sentences, " ")
	}
	out := make([]string, len(sentences))
	copy(out, sentences)
	out[best] = highlightStyle.Render(out[best])
	return strings.Join(out, " ")
}

// splitSentences cuts text at sentence terminators. Text after the last
// terminator is kept as a final sentence since chunks end mid-sentence.
func splitSentences(text string) []string {
	var out []string
	last := 0
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		// stray terminators between matches belong to the previous sentence
		if gap := strings.TrimSpace(text[last:loc[0]]); gap != "" && len(out) > 0 {
			out[len(out)-1] += gap
		} else {
			add(gap)
		}
		add(text[loc[0]:loc[1]])
		last = loc[1]
	}
	add(text[last:])
	return out
}

// bestSentence returns the index of the sentence sharing most tokens with
// query, the first one on ties, or -1 when query has no tokens.
func bestSentence(sentences []string, query string) int {
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return -1
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
