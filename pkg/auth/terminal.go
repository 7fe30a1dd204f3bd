package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptAccent = lipgloss.Color("#FFB3BA")
	promptMuted  = lipgloss.Color("#6B7280")

	promptTitleStyle = lipgloss.NewStyle().Foreground(promptAccent).Bold(true)
	promptHintStyle  = lipgloss.NewStyle().Foreground(promptMuted).Italic(true)
	promptErrorStyle = lipgloss.NewStyle().Foreground(promptAccent)
	promptBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(promptAccent).Padding(0, 1)
)

var errCodeFormat = errors.New("the code is the digits from the SMS")

// validateCode accepts a non-empty string of ASCII digits.
func validateCode(code string) error {
	if code == "" {
		return errCodeFormat
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return errCodeFormat
		}
	}
	return nil
}

// TerminalPrompter asks for the code with a small full-terminal form.
// Use it when stdin is a terminal; LinePrompter otherwise.
type TerminalPrompter struct {
	In    io.Reader
	Out   io.Writer
	Title string
}

// PromptCode runs the form until the operator submits a code or cancels.
func (p *TerminalPrompter) PromptCode(ctx context.Context) (string, error) {
	title := p.Title
	if title == "" {
		title = "Zhihu sent a verification code to your phone"
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.In != nil {
		opts = append(opts, tea.WithInput(p.In))
	}
	if p.Out != nil {
		opts = append(opts, tea.WithOutput(p.Out))
	}

	final, err := tea.NewProgram(newCodeModel(title), opts...).Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("code prompt failed: %w", err)
	}

	m, ok := final.(codeModel)
	if !ok || m.aborted || m.code == "" {
		return "", ErrPromptAborted
	}
	return m.code, nil
}

type codeModel struct {
	input   textinput.Model
	title   string
	code    string
	aborted bool
	invalid string
}

func newCodeModel(title string) codeModel {
	ti := textinput.New()
	ti.Placeholder = "000000"
	ti.Prompt = "› "
	ti.CharLimit = 8
	ti.Width = 10
	ti.Focus()

	return codeModel{input: ti, title: title}
}

func (m codeModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m codeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			code := strings.TrimSpace(m.input.Value())
			if err := validateCode(code); err != nil {
				m.invalid = err.Error()
				return m, nil
			}
			m.code = code
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		}
		m.invalid = ""
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m codeModel) View() string {
	if m.code != "" || m.aborted {
		return ""
	}

	var b strings.Builder
	b.WriteString(promptTitleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(promptBoxStyle.Render(m.input.View()))
	b.WriteString("\n")
	if m.invalid != "" {
		b.WriteString(promptErrorStyle.Render(m.invalid))
		b.WriteString("\n")
	}
	b.WriteString(promptHintStyle.Render("enter to submit, esc to cancel"))
	b.WriteString("\n")
	return b.String()
}
