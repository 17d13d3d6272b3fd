// ABOUTME: Interactive TUI wizard for logging in to a Mastodon-compatible server.
// ABOUTME: Bubbletea model collecting a server, handing off to the browser, and exchanging the code.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/murmur/internal/mastodon"
)

// DefaultServer is suggested when no server is configured.
const DefaultServer = "mastodon.social"

// Step represents the current wizard step.
type Step int

const (
	StepServer Step = iota
	StepRegistering
	StepCode
	StepExchanging
	StepDone
	StepFailed
)

// Authenticator runs the two halves of the login flow.
type Authenticator interface {
	Login(ctx context.Context, server string) (string, error)
	HandleAuthCode(ctx context.Context, code, server string) error
}

// ValidateFn checks a server before registering with it.
type ValidateFn func(ctx context.Context, server string) (*mastodon.Instance, error)

// loginResultMsg carries the result of validating a server and registering the app.
type loginResultMsg struct {
	title   string
	authURL string
	err     error
}

// exchangeResultMsg carries the result of exchanging the authorization code.
type exchangeResultMsg struct {
	err error
}

// cancelHolder shares a cancel function across bubbletea model copies.
// This MUST be stored as a pointer field on SetupModel so that value-receiver
// methods (required by tea.Model) can store the cancel func and have it
// visible to all copies of the model.
type cancelHolder struct {
	cancel context.CancelFunc
}

// SetupModel is the bubbletea model for the login wizard.
type SetupModel struct {
	step       Step
	inputs     [2]textinput.Model
	spinner    spinner.Model
	auth       Authenticator
	validateFn ValidateFn
	cancelCtx  *cancelHolder
	title      string
	authURL    string
	err        error
	quitting   bool
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	brandStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	linkStyle    = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
)

// NewSetupModel creates a login wizard, pre-filling the server if one is known.
func NewSetupModel(auth Authenticator, server string) SetupModel {
	serverInput := textinput.New()
	serverInput.Placeholder = DefaultServer
	serverInput.Focus()
	serverInput.Width = 50
	if server != "" {
		serverInput.SetValue(server)
	}

	codeInput := textinput.New()
	codeInput.Placeholder = "paste the authorization code"
	codeInput.EchoMode = textinput.EchoPassword
	codeInput.Width = 50

	s := spinner.New()
	s.Spinner = spinner.Dot

	return SetupModel{
		step:       StepServer,
		inputs:     [2]textinput.Model{serverInput, codeInput},
		spinner:    s,
		auth:       auth,
		validateFn: ValidateServer,
		cancelCtx:  &cancelHolder{},
	}
}

// Init implements tea.Model.
func (m SetupModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEscape:
			m.quitting = true
			if m.cancelCtx.cancel != nil {
				m.cancelCtx.cancel()
			}
			return m, tea.Quit
		}

		switch m.step {
		case StepServer:
			return m.updateServer(msg)
		case StepCode:
			return m.updateCode(msg)
		case StepFailed:
			return m.updateFailed(msg)
		}

	case loginResultMsg:
		m.cancelCtx.cancel = nil
		if msg.err != nil {
			m.err = msg.err
			m.step = StepFailed
			return m, nil
		}
		m.title = msg.title
		m.authURL = msg.authURL
		m.step = StepCode
		m.inputs[1].SetValue("")
		m.inputs[1].Focus()
		return m, textinput.Blink

	case exchangeResultMsg:
		m.cancelCtx.cancel = nil
		if msg.err == nil {
			m.step = StepDone
			return m, tea.Quit
		}
		m.err = msg.err
		m.step = StepFailed
		return m, nil

	case spinner.TickMsg:
		if m.step == StepRegistering || m.step == StepExchanging {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m SetupModel) updateServer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		val := mastodon.NormalizeServer(m.inputs[0].Value())
		if val == "" {
			val = DefaultServer
		}
		m.inputs[0].SetValue(val)
		m.inputs[0].Blur()
		m.step = StepRegistering
		return m, tea.Batch(m.startLogin(), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.inputs[0], cmd = m.inputs[0].Update(msg)
	return m, cmd
}

func (m SetupModel) updateCode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		// Don't advance on an empty code
		if strings.TrimSpace(m.inputs[1].Value()) == "" {
			return m, nil
		}
		m.inputs[1].Blur()
		m.step = StepExchanging
		return m, tea.Batch(m.startExchange(), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.inputs[1], cmd = m.inputs[1].Update(msg)
	return m, cmd
}

func (m SetupModel) updateFailed(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyRunes {
		switch msg.Runes[0] {
		case 'r':
			// A failed attempt is abandoned, so retrying starts a fresh login.
			m.err = nil
			m.authURL = ""
			m.step = StepServer
			m.inputs[0].Focus()
			return m, textinput.Blink
		case 'q':
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m SetupModel) startLogin() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelCtx.cancel = cancel
	server := m.inputs[0].Value()
	validate := m.validateFn
	auth := m.auth
	return func() tea.Msg {
		var title string
		if validate != nil {
			inst, err := validate(ctx, server)
			if err != nil {
				return loginResultMsg{err: err}
			}
			title = inst.Title
		}
		authURL, err := auth.Login(ctx, server)
		return loginResultMsg{title: title, authURL: authURL, err: err}
	}
}

func (m SetupModel) startExchange() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelCtx.cancel = cancel
	server := m.inputs[0].Value()
	code := strings.TrimSpace(m.inputs[1].Value())
	auth := m.auth
	return func() tea.Msg {
		return exchangeResultMsg{err: auth.HandleAuthCode(ctx, code, server)}
	}
}

// View implements tea.Model.
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(brandStyle.Render("   MURMUR"))
	b.WriteString(titleStyle.Render(" - Login"))
	b.WriteString("\n\n")

	switch m.step {
	case StepServer:
		b.WriteString(stepStyle.Render("Step 1 of 2: Server"))
		b.WriteString("\n")
		b.WriteString(promptStyle.Render("(press Enter for default)"))
		b.WriteString("\n")
		b.WriteString(m.inputs[0].View())
		b.WriteString("\n")

	case StepRegistering:
		b.WriteString(fmt.Sprintf("  Server: %s\n\n", m.inputs[0].Value()))
		b.WriteString(m.spinner.View())
		b.WriteString(" Registering with server...")
		b.WriteString("\n")

	case StepCode:
		server := m.inputs[0].Value()
		if m.title != "" {
			server = fmt.Sprintf("%s (%s)", server, m.title)
		}
		b.WriteString(fmt.Sprintf("  Server: %s\n\n", server))
		b.WriteString("Approve access in your browser. If it did not open, visit:\n")
		b.WriteString(linkStyle.Render(m.authURL))
		b.WriteString("\n\n")
		b.WriteString(stepStyle.Render("Step 2 of 2: Authorization code"))
		b.WriteString("\n")
		b.WriteString(m.inputs[1].View())
		b.WriteString("\n")

	case StepExchanging:
		b.WriteString(fmt.Sprintf("  Server: %s\n\n", m.inputs[0].Value()))
		b.WriteString(m.spinner.View())
		b.WriteString(" Exchanging code...")
		b.WriteString("\n")

	case StepDone:
		b.WriteString(successStyle.Render("✓ Logged in!"))
		b.WriteString("\n")

	case StepFailed:
		errMsg := "unknown error"
		if m.err != nil {
			errMsg = m.err.Error()
		}
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ Login failed: %s", errMsg)))
		b.WriteString("\n\n")
		b.WriteString(promptStyle.Render("[r]etry  [q]uit"))
		b.WriteString("\n")
	}

	return b.String()
}

// Server returns the server the wizard logged in to.
func (m SetupModel) Server() string {
	return m.inputs[0].Value()
}

// Succeeded returns true if the code exchange completed and the user did not
// cancel with Ctrl+C, Escape, or 'q'.
func (m SetupModel) Succeeded() bool {
	return m.step == StepDone && !m.quitting
}
