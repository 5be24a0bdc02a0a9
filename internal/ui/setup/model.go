// Package setup implements the first-run account configuration flow:
// pick a provider, fill in its form, and persist the config file plus
// the secret material in the credential store.
package setup

import (
	"fmt"
	"net/mail"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mailloom/mailloom/internal/auth"
	"github.com/mailloom/mailloom/internal/credential"
	"github.com/mailloom/mailloom/internal/keys"
	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/theme"
)

// Mode represents the current state of the setup view.
type Mode int

const (
	ModeSelectProvider Mode = iota
	ModeFormGmail
	ModeFormIMAP
	ModeResult
)

// Form field keys. Completed values are read back through
// huh.Form.GetString/GetBool; the forms themselves are shared pointers,
// so typed input survives the model copies Bubble Tea makes on every
// update.
const (
	fieldProvider     = "provider"
	fieldEmail        = "email"
	fieldClientID     = "client-id"
	fieldClientSecret = "client-secret"
	fieldRefreshToken = "refresh-token"
	fieldIMAPHost     = "imap-host"
	fieldIMAPPort     = "imap-port"
	fieldIMAPTLS      = "imap-tls"
	fieldPassword     = "password"
)

// DoneMsg signals the setup flow finished and the account is configured.
type DoneMsg struct {
	Config *model.AppConfig
}

// CancelMsg signals the setup flow was aborted.
type CancelMsg struct{}

// savedMsg is sent after the config and secrets are persisted.
type savedMsg struct {
	cfg *model.AppConfig
	err error
}

// Model is the Bubble Tea model for the account setup flow.
type Model struct {
	mode       Mode
	configPath string
	config     *model.AppConfig
	creds      credential.Store
	tokens     *auth.TokenStore

	providerSelect *huh.Form
	gmailForm      *huh.Form
	imapForm       *huh.Form

	// provider is set once the selection form completes.
	provider string

	resultErr error

	keys          *keys.KeyMap
	width, height int
}

// New creates a new setup model with the provider selection form ready
// to run. The given config is used as the starting point; its account
// section is overwritten on completion.
func New(
	configPath string,
	cfg *model.AppConfig,
	creds credential.Store,
	tokens *auth.TokenStore,
	k *keys.KeyMap,
	width, height int,
) Model {
	m := Model{
		mode:       ModeSelectProvider,
		configPath: configPath,
		config:     cfg,
		creds:      creds,
		tokens:     tokens,
		keys:       k,
		width:      width,
		height:     height,
	}
	m.providerSelect = m.buildProviderSelect()
	return m
}

// Init starts the provider selection form.
func (m Model) Init() tea.Cmd {
	if m.providerSelect == nil {
		return nil
	}
	return m.providerSelect.Init()
}

// Reset rebuilds the whole flow from the current config, so reopening
// setup starts clean instead of resuming a completed form.
func (m Model) Reset() (Model, tea.Cmd) {
	next := New(m.configPath, m.config, m.creds, m.tokens, m.keys, m.width, m.height)
	return next, next.Init()
}

// Update handles messages for the setup view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case savedMsg:
		m.mode = ModeResult
		m.resultErr = msg.err
		if msg.err == nil {
			m.config = msg.cfg
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode == ModeResult {
			switch msg.String() {
			case "enter":
				if m.resultErr != nil {
					return m.Reset()
				}
				cfg := m.config
				return m, func() tea.Msg { return DoneMsg{Config: cfg} }
			case "esc":
				return m, func() tea.Msg { return CancelMsg{} }
			}
			return m, nil
		}
	}

	return m.updateActiveForm(msg)
}

// updateActiveForm dispatches the message to the form for the current
// mode and advances the flow when a form completes.
func (m Model) updateActiveForm(msg tea.Msg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeSelectProvider:
		return m.updateProviderSelect(msg)
	case ModeFormGmail:
		return m.updateGmailForm(msg)
	case ModeFormIMAP:
		return m.updateIMAPForm(msg)
	}
	return m, nil
}

func (m Model) updateProviderSelect(msg tea.Msg) (Model, tea.Cmd) {
	if m.providerSelect == nil {
		return m, nil
	}

	mdl, cmd := m.providerSelect.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.providerSelect = f
	}

	if m.providerSelect.State == huh.StateCompleted {
		return m.handleProviderSelected()
	}
	if m.providerSelect.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

func (m Model) updateGmailForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.gmailForm == nil {
		return m, nil
	}

	mdl, cmd := m.gmailForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.gmailForm = f
	}

	if m.gmailForm.State == huh.StateCompleted {
		return m.saveAccount()
	}
	if m.gmailForm.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

func (m Model) updateIMAPForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.imapForm == nil {
		return m, nil
	}

	mdl, cmd := m.imapForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.imapForm = f
	}

	if m.imapForm.State == huh.StateCompleted {
		return m.saveAccount()
	}
	if m.imapForm.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// --- Provider selection ---

func (m Model) buildProviderSelect() *huh.Form {
	provider := m.config.Account.Provider
	if provider == "" {
		provider = "gmail"
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key(fieldProvider).
				Title("Select Mailbox Provider").
				Description("Where should conversations be mirrored from?").
				Options(
					huh.NewOption("Gmail - OAuth, incremental history sync", "gmail"),
					huh.NewOption("IMAP - password login, full sync only", "imap"),
				).
				Value(&provider),
		),
	).WithWidth(m.formWidth())
}

func (m Model) handleProviderSelected() (Model, tea.Cmd) {
	m.provider = m.providerSelect.GetString(fieldProvider)
	switch m.provider {
	case "gmail":
		m.mode = ModeFormGmail
		m.gmailForm = m.buildGmailForm()
		return m, m.gmailForm.Init()
	case "imap":
		m.mode = ModeFormIMAP
		m.imapForm = m.buildIMAPForm()
		return m, m.imapForm.Init()
	default:
		return m, func() tea.Msg { return CancelMsg{} }
	}
}

// --- Gmail form ---

func (m Model) buildGmailForm() *huh.Form {
	// Prefill from the existing config so re-running setup edits in
	// place. Secrets are never prefilled.
	email := m.config.Account.Email
	clientID := m.config.Account.ClientID
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key(fieldEmail).
				Title("Email Address").
				Description("The Gmail account to mirror").
				Placeholder("you@gmail.com").
				Value(&email).
				Validate(validateEmail),
			huh.NewInput().
				Key(fieldClientID).
				Title("OAuth Client ID").
				Description("From your Google Cloud OAuth credentials").
				Value(&clientID).
				Validate(validateRequired("Client ID")),
			huh.NewInput().
				Key(fieldClientSecret).
				Title("OAuth Client Secret").
				EchoMode(huh.EchoModePassword).
				Validate(validateRequired("Client secret")),
			huh.NewInput().
				Key(fieldRefreshToken).
				Title("Refresh Token").
				Description("Obtained once via the OAuth consent flow").
				EchoMode(huh.EchoModePassword).
				Validate(validateRequired("Refresh token")),
		),
	).WithWidth(m.formWidth())
}

// --- IMAP form ---

func (m Model) buildIMAPForm() *huh.Form {
	email := m.config.Account.Email
	host := m.config.Account.IMAPHost
	port := m.config.Account.IMAPPort
	tls := m.config.Account.IMAPTLS
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key(fieldEmail).
				Title("Email Address").
				Placeholder("you@example.com").
				Value(&email).
				Validate(validateEmail),
			huh.NewInput().
				Key(fieldIMAPHost).
				Title("IMAP Host").
				Placeholder("imap.example.com").
				Value(&host).
				Validate(validateRequired("Host")),
			huh.NewInput().
				Key(fieldIMAPPort).
				Title("IMAP Port").
				Placeholder("993").
				Value(&port).
				Validate(validatePort),
			huh.NewConfirm().
				Key(fieldIMAPTLS).
				Title("Use TLS?").
				Value(&tls),
			huh.NewInput().
				Key(fieldPassword).
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Validate(validateRequired("Password")),
		),
	).WithWidth(m.formWidth())
}

// saveAccount reads the completed form's values and persists the config
// file, the secret material, and (for gmail) the initial token record.
func (m Model) saveAccount() (Model, tea.Cmd) {
	var form *huh.Form
	switch m.provider {
	case "gmail":
		form = m.gmailForm
	case "imap":
		form = m.imapForm
	default:
		return m, func() tea.Msg { return CancelMsg{} }
	}

	cfg := *m.config
	cfg.Account.Provider = m.provider
	cfg.Account.Email = strings.TrimSpace(form.GetString(fieldEmail))

	var clientSecret, refreshToken, password string
	switch m.provider {
	case "gmail":
		cfg.Account.ClientID = strings.TrimSpace(form.GetString(fieldClientID))
		clientSecret = form.GetString(fieldClientSecret)
		refreshToken = form.GetString(fieldRefreshToken)
	case "imap":
		cfg.Account.IMAPHost = strings.TrimSpace(form.GetString(fieldIMAPHost))
		cfg.Account.IMAPPort = strings.TrimSpace(form.GetString(fieldIMAPPort))
		cfg.Account.IMAPTLS = form.GetBool(fieldIMAPTLS)
		password = form.GetString(fieldPassword)
	}

	path := m.configPath
	creds := m.creds
	tokens := m.tokens
	provider := m.provider

	saved := &cfg
	return m, func() tea.Msg {
		switch provider {
		case "gmail":
			if err := creds.Save(credential.KeyClientSecret, clientSecret); err != nil {
				return savedMsg{err: fmt.Errorf("saving client secret: %w", err)}
			}
			// A zero expiry forces a refresh on first use, which also
			// validates the pasted refresh token.
			if err := tokens.Save(auth.TokenRecord{RefreshToken: refreshToken}); err != nil {
				return savedMsg{err: fmt.Errorf("saving token record: %w", err)}
			}
		case "imap":
			if err := creds.Save(credential.KeyIMAPPassword, password); err != nil {
				return savedMsg{err: fmt.Errorf("saving password: %w", err)}
			}
		}

		if err := model.SaveConfig(path, saved); err != nil {
			return savedMsg{err: err}
		}
		return savedMsg{cfg: saved}
	}
}

// View renders the setup view for the current mode.
func (m Model) View() string {
	style := lipgloss.NewStyle().Padding(1, 2)

	switch m.mode {
	case ModeSelectProvider:
		if m.providerSelect != nil {
			return style.Render(m.providerSelect.View())
		}
	case ModeFormGmail:
		if m.gmailForm != nil {
			return style.Render(m.gmailForm.View())
		}
	case ModeFormIMAP:
		if m.imapForm != nil {
			return style.Render(m.imapForm.View())
		}
	case ModeResult:
		return style.Render(m.renderResult())
	}
	return ""
}

func (m Model) renderResult() string {
	if m.resultErr != nil {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			theme.ErrorStyle.Render("Setup failed"),
			"",
			fmt.Sprintf("%v", m.resultErr),
			"",
			theme.HelpStyle.Render("enter retry | esc cancel"),
		)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorGreen).
			Render("Account configured"),
		"",
		fmt.Sprintf("%s via %s", m.config.Account.Email, m.config.Account.Provider),
		"",
		theme.HelpStyle.Render("enter start syncing"),
	)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateEmail(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

func validatePort(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("port is required")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	return nil
}
