package setup

import (
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/mailloom/mailloom/internal/auth"
	"github.com/mailloom/mailloom/internal/credential"
	"github.com/mailloom/mailloom/internal/keys"
	"github.com/mailloom/mailloom/internal/model"
)

// memoryStore is an in-memory credential.Store for tests.
type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Load(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", credential.ErrNotFound
	}
	return v, nil
}

func (m *memoryStore) Save(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newTestModel(t *testing.T) (Model, string, *memoryStore, *auth.TokenStore) {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("loading default config: %v", err)
	}

	creds := newMemoryStore()
	tokens := auth.NewTokenStore(creds)
	m := New(cfgPath, cfg, creds, tokens, keys.DefaultKeyMap(), 80, 24)
	return m, cfgPath, creds, tokens
}

// runCmds executes pending commands the way the runtime would, feeding
// form bookkeeping messages back into the model. Cursor blink and other
// timer messages are dropped so the loop settles.
func runCmds(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()

	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 200 {
			t.Fatal("command loop did not settle")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := c()
		if msg == nil {
			continue
		}
		if nested, ok := unwrapCmds(msg); ok {
			queue = append(queue, nested...)
			continue
		}
		if !flowMsg(msg) {
			continue
		}
		var next tea.Cmd
		m, next = m.Update(msg)
		queue = append(queue, next)
	}
	return m
}

// unwrapCmds flattens batch and sequence messages into their commands.
func unwrapCmds(msg tea.Msg) ([]tea.Cmd, bool) {
	if batch, ok := msg.(tea.BatchMsg); ok {
		return batch, true
	}
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Slice || v.Type().Elem() != reflect.TypeOf((*tea.Cmd)(nil)).Elem() {
		return nil, false
	}
	cmds := make([]tea.Cmd, v.Len())
	for i := 0; i < v.Len(); i++ {
		cmds[i], _ = v.Index(i).Interface().(tea.Cmd)
	}
	return cmds, true
}

// flowMsg reports whether msg drives the setup flow rather than cursor
// or spinner animation.
func flowMsg(msg tea.Msg) bool {
	pkg := reflect.TypeOf(msg).PkgPath()
	return strings.Contains(pkg, "charmbracelet/huh") ||
		strings.HasSuffix(pkg, "internal/ui/setup")
}

func press(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(key)
	return runCmds(t, next, cmd)
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	return press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func pressEnter(t *testing.T, m Model) Model {
	t.Helper()
	return press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestGmailSetupPersistsEnteredValues(t *testing.T) {
	m, cfgPath, creds, tokens := newTestModel(t)
	m = runCmds(t, m, m.Init())

	// Provider select defaults to gmail.
	m = pressEnter(t, m)
	if m.mode != ModeFormGmail {
		t.Fatalf("mode after provider select = %d, want gmail form", m.mode)
	}

	m = typeText(t, m, "you@gmail.com")
	m = pressEnter(t, m)
	m = typeText(t, m, "client-id.apps.googleusercontent.com")
	m = pressEnter(t, m)
	m = typeText(t, m, "client-secret")
	m = pressEnter(t, m)
	m = typeText(t, m, "refresh-token")
	m = pressEnter(t, m)

	if m.mode != ModeResult {
		t.Fatalf("mode after form = %d, want result", m.mode)
	}
	if m.resultErr != nil {
		t.Fatalf("setup failed: %v", m.resultErr)
	}

	saved, err := model.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("reading saved config: %v", err)
	}
	if saved.Account.Email != "you@gmail.com" {
		t.Errorf("saved email = %q, want %q", saved.Account.Email, "you@gmail.com")
	}
	if saved.Account.Provider != "gmail" {
		t.Errorf("saved provider = %q, want gmail", saved.Account.Provider)
	}
	if saved.Account.ClientID != "client-id.apps.googleusercontent.com" {
		t.Errorf("saved client ID = %q", saved.Account.ClientID)
	}

	secret, err := creds.Load(credential.KeyClientSecret)
	if err != nil {
		t.Fatalf("loading client secret: %v", err)
	}
	if secret != "client-secret" {
		t.Errorf("saved client secret = %q, want %q", secret, "client-secret")
	}

	rec, err := tokens.Current()
	if err != nil {
		t.Fatalf("loading token record: %v", err)
	}
	if rec == nil || rec.RefreshToken != "refresh-token" {
		t.Errorf("saved token record = %+v, want refresh token set", rec)
	}

	// Confirming the result screen reports the saved config.
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter on result screen produced no command")
	}
	done, ok := cmd().(DoneMsg)
	if !ok {
		t.Fatal("enter on result screen did not produce DoneMsg")
	}
	if done.Config.Account.Email != "you@gmail.com" {
		t.Errorf("DoneMsg email = %q", done.Config.Account.Email)
	}
}

func TestIMAPSetupPersistsEnteredValues(t *testing.T) {
	m, cfgPath, creds, _ := newTestModel(t)
	m = runCmds(t, m, m.Init())

	// Move off the gmail default and pick IMAP.
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = pressEnter(t, m)
	if m.mode != ModeFormIMAP {
		t.Fatalf("mode after provider select = %d, want imap form", m.mode)
	}

	m = typeText(t, m, "you@example.com")
	m = pressEnter(t, m)
	m = typeText(t, m, "imap.example.com")
	m = pressEnter(t, m)
	// Port is prefilled with the default 993.
	m = pressEnter(t, m)
	// Accept the TLS default.
	m = pressEnter(t, m)
	m = typeText(t, m, "hunter2")
	m = pressEnter(t, m)

	if m.mode != ModeResult {
		t.Fatalf("mode after form = %d, want result", m.mode)
	}
	if m.resultErr != nil {
		t.Fatalf("setup failed: %v", m.resultErr)
	}

	saved, err := model.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("reading saved config: %v", err)
	}
	if saved.Account.Provider != "imap" {
		t.Errorf("saved provider = %q, want imap", saved.Account.Provider)
	}
	if saved.Account.Email != "you@example.com" {
		t.Errorf("saved email = %q", saved.Account.Email)
	}
	if saved.Account.IMAPHost != "imap.example.com" {
		t.Errorf("saved host = %q", saved.Account.IMAPHost)
	}
	if saved.Account.IMAPPort != "993" {
		t.Errorf("saved port = %q", saved.Account.IMAPPort)
	}
	if !saved.Account.IMAPTLS {
		t.Error("saved TLS = false, want the prefilled default")
	}

	password, err := creds.Load(credential.KeyIMAPPassword)
	if err != nil {
		t.Fatalf("loading password: %v", err)
	}
	if password != "hunter2" {
		t.Errorf("saved password = %q, want %q", password, "hunter2")
	}
}

func TestNewBuildsProviderForm(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	if m.providerSelect == nil {
		t.Fatal("provider form not built by New")
	}
	if m.Init() == nil {
		t.Error("Init produced no command")
	}
}

func TestResetRestartsFlow(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	m = runCmds(t, m, m.Init())
	m = pressEnter(t, m)
	if m.mode != ModeFormGmail {
		t.Fatalf("mode = %d, want gmail form", m.mode)
	}

	next, cmd := m.Reset()
	if next.mode != ModeSelectProvider {
		t.Errorf("mode after reset = %d, want provider select", next.mode)
	}
	if next.providerSelect == nil || next.providerSelect.State == huh.StateCompleted {
		t.Error("reset did not rebuild the provider form")
	}
	if cmd == nil {
		t.Error("reset produced no init command")
	}
}
