package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailloom/mailloom/internal/app"
	"github.com/mailloom/mailloom/internal/auth"
	"github.com/mailloom/mailloom/internal/credential"
	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/remote"
	"github.com/mailloom/mailloom/internal/remote/gmailapi"
	"github.com/mailloom/mailloom/internal/remote/imap"
	"github.com/mailloom/mailloom/internal/store"
	appsync "github.com/mailloom/mailloom/internal/sync"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mailloom: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, logFile, err := newLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()

	creds, err := credential.OpenKeyring()
	if err != nil {
		return err
	}
	tokens := auth.NewTokenStore(creds)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	limiter := remote.NewTokenBucket(cfg.Sync.RateLimitRPS)
	defer limiter.Stop()

	mailbox, tokenProvider, err := buildMailbox(ctx, cfg, creds, tokens, limiter, logger)
	if err != nil {
		return err
	}

	engine := appsync.NewEngine(st, mailbox, tokenProvider, logger, appsync.Config{
		FetchConcurrency: cfg.Sync.FetchConcurrency,
		PollInterval:     time.Duration(cfg.Sync.PollIntervalSec) * time.Second,
	})

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	go func() {
		if err := engine.Run(engineCtx); err != nil && engineCtx.Err() == nil {
			logger.Error().Err(err).Msg("engine stopped")
		}
	}()

	// First launch mirrors everything; later launches catch up from the
	// stored checkpoint. An unconfigured account enqueues nothing; the
	// setup flow triggers the first sync instead.
	if cfg.Account.Email != "" {
		state, err := st.LoadSyncState(ctx)
		if err != nil {
			return fmt.Errorf("loading sync state: %w", err)
		}
		if state == nil {
			engine.EnqueueFullSync(model.PriorityUserInitiated)
		} else {
			engine.EnqueueIncrementalSync(model.PriorityBackground)
		}
	}

	program := tea.NewProgram(
		app.New(configPath, cfg, st, engine, creds, tokens),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running ui: %w", err)
	}

	return nil
}

// newLogger writes structured console output to the configured log
// file; the TUI owns the terminal.
func newLogger(path string) (zerolog.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("opening log file: %w", err)
	}

	writer := zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339, NoColor: true}
	logger := zerolog.New(writer).With().Timestamp().Logger()
	return logger, f, nil
}

// buildMailbox constructs the remote mailbox adapter and, for OAuth
// providers, the token provider feeding the sync engine.
func buildMailbox(
	ctx context.Context,
	cfg *model.AppConfig,
	creds credential.Store,
	tokens *auth.TokenStore,
	limiter remote.Limiter,
	logger zerolog.Logger,
) (remote.Mailbox, appsync.TokenProvider, error) {
	switch cfg.Account.Provider {
	case "gmail":
		clientSecret, err := creds.Load(credential.KeyClientSecret)
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return nil, nil, fmt.Errorf("loading client secret: %w", err)
		}

		oauthCfg := &oauth2.Config{
			ClientID:     cfg.Account.ClientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmailv1.GmailReadonlyScope},
		}
		coordinator := auth.NewCoordinator(tokens, auth.NewOAuth2Refresher(oauthCfg), logger)

		mailbox, err := gmailapi.NewClient(ctx, coordinator.TokenSource(ctx), limiter)
		if err != nil {
			return nil, nil, err
		}
		return mailbox, coordinator, nil

	case "imap":
		password, err := creds.Load(credential.KeyIMAPPassword)
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return nil, nil, fmt.Errorf("loading imap password: %w", err)
		}

		mailbox := imap.NewClient(
			cfg.Account.IMAPHost,
			cfg.Account.IMAPPort,
			cfg.Account.Email,
			password,
			cfg.Account.IMAPTLS,
			limiter,
		)
		return mailbox, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Account.Provider)
	}
}
