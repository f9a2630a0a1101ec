package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"focustimer/internal/config"
	"focustimer/internal/effects"
	"focustimer/internal/filestore"
	"focustimer/internal/reminder"
	"focustimer/internal/timer"
)

const localOwner = "local"

// session is one CLI invocation's view of the persisted timer. Opening it
// loads and reconciles the state, so a session that ended while no command
// was running is applied before anything else.
type session struct {
	engine  *timer.Engine
	store   *filestore.Store
	effects <-chan effects.Effect
	out     io.Writer
}

type terminalNotifier struct {
	out io.Writer
}

func (n terminalNotifier) Notify(title, body string) {
	fmt.Fprintf(n.out, "\a[%s] %s\n", title, body)
}

func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	statePath, _ := cmd.Flags().GetString("state")
	if statePath == "" {
		defaultPath, err := filestore.DefaultPath()
		if err != nil {
			return nil, err
		}
		statePath = defaultPath
	}
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	store := filestore.New(statePath)

	var scheduler effects.Scheduler
	if cfg.Reminder.BaseURL != "" {
		scheduler = reminder.NewHTTPClient(cfg.Reminder.BaseURL, cfg.Reminder.Token, &http.Client{Timeout: cfg.Reminder.Timeout})
	}

	fx := effects.New(effects.Options{
		Owner:           localOwner,
		Scheduler:       scheduler,
		ReminderTimeout: cfg.Reminder.Timeout,
		Sink:            store,
		Notifier:        terminalNotifier{out: out},
	})
	engine := timer.NewEngine(timer.Options{
		Owner:    localOwner,
		Store:    store,
		Effects:  fx,
		Defaults: cfg.Timer.Defaults,
	})
	stream, _ := engine.Subscribe(32)

	s := &session{engine: engine, store: store, effects: stream, out: out}
	if _, err := engine.Load(ctx); err != nil {
		engine.Close()
		return nil, err
	}
	s.printEffects()
	return s, nil
}

func (s *session) close() {
	s.printEffects()
	s.engine.Close()
}

func (s *session) pause(ctx context.Context) (timer.View, error) {
	return s.engine.Pause(ctx, 0)
}

func (s *session) stop(ctx context.Context) (timer.View, error) {
	return s.engine.Stop(ctx, 0)
}

func (s *session) skip(ctx context.Context) (timer.View, error) {
	return s.engine.Skip(ctx, 0)
}

// printEffects writes every effect already published without blocking.
func (s *session) printEffects() {
	for {
		select {
		case effect, ok := <-s.effects:
			if !ok {
				return
			}
			printEffect(s.out, effect)
		default:
			return
		}
	}
}
