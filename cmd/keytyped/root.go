package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keytype/internal/config"
	"keytype/internal/ipc"
	"keytype/internal/keyboard"
	"keytype/internal/logging"
	"keytype/internal/singleinstance"
	"keytype/internal/typist"
	"keytype/internal/wsserver"

	"github.com/spf13/cobra"
)

// recentLogEntries is how many warnings the status command reports.
const recentLogEntries = 20

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "keytyped",
		Short:         "Serve keytype requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			recent := logging.NewRecent(recentLogEntries)
			if err := logging.Install(logging.Options{
				Level:    cfg.LogLevel,
				Format:   cfg.LogFormat,
				Output:   cmd.ErrOrStderr(),
				Tee:      recent.Add,
				TeeLevel: slog.LevelWarn,
			}); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, keyboard.NewSystem, recent)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")

	root.AddCommand(&cobra.Command{
		Use:   "init-config",
		Short: "Write a config file with the defaults if none exists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath(configPath)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(path, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return root
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	return config.DefaultPath()
}

type keyboardFactory func(opts keyboard.Options) (*keyboard.Keyboard, error)

// server bundles everything run starts so it can be stopped in reverse order.
type server struct {
	lock  *singleinstance.Lock
	svc   *typist.Service
	pipe  *ipc.PipeServer
	hub   *wsserver.Hub
	wsURL string
}

// run serves until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, newKeyboard keyboardFactory, recent *logging.Recent) error {
	srv, err := start(ctx, cfg, newKeyboard, singleinstance.DefaultMutexName(), recent)
	if err != nil {
		return err
	}
	<-ctx.Done()
	slog.Info("[keytyped] shutting down")
	return srv.stop()
}

func start(ctx context.Context, cfg config.Config, newKeyboard keyboardFactory, mutexName string, recent *logging.Recent) (_ *server, err error) {
	srv := &server{}
	defer func() {
		if err != nil {
			if stopErr := srv.stop(); stopErr != nil {
				slog.Warn("[keytyped] cleanup after failed start", "error", stopErr)
			}
		}
	}()

	srv.lock, err = singleinstance.TryLock(mutexName)
	if err != nil {
		return nil, err
	}

	kb, err := newKeyboard(cfg.KeyboardOptions())
	if err != nil {
		return nil, fmt.Errorf("keyboard: %w", err)
	}
	slog.Info("[keytyped] keyboard ready", "layout", kb.Layout().Name(), "settleDelay", cfg.SettleDelay)

	srv.svc, err = typist.New(typist.Options{Keyboard: kb, DefaultSettle: cfg.SettleDelay})
	if err != nil {
		return nil, err
	}

	exec := &statusExecutor{
		next:    srv.svc,
		recent:  recent,
		started: time.Now(),
		layout:  kb.Layout().Name(),
		now:     time.Now,
	}

	srv.pipe = ipc.NewPipeServer(cfg.PipeName, exec)
	if err := srv.pipe.Start(); err != nil {
		if !errors.Is(err, ipc.ErrUnsupportedPlatform) || cfg.WebSocketAddr == "" {
			return nil, err
		}
		slog.Warn("[keytyped] named pipe unavailable, serving websocket only", "error", err)
		srv.pipe = nil
	}

	if cfg.WebSocketAddr != "" {
		srv.hub = wsserver.NewHub(wsserver.HubOptions{Addr: cfg.WebSocketAddr, Executor: exec})
		if err := srv.hub.Start(ctx); err != nil {
			return nil, err
		}
		srv.wsURL = srv.hub.URL()
	}
	return srv, nil
}

func (s *server) stop() error {
	var errs []error
	if s.hub != nil {
		errs = append(errs, s.hub.Stop())
	}
	if s.pipe != nil {
		errs = append(errs, s.pipe.Stop())
	}
	if s.svc != nil {
		errs = append(errs, s.svc.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Release())
	}
	return errors.Join(errs...)
}
