package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"keytype/internal/config"
	"keytype/internal/ipc"
	"keytype/internal/keyboard"
	"keytype/internal/logging"
	"keytype/internal/typist"

	"github.com/spf13/cobra"
)

// deps are the collaborators the commands reach outside the process.
type deps struct {
	send     func(pipeName string, req ipc.Request) (ipc.Response, error)
	newLocal func(cfg config.Config) (ipc.Executor, func() error, error)
	loadCfg  func(path string) (config.Config, error)
}

func defaultDeps() deps {
	return deps{
		send:     ipc.Send,
		newLocal: newLocalExecutor,
		loadCfg:  config.Load,
	}
}

// newLocalExecutor drives the system keyboard from this process.
func newLocalExecutor(cfg config.Config) (ipc.Executor, func() error, error) {
	kb, err := keyboard.NewSystem(cfg.KeyboardOptions())
	if err != nil {
		return nil, nil, err
	}
	svc, err := typist.New(typist.Options{Keyboard: kb, DefaultSettle: cfg.SettleDelay})
	if err != nil {
		return nil, nil, err
	}
	return svc, svc.Close, nil
}

type rootFlags struct {
	configPath string
	pipeName   string
	local      bool
	settleMS   int
	verbose    bool
}

func newRootCmd(d deps) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "keytype",
		Short:         "Type text and key chords through the keytype daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if flags.verbose {
				level = "debug"
			}
			return logging.Install(logging.Options{Level: level, Format: "text", Output: cmd.ErrOrStderr()})
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	pf.StringVar(&flags.pipeName, "pipe", "", "named pipe of the daemon (default per-user pipe)")
	pf.BoolVar(&flags.local, "local", false, "type from this process instead of the daemon")
	pf.IntVar(&flags.settleMS, "settle", -1, "settle delay in milliseconds after each key (default from config)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		requestCmd(d, flags, "text [words...]", "Type text; reads stdin when no words are given", ipc.CommandText, textArg),
		requestCmd(d, flags, "press <keys>", "Press and release a chord such as ctrl+shift+s", ipc.CommandPress, keysArg),
		requestCmd(d, flags, "hold <keys>", "Press a chord and leave it down", ipc.CommandHold, keysArg),
		requestCmd(d, flags, "release <keys>", "Release a chord left down by hold", ipc.CommandRelease, keysArg),
		requestCmd(d, flags, "resolve <text>", "Print the key codes text would produce without typing", ipc.CommandResolve, textArg),
		requestCmd(d, flags, "ping", "Check that the daemon is running", ipc.CommandPing, noArgs),
		requestCmd(d, flags, "status", "Show daemon layout, uptime and recent warnings", ipc.CommandStatus, noArgs),
	)
	return root
}

// maxTextBytes leaves room in the frame for JSON escaping.
const maxTextBytes = ipc.MaxFrameBytes / 2

type argFiller func(cmd *cobra.Command, args []string, req *ipc.Request) error

func textArg(cmd *cobra.Command, args []string, req *ipc.Request) error {
	if len(args) > 0 {
		req.Text = strings.Join(args, " ")
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxTextBytes+1))
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if len(raw) > maxTextBytes {
		return fmt.Errorf("text exceeds %d bytes; split it into several requests", maxTextBytes)
	}
	req.Text = strings.TrimRight(string(raw), "\r\n")
	return nil
}

func keysArg(_ *cobra.Command, args []string, req *ipc.Request) error {
	if len(args) != 1 {
		return errors.New("exactly one key spec is required")
	}
	req.Keys = args[0]
	return nil
}

func noArgs(_ *cobra.Command, args []string, _ *ipc.Request) error {
	if len(args) != 0 {
		return errors.New("no arguments expected")
	}
	return nil
}

func requestCmd(d deps, flags *rootFlags, use, short, command string, fill argFiller) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.Request{Command: command}
			if flags.local && (command == ipc.CommandHold || command == ipc.CommandRelease) {
				return fmt.Errorf("%s needs the daemon: --local releases held keys when the command exits", command)
			}
			if err := fill(cmd, args, &req); err != nil {
				return err
			}
			if flags.settleMS >= 0 {
				settle := flags.settleMS
				req.SettleMS = &settle
			}

			resp, err := dispatch(d, flags, req)
			if err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("%s: %s", resp.Kind, resp.Error)
			}
			if resp.Result != "" {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
			}
			return nil
		},
	}
}

func dispatch(d deps, flags *rootFlags, req ipc.Request) (ipc.Response, error) {
	if _, err := ipc.EncodeRequest(req); err != nil {
		return ipc.Response{}, err
	}
	cfg, err := d.loadCfg(resolveConfigPath(flags.configPath))
	if err != nil {
		return ipc.Response{}, fmt.Errorf("load config: %w", err)
	}

	if flags.local {
		exec, closeFn, err := d.newLocal(cfg)
		if err != nil {
			return ipc.Response{}, err
		}
		defer func() {
			if closeErr := closeFn(); closeErr != nil {
				slog.Warn("[keytype] close local typist", "error", closeErr)
			}
		}()
		req.ID = ""
		raw, err := ipc.EncodeRequest(req)
		if err != nil {
			return ipc.Response{}, err
		}
		return ipc.Handle(exec, raw), nil
	}

	pipeName := flags.pipeName
	if pipeName == "" {
		pipeName = cfg.PipeName
	}
	resp, err := d.send(pipeName, req)
	if ipc.IsConnectionError(err) {
		return ipc.Response{}, fmt.Errorf("keytyped is not reachable (%w); start it or use --local", err)
	}
	return resp, err
}

func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	return config.DefaultPath()
}
