package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"keytype/internal/ipc"
	"keytype/internal/keyboard"

	"go.yaml.in/yaml/v3"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	renameRetryBaseDelay = 10 * time.Millisecond
	// maxSettleDelay bounds the per-character delay; anything longer blocks
	// the typing worker for an unreasonable time per keystroke.
	maxSettleDelay = 10 * time.Second
	// Virtual-key codes are a single byte; 0 and 0xFF are reserved.
	minModifierCode = 1
	maxModifierCode = 254
)

var userHomeDirFn = os.UserHomeDir

// ModifierConfig overrides modifier virtual-key codes. Zero keeps the default.
type ModifierConfig struct {
	Shift int `yaml:"shift,omitempty" json:"shift,omitempty"`
	Ctrl  int `yaml:"ctrl,omitempty" json:"ctrl,omitempty"`
	Alt   int `yaml:"alt,omitempty" json:"alt,omitempty"`
	Mod2  int `yaml:"mod2,omitempty" json:"mod2,omitempty"`
	Mod3  int `yaml:"mod3,omitempty" json:"mod3,omitempty"`
	Mod4  int `yaml:"mod4,omitempty" json:"mod4,omitempty"`
	Win   int `yaml:"win,omitempty" json:"win,omitempty"`
}

// Config is keytype runtime configuration.
type Config struct {
	// Layout selects the alternate layout table: "neo2" or "none".
	Layout string `yaml:"layout" json:"layout"`
	// SettleDelay is the default pause after each typed character.
	SettleDelay time.Duration  `yaml:"settle_delay" json:"settle_delay"`
	Modifiers   ModifierConfig `yaml:"modifiers,omitempty" json:"modifiers,omitempty"`
	// PipeName overrides the per-user named pipe. Empty uses the default.
	PipeName string `yaml:"pipe_name,omitempty" json:"pipe_name,omitempty"`
	// WebSocketAddr enables the loopback websocket transport when non-empty.
	// Use "127.0.0.1:0" for an OS-assigned port.
	WebSocketAddr string `yaml:"websocket_addr,omitempty" json:"websocket_addr,omitempty"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	LogFormat     string `yaml:"log_format" json:"log_format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Layout:    keyboard.LayoutNeo2,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[config] using temp dir as config path fallback", "error", err)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "keytype", "config.yaml")
}

// Load reads the config file. A missing or empty file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("[config] no config file, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save validates cfg and writes it atomically with owner-only permissions.
func Save(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path required")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(path, raw); err != nil {
		return err
	}
	slog.Debug("[config] config saved", "path", path)
	return nil
}

func (c *Config) normalize() {
	c.Layout = strings.ToLower(strings.TrimSpace(c.Layout))
	if c.Layout == "" {
		c.Layout = keyboard.LayoutNeo2
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	c.PipeName = strings.TrimSpace(c.PipeName)
	c.WebSocketAddr = strings.TrimSpace(c.WebSocketAddr)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Layout {
	case keyboard.LayoutNeo2, keyboard.LayoutNone:
	default:
		return fmt.Errorf("unknown layout %q", c.Layout)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative: %s", c.SettleDelay)
	}
	if c.SettleDelay > maxSettleDelay {
		return fmt.Errorf("settle_delay exceeds %s: %s", maxSettleDelay, c.SettleDelay)
	}
	for name, code := range c.Modifiers.fields() {
		if code == 0 {
			continue
		}
		if code < minModifierCode || code > maxModifierCode {
			return fmt.Errorf("modifiers.%s must be in %d..%d: %d", name, minModifierCode, maxModifierCode, code)
		}
	}
	if c.PipeName != "" && !ipc.ValidPipeName(c.PipeName) {
		return fmt.Errorf("pipe_name %q must look like \\\\.\\pipe\\keytype-<name>", c.PipeName)
	}
	if c.WebSocketAddr != "" {
		if err := validateLoopbackAddr(c.WebSocketAddr); err != nil {
			return fmt.Errorf("websocket_addr: %w", err)
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

func (m ModifierConfig) fields() map[string]int {
	return map[string]int{
		"shift": m.Shift,
		"ctrl":  m.Ctrl,
		"alt":   m.Alt,
		"mod2":  m.Mod2,
		"mod3":  m.Mod3,
		"mod4":  m.Mod4,
		"win":   m.Win,
	}
}

// ModifierCodes converts the overrides for keyboard.Options.
func (c Config) ModifierCodes() keyboard.ModifierCodes {
	return keyboard.ModifierCodes{
		Shift: c.Modifiers.Shift,
		Ctrl:  c.Modifiers.Ctrl,
		Alt:   c.Modifiers.Alt,
		Mod2:  c.Modifiers.Mod2,
		Mod3:  c.Modifiers.Mod3,
		Mod4:  c.Modifiers.Mod4,
		Win:   c.Modifiers.Win,
	}
}

// KeyboardOptions returns keyboard options carrying the layout and modifier
// settings. Scanner and Injector are left for the caller.
func (c Config) KeyboardOptions() keyboard.Options {
	return keyboard.Options{
		Layout:    c.Layout,
		Modifiers: c.ModifierCodes(),
	}
}

// IsLoopbackAddr reports whether addr is a host:port on a loopback host.
func IsLoopbackAddr(addr string) bool {
	return validateLoopbackAddr(addr) == nil
}

func validateLoopbackAddr(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if strings.EqualFold(host, "localhost") {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("address %q is not a loopback address", addr)
	}
	return nil
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	// Temp file + rename in the same directory keeps the rename on one
	// filesystem and never leaves a partially written config behind.
	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[config] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[config] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
