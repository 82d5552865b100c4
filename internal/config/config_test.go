package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points every directory lookup at a temp dir and clears variables
// that may leak in from the developer's environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, key := range []string{"AITHER_TOKEN", "SERVER_ADDR", "CLAUDE_BINARY", "AITHER_CONFIG_DIR", "AITHER_DATA_DIR", "LOG_LEVEL", "AITHER_NOTIFY", "EVENT_BUFFER"} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)
	t.Setenv("AITHER_TOKEN", "token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.ServerAddr != "127.0.0.1:8080" {
		t.Fatalf("unexpected ServerAddr: %q", cfg.ServerAddr)
	}
	if cfg.ClaudeBinary != "claude" {
		t.Fatalf("unexpected ClaudeBinary: %q", cfg.ClaudeBinary)
	}
	if cfg.ConfigDir != filepath.Join(dir, "config", "aither-flow") {
		t.Fatalf("unexpected ConfigDir: %q", cfg.ConfigDir)
	}
	if cfg.ProjectsDBPath() != filepath.Join(dir, "data", "aither-flow", "projects.db") {
		t.Fatalf("unexpected ProjectsDBPath: %q", cfg.ProjectsDBPath())
	}
	if cfg.LogLevel != "info" || !cfg.Notify || cfg.EventBuffer != 256 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Settings.AllowedOrigins) != 1 || cfg.Settings.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins: %#v", cfg.Settings.AllowedOrigins)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	isolate(t)

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "AITHER_TOKEN") {
		t.Fatalf("expected AITHER_TOKEN error, got %v", err)
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	isolate(t)
	t.Setenv("AITHER_TOKEN", "token")
	t.Setenv("LOG_LEVEL", "loud")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for LOG_LEVEL=loud")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, "custom.env")
	content := "AITHER_TOKEN=from-file\nSERVER_ADDR=127.0.0.1:9999\nEVENT_BUFFER=32\nAITHER_NOTIFY=false\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("SERVER_ADDR", "127.0.0.1:7000")

	// godotenv leaves already-set variables alone, so unset the empty ones
	// isolate created.
	for _, key := range []string{"AITHER_TOKEN", "EVENT_BUFFER", "AITHER_NOTIFY"} {
		os.Unsetenv(key)
	}

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Token != "from-file" {
		t.Fatalf("unexpected token: %q", cfg.Token)
	}
	if cfg.ServerAddr != "127.0.0.1:7000" {
		t.Fatalf("environment should win over env file, got %q", cfg.ServerAddr)
	}
	if cfg.EventBuffer != 32 || cfg.Notify {
		t.Fatalf("unexpected values: buffer=%d notify=%v", cfg.EventBuffer, cfg.Notify)
	}

	if _, err := Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Fatal("expected error for missing env file")
	}
}

func TestLoadSettingsJSONC(t *testing.T) {
	dir := isolate(t)
	t.Setenv("AITHER_TOKEN", "token")
	t.Setenv("AITHER_CONFIG_DIR", filepath.Join(dir, "cfg"))

	if err := os.MkdirAll(filepath.Join(dir, "cfg"), 0o755); err != nil {
		t.Fatal(err)
	}
	settings := `{
	// model used when a start request names none
	"default_model": " opus ",
	"allowed_origins": ["http://localhost:5173", " ", ],
	/* quiet please */
	"notify": false,
}`
	if err := os.WriteFile(filepath.Join(dir, "cfg", SettingsFileName), []byte(settings), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Settings.DefaultModel != "opus" {
		t.Fatalf("unexpected default model: %q", cfg.Settings.DefaultModel)
	}
	if len(cfg.Settings.AllowedOrigins) != 1 || cfg.Settings.AllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("unexpected origins: %#v", cfg.Settings.AllowedOrigins)
	}
	if cfg.Notify {
		t.Fatal("settings notify=false should override AITHER_NOTIFY default")
	}
}

func TestLoadSettingsErrors(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadSettings(filepath.Join(dir, "missing.jsonc"))
	if err != nil || s.DefaultModel != "" || s.Notify != nil {
		t.Fatalf("missing file: %+v, %v", s, err)
	}

	bad := filepath.Join(dir, "bad.jsonc")
	if err := os.WriteFile(bad, []byte(`{"default_model": 12}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(bad); err == nil {
		t.Fatal("expected type error")
	}
}

func TestDirsIgnoreRelativeXDG(t *testing.T) {
	dir := isolate(t)
	t.Setenv("XDG_DATA_HOME", "relative/path")

	if got := DataDir(); got != filepath.Join(dir, ".local", "share", "aither-flow") {
		t.Fatalf("unexpected DataDir: %q", got)
	}
	if got := ClaudeHome(); got != filepath.Join(dir, ".claude") {
		t.Fatalf("unexpected ClaudeHome: %q", got)
	}
}

func TestCheckClaudeHome(t *testing.T) {
	dir := isolate(t)

	if err := CheckClaudeHome(); err == nil {
		t.Fatal("expected error for missing ~/.claude")
	}

	if err := os.WriteFile(filepath.Join(dir, ".claude"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckClaudeHome(); err == nil {
		t.Fatal("expected error when ~/.claude is a file")
	}

	if err := os.Remove(filepath.Join(dir, ".claude")); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, ".claude"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := CheckClaudeHome(); err != nil {
		t.Fatalf("CheckClaudeHome: %v", err)
	}
}
