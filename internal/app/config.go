package app

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Env       string
	Addr      string
	WSPath    string
	CORSAllow []string
	StaticDir string
	DBPath    string

	// TimestampSource selects whether the relay stamps envelopes with the
	// server clock or keeps the client-supplied value ("server" or "client").
	TimestampSource string
	// PersistMessages turns on the database-backed profile.
	PersistMessages bool
	// RequireIdentity turns on the hardened identity checks on the relay.
	RequireIdentity bool
}

// LoadServerConfig reads the environment with fixed fallbacks. A .env file,
// when present, is loaded by the entrypoint before this runs.
func LoadServerConfig() ServerConfig {
	cfg := ServerConfig{
		Env:             getEnv("APP_ENV", "dev"),
		Addr:            getEnv("PAIRCHAT_ADDR", ":5000"),
		WSPath:          normalizeWSPath(getEnv("PAIRCHAT_WS_PATH", "/ws")),
		StaticDir:       getEnv("PAIRCHAT_STATIC_DIR", ""),
		DBPath:          getEnv("PAIRCHAT_DB_PATH", DefaultDBPath()),
		TimestampSource: getEnv("PAIRCHAT_TIMESTAMP_SOURCE", "server"),
		PersistMessages: getEnvBool("PAIRCHAT_PERSIST_MESSAGES", false),
		RequireIdentity: getEnvBool("PAIRCHAT_REQUIRE_IDENTITY", false),
	}
	cfg.CORSAllow = splitCSV(getEnv("PAIRCHAT_CORS_ALLOW", "http://localhost:3000"))
	if cfg.TimestampSource != "client" {
		cfg.TimestampSource = "server"
	}
	return cfg
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("PAIRCHAT_DATA_DIR"); env != "" {
		return filepath.Join(env, "pairchat.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pairchat", "pairchat.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Pairchat", "pairchat.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Pairchat", "pairchat.db")
		}
		return filepath.Join(home, ".local", "share", "pairchat", "pairchat.db")
	}
	return filepath.Join(".", ".pairchat", "pairchat.db")
}

// normalizeWSPath guarantees the websocket path starts with '/' and falls
// back to /ws when empty.
func normalizeWSPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}

// getEnv returns the env var or a default.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvBool parses a boolean env var with a fallback.
func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

// splitCSV trims and filters a comma-separated list.
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
