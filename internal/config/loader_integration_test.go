package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeYAML writes body to a fresh config file and returns its path.
func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentrelay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom_Layers(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		env   map[string]string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "env beats yaml",
			yaml: "server:\n  port: \"9090\"\na2a:\n  session_ttl: 2h\n",
			env: map[string]string{
				"AGENTRELAY_PORT":            "7070",
				"AGENTRELAY_A2A_SESSION_TTL": "90m",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.Port != "7070" || cfg.A2A.SessionTTL != 90*time.Minute {
					t.Errorf("port=%q session_ttl=%v, want 7070 and 90m", cfg.Server.Port, cfg.A2A.SessionTTL)
				}
			},
		},
		{
			name: "partial yaml keeps defaults",
			yaml: "a2a:\n  active_sessions_limit: 10\n  cleanup_interval: 0s\nmcp:\n  request_timeout: 5s\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.A2A.ActiveSessionsLimit != 10 || cfg.A2A.CleanupInterval != 0 {
					t.Errorf("a2a overrides lost: %+v", cfg.A2A)
				}
				if cfg.MCP.RequestTimeout != 5*time.Second {
					t.Errorf("request_timeout = %v, want 5s", cfg.MCP.RequestTimeout)
				}
				if cfg.A2A.MessageLimit != 100 || cfg.A2A.SessionTTL != 24*time.Hour {
					t.Errorf("a2a defaults lost: %+v", cfg.A2A)
				}
				if cfg.Server.Port != "8080" || cfg.Postgres.MaxConns != 15 {
					t.Errorf("server/postgres defaults lost: port=%q max_conns=%d", cfg.Server.Port, cfg.Postgres.MaxConns)
				}
			},
		},
		{
			name: "unparsable env values are ignored",
			env: map[string]string{
				"AGENTRELAY_PG_MAX_CONNS":              "lots",
				"AGENTRELAY_MCP_REQUEST_TIMEOUT":       "soon",
				"AGENTRELAY_OTEL_SAMPLE_RATE":          "abc",
				"AGENTRELAY_A2A_ACTIVE_SESSIONS_LIMIT": "-",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Postgres.MaxConns != 15 || cfg.MCP.RequestTimeout != 30*time.Second {
					t.Errorf("max_conns=%d request_timeout=%v", cfg.Postgres.MaxConns, cfg.MCP.RequestTimeout)
				}
				if cfg.OTEL.SampleRate != 1.0 || cfg.A2A.ActiveSessionsLimit != 50 {
					t.Errorf("sample_rate=%v active_sessions_limit=%d", cfg.OTEL.SampleRate, cfg.A2A.ActiveSessionsLimit)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadFrom(writeYAML(t, tt.yaml))
			if err != nil {
				t.Fatalf("LoadFrom: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed yaml", "{{{not yaml"},
		{"empty port", "server:\n  port: \"\"\n"},
		{"unknown storage driver", "storage:\n  driver: sqlite\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFrom(writeYAML(t, tt.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoadFrom_NoFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.MCP.ReadyPollAttempts != 5 {
		t.Errorf("level=%q ready_poll_attempts=%d", cfg.Logging.Level, cfg.MCP.ReadyPollAttempts)
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeYAML(t, "server:\n  port: \"9090\"\nlogging:\n  level: info\na2a:\n  message_limit: 50\n")
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\nlogging:\n  level: debug\na2a:\n  message_limit: 200\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := holder.Get(); got.Logging.Level != "debug" || got.A2A.MessageLimit != 200 {
		t.Errorf("after reload: level=%q message_limit=%d", got.Logging.Level, got.A2A.MessageLimit)
	}

	t.Setenv("AGENTRELAY_LOG_LEVEL", "error")
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload with env: %v", err)
	}
	if got := holder.Get().Logging.Level; got != "error" {
		t.Errorf("env should win on reload: level=%q", got)
	}

	// An invalid file is rejected and the last good config stays live.
	if err := os.WriteFile(path, []byte("server:\n  port: \"\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err == nil {
		t.Fatal("expected reload of invalid config to fail")
	}
	if got := holder.Get(); got.Server.Port != "9090" || got.Logging.Level != "error" {
		t.Errorf("old config not preserved: port=%q level=%q", got.Server.Port, got.Logging.Level)
	}
}
