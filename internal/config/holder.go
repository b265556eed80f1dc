package config

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Holder gives concurrent readers the current Config and swaps it on Reload.
type Holder struct {
	cur  atomic.Pointer[Config]
	path string
}

// NewHolder wraps cfg, reloading later from path.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cur.Store(cfg)
	return h
}

// Get returns the active configuration. Callers must not mutate it.
func (h *Holder) Get() *Config { return h.cur.Load() }

// Reload re-reads YAML and environment. On error the active config is kept.
func (h *Holder) Reload() error {
	cfg, err := LoadFrom(h.path)
	if err != nil {
		return fmt.Errorf("reload %s: %w", h.path, err)
	}
	h.cur.Store(cfg)
	slog.Info("config reloaded", "path", h.path, "log_level", cfg.Logging.Level)
	return nil
}
