package commands

import (
	"io"

	"slidetasks/internal/config"
	"slidetasks/internal/engine"
	"slidetasks/internal/gateway"
	"slidetasks/internal/store"
	"slidetasks/internal/telemetry"
)

// cmdEnv bundles the cache store and engine that task commands share.
type cmdEnv struct {
	store     *store.Store
	eng       *engine.Engine
	logCloser io.Closer
}

// openEnv opens the cache store and builds an engine on top of it.
// quietLog keeps slog off stderr; the panel needs that because stdout and
// stderr belong to the terminal UI.
func openEnv(cfg *config.Config, gw gateway.Gateway, listID string, quietLog bool) (*cmdEnv, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	logger, closer, err := telemetry.NewLogger(cfg.DataDir, cfg.Settings.LogLevel, quietLog)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.CacheDBPath())
	if err != nil {
		closer.Close()
		return nil, err
	}

	eng, err := engine.New(engine.Options{
		Store:      st,
		Gateway:    gw,
		Logger:     logger,
		Settings:   cfg.Settings,
		ActiveList: listID,
	})
	if err != nil {
		st.Close()
		closer.Close()
		return nil, err
	}

	return &cmdEnv{store: st, eng: eng, logCloser: closer}, nil
}

func (env *cmdEnv) Close() {
	env.store.Close()
	env.logCloser.Close()
}
