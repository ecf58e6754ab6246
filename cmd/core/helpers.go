// Package core holds the pieces every poolctl subcommand package shares:
// config access, a running Pool singleton, and small formatting helpers.
package core

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/appfleet/appfleet/config"
	"github.com/appfleet/appfleet/pool"
)

// BaseHandler gives a subcommand package access to the loaded config and
// the live Pool without either package importing cmd/root directly.
type BaseHandler struct {
	ConfProvider func() *config.Config
	PoolProvider func() (*pool.Pool, error)
}

// Init returns the command context and validated config in one call.
func (h BaseHandler) Init(cmd *cobra.Command) (context.Context, *config.Config, error) {
	conf, err := h.Conf()
	if err != nil {
		return nil, nil, err
	}
	return CommandContext(cmd), conf, nil
}

// Conf validates and returns the config. All handlers call this first.
func (h BaseHandler) Conf() (*config.Config, error) {
	if h.ConfProvider == nil {
		return nil, fmt.Errorf("config provider is nil")
	}
	conf := h.ConfProvider()
	if conf == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return conf, nil
}

// Pool connects to (or, for single-process use, starts) the Pool this CLI
// instance should act on.
func (h BaseHandler) Pool() (*pool.Pool, error) {
	if h.PoolProvider == nil {
		return nil, fmt.Errorf("pool provider is nil")
	}
	return h.PoolProvider()
}

// CommandContext returns command context, falling back to Background.
func CommandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
