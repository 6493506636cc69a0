// Package rail builds provider adapters from the rail table.
package rail

import (
	"fmt"
	"net/http"
	"time"

	"settlement-reconciler/config"
	"settlement-reconciler/internal/adapter/rail/filedrop"
	"settlement-reconciler/internal/adapter/rail/restrail"
	"settlement-reconciler/internal/core/ports"
	"settlement-reconciler/pkg/apperror"

	"github.com/rs/zerolog"
)

// New returns the adapter for a configured rail. Per-call deadlines come from
// the caller's context; the HTTP client timeout only caps stuck connections.
func New(name string, cfg config.RailConfig, callTimeout time.Duration, log zerolog.Logger) (ports.ProviderAdapter, error) {
	switch cfg.Type {
	case config.RailTypeREST:
		client := &http.Client{Timeout: callTimeout}
		return restrail.New(name, cfg.BaseURL, cfg.APIKey, client, log), nil

	case config.RailTypeFileDrop:
		if cfg.KeyringPath == "" {
			return filedrop.New(name, cfg.Dir, nil, log), nil
		}
		keyring, err := filedrop.LoadKeyring(cfg.KeyringPath, cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("rail %s: %w", name, err)
		}
		return filedrop.New(name, cfg.Dir, keyring, log), nil
	}
	return nil, apperror.ErrUnknownRail(name)
}

// Lookup returns the adapter for name from the rail table.
func Lookup(cfg *config.Config, name string, log zerolog.Logger) (ports.ProviderAdapter, config.RailConfig, error) {
	railCfg, ok := cfg.Rails[name]
	if !ok {
		return nil, config.RailConfig{}, apperror.ErrUnknownRail(name)
	}
	adapter, err := New(name, railCfg, cfg.Scheduler.CallTimeout, log)
	if err != nil {
		return nil, config.RailConfig{}, err
	}
	return adapter, railCfg, nil
}
