package rail

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"settlement-reconciler/config"
	"settlement-reconciler/internal/adapter/rail/filedrop"
	"settlement-reconciler/internal/adapter/rail/restrail"
	"settlement-reconciler/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	rest, err := New("generic-bank", config.RailConfig{Type: config.RailTypeREST, BaseURL: "https://bank.example.com"}, time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &restrail.Client{}, rest)
	assert.Equal(t, "generic-bank", rest.Name())

	drop, err := New("baas", config.RailConfig{Type: config.RailTypeFileDrop, Dir: t.TempDir()}, time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &filedrop.Adapter{}, drop)
}

func TestNew_MissingKeyring(t *testing.T) {
	cfg := config.RailConfig{
		Type:        config.RailTypeFileDrop,
		Dir:         t.TempDir(),
		KeyringPath: filepath.Join(t.TempDir(), "missing.asc"),
	}
	_, err := New("baas", cfg, time.Second, zerolog.Nop())
	assert.Error(t, err)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New("x", config.RailConfig{Type: "fax"}, time.Second, zerolog.Nop())
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "RECON_006", appErr.Code)
}

func TestLookup(t *testing.T) {
	cfg := &config.Config{Rails: map[string]config.RailConfig{
		"card-issuing": {Type: config.RailTypeREST, BaseURL: "https://cards.example.com"},
	}}

	adapter, railCfg, err := Lookup(cfg, "card-issuing", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "card-issuing", adapter.Name())
	assert.Equal(t, "https://cards.example.com", railCfg.BaseURL)

	_, _, err = Lookup(cfg, "unknown", zerolog.Nop())
	assert.Equal(t, apperror.ClassRequest, apperror.ClassOf(err))
}
