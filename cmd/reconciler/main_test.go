package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"settlement-reconciler/config"
	"settlement-reconciler/internal/rulebook"
	"settlement-reconciler/internal/service"
	"settlement-reconciler/pkg/refcode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const testConfig = `
jwt:
  secret: test-secret-that-is-long-enough
rails:
  generic-bank:
    type: rest
    base_url: https://bank.example.com
    max_queries_per_minute: 30
  baas:
    type: filedrop
    dir: /srv/baas
    amount_scope_fallback: false
`

func TestEncodeDecodeCommands(t *testing.T) {
	out, err := execute(t, "encode", "123456", "payout march")
	require.NoError(t, err)
	remark := strings.TrimSpace(out)

	id, ok := refcode.Decode(remark)
	require.True(t, ok)
	assert.Equal(t, int64(123456), id)

	out, err = execute(t, "decode", remark)
	require.NoError(t, err)
	assert.Equal(t, "123456", strings.TrimSpace(out))
}

func TestEncodeCommand_RespectsLimit(t *testing.T) {
	out, err := execute(t, "encode", "--limit", "8", "42", "a long note")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(strings.TrimSpace(out)), 8)
}

func TestEncodeDecodeCommands_Invalid(t *testing.T) {
	_, err := execute(t, "encode", "abc")
	assert.Error(t, err)

	_, err = execute(t, "encode", "0")
	assert.Error(t, err)

	_, err = execute(t, "decode", "!!!")
	assert.Error(t, err)
}

func TestRailsCommand(t *testing.T) {
	out, err := execute(t, "rails", "--config", writeConfig(t, testConfig))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "RAIL")
	assert.Contains(t, lines[1], "baas")
	assert.Contains(t, lines[1], "false")
	assert.Contains(t, lines[2], "generic-bank")
	assert.Contains(t, lines[2], "30")
}

func TestTokenCommand(t *testing.T) {
	path := writeConfig(t, testConfig)
	out, err := execute(t, "token", "--config", path, "--subject", "ops-alice")
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	claims, err := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops-alice", claims.Subject)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	_, err := execute(t, "token", "--config", writeConfig(t, "log:\n  level: info\n"), "--subject", "ops")
	assert.Error(t, err)
}

func TestRailSettings(t *testing.T) {
	rb, err := rulebook.Builtin("generic-bank")
	require.NoError(t, err)
	off := false

	got := railSettings("generic-bank", config.RailConfig{RemarkLimit: 20, AmountScopeFallback: &off, MaxQueriesPerMinute: 5}, rb)
	assert.Equal(t, "generic-bank", got.Name)
	assert.Same(t, rb, got.Rulebook)
	assert.Equal(t, 20, got.RemarkLimit)
	assert.False(t, got.AmountScopeFallback)
	assert.Equal(t, int64(5), got.MaxQueriesPerMinute)

	assert.True(t, railSettings("x", config.RailConfig{}, rb).AmountScopeFallback)
}
