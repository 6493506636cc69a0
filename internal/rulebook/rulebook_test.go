package rulebook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"settlement-reconciler/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRulebook = `
rail: test-rail
cutoff: "14:30"
timezone: Asia/Tokyo
window_extra_days: 6
rules:
  - {status: "10", kind: queued}
  - {status: "20", kind: success}
  - {status: "30", kind: failed}
  - {status: "30", error: "E01", kind: failed, reason: BAD_ACCOUNT_NUMBER}
return_reasons:
  R02: NAME_MISMATCH
`

func TestParse(t *testing.T) {
	rb, err := Parse([]byte(testRulebook))
	require.NoError(t, err)
	assert.Equal(t, "test-rail", rb.Rail)
	assert.Equal(t, 6, rb.WindowExtraDays)
	assert.Equal(t, "Asia/Tokyo", rb.Location().String())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing rail", "cutoff: \"10:00\"\n"},
		{"bad cutoff", "rail: x\ncutoff: \"25:99\"\n"},
		{"bad timezone", "rail: x\ntimezone: Mars/Olympus\n"},
		{"unknown kind", "rail: x\nrules:\n  - {status: A, kind: maybe}\n"},
		{"unknown reason", "rail: x\nrules:\n  - {status: A, kind: failed, reason: FRAUD}\n"},
		{"duplicate status", "rail: x\nrules:\n  - {status: A, kind: failed}\n  - {status: A, kind: success}\n"},
		{"bad return reason", "rail: x\nreturn_reasons:\n  R1: LOST\n"},
		{"negative window", "rail: x\nwindow_extra_days: -1\n"},
		{"not yaml", "rail: [x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLookup(t *testing.T) {
	rb, err := Parse([]byte(testRulebook))
	require.NoError(t, err)

	tests := []struct {
		name       string
		status     string
		errCode    string
		wantOK     bool
		wantKind   Kind
		wantReason string
	}{
		{"status only", "20", "", true, KindSuccess, ""},
		{"exact match wins", "30", "E01", true, KindFailed, "BAD_ACCOUNT_NUMBER"},
		{"falls back to status rule", "30", "E77", true, KindFailed, ""},
		{"queued with error uses status rule", "10", "E05", true, KindQueued, ""},
		{"unknown status", "99", "", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := rb.Lookup(tt.status, tt.errCode)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, r.Kind)
			assert.Equal(t, tt.wantReason, r.Reason)
		})
	}
}

func TestReasonFor(t *testing.T) {
	rb, err := Parse([]byte(testRulebook))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNameMismatch, rb.ReasonFor("R02"))
	assert.Equal(t, domain.ReasonOther, rb.ReasonFor("R42"))
	assert.Equal(t, domain.ReasonOther, rb.ReasonFor(""))
}

func TestCutoffOn(t *testing.T) {
	rb, err := Parse([]byte(testRulebook))
	require.NoError(t, err)

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cutoff := rb.CutoffOn(date)
	// 14:30 JST is 05:30 UTC.
	assert.Equal(t, time.Date(2024, 3, 1, 5, 30, 0, 0, time.UTC), cutoff.UTC())
}

func TestToday(t *testing.T) {
	rb, err := Parse([]byte(testRulebook))
	require.NoError(t, err)

	// 20:00 UTC on Mar 1 is already Mar 2 in Tokyo.
	now := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), rb.Today(now))
}

func TestWindow(t *testing.T) {
	rb, err := Parse([]byte(testRulebook))
	require.NoError(t, err)

	w := rb.Window(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), w.To)
}

func TestBuiltin(t *testing.T) {
	names := BuiltinNames()
	assert.Equal(t, []string{"baas", "card-issuing", "generic-bank"}, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			rb, err := Builtin(name)
			require.NoError(t, err)
			assert.Equal(t, name, rb.Rail)
			assert.NotEmpty(t, rb.Rules)
		})
	}

	_, err := Builtin("nope")
	assert.ErrorIs(t, err, ErrUnknownRulebook)
}

func TestResolve(t *testing.T) {
	rb, err := Resolve("baas")
	require.NoError(t, err)
	assert.Equal(t, "baas", rb.Rail)

	file := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte(testRulebook), 0o600))
	rb, err = Resolve(file)
	require.NoError(t, err)
	assert.Equal(t, "test-rail", rb.Rail)

	_, err = Resolve("missing-rail")
	assert.ErrorIs(t, err, ErrUnknownRulebook)
}
