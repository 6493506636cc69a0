package filedrop

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/openpgp"       //nolint:staticcheck
	"golang.org/x/crypto/openpgp/armor" //nolint:staticcheck
)

const dayOneCSV = `rail_batch_id,sequence_no,status_code,error_code,error_message,amount,currency,remark,completed_at,fee_amount
RB1,1,20,,,1000,JPY,1Z,2024-03-01T10:00:00+09:00,110
RB1,2,30,E01,no such account,2000,JPY,2A,,
RB1,3,20,,,abc,JPY,3B,,
`

const dayFiveCSV = `remark,currency,amount,status_code,sequence_no,rail_batch_id,scheduled_for
4C,USD,25.50,10,4,RB1,2024-03-06
`

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestEntity(t *testing.T) *openpgp.Entity {
	t.Helper()
	e, err := openpgp.NewEntity("Reconciler", "test", "recon@example.com", nil)
	require.NoError(t, err)
	return e
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func encrypt(t *testing.T, to *openpgp.Entity, plain string, armored bool) []byte {
	t.Helper()
	var out bytes.Buffer
	var dst io.Writer = &out
	var armorW io.WriteCloser
	if armored {
		var err error
		armorW, err = armor.Encode(&out, "PGP MESSAGE", nil)
		require.NoError(t, err)
		dst = armorW
	}

	pt, err := openpgp.Encrypt(dst, []*openpgp.Entity{to}, nil, nil, nil)
	require.NoError(t, err)
	_, err = pt.Write([]byte(plain))
	require.NoError(t, err)
	require.NoError(t, pt.Close())
	if armorW != nil {
		require.NoError(t, armorW.Close())
	}
	return out.Bytes()
}

func marchWindow() domain.DateWindow {
	return domain.DateWindow{
		From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC),
	}
}

func TestAdapter_SubmissionStatus(t *testing.T) {
	dir := t.TempDir()
	a := New("baas", dir, nil, testLogger())
	ctx := context.Background()

	got, err := a.SubmissionStatus(ctx, "RB1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionPending, got, "missing status file")

	writeFile(t, dir, "RB1.status", []byte("not_found\n"))
	got, err = a.SubmissionStatus(ctx, "RB1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionNotFound, got)

	writeFile(t, dir, "RB1.status", []byte("CONFIRMED"))
	got, err = a.SubmissionStatus(ctx, "RB1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionConfirmed, got)
}

func TestAdapter_SubmissionStatus_UnsafeReference(t *testing.T) {
	a := New("baas", t.TempDir(), nil, testLogger())

	for _, ref := range []string{"../etc/passwd", "a/b", ""} {
		_, err := a.SubmissionStatus(context.Background(), ref)
		assert.Error(t, err, ref)
	}
}

func TestAdapter_TransactionResults(t *testing.T) {
	dir := t.TempDir()
	entity := newTestEntity(t)

	writeFile(t, dir, "RB1_20240301.csv", []byte(dayOneCSV))
	writeFile(t, dir, "RB1_20240305.csv.gpg", encrypt(t, entity, dayFiveCSV, false))
	writeFile(t, dir, "RB1_20240320.csv", []byte(dayOneCSV)) // outside window
	writeFile(t, dir, "RB2_20240301.csv", []byte(dayOneCSV)) // other batch
	writeFile(t, dir, "RB1_latest.csv", []byte(dayOneCSV))   // no date
	writeFile(t, dir, "RB1.status", []byte("CONFIRMED"))

	a := New("baas", dir, openpgp.EntityList{entity}, testLogger())
	records, err := a.TransactionResults(context.Background(), "RB1", marchWindow())
	require.NoError(t, err)
	require.Len(t, records, 3, "malformed row dropped, foreign files ignored")

	assert.Equal(t, "1", records[0].SequenceNo)
	assert.Equal(t, int64(1000), records[0].Amount)
	assert.Equal(t, "JPY", records[0].FeeCurrency)
	assert.Equal(t, int64(110), records[0].FeeAmount)
	require.NotNil(t, records[0].CompletedAt)
	assert.Equal(t, time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC), *records[0].CompletedAt)

	assert.Equal(t, "E01", records[1].ErrorCode)
	assert.Equal(t, "no such account", records[1].ErrorMessage)

	assert.Equal(t, "RB1/4", records[2].Key())
	assert.Equal(t, int64(2550), records[2].Amount)
	require.NotNil(t, records[2].ScheduledFor)
}

func TestAdapter_TransactionResults_ArmoredFile(t *testing.T) {
	dir := t.TempDir()
	entity := newTestEntity(t)
	writeFile(t, dir, "RB1_20240302.csv.gpg", encrypt(t, entity, dayFiveCSV, true))

	a := New("baas", dir, openpgp.EntityList{entity}, testLogger())
	records, err := a.TransactionResults(context.Background(), "RB1", marchWindow())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "4C", records[0].Remark)
}

func TestAdapter_TransactionResults_EncryptedWithoutKeyring(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "RB1_20240302.csv.gpg", encrypt(t, newTestEntity(t), dayFiveCSV, false))

	a := New("baas", dir, nil, testLogger())
	_, err := a.TransactionResults(context.Background(), "RB1", marchWindow())
	require.Error(t, err)
	assert.Equal(t, apperror.ClassTransient, apperror.ClassOf(err))
}

func TestAdapter_TransactionResults_WrongKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "RB1_20240302.csv.gpg", encrypt(t, newTestEntity(t), dayFiveCSV, false))

	a := New("baas", dir, openpgp.EntityList{newTestEntity(t)}, testLogger())
	_, err := a.TransactionResults(context.Background(), "RB1", marchWindow())
	assert.Error(t, err)
}

func TestAdapter_TransactionResults_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "RB1_20240302.csv", []byte("rail_batch_id,sequence_no\nRB1,1\n"))

	a := New("baas", dir, nil, testLogger())
	_, err := a.TransactionResults(context.Background(), "RB1", marchWindow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestAdapter_TransactionResults_MissingDir(t *testing.T) {
	a := New("baas", filepath.Join(t.TempDir(), "unmounted"), nil, testLogger())
	_, err := a.TransactionResults(context.Background(), "RB1", marchWindow())
	require.Error(t, err)
	assert.Equal(t, apperror.ClassTransient, apperror.ClassOf(err))
}

func TestLoadKeyring(t *testing.T) {
	entity := newTestEntity(t)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "recon.asc")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	keyring, err := LoadKeyring(path, "")
	require.NoError(t, err)
	require.Len(t, keyring, 1)
	assert.Equal(t, entity.PrimaryKey.KeyId, keyring[0].PrimaryKey.KeyId)

	_, err = LoadKeyring(filepath.Join(t.TempDir(), "missing.asc"), "")
	assert.Error(t, err)
}
