// Package filedrop is the provider adapter for rails that drop result files
// into a directory, usually an SFTP mount.
//
// Layout for a batch reference REF:
//
//	REF.status               submission status (CONFIRMED, NOT_FOUND, DELETED, PENDING)
//	REF_YYYYMMDD.csv         result records for one settlement day
//	REF_YYYYMMDD.csv.gpg     same, OpenPGP encrypted to the reconciler's key
package filedrop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/pkg/apperror"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/openpgp"       //nolint:staticcheck
	"golang.org/x/crypto/openpgp/armor" //nolint:staticcheck
)

const (
	statusSuffix  = ".status"
	csvSuffix     = ".csv"
	pgpSuffix     = ".csv.gpg"
	fileDateStamp = "20060102"
)

// Adapter implements ports.ProviderAdapter over a drop directory.
type Adapter struct {
	name    string
	dir     string
	keyring openpgp.EntityList
	log     zerolog.Logger
}

// New creates a file-drop adapter. keyring may be nil when the rail never
// sends encrypted files.
func New(name, dir string, keyring openpgp.EntityList, log zerolog.Logger) *Adapter {
	return &Adapter{
		name:    name,
		dir:     dir,
		keyring: keyring,
		log:     log.With().Str("rail", name).Str("adapter", "filedrop").Logger(),
	}
}

// LoadKeyring reads an armored private keyring and unlocks its keys with passphrase.
func LoadKeyring(path, passphrase string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer f.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}

	pass := []byte(passphrase)
	for _, e := range keyring {
		if e.PrivateKey != nil && e.PrivateKey.Encrypted {
			if err := e.PrivateKey.Decrypt(pass); err != nil {
				return nil, fmt.Errorf("unlock key %s: %w", e.PrimaryKey.KeyIdString(), err)
			}
		}
		for _, sub := range e.Subkeys {
			if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
				if err := sub.PrivateKey.Decrypt(pass); err != nil {
					return nil, fmt.Errorf("unlock subkey %s: %w", sub.PublicKey.KeyIdString(), err)
				}
			}
		}
	}
	return keyring, nil
}

// Name implements ports.ProviderAdapter.
func (a *Adapter) Name() string { return a.name }

// SubmissionStatus reads REF.status. A missing file means the rail has not
// processed the batch yet.
func (a *Adapter) SubmissionStatus(ctx context.Context, batchRef string) (domain.SubmissionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := a.path(batchRef + statusSuffix)
	if err != nil {
		return "", err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.SubmissionPending, nil
		}
		return "", apperror.ErrRailUnavailable(a.name, err)
	}
	return domain.SubmissionStatus(strings.ToUpper(strings.TrimSpace(string(raw)))), nil
}

// TransactionResults parses every result file of the batch whose date lies
// in the window.
func (a *Adapter) TransactionResults(ctx context.Context, batchRef string, window domain.DateWindow) ([]domain.ExternalStatusRecord, error) {
	files, err := a.resultFiles(batchRef, window)
	if err != nil {
		return nil, err
	}

	var out []domain.ExternalStatusRecord
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := a.readFile(f)
		if err != nil {
			return nil, apperror.ErrMalformedRailResponse(a.name, fmt.Errorf("%s: %w", filepath.Base(f), err))
		}
		out = append(out, records...)
	}

	a.log.Debug().
		Str("batch_ref", batchRef).
		Int("files", len(files)).
		Int("records", len(out)).
		Msg("result files read")
	return out, nil
}

func (a *Adapter) resultFiles(batchRef string, window domain.DateWindow) ([]string, error) {
	if _, err := a.path(batchRef); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, apperror.ErrRailUnavailable(a.name, err)
	}

	prefix := batchRef + "_"
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}

		var stamp string
		switch {
		case strings.HasSuffix(name, pgpSuffix):
			stamp = strings.TrimSuffix(strings.TrimPrefix(name, prefix), pgpSuffix)
		case strings.HasSuffix(name, csvSuffix):
			stamp = strings.TrimSuffix(strings.TrimPrefix(name, prefix), csvSuffix)
		default:
			continue
		}

		day, err := time.Parse(fileDateStamp, stamp)
		if err != nil {
			a.log.Warn().Str("file", name).Msg("ignoring result file with unparseable date")
			continue
		}
		if window.Contains(day) {
			files = append(files, filepath.Join(a.dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (a *Adapter) readFile(path string) ([]domain.ExternalStatusRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	skip := func(line int, err error) {
		a.log.Warn().Err(err).Str("file", filepath.Base(path)).Int("line", line).Msg("dropping malformed rail record")
	}
	if !strings.HasSuffix(path, pgpSuffix) {
		return parseCSV(bytes.NewReader(raw), skip)
	}

	plain, err := a.decrypt(raw)
	if err != nil {
		return nil, err
	}
	return parseCSV(plain, skip)
}

func (a *Adapter) decrypt(raw []byte) (io.Reader, error) {
	if len(a.keyring) == 0 {
		return nil, errors.New("encrypted result file but no keyring configured")
	}

	var r io.Reader = bytes.NewReader(raw)
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("-----BEGIN")) {
		block, err := armor.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("armor decode: %w", err)
		}
		r = block.Body
	}

	md, err := openpgp.ReadMessage(r, a.keyring, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return md.UnverifiedBody, nil
}

// path joins name onto the drop directory and refuses names that escape it.
func (a *Adapter) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", apperror.ErrMalformedRailResponse(a.name, fmt.Errorf("unsafe batch reference %q", name))
	}
	return filepath.Join(a.dir, name), nil
}
