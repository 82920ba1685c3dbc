// Package filerepo persists the session as a JSON object in a single file,
// optionally sealed with a passphrase.
package filerepo

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/jrsteele09/militex-client/session"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

var _ session.Repo = (*Repo)(nil)

// Repo stores every key in one file. Each mutation rewrites the whole file via
// a temp file and rename, so readers never observe a partial write.
type Repo struct {
	path   string
	sealer *sealer
	mu     sync.Mutex
}

// Option defines a function type to modify the Repo instance.
type Option func(*Repo)

// WithPassphrase seals the file contents with a key derived from passphrase.
func WithPassphrase(passphrase string) Option {
	return func(r *Repo) {
		if passphrase != "" {
			r.sealer = newSealer(passphrase)
		}
	}
}

func New(path string, options ...Option) (*Repo, error) {
	if path == "" {
		return nil, pkgerrors.New("[filerepo.New] path is required")
	}
	r := &Repo{path: path}
	for _, opt := range options {
		opt(r)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, pkgerrors.Wrap(err, "[filerepo.New] MkdirAll")
	}
	return r, nil
}

func (r *Repo) Path() string {
	return r.path
}

func (r *Repo) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.load()
	if err != nil {
		return "", false, err
	}
	value, ok := values[key]
	return value, ok, nil
}

func (r *Repo) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.load()
	if err != nil {
		return err
	}
	values[key] = value
	return r.save(values)
}

func (r *Repo) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.load()
	if err != nil {
		return err
	}
	changed := false
	for _, key := range keys {
		if _, ok := values[key]; ok {
			delete(values, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return r.save(values)
}

func (r *Repo) load() (map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[filerepo.load] ReadFile")
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}
	if r.sealer != nil {
		if data, err = r.sealer.open(data); err != nil {
			return nil, err
		}
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, pkgerrors.Wrap(err, "[filerepo.load] json.Unmarshal")
	}
	return values, nil
}

func (r *Repo) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return pkgerrors.Wrap(err, "[filerepo.save] json.Marshal")
	}
	if r.sealer != nil {
		if data, err = r.sealer.seal(data); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".session-*")
	if err != nil {
		return pkgerrors.Wrap(err, "[filerepo.save] CreateTemp")
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return pkgerrors.Wrap(err, "[filerepo.save] Chmod")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pkgerrors.Wrap(err, "[filerepo.save] Write")
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrap(err, "[filerepo.save] Close")
	}
	return pkgerrors.Wrap(os.Rename(tmp.Name(), r.path), "[filerepo.save] Rename")
}
