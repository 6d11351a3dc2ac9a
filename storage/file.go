package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	sealedMagic = []byte("SCV1")

	ErrWrongPassphrase = errors.New("credential file cannot be opened with this passphrase")
)

const saltSize = 16

// FileStore keeps every key in one JSON document. With a passphrase the
// document is sealed with XChaCha20-Poly1305 under an Argon2id key.
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase string
	data       map[string]string
	closed     bool
}

func OpenFileStore(path, passphrase string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is empty")
	}
	fs := &FileStore{path: path, passphrase: passphrase, data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}
	plain, err := fs.open(raw)
	if err != nil {
		return nil, err
	}
	if len(plain) > 0 {
		if err := json.Unmarshal(plain, &fs.data); err != nil {
			return nil, fmt.Errorf("failed to decode credential file: %w", err)
		}
	}
	return fs, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *FileStore) SetMany(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	next := make(map[string]string, len(f.data)+len(values))
	for k, v := range f.data {
		next[k] = v
	}
	for k, v := range values {
		next[k] = v
	}
	return f.commit(next)
}

func (f *FileStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	next := make(map[string]string, len(f.data))
	for k, v := range f.data {
		next[k] = v
	}
	for _, k := range keys {
		delete(next, k)
	}
	return f.commit(next)
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// commit writes next to a temp file and renames it over the old document,
// so a crash leaves either the old or the new state on disk.
func (f *FileStore) commit(next map[string]string) error {
	plain, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	out, err := f.seal(plain)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	f.data = next
	return nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

func (f *FileStore) seal(plain []byte) ([]byte, error) {
	if f.passphrase == "" {
		return plain, nil
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(deriveKey(f.passphrase, salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(sealedMagic)+saltSize+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, sealedMagic), nil
}

func (f *FileStore) open(raw []byte) ([]byte, error) {
	if !bytes.HasPrefix(raw, sealedMagic) {
		if f.passphrase != "" && len(raw) > 0 {
			return nil, ErrWrongPassphrase
		}
		return raw, nil
	}
	if f.passphrase == "" {
		return nil, ErrWrongPassphrase
	}
	body := raw[len(sealedMagic):]
	if len(body) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("credential file is truncated")
	}
	salt := body[:saltSize]
	nonce := body[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	aead, err := chacha20poly1305.NewX(deriveKey(f.passphrase, salt))
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, body[saltSize+chacha20poly1305.NonceSizeX:], sealedMagic)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}
