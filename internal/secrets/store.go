// Package secrets provides scoped acquisition of at-rest-encrypted key/value
// strings. The whole value map is sealed with AES-256-GCM into a single blob;
// the key is derived deterministically from the config directory path, so a
// store survives restarts but not relocation.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

var (
	// ErrMissingKey is returned by Resolve when a referenced key is absent.
	ErrMissingKey = errors.New("secrets: referenced key not found")
	// ErrCiphertextTooShort indicates a truncated or corrupt blob.
	ErrCiphertextTooShort = errors.New("secrets: ciphertext too short")
)

// templateRe matches {{secrets.KEY}} tokens inside templates.
var templateRe = regexp.MustCompile(`\{\{\s*secrets\.([A-Za-z0-9_.-]+)\s*\}\}`)

// Store holds the decrypted value map and persists it encrypted.
// Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	path   string
	key    []byte
	values map[string]string
}

// Open loads the store at <configDir>/secrets.enc, deriving the encryption
// key from the canonicalised configDir path. A missing blob yields an empty
// store. A blob that fails to decrypt is wiped and the store continues empty;
// the caller's secrets must be re-entered.
func Open(configDir string) (*Store, error) {
	canon, err := canonicalDir(configDir)
	if err != nil {
		return nil, fmt.Errorf("secrets: resolve config dir: %w", err)
	}
	key, err := deriveKey(canon)
	if err != nil {
		return nil, fmt.Errorf("secrets: derive key: %w", err)
	}

	s := &Store{
		path:   filepath.Join(canon, "secrets.enc"),
		key:    key,
		values: make(map[string]string),
	}

	blob, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("secrets: read blob: %w", err)
	}

	plain, err := decrypt(blob, key)
	if err == nil {
		err = json.Unmarshal(plain, &s.values)
	}
	if err != nil {
		// Wrong key or corrupt blob. Start over; the user must re-onboard.
		slog.Warn("secret store unreadable, wiping", "path", s.path, "error", err)
		s.values = make(map[string]string)
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("could not remove unreadable secret blob", "error", rmErr)
		}
	}
	return s, nil
}

// Get returns the value for key and whether it exists.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key exists.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Set stores a value and persists the blob.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.saveLocked()
}

// Delete removes a key and persists the blob. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.saveLocked()
}

// List returns the stored key names, sorted. Values are never listed.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve substitutes {{secrets.KEY}} tokens in template. Missing keys leave
// the token untouched; the returned error wraps ErrMissingKey naming the
// first absent key, and a warning is logged per absent key.
func (s *Store) Resolve(template string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	out := templateRe.ReplaceAllStringFunc(template, func(tok string) string {
		key := templateRe.FindStringSubmatch(tok)[1]
		if v, ok := s.values[key]; ok {
			return v
		}
		slog.Warn("secret template references missing key", "key", key)
		missing = append(missing, key)
		return tok
	})
	if len(missing) > 0 {
		return out, fmt.Errorf("%w: %s", ErrMissingKey, missing[0])
	}
	return out, nil
}

// saveLocked seals the value map and writes it via temp-file + rename.
// Caller holds s.mu.
func (s *Store) saveLocked() error {
	plain, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("secrets: marshal: %w", err)
	}
	blob, err := encrypt(plain, s.key)
	if err != nil {
		return fmt.Errorf("secrets: encrypt: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "secrets-*.tmp")
	if err != nil {
		return fmt.Errorf("secrets: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("secrets: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("secrets: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("secrets: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("secrets: chmod: %w", err)
	}
	return os.Rename(tmpName, s.path)
}

// canonicalDir resolves configDir to an absolute, symlink-free path so the
// derived key is stable across invocations from different working directories.
func canonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// deriveKey stretches the config directory path into a 32-byte key.
// The salt is fixed: determinism across restarts is the point; the threat
// model is at-rest disclosure of the blob without the directory path.
func deriveKey(canonDir string) ([]byte, error) {
	return scrypt.Key([]byte(canonDir), []byte("domo.secrets.v1"), 1<<15, 8, 1, KeySize)
}

// encrypt seals plaintext with AES-256-GCM, prepending the nonce.
func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a nonce-prefixed AES-256-GCM blob.
func decrypt(blob, key []byte) ([]byte, error) {
	if len(blob) < NonceSize {
		return nil, ErrCiphertextTooShort
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce, data := blob[:NonceSize], blob[NonceSize:]
	return gcm.Open(nil, nonce, data, nil)
}
