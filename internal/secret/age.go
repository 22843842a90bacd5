package secret

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
)

// AgeFileStore implements SecretStore as a single JSON map encrypted with
// filippo.io/age to an X25519 identity. The identity file is generated on
// first use and written with 0600 permissions.
type AgeFileStore struct {
	identityPath string
	storePath    string

	mu       sync.Mutex
	identity *age.X25519Identity
}

var _ SecretStore = (*AgeFileStore)(nil)

// NewAgeFileStore loads or creates the identity at identityPath.
func NewAgeFileStore(identityPath, storePath string) (*AgeFileStore, error) {
	id, err := loadOrCreateIdentity(identityPath)
	if err != nil {
		return nil, err
	}
	return &AgeFileStore{identityPath: identityPath, storePath: storePath, identity: id}, nil
}

func loadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return parseIdentity(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	content := "# public key: " + id.Recipient().String() + "\n" + id.String() + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return nil, fmt.Errorf("writing identity file: %w", err)
	}
	return id, nil
}

// parseIdentity reads the first non-comment line as an AGE-SECRET-KEY.
func parseIdentity(data []byte) (*age.X25519Identity, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parsing identity: %w", err)
		}
		return id, nil
	}
	return nil, errors.New("identity file contains no key")
}

func (s *AgeFileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked()
	if err != nil {
		return err
	}
	m[key] = string(value)
	return s.writeLocked(m)
}

func (s *AgeFileStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (s *AgeFileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readLocked()
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.writeLocked(m)
}

func (s *AgeFileStore) readLocked() (map[string]string, error) {
	f, err := os.Open(s.storePath)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening secret store: %w", err)
	}
	defer f.Close()

	r, err := age.Decrypt(f, s.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret store: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading secret store: %w", err)
	}

	m := map[string]string{}
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("parsing secret store: %w", err)
	}
	return m, nil
}

func (s *AgeFileStore) writeLocked(m map[string]string) error {
	plain, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding secret store: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return fmt.Errorf("encrypting secret store: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.storePath), 0700); err != nil {
		return fmt.Errorf("creating secret store directory: %w", err)
	}
	tmp := s.storePath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing secret store: %w", err)
	}
	return os.Rename(tmp, s.storePath)
}
