// Package secrets stores the user's model API key (retrievable by value)
// and the service-issued integration key (salted hash only, shown once).
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	modelKeyFile       = "model_key.json"
	integrationFile    = "integration.json"
	integrationPrefix  = "pl_"
	integrationByteLen = 16
)

// ErrNoIntegrationKey means no integration key has been issued.
var ErrNoIntegrationKey = errors.New("no integration key issued")

// ErrInvalidIntegrationKey means the presented credential did not verify.
var ErrInvalidIntegrationKey = errors.New("invalid integration key")

// Store manages secret files under a workspace secrets directory.
type Store struct {
	Dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

type modelKeyRecord struct {
	APIKey  string `json:"api_key"`
	SavedAt string `json:"saved_at"`
}

type integrationRecord struct {
	UserID   string `json:"user_id"`
	KeyHash  string `json:"key_hash"`
	IssuedAt string `json:"issued_at"`
}

// SetModelKey stores the user's model API key by value.
func (s *Store) SetModelKey(key string) error {
	if key == "" {
		return fmt.Errorf("model key is required")
	}
	record := modelKeyRecord{
		APIKey:  key,
		SavedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return s.writeRecord(modelKeyFile, record)
}

// ModelKey retrieves the stored model API key, or "" when none is stored.
func (s *Store) ModelKey() (string, error) {
	var record modelKeyRecord
	err := s.readRecord(modelKeyFile, &record)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return record.APIKey, nil
}

// IssueIntegrationKey mints a bearer credential bound to userID, returning
// the plaintext exactly once. Only a bcrypt hash is persisted; a re-issue
// replaces the previous key.
func (s *Store) IssueIntegrationKey(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	raw := make([]byte, integrationByteLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate integration key: %w", err)
	}
	key := integrationPrefix + hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash integration key: %w", err)
	}

	record := integrationRecord{
		UserID:   userID,
		KeyHash:  string(hash),
		IssuedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.writeRecord(integrationFile, record); err != nil {
		return "", err
	}
	return key, nil
}

// VerifyIntegrationKey checks the presented credential and returns the
// bound user id. Missing key and mismatch are reported distinctly.
func (s *Store) VerifyIntegrationKey(presented string) (string, error) {
	var record integrationRecord
	err := s.readRecord(integrationFile, &record)
	if os.IsNotExist(err) {
		return "", ErrNoIntegrationKey
	}
	if err != nil {
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(record.KeyHash), []byte(presented)) != nil {
		return "", ErrInvalidIntegrationKey
	}
	return record.UserID, nil
}

// RevokeIntegrationKey deletes the stored integration key, if any.
func (s *Store) RevokeIntegrationKey() error {
	err := os.Remove(filepath.Join(s.Dir, integrationFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("revoke integration key: %w", err)
	}
	return nil
}

func (s *Store) writeRecord(name string, record any) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("ensure secrets dir: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	data = append(data, '\n')
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *Store) readRecord(name string, record any) error {
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, record); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}
