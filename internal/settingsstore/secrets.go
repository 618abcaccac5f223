package settingsstore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/okayu/mangasync/internal/crypto"
	"github.com/okayu/mangasync/internal/entities"
)

const (
	// EnvEncryptionKey is the environment variable for the encryption key
	EnvEncryptionKey = "SETTINGS_ENCRYPTION_KEY"

	// DefaultKeyFileName is the default name for the key file
	DefaultKeyFileName = ".mangasync-key"
)

// SetSyncAPIToken encrypts the API token and stores it. Tokens kept in
// the settings table are never written in the clear.
func (s *SettingsStore) SetSyncAPIToken(token string) error {
	enc, err := s.encryptor()
	if err != nil {
		return fmt.Errorf("failed to prepare encryptor: %w", err)
	}

	ciphertext, err := enc.Encrypt(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt api token: %w", err)
	}
	return s.db.SetSetting(entities.SettingKeySyncAPIToken, ciphertext)
}

// getSecret reads an encrypted setting, falling back to a plaintext
// environment variable when the database has no value.
func (s *SettingsStore) getSecret(key, envVar string) string {
	stored := s.get(key)
	if stored == "" {
		return os.Getenv(envVar)
	}

	enc, err := s.encryptor()
	if err != nil {
		log.Printf("settings: cannot decrypt %s: %v", key, err)
		return ""
	}

	plaintext, err := enc.Decrypt(stored)
	if err != nil {
		log.Printf("settings: cannot decrypt %s: %v", key, err)
		return ""
	}
	return plaintext
}

// encryptor lazily builds the AES-256-GCM encryptor used for secrets.
func (s *SettingsStore) encryptor() (*crypto.Encryptor, error) {
	s.encOnce.Do(func() {
		key, err := resolveEncryptionKey()
		if err != nil {
			s.encErr = err
			return
		}
		s.enc, s.encErr = crypto.NewEncryptorFromBase64(key)
	})
	return s.enc, s.encErr
}

// resolveEncryptionKey determines the encryption key from various sources
func resolveEncryptionKey() (string, error) {
	// Priority 1: Environment variable
	if envKey := os.Getenv(EnvEncryptionKey); envKey != "" {
		return envKey, nil
	}

	// Priority 2: Key file
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	keyFilePath := filepath.Join(homeDir, DefaultKeyFileName)

	if data, err := os.ReadFile(keyFilePath); err == nil {
		return string(data), nil
	}

	// Generate new key and save it
	newKey, err := crypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := os.WriteFile(keyFilePath, []byte(newKey), 0600); err != nil {
		return "", fmt.Errorf("failed to save encryption key to %s: %w", keyFilePath, err)
	}

	log.Printf("settings: generated new encryption key and saved to %s", keyFilePath)
	return newKey, nil
}
