package syncserver

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/okayu/mangasync/internal/entities"
)

var ErrInvalidToken = errors.New("invalid API token")

// TokenStore manages device API tokens. Tokens are "<id>.<secret>" so
// verification is a single row lookup plus one bcrypt comparison; only
// the bcrypt hash of the secret is stored.
type TokenStore struct {
	db *gorm.DB
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Create mints a new token for a device. The plaintext is returned
// exactly once and cannot be recovered later.
func (s *TokenStore) Create(label string) (string, *entities.APIToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, fmt.Errorf("generate token secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash token secret: %w", err)
	}

	token := entities.APIToken{
		Label:     label,
		TokenHash: string(hash),
		CreatedAt: time.Now(),
	}
	if err := s.db.Create(&token).Error; err != nil {
		return "", nil, fmt.Errorf("store token: %w", err)
	}

	return fmt.Sprintf("%d.%s", token.ID, secret), &token, nil
}

// Verify checks a presented token and stamps its last-used time.
func (s *TokenStore) Verify(presented string) (*entities.APIToken, error) {
	idPart, secret, found := strings.Cut(presented, ".")
	if !found {
		return nil, ErrInvalidToken
	}
	id, err := strconv.ParseUint(idPart, 10, 32)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var token entities.APIToken
	if err := s.db.First(&token, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(token.TokenHash), []byte(secret)); err != nil {
		return nil, ErrInvalidToken
	}

	now := time.Now()
	token.LastUsedAt = &now
	if err := s.db.Save(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// Revoke deletes a token; devices holding it lose access immediately.
func (s *TokenStore) Revoke(id uint) error {
	result := s.db.Delete(&entities.APIToken{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
