package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"golang.org/x/crypto/pbkdf2"
)

const algorithmAESGCM = "AES-256-GCM"

// Key derivation parameters. Changing them makes stored secrets unreadable.
const (
	keyDerivationSalt       = "catalog-sync-service/secrets/v1"
	keyDerivationIterations = 100_000
	keyLength               = 32
)

// ErrNoEncryptionKey is returned when the database store has no key configured
var ErrNoEncryptionKey = errors.New("secrets encryption key is not configured")

// DBStore encrypts credentials into the secrets table
type DBStore struct {
	repo *repository.SecretRepository
	key  []byte
}

var _ Store = (*DBStore)(nil)

// NewDBStore creates a store whose data key is derived from passphrase
func NewDBStore(repo *repository.SecretRepository, passphrase string) *DBStore {
	s := &DBStore{repo: repo}
	if passphrase != "" {
		s.key = deriveKey(passphrase)
	}
	return s
}

// deriveKey stretches passphrase into an AES-256 key
func deriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(keyDerivationSalt), keyDerivationIterations, keyLength, sha256.New)
}

// Get decrypts a stored secret
func (s *DBStore) Get(ctx context.Context, key string) (string, bool, error) {
	stored, err := s.repo.Get(ctx, sanitizeSecretID(key))
	if err != nil {
		return "", false, fmt.Errorf("failed to load secret: %w", err)
	}
	if stored == nil {
		return "", false, nil
	}
	if s.key == nil {
		return "", false, ErrNoEncryptionKey
	}

	plaintext, err := s.decrypt(stored)
	if err != nil {
		return "", false, err
	}
	return plaintext, true, nil
}

// Set encrypts and stores a secret
func (s *DBStore) Set(ctx context.Context, key, value string) error {
	if s.key == nil {
		return ErrNoEncryptionKey
	}

	stored, err := s.encrypt(value)
	if err != nil {
		return err
	}
	stored.Key = sanitizeSecretID(key)

	if err := s.repo.Put(ctx, stored); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	return nil
}

func (s *DBStore) encrypt(plaintext string) (*models.StoredSecret, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return &models.StoredSecret{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Algorithm:  algorithmAESGCM,
	}, nil
}

func (s *DBStore) decrypt(stored *models.StoredSecret) (string, error) {
	if stored.Algorithm != algorithmAESGCM {
		return "", fmt.Errorf("unsupported secret algorithm %q", stored.Algorithm)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("failed to decode nonce: %w", err)
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (s *DBStore) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
