// Package crypto seals store integration credentials at rest.
package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"github.com/smallbiznis/accessd/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrMissingKey = errors.New("credential_key_required")

var Module = fx.Module("crypto",
	fx.Provide(NewFromConfig),
)

// Sealer encrypts and decrypts short secrets.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type Encryptor struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewEncryptor parses an age X25519 identity. An empty key generates a fresh one.
func NewEncryptor(key string) (*Encryptor, error) {
	var (
		identity *age.X25519Identity
		err      error
	)
	key = strings.TrimSpace(key)
	if key == "" {
		identity, err = age.GenerateX25519Identity()
		if err != nil {
			return nil, fmt.Errorf("generate identity: %w", err)
		}
	} else {
		identity, err = age.ParseX25519Identity(key)
		if err != nil {
			return nil, fmt.Errorf("parse identity: %w", err)
		}
	}

	return &Encryptor{
		identity:  identity,
		recipient: identity.Recipient(),
	}, nil
}

// NewFromConfig requires a key in production and generates a process-local one elsewhere.
func NewFromConfig(cfg config.Config, log *zap.Logger) (Sealer, error) {
	if strings.TrimSpace(cfg.CredentialKey) == "" {
		if cfg.IsProduction() {
			return nil, ErrMissingKey
		}
		log.Warn("ACCESSD_CREDENTIAL_KEY not set, generated an ephemeral key; sealed credentials will not survive a restart")
	}
	return NewEncryptor(cfg.CredentialKey)
}

func GenerateKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generate identity: %w", err)
	}
	return identity.String(), nil
}

func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := age.Encrypt(&buf, e.recipient)
	if err != nil {
		return nil, fmt.Errorf("create encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close encryptor: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), e.identity)
	if err != nil {
		return nil, fmt.Errorf("create decryptor: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read plaintext: %w", err)
	}
	return plaintext, nil
}

// Seal returns base64 ciphertext. Empty input stays empty.
func (e *Encryptor) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, err := e.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (e *Encryptor) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	plaintext, err := e.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
