package repository

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"

	"github.com/smartpigdefi/smartpig/model"
)

const (
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
	nonceLen     = 12

	defaultScryptN = 1 << 15
)

type sealedSession struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"ciphertext"`
}

// FileSessionStore writes the snapshot to a file. With a passphrase the
// file holds the snapshot sealed with AES-GCM under an scrypt key;
// without one it holds plain JSON.
type FileSessionStore struct {
	mu         sync.Mutex
	path       string
	passphrase []byte
	scryptN    int
}

func NewFileSessionStore(path, passphrase string) *FileSessionStore {
	return &FileSessionStore{
		path:       path,
		passphrase: []byte(passphrase),
		scryptN:    defaultScryptN,
	}
}

func (s *FileSessionStore) Save(_ context.Context, snap *model.SessionSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if len(s.passphrase) > 0 {
		sealed, err := s.seal(data)
		clear(data)
		if err != nil {
			return err
		}
		data = sealed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set session permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *FileSessionStore) Load(_ context.Context) (*model.SessionSnapshot, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrSessionNotFound
	}

	if len(s.passphrase) > 0 {
		plain, err := s.open(data)
		if err != nil {
			return nil, err
		}
		defer clear(plain)
		data = plain
	}
	return decodeSnapshot(data)
}

func (s *FileSessionStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

func (s *FileSessionStore) gcm(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, s.scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (s *FileSessionStore) seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}

	return json.Marshal(sealedSession{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, nil)),
	})
}

// open treats every decoding or authentication failure as corruption; a
// wrong passphrase is indistinguishable from a damaged file.
func (s *FileSessionStore) open(data []byte) ([]byte, error) {
	var sealed sealedSession
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	salt, err := base64.StdEncoding.DecodeString(sealed.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt", ErrSessionCorrupt)
	}
	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil || len(nonce) != nonceLen {
		return nil, fmt.Errorf("%w: bad nonce", ErrSessionCorrupt)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.CipherText)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrSessionCorrupt)
	}

	aead, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrSessionCorrupt)
	}
	return plain, nil
}
