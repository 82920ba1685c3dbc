package filerepo

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// ErrWrongPassphrase is returned when a sealed file cannot be opened.
var ErrWrongPassphrase = errors.New("session file could not be opened: wrong passphrase or corrupt file")

const (
	saltLength = 16
	scryptN    = 1 << 15
	scryptR    = 8
	scryptP    = 1
)

type sealedFile struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Box     []byte `json:"box"`
}

// sealer is only used under the Repo mutex. The derived key is cached per salt because
// scrypt is deliberately slow.
type sealer struct {
	passphrase []byte
	salt       []byte
	cachedKey  *[32]byte
}

func newSealer(passphrase string) *sealer {
	return &sealer{passphrase: []byte(passphrase)}
}

func (s *sealer) key(salt []byte) (*[32]byte, error) {
	if s.cachedKey != nil && bytes.Equal(s.salt, salt) {
		return s.cachedKey, nil
	}
	derived, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, errors.Wrap(err, "[sealer.key] scrypt.Key")
	}
	var key [32]byte
	copy(key[:], derived)
	s.salt = append([]byte(nil), salt...)
	s.cachedKey = &key
	return &key, nil
}

// seal encrypts plaintext under a fresh nonce. The salt is generated once per sealer.
func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	salt := s.salt
	if salt == nil {
		salt = make([]byte, saltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, errors.Wrap(err, "[sealer.seal] salt")
		}
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "[sealer.seal] nonce")
	}
	key, err := s.key(salt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sealedFile{
		Version: 1,
		Salt:    salt,
		Nonce:   nonce[:],
		Box:     secretbox.Seal(nil, plaintext, &nonce, key),
	})
}

func (s *sealer) open(data []byte) ([]byte, error) {
	var sf sealedFile
	if err := json.Unmarshal(data, &sf); err != nil || sf.Version != 1 || len(sf.Nonce) != 24 {
		return nil, ErrWrongPassphrase
	}
	key, err := s.key(sf.Salt)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	copy(nonce[:], sf.Nonce)
	plaintext, ok := secretbox.Open(nil, sf.Box, &nonce, key)
	if !ok {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}
