package passwd

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Default Argon2id parameters.
const (
	DefaultTime    = 2
	DefaultMemory  = 16 * 1024
	DefaultThreads = 2
	DefaultKeyLen  = 32
	SaltLen        = 16
)

// ErrMalformed is returned for strings that are not Argon2id hashes.
var ErrMalformed = errors.New("passwd: malformed argon2id hash")

// Hash is a parsed Argon2id hash.
type Hash struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	Salt    []byte
	Key     []byte
}

// New hashes password with the default parameters and a random salt.
func New(password string) (string, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	h := &Hash{
		Time:    DefaultTime,
		Memory:  DefaultMemory,
		Threads: DefaultThreads,
		Salt:    salt,
	}
	h.Key = h.derive([]byte(password), DefaultKeyLen)
	return h.String(), nil
}

// Parse decodes an encoded hash.
func Parse(encoded string) (*Hash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, ErrMalformed
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, version)
	}

	h := &Hash{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.Memory, &h.Time, &h.Threads); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Time == 0 || h.Memory == 0 || h.Threads == 0 {
		return nil, fmt.Errorf("%w: parameters must be positive", ErrMalformed)
	}

	var err error
	if h.Salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrMalformed, err)
	}
	if h.Key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrMalformed, err)
	}
	if len(h.Key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrMalformed)
	}
	return h, nil
}

// Verify reports whether password matches the hash.
//
// Uses constant-time comparison.
func (h *Hash) Verify(password []byte) bool {
	key := h.derive(password, uint32(len(h.Key)))
	return subtle.ConstantTimeCompare(key, h.Key) == 1
}

// String encodes the hash in PHC format.
func (h *Hash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(h.Salt),
		base64.RawStdEncoding.EncodeToString(h.Key))
}

func (h *Hash) derive(password []byte, keyLen uint32) []byte {
	return argon2.IDKey(password, h.Salt, h.Time, h.Memory, h.Threads, keyLen)
}

// Verify checks password against an encoded hash. Malformed hashes never
// match.
func Verify(password, encoded string) bool {
	h, err := Parse(encoded)
	if err != nil {
		return false
	}
	return h.Verify([]byte(password))
}
