package application

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

var (
	ErrInvalidPasskeyHash         = errors.New("invalid passkey hash format")
	ErrIncompatiblePasskeyVersion = errors.New("incompatible passkey hash version")
)

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// CreatePasskeyHash encodes passkey as $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func CreatePasskeyHash(passkey string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(passkey), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

type decodedHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func decodePasskeyHash(encoded string) (decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return decodedHash{}, ErrInvalidPasskeyHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return decodedHash{}, fmt.Errorf("%w: %v", ErrInvalidPasskeyHash, err)
	}
	if version != argon2.Version {
		return decodedHash{}, ErrIncompatiblePasskeyVersion
	}

	var d decodedHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.params.Memory, &d.params.Iterations, &d.params.Parallelism); err != nil {
		return decodedHash{}, fmt.Errorf("%w: %v", ErrInvalidPasskeyHash, err)
	}

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return decodedHash{}, fmt.Errorf("%w: %v", ErrInvalidPasskeyHash, err)
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return decodedHash{}, fmt.Errorf("%w: %v", ErrInvalidPasskeyHash, err)
	}
	d.params.SaltLength = uint32(len(d.salt))
	d.params.KeyLength = uint32(len(d.key))
	return d, nil
}

// VerifyPasskey compares passkey against an encoded argon2id hash in constant time.
func VerifyPasskey(encodedHash, passkey string) error {
	d, err := decodePasskeyHash(encodedHash)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(d.key, deriveArgon2id(passkey, d)) == 1 {
		return nil
	}
	return ErrUnauthorized
}

func deriveArgon2id(passkey string, d decodedHash) []byte {
	return argon2.IDKey([]byte(passkey), d.salt, d.params.Iterations, d.params.Memory, d.params.Parallelism, d.params.KeyLength)
}

// AdminGate guards the admin dashboard with a shared passkey.
//
// Requests are checked against an HMAC-SHA256 digest of the passkey keyed by a
// per-process secret. When only an argon2id hash is configured the digest is
// unknown until the first successful verification; until then argon2id runs
// for each attempt, at most one at a time.
type AdminGate struct {
	secret []byte
	hash   decodedHash
	derive func(passkey string, d decodedHash) []byte

	mu     sync.RWMutex
	digest []byte

	verifying *semaphore.Weighted
	logger    *slog.Logger
}

// NewAdminGate builds a gate from an encoded argon2id hash or a plain passkey.
// A plain passkey takes precedence and never costs an argon2id derivation.
func NewAdminGate(hash, passkey string, logger *slog.Logger) (*AdminGate, error) {
	if hash == "" && passkey == "" {
		return nil, fmt.Errorf("admin passkey not configured")
	}

	secret := make([]byte, sha256.Size)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate admin gate secret: %w", err)
	}
	g := &AdminGate{
		secret:    secret,
		derive:    deriveArgon2id,
		verifying: semaphore.NewWeighted(1),
		logger:    defaultLogger(logger),
	}

	if passkey != "" {
		g.digest = g.mac(passkey)
		return g, nil
	}
	d, err := decodePasskeyHash(hash)
	if err != nil {
		return nil, err
	}
	g.hash = d
	return g, nil
}

func (g *AdminGate) mac(passkey string) []byte {
	m := hmac.New(sha256.New, g.secret)
	m.Write([]byte(passkey))
	return m.Sum(nil)
}

func (g *AdminGate) knownDigest() []byte {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.digest
}

// Authorize returns ErrUnauthorized unless passkey matches.
func (g *AdminGate) Authorize(ctx context.Context, passkey string) error {
	if g == nil || passkey == "" {
		return ErrUnauthorized
	}

	candidate := g.mac(passkey)
	if err := g.check(ctx, passkey, candidate); err != nil {
		serviceLogger(ctx, g.logger, "AdminGate", "Authorize").WarnContext(ctx, "admin passkey rejected", "error_kind", ErrorKind(err))
		return ErrUnauthorized
	}
	return nil
}

func (g *AdminGate) check(ctx context.Context, passkey string, candidate []byte) error {
	if digest := g.knownDigest(); digest != nil {
		if hmac.Equal(candidate, digest) {
			return nil
		}
		return ErrUnauthorized
	}

	if err := g.verifying.Acquire(ctx, 1); err != nil {
		return ErrUnauthorized
	}
	defer g.verifying.Release(1)

	// Another request may have verified while this one waited.
	if digest := g.knownDigest(); digest != nil {
		if hmac.Equal(candidate, digest) {
			return nil
		}
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(g.hash.key, g.derive(passkey, g.hash)) != 1 {
		return ErrUnauthorized
	}

	g.mu.Lock()
	g.digest = candidate
	g.mu.Unlock()
	return nil
}
