package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/smm-storefront/pkg/config"
)

// ErrInvalidHash signals a malformed Argon2id hash string.
var ErrInvalidHash = errors.New("invalid argon2id hash")

// argonParams are embedded in every hash so older hashes keep verifying
// after the configured cost changes.
type argonParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
	saltLen     uint32
	keyLen      uint32
}

// HashPassword returns an encoded Argon2id hash of password.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	params := paramsFromConfig(cfg)
	salt := make([]byte, params.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.parallelism, params.keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.memory, params.time, params.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches encoded.
func VerifyPassword(password, encoded string) (bool, error) {
	params, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.parallelism, params.keyLen)
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

func paramsFromConfig(cfg config.PasswordConfig) argonParams {
	return argonParams{
		memory:      uint32(clamp(cfg.ArgonMemoryKB, 8, 512*1024)),
		time:        uint32(clamp(cfg.ArgonTime, 1, 10)),
		parallelism: uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		saltLen:     uint32(clamp(cfg.ArgonSaltLen, 8, 64)),
		keyLen:      uint32(clamp(cfg.ArgonKeyLen, 16, 64)),
	}
}

func decodeHash(encoded string) (argonParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argonParams{}, nil, nil, ErrInvalidHash
	}

	var params argonParams
	for _, token := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			return argonParams{}, nil, nil, ErrInvalidHash
		}
		var bits int
		switch key {
		case "m", "t":
			bits = 32
		case "p":
			bits = 8
		default:
			continue
		}
		n, err := strconv.ParseUint(value, 10, bits)
		if err != nil {
			return argonParams{}, nil, nil, ErrInvalidHash
		}
		switch key {
		case "m":
			params.memory = uint32(n)
		case "t":
			params.time = uint32(n)
		case "p":
			params.parallelism = uint8(n)
		}
	}
	if params.memory == 0 || params.time == 0 || params.parallelism == 0 {
		return argonParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return argonParams{}, nil, nil, ErrInvalidHash
	}
	params.saltLen = uint32(len(salt))
	params.keyLen = uint32(len(key))
	return params, salt, key, nil
}

func clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
