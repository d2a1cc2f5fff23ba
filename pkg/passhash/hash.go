// Package passhash hashes and verifies user passwords with
// PBKDF2-HMAC-SHA256. The encoded form is self-describing:
//
//	pbkdf2_sha256$<iterations>$<salt b64>$<key b64>
//
// so the iteration count can be raised later without invalidating
// stored hashes.
package passhash

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultIterations = 210_000
	SaltLen           = 16
	KeyLen            = 32

	encPrefix = "pbkdf2_sha256$"
)

// HashPassword hashes password with the default iteration count.
func HashPassword(password string) (string, error) {
	return HashPasswordWithIters(password, DefaultIterations)
}

// HashPasswordWithIters hashes password with an explicit iteration count.
// Lower counts are useful in tests; production callers should stick to
// HashPassword.
func HashPasswordWithIters(password string, iterations int) (string, error) {
	if iterations <= 0 {
		return "", errors.New("iterations must be > 0")
	}

	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}

	key := derive([]byte(password), salt, iterations, KeyLen)
	encoded := fmt.Sprintf("%s%d$%s$%s",
		encPrefix,
		iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	wipe(key)
	return encoded, nil
}

// VerifyPassword reports whether password matches the encoded hash.
// The comparison is constant-time.
func VerifyPassword(password, encoded string) (bool, error) {
	iterations, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}

	got := derive([]byte(password), salt, iterations, len(want))
	ok := subtle.ConstantTimeCompare(got, want) == 1

	wipe(got)
	return ok, nil
}

func decode(encoded string) (iterations int, salt, key []byte, err error) {
	rest, found := strings.CutPrefix(encoded, encPrefix)
	if !found {
		return 0, nil, nil, errors.New("unsupported hash format")
	}

	parts := strings.Split(rest, "$")
	if len(parts) != 3 {
		return 0, nil, nil, errors.New("malformed hash")
	}

	iterations, err = strconv.Atoi(parts[0])
	if err != nil || iterations <= 0 {
		return 0, nil, nil, errors.New("invalid iteration count")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, errors.New("invalid salt")
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, errors.New("invalid derived key")
	}

	return iterations, salt, key, nil
}

// derive is PBKDF2 per RFC 8018 with HMAC-SHA256 as the PRF.
func derive(password, salt []byte, iterations, keyLen int) []byte {
	if iterations <= 0 || keyLen <= 0 {
		return nil
	}

	hLen := sha256.Size
	blocks := (keyLen + hLen - 1) / hLen
	out := make([]byte, 0, blocks*hLen)

	var index [4]byte
	for i := 1; i <= blocks; i++ {
		binary.BigEndian.PutUint32(index[:], uint32(i))

		u := prf(password, append(salt, index[:]...))
		block := make([]byte, len(u))
		copy(block, u)

		for j := 1; j < iterations; j++ {
			u = prf(password, u)
			for k := range block {
				block[k] ^= u[k]
			}
		}

		out = append(out, block...)
		wipe(block)
	}

	return out[:keyLen]
}

func prf(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write(data)
	return m.Sum(nil)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
