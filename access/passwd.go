package access

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	pe "dogbox.io/dogbox/errors"
)

// Argon2Params are the cost parameters of an argon2id hash
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params match the defaults of the common argon2 bindings, so hashes made by other tools verify
// at the same cost
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// Verifier checks password against the stored hash. A mismatch is (false, nil); err is reserved for failures
// of the verification itself, e.g. a malformed hash.
type Verifier func(hash, password string) (bool, error)

// VerifyPassword verifies password against an argon2 PHC string ("$argon2id$v=19$m=...,t=...,p=...$salt$key")
// or a bcrypt hash.
func VerifyPassword(hash, password string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2"):
		return verifyArgon2(hash, password)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, pe.NewServiceFailure("error verifying bcrypt hash").WithCause(err)
		}
		return true, nil
	default:
		return false, pe.NewServiceFailure("unsupported password hash format")
	}
}

func verifyArgon2(hash, password string) (bool, error) {
	const errMsg = "malformed argon2 hash"
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		return false, pe.NewServiceFailure(errMsg)
	}
	variant := parts[1]
	if variant != "argon2id" && variant != "argon2i" {
		return false, pe.NewServiceFailure(fmt.Sprintf("unsupported argon2 variant %s", variant))
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, pe.NewServiceFailure(errMsg).WithCause(err)
	}
	if version != argon2.Version {
		return false, pe.NewServiceFailure(fmt.Sprintf("unsupported argon2 version %d", version))
	}
	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return false, pe.NewServiceFailure(errMsg).WithCause(err)
	}
	if p.Time == 0 || p.Threads == 0 {
		return false, pe.NewServiceFailure(errMsg)
	}
	salt, err := decodeB64(parts[4])
	if err != nil {
		return false, pe.NewServiceFailure(errMsg).WithCause(err)
	}
	want, err := decodeB64(parts[5])
	if err != nil || len(want) == 0 {
		return false, pe.NewServiceFailure(errMsg).WithCause(err)
	}
	var got []byte
	if variant == "argon2id" {
		got = argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(want)))
	} else {
		got = argon2.Key([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(want)))
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// PHC strings omit padding but some encoders keep it
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// HashPassword hashes password with argon2id and returns the PHC string
func HashPassword(password string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", pe.NewServiceFailure("error generating salt").WithCause(err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// unknown users pay the same verification cost as known ones
func burnVerification(verify Verifier, password string) {
	dummyHashOnce.Do(func() {
		h, err := HashPassword("dogbox", DefaultArgon2Params)
		if err == nil {
			dummyHash = h
		}
	})
	if dummyHash != "" {
		_, _ = verify(dummyHash, password)
	}
}
