package graft

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Interceptor presets for sensitive fields. Hash and Open are set
// interceptors (decode); Mask, Redact and Seal are get interceptors
// (encode). They accept string and []byte values and pass nil through.

// Encryption errors.
var (
	ErrInvalidKeySize   = errors.New("invalid key size")
	ErrCiphertextShort  = errors.New("ciphertext too short")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// textual applies fn to the text held by v.
func textual(v any, fn func([]byte) ([]byte, error)) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		out, err := fn([]byte(s))
		return string(out), err
	case []byte:
		return fn(s)
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

// HashAlgo names a built-in hashing algorithm.
type HashAlgo string

const (
	HashArgon2 HashAlgo = "argon2" // salted, slow; for passwords
	HashBcrypt HashAlgo = "bcrypt" // salted, slow; for passwords
	HashSHA256 HashAlgo = "sha256" // deterministic; for fingerprints
	HashSHA512 HashAlgo = "sha512" // deterministic; for fingerprints
)

// Hasher performs one-way hashing.
type Hasher interface {
	Hash(plaintext []byte) (string, error)
}

// HasherFunc adapts a plain function to the Hasher interface.
type HasherFunc func(plaintext []byte) (string, error)

// Hash implements Hasher.
func (f HasherFunc) Hash(plaintext []byte) (string, error) {
	return f(plaintext)
}

// Argon2Params configures Argon2id hashing.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2Params returns the OWASP-recommended Argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32, SaltLen: 16}
}

// Argon2 returns an Argon2id hasher producing PHC-formatted strings.
func Argon2(params Argon2Params) Hasher {
	return HasherFunc(func(plaintext []byte) (string, error) {
		salt := make([]byte, params.SaltLen)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return "", fmt.Errorf("generate salt: %w", err)
		}
		key := argon2.IDKey(plaintext, salt, params.Time, params.Memory, params.Threads, params.KeyLen)
		return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
			argon2.Version, params.Memory, params.Time, params.Threads,
			base64.RawStdEncoding.EncodeToString(salt),
			base64.RawStdEncoding.EncodeToString(key),
		), nil
	})
}

// Bcrypt returns a bcrypt hasher with the given cost.
func Bcrypt(cost int) Hasher {
	return HasherFunc(func(plaintext []byte) (string, error) {
		hash, err := bcrypt.GenerateFromPassword(plaintext, cost)
		if err != nil {
			return "", fmt.Errorf("bcrypt: %w", err)
		}
		return string(hash), nil
	})
}

// SHA256 returns a hex-encoded SHA-256 hasher.
func SHA256() Hasher {
	return HasherFunc(func(plaintext []byte) (string, error) {
		sum := sha256.Sum256(plaintext)
		return hex.EncodeToString(sum[:]), nil
	})
}

// SHA512 returns a hex-encoded SHA-512 hasher.
func SHA512() Hasher {
	return HasherFunc(func(plaintext []byte) (string, error) {
		sum := sha512.Sum512(plaintext)
		return hex.EncodeToString(sum[:]), nil
	})
}

var hashers = map[HashAlgo]func() Hasher{
	HashArgon2: func() Hasher { return Argon2(DefaultArgon2Params()) },
	HashBcrypt: func() Hasher { return Bcrypt(bcrypt.DefaultCost) },
	HashSHA256: SHA256,
	HashSHA512: SHA512,
}

// Hash returns a set interceptor hashing incoming values with algo.
func Hash(algo HashAlgo) Interceptor {
	build, ok := hashers[algo]
	if !ok {
		return func(any) (any, error) {
			return nil, fmt.Errorf("unknown hash algorithm %q", algo)
		}
	}
	return HashWith(build())
}

// HashWith returns a set interceptor hashing incoming values with h.
func HashWith(h Hasher) Interceptor {
	return func(v any) (any, error) {
		return textual(v, func(b []byte) ([]byte, error) {
			s, err := h.Hash(b)
			return []byte(s), err
		})
	}
}

// MaskType names a content-aware masking rule.
type MaskType string

const (
	MaskSSN   MaskType = "ssn"   // 123-45-6789 -> ***-**-6789
	MaskEmail MaskType = "email" // alice@example.com -> a***@example.com
	MaskPhone MaskType = "phone" // (555) 123-4567 -> ***-***-4567
	MaskCard  MaskType = "card"  // 4111111111111111 -> ************1111
	MaskIP    MaskType = "ip"    // 192.168.1.100 -> 192.168.xxx.xxx
	MaskName  MaskType = "name"  // John Smith -> J*** S****
)

var maskers = map[MaskType]func(string) string{
	MaskSSN:   maskSSN,
	MaskEmail: maskEmail,
	MaskPhone: maskPhone,
	MaskCard:  maskCard,
	MaskIP:    maskIP,
	MaskName:  maskName,
}

// Mask returns a get interceptor masking outgoing values.
func Mask(mt MaskType) Interceptor {
	mask, ok := maskers[mt]
	if !ok {
		return func(any) (any, error) {
			return nil, fmt.Errorf("unknown mask type %q", mt)
		}
	}
	return func(v any) (any, error) {
		return textual(v, func(b []byte) ([]byte, error) {
			return []byte(mask(string(b))), nil
		})
	}
}

// Redact returns a get interceptor replacing outgoing values with replacement.
func Redact(replacement string) Interceptor {
	return func(v any) (any, error) {
		return textual(v, func([]byte) ([]byte, error) {
			return []byte(replacement), nil
		})
	}
}

func digitsOf(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func stars(s string) string {
	return strings.Repeat("*", len(s))
}

func maskSSN(s string) string {
	d := digitsOf(s)
	if len(d) < 4 {
		return stars(s)
	}
	return "***-**-" + d[len(d)-4:]
}

func maskEmail(s string) string {
	at := strings.LastIndex(s, "@")
	if at < 1 {
		return stars(s)
	}
	return s[:1] + "***" + s[at:]
}

func maskPhone(s string) string {
	d := digitsOf(s)
	if len(d) < 4 {
		return stars(s)
	}
	if len(d) >= 10 {
		return "***-***-" + d[len(d)-4:]
	}
	return "***-" + d[len(d)-4:]
}

func maskCard(s string) string {
	d := digitsOf(s)
	if len(d) < 4 {
		return stars(s)
	}
	return strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}

func maskIP(s string) string {
	if parts := strings.Split(s, "."); len(parts) == 4 {
		return parts[0] + "." + parts[1] + ".xxx.xxx"
	}
	if parts := strings.Split(s, ":"); len(parts) == 8 {
		return strings.Join(parts[:4], ":") + ":xxxx:xxxx:xxxx:xxxx"
	}
	return stars(s)
}

func maskName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = string(r[0]) + strings.Repeat("*", len(r)-1)
	}
	return strings.Join(words, " ")
}

// Encryptor handles symmetric encryption.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

type aesEncryptor struct {
	gcm cipher.AEAD
}

// AES returns an AES-GCM encryptor. The key must be 16, 24 or 32 bytes.
func AES(key []byte) (Encryptor, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: must be 16, 24, or 32 bytes, got %d", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aesEncryptor{gcm: gcm}, nil
}

// Encrypt prepends a random nonce to the sealed plaintext.
func (e *aesEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *aesEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	n := e.gcm.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrCiphertextShort
	}
	plaintext, err := e.gcm.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// Seal returns a get interceptor encrypting outgoing values. Strings
// become base64 ciphertext; byte slices stay binary.
func Seal(enc Encryptor) Interceptor {
	return func(v any) (any, error) {
		if s, ok := v.(string); ok {
			ct, err := enc.Encrypt([]byte(s))
			if err != nil {
				return nil, err
			}
			return base64.StdEncoding.EncodeToString(ct), nil
		}
		return textual(v, enc.Encrypt)
	}
}

// Open returns a set interceptor decrypting incoming values sealed by Seal.
func Open(enc Encryptor) Interceptor {
	return func(v any) (any, error) {
		if s, ok := v.(string); ok {
			ct, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, err
			}
			pt, err := enc.Decrypt(ct)
			if err != nil {
				return nil, err
			}
			return string(pt), nil
		}
		return textual(v, enc.Decrypt)
	}
}
