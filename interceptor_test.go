package graft

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestHash_Deterministic(t *testing.T) {
	sum := sha256.Sum256([]byte("secret"))
	want := hex.EncodeToString(sum[:])

	got, err := Hash(HashSHA256)("secret")
	if err != nil {
		t.Fatalf("Hash(sha256) error: %v", err)
	}
	if got != want {
		t.Errorf("Hash(sha256) = %v, want %s", got, want)
	}

	got, _ = Hash(HashSHA512)("secret")
	if s, ok := got.(string); !ok || len(s) != 128 {
		t.Errorf("Hash(sha512) = %v, want 128 hex chars", got)
	}

	raw, _ := Hash(HashSHA256)([]byte("secret"))
	if !bytes.Equal(raw.([]byte), []byte(want)) {
		t.Errorf("Hash(sha256) on bytes = %s, want %s", raw, want)
	}
}

func TestHash_Passwords(t *testing.T) {
	argon := HashWith(Argon2(Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}))
	a1, err := argon("hunter2")
	if err != nil {
		t.Fatalf("argon2 error: %v", err)
	}
	a2, _ := argon("hunter2")
	s := a1.(string)
	if !strings.HasPrefix(s, "$argon2id$v=19$m=1024,t=1,p=1$") || len(strings.Split(s, "$")) != 6 {
		t.Errorf("argon2 hash = %s, want PHC format", s)
	}
	if a1 == a2 {
		t.Error("argon2 hashes should be salted")
	}

	b, err := HashWith(Bcrypt(bcrypt.MinCost))("hunter2")
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(b.(string)), []byte("hunter2")); err != nil {
		t.Errorf("bcrypt hash does not verify: %v", err)
	}
}

func TestHash_Inputs(t *testing.T) {
	h := Hash(HashSHA256)

	if got, err := h(nil); err != nil || got != nil {
		t.Errorf("Hash(nil) = %v, %v, want nil", got, err)
	}
	if _, err := h(42); err == nil {
		t.Error("Hash(42) should fail")
	}
	if _, err := Hash("md5")("x"); err == nil {
		t.Error("unknown algorithm should fail")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		mt   MaskType
		in   string
		want string
	}{
		{MaskSSN, "123-45-6789", "***-**-6789"},
		{MaskSSN, "12", "**"},
		{MaskEmail, "alice@example.com", "a***@example.com"},
		{MaskEmail, "nobody", "******"},
		{MaskPhone, "(555) 123-4567", "***-***-4567"},
		{MaskPhone, "123-4567", "***-4567"},
		{MaskCard, "4111 1111 1111 1111", "************1111"},
		{MaskIP, "192.168.1.100", "192.168.xxx.xxx"},
		{MaskIP, "2001:0db8:85a3:0000:0000:8a2e:0370:7334", "2001:0db8:85a3:0000:xxxx:xxxx:xxxx:xxxx"},
		{MaskIP, "local", "*****"},
		{MaskName, "John Smith", "J*** S****"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mt)+"/"+tt.in, func(t *testing.T) {
			got, err := Mask(tt.mt)(tt.in)
			if err != nil {
				t.Fatalf("Mask() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Mask(%s) = %v, want %s", tt.in, got, tt.want)
			}
		})
	}

	if _, err := Mask("pin")("1234"); err == nil {
		t.Error("unknown mask type should fail")
	}
}

func TestRedact(t *testing.T) {
	got, _ := Redact("[redacted]")("top secret")
	if got != "[redacted]" {
		t.Errorf("Redact() = %v, want [redacted]", got)
	}
	if got, _ := Redact("[redacted]")(nil); got != nil {
		t.Errorf("Redact(nil) = %v, want nil", got)
	}
}

func TestAES(t *testing.T) {
	enc, err := AES(testKey)
	if err != nil {
		t.Fatalf("AES() error: %v", err)
	}

	sealed, err := Seal(enc)("card 4111")
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if s, ok := sealed.(string); !ok || s == "card 4111" {
		t.Fatalf("Seal() = %v, want base64 ciphertext", sealed)
	}
	opened, err := Open(enc)(sealed)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if opened != "card 4111" {
		t.Errorf("Open() = %v, want card 4111", opened)
	}

	raw, _ := Seal(enc)([]byte{1, 2, 3})
	back, err := Open(enc)(raw)
	if err != nil || !bytes.Equal(back.([]byte), []byte{1, 2, 3}) {
		t.Errorf("byte round trip = %v, %v", back, err)
	}
}

func TestAES_Errors(t *testing.T) {
	if _, err := AES([]byte("short")); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("AES(short) error = %v, want ErrInvalidKeySize", err)
	}

	enc, _ := AES(testKey)
	if _, err := enc.Decrypt([]byte{1, 2}); !errors.Is(err, ErrCiphertextShort) {
		t.Errorf("Decrypt(short) error = %v, want ErrCiphertextShort", err)
	}

	ct, _ := enc.Encrypt([]byte("payload"))
	ct[len(ct)-1] ^= 0xff
	if _, err := enc.Decrypt(ct); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt(tampered) error = %v, want ErrDecryptionFailed", err)
	}

	other, _ := AES([]byte("fedcba9876543210"))
	ct, _ = enc.Encrypt([]byte("payload"))
	if _, err := other.Decrypt(ct); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt(wrong key) error = %v, want ErrDecryptionFailed", err)
	}
}

type icAccount struct {
	Email    string
	Password string
	Token    string
}

func TestInterceptors_OnFields(t *testing.T) {
	enc, _ := AES(testKey)
	reg := newTestRegistry[icAccount](t)
	typ := reflect.TypeFor[icAccount]()
	_, _ = reg.RegisterField(typ, "Email", FieldOptions{Get: Mask(MaskEmail)})
	_, _ = reg.RegisterField(typ, "Password", FieldOptions{Set: HashWith(SHA256())})
	_, _ = reg.RegisterField(typ, "Token", FieldOptions{Get: Seal(enc), Set: Open(enc)})
	s := newTestSerializer[icAccount](t, reg)
	ctx := context.Background()

	node, err := s.Encode(ctx, icAccount{Email: "alice@example.com", Password: "pw", Token: "tok"})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	entries := node.(map[string]any)
	if entries["Email"] != "a***@example.com" {
		t.Errorf("Email = %v, want masked", entries["Email"])
	}
	if entries["Password"] != "pw" {
		t.Errorf("Password = %v, want pw", entries["Password"])
	}
	if entries["Token"] == "tok" {
		t.Error("Token should be sealed")
	}

	got, _ := s.Decode(ctx, node)
	sum := sha256.Sum256([]byte("pw"))
	if got.Password != hex.EncodeToString(sum[:]) {
		t.Errorf("Password = %s, want its hash", got.Password)
	}
	if got.Token != "tok" {
		t.Errorf("Token = %s, want tok", got.Token)
	}
}

func TestInterceptors_Failure(t *testing.T) {
	reg := newTestRegistry[icAccount](t)
	_, _ = reg.RegisterField(reflect.TypeFor[icAccount](), "Password", FieldOptions{Set: Hash("md5")})
	var failures []*FieldError
	s := newTestSerializer[icAccount](t, reg, collect(&failures))

	got, _ := s.Decode(context.Background(), map[string]any{"Email": "e", "Password": "pw"})
	if got.Email != "e" || got.Password != "" {
		t.Errorf("got %+v, want Email only", got)
	}
	if len(failures) != 1 || !errors.Is(failures[0], ErrInterceptor) || failures[0].Path != "$['Password']" {
		t.Errorf("failures = %v, want one interceptor failure at $['Password']", failures)
	}
}
