// Package testing provides fixtures and helpers for graft tests.
package testing

import (
	"reflect"
	"testing"
	"time"

	"github.com/zoobzio/graft"
)

// TestKey returns a valid 32-byte AES key for testing.
func TestKey(tb testing.TB) []byte {
	tb.Helper()
	return []byte("32-byte-key-for-aes-256-encrypt!")
}

// TestEncryptor returns an AES encryptor configured for testing.
func TestEncryptor(tb testing.TB) graft.Encryptor {
	tb.Helper()
	enc, err := graft.AES(TestKey(tb))
	if err != nil {
		tb.Fatalf("AES() error: %v", err)
	}
	return enc
}

// Badge is an abstract fixture with one pointer and one value implementation.
type Badge interface {
	Label() string
}

// Gold implements Badge on its pointer.
type Gold struct {
	Points int
}

// Label implements Badge.
func (g *Gold) Label() string { return "gold" }

// Silver implements Badge on its value.
type Silver struct {
	Since time.Time
}

// Label implements Badge.
func (s Silver) Label() string { return "silver" }

// Member is a node of a team graph. Manager links may be shared or
// cyclic.
type Member struct {
	Name    string
	Email   string
	Manager *Member
	Badges  []Badge
}

// Team is the root fixture.
type Team struct {
	Name    string
	Founded time.Time
	Lead    *Member
	Members []*Member
	Labels  map[string]string
}

// NewRegistry returns a fresh registry with every fixture registered.
// Keys are snake_case; Gold and Silver are tagged "gold" and "silver".
func NewRegistry(tb testing.TB) *graft.Registry {
	tb.Helper()
	reg := graft.NewRegistry()
	register := func(t reflect.Type, opts graft.TypeOptions) {
		if _, err := reg.Register(t, opts); err != nil {
			tb.Fatalf("Register(%v) error: %v", t, err)
		}
	}
	if err := reg.SetGlobalDefaults(graft.GlobalOptions{NamingConvention: graft.SnakeCase}); err != nil {
		tb.Fatalf("SetGlobalDefaults() error: %v", err)
	}
	register(reflect.TypeFor[Team](), graft.TypeOptions{Alias: "team"})
	register(reflect.TypeFor[Member](), graft.TypeOptions{Alias: "member"})
	register(reflect.TypeFor[Gold](), graft.TypeOptions{Discriminant: "gold"})
	register(reflect.TypeFor[Silver](), graft.TypeOptions{Discriminant: "silver"})
	return reg
}

// SampleTeam returns a team whose lead is shared between Lead, Members
// and every manager link, and whose lead manages itself.
func SampleTeam() *Team {
	lead := &Member{
		Name:   "Ada",
		Email:  "ada@example.com",
		Badges: []Badge{&Gold{Points: 3}},
	}
	lead.Manager = lead
	dev := &Member{
		Name:    "Linus",
		Email:   "linus@example.com",
		Manager: lead,
		Badges:  []Badge{Silver{Since: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}
	return &Team{
		Name:    "core",
		Founded: time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC),
		Lead:    lead,
		Members: []*Member{lead, dev},
		Labels:  map[string]string{"tier": "1"},
	}
}

// Serializer builds a serializer for T bound to reg or fails the test.
func Serializer[T any](tb testing.TB, reg *graft.Registry, opts ...graft.Option) *graft.Serializer[T] {
	tb.Helper()
	s, err := graft.NewSerializer[T](append([]graft.Option{graft.WithRegistry(reg)}, opts...)...)
	if err != nil {
		tb.Fatalf("NewSerializer() error: %v", err)
	}
	return s
}
