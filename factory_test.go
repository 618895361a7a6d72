package graft

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type facClock struct {
	Zone string
}

type facInvoice struct {
	ID    string
	Total int
	clock *facClock
}

func newFacInvoice(id string, c *facClock) *facInvoice {
	return &facInvoice{ID: "inv-" + id, clock: c}
}

type facPrice struct {
	Amount   int
	currency string
}

type facPlain struct{}

type facNeedy struct {
	plain *facPlain
}

type facA struct{ b *facB }
type facB struct{ a *facA }

type facHost struct {
	a *facA
}

type facStrict struct {
	Code string
}

type facPoint struct {
	X, Y int
}

type mapInjector map[reflect.Type]reflect.Value

func (m mapInjector) Resolve(t reflect.Type) (reflect.Value, error) {
	if v, ok := m[t]; ok {
		return v, nil
	}
	return reflect.Value{}, newTypeError(ErrNotInjectable, t.String(), "", "")
}

func mustRegister(t *testing.T, reg *Registry, typ reflect.Type, opts TypeOptions) {
	t.Helper()
	if _, err := reg.Register(typ, opts); err != nil {
		t.Fatalf("Register(%v) error: %v", typ, err)
	}
}

func mustArgument(t *testing.T, reg *Registry, typ reflect.Type, index int, opts ArgOptions) {
	t.Helper()
	if err := reg.RegisterArgument(typ, index, opts); err != nil {
		t.Fatalf("RegisterArgument(%v, %d) error: %v", typ, index, err)
	}
}

func invoiceRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	clockType := reflect.TypeFor[facClock]()
	invoiceType := reflect.TypeFor[facInvoice]()

	mustRegister(t, reg, clockType, TypeOptions{
		Injectable:  Enabled,
		Constructor: func() *facClock { return &facClock{Zone: "UTC"} },
	})
	mustRegister(t, reg, invoiceType, TypeOptions{Constructor: newFacInvoice})
	mustArgument(t, reg, invoiceType, 0, ArgOptions{Key: "ID"})
	mustArgument(t, reg, invoiceType, 1, ArgOptions{Type: TypeOf[*facClock]()})
	return reg
}

func TestFactory_ConstructorArguments(t *testing.T) {
	reg := invoiceRegistry(t)
	s := newTestSerializer[*facInvoice](t, reg)
	ctx := context.Background()

	first, err := s.Decode(ctx, map[string]any{"ID": "7", "Total": 3})
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if first.ID != "inv-7" {
		t.Errorf("ID = %q, want inv-7 from the constructor", first.ID)
	}
	if first.Total != 3 {
		t.Errorf("Total = %d, want 3", first.Total)
	}
	if first.clock == nil || first.clock.Zone != "UTC" {
		t.Fatalf("clock = %+v, want injected UTC clock", first.clock)
	}

	second, _ := s.Decode(ctx, map[string]any{"ID": "8"})
	if second.clock != first.clock {
		t.Error("injectable types should resolve to one singleton")
	}
}

func TestFactory_RawKeyArgument(t *testing.T) {
	reg := NewRegistry()
	typ := reflect.TypeFor[facPrice]()
	mustRegister(t, reg, typ, TypeOptions{
		Constructor: func(cur string) facPrice { return facPrice{currency: cur} },
	})
	mustArgument(t, reg, typ, 0, ArgOptions{Key: "cur"})
	s := newTestSerializer[facPrice](t, reg)

	got, err := s.Decode(context.Background(), map[string]any{"Amount": 5, "cur": "EUR"})
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.Amount != 5 || got.currency != "EUR" {
		t.Errorf("got %+v, want Amount 5 and currency EUR", got)
	}
}

func TestFactory_NotInjectable(t *testing.T) {
	reg := NewRegistry()
	typ := reflect.TypeFor[facNeedy]()
	mustRegister(t, reg, typ, TypeOptions{
		Constructor: func(p *facPlain) *facNeedy { return &facNeedy{plain: p} },
	})
	mustArgument(t, reg, typ, 0, ArgOptions{Type: TypeOf[*facPlain]()})

	var failures []*FieldError
	s := newTestSerializer[*facNeedy](t, reg, collect(&failures))
	got, err := s.Decode(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got == nil || got.plain != nil {
		t.Errorf("got %+v, want an instance built with a zero argument", got)
	}
	if len(failures) != 1 || !errors.Is(failures[0], ErrNotInjectable) || failures[0].Path != "$" {
		t.Errorf("failures = %v, want one not-injectable failure at $", failures)
	}
}

func TestFactory_InjectionCycle(t *testing.T) {
	reg := NewRegistry()
	aType, bType, hostType := reflect.TypeFor[facA](), reflect.TypeFor[facB](), reflect.TypeFor[facHost]()

	mustRegister(t, reg, aType, TypeOptions{
		Injectable:  Enabled,
		Constructor: func(b *facB) *facA { return &facA{b: b} },
	})
	mustArgument(t, reg, aType, 0, ArgOptions{Type: TypeOf[*facB]()})
	mustRegister(t, reg, bType, TypeOptions{
		Injectable:  Enabled,
		Constructor: func(a *facA) *facB { return &facB{a: a} },
	})
	mustArgument(t, reg, bType, 0, ArgOptions{Type: TypeOf[*facA]()})
	mustRegister(t, reg, hostType, TypeOptions{
		Constructor: func(a *facA) *facHost { return &facHost{a: a} },
	})
	mustArgument(t, reg, hostType, 0, ArgOptions{Type: TypeOf[*facA]()})

	var failures []*FieldError
	s := newTestSerializer[*facHost](t, reg, collect(&failures))
	got, _ := s.Decode(context.Background(), map[string]any{})

	if got == nil || got.a != nil {
		t.Errorf("got %+v, want host without its cyclic dependency", got)
	}
	if len(failures) != 1 || !errors.Is(failures[0], ErrInjectionCycle) {
		t.Errorf("failures = %v, want one injection cycle", failures)
	}
}

func TestFactory_ConstructorError(t *testing.T) {
	reg := NewRegistry()
	typ := reflect.TypeFor[facStrict]()
	mustRegister(t, reg, typ, TypeOptions{
		Constructor: func(code string) (*facStrict, error) {
			if code == "" {
				return nil, errors.New("code required")
			}
			return &facStrict{Code: code}, nil
		},
	})
	mustArgument(t, reg, typ, 0, ArgOptions{Key: "Code"})

	var failures []*FieldError
	s := newTestSerializer[*facStrict](t, reg, collect(&failures))
	ctx := context.Background()

	got, _ := s.Decode(ctx, map[string]any{"Code": "A1"})
	if got == nil || got.Code != "A1" {
		t.Fatalf("got %+v, want Code A1", got)
	}

	got, err := s.Decode(ctx, map[string]any{})
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil after a constructor error", got)
	}
	if len(failures) != 1 || !errors.Is(failures[0], ErrConstruction) {
		t.Errorf("failures = %v, want one construction failure", failures)
	}
}

func TestFactory_ValueConstructorAndCustomFactory(t *testing.T) {
	reg := NewRegistry()
	typ := reflect.TypeFor[facPoint]()
	mustRegister(t, reg, typ, TypeOptions{
		Constructor: func() facPoint { return facPoint{X: -1, Y: -1} },
	})
	s := newTestSerializer[facPoint](t, reg)
	ctx := context.Background()

	got, _ := s.Decode(ctx, map[string]any{"X": 4})
	if got != (facPoint{X: 4, Y: -1}) {
		t.Errorf("got %+v, want X from data and Y from the constructor", got)
	}

	var extras map[string]any
	_, _ = reg.Register(typ, TypeOptions{
		Factory: TypeFactoryFunc(func(m *TypeMetadata, c *Construction, _ TypeInjector) (reflect.Value, error) {
			extras = c.Extras()
			p := reflect.New(m.Type())
			p.Elem().FieldByName("Y").SetInt(99)
			return p, nil
		}),
	})
	got, _ = s.Decode(ctx, map[string]any{"X": 1, "Z": 2})
	if got != (facPoint{X: 1, Y: 99}) {
		t.Errorf("got %+v, want the custom factory's Y", got)
	}
	if len(extras) != 1 || extras["Z"] != 2 {
		t.Errorf("extras = %v, want Z", extras)
	}
}

func TestFactory_WithInjector(t *testing.T) {
	reg := invoiceRegistry(t)
	clock := &facClock{Zone: "CET"}
	s := newTestSerializer[*facInvoice](t, reg, WithInjector(mapInjector{
		reflect.TypeFor[*facClock](): reflect.ValueOf(clock),
	}))

	got, _ := s.Decode(context.Background(), map[string]any{"ID": "1"})
	if got.clock != clock {
		t.Errorf("clock = %+v, want the injector's clock", got.clock)
	}
}

func TestSingletonInjector(t *testing.T) {
	reg := invoiceRegistry(t)
	inj := NewSingletonInjector(reg)

	ptr, err := inj.Resolve(reflect.TypeFor[*facClock]())
	if err != nil {
		t.Fatalf("Resolve(*facClock) error: %v", err)
	}
	val, err := inj.Resolve(reflect.TypeFor[facClock]())
	if err != nil {
		t.Fatalf("Resolve(facClock) error: %v", err)
	}
	if val.Type() != reflect.TypeFor[facClock]() || val.Interface().(facClock).Zone != "UTC" {
		t.Errorf("Resolve(facClock) = %v, want the singleton's value", val)
	}
	again, _ := inj.Resolve(reflect.TypeFor[*facClock]())
	if again.Pointer() != ptr.Pointer() {
		t.Error("Resolve() should return the cached instance")
	}

	if _, err := inj.Resolve(reflect.TypeFor[facInvoice]()); !errors.Is(err, ErrNotInjectable) {
		t.Errorf("Resolve(facInvoice) error = %v, want ErrNotInjectable", err)
	}
}

func TestConvertArg(t *testing.T) {
	s := "x"
	tests := []struct {
		name string
		v    any
		to   reflect.Type
		want any
		ok   bool
	}{
		{"assignable", "x", reflect.TypeFor[string](), "x", true},
		{"int64 to int", int64(3), reflect.TypeFor[int](), 3, true},
		{"integral float to int", 3.0, reflect.TypeFor[int](), 3, true},
		{"fraction to int", 3.5, reflect.TypeFor[int](), nil, false},
		{"negative to uint", int64(-1), reflect.TypeFor[uint](), nil, false},
		{"pointer to value", &s, reflect.TypeFor[string](), "x", true},
		{"text to number", "3", reflect.TypeFor[int](), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertArg(reflect.ValueOf(tt.v), tt.to)
			if ok != tt.ok {
				t.Fatalf("convertArg() ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.Interface() != tt.want {
				t.Errorf("convertArg() = %v, want %v", got.Interface(), tt.want)
			}
		})
	}

	p, ok := convertArg(reflect.ValueOf("y"), reflect.TypeFor[*string]())
	if !ok || *p.Interface().(*string) != "y" {
		t.Errorf("convertArg() to pointer = %v, %v", p, ok)
	}
}
