package permission

import (
	"strings"
	"testing"
)

func TestBinaryDecimalRoundTrip(t *testing.T) {
	for n := 0; n <= All; n++ {
		bits := ToBinary(n)
		if len(bits) != 4 {
			t.Fatalf("ToBinary(%d) = %q, want 4 characters", n, bits)
		}
		if got := ToDecimal(bits); got != n {
			t.Fatalf("ToDecimal(ToBinary(%d)) = %d", n, got)
		}
	}
}

func TestToBinaryLayout(t *testing.T) {
	cases := map[int]string{
		0:  "0000",
		1:  "0001",
		3:  "0011",
		8:  "1000",
		15: "1111",
	}
	for n, want := range cases {
		if got := ToBinary(n); got != want {
			t.Fatalf("ToBinary(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestToDecimalKeepsLastFourCharacters(t *testing.T) {
	if got := ToDecimal("110011"); got != 3 {
		t.Fatalf("expected trailing bits 0011 = 3, got %d", got)
	}
	if got := ToDecimal("11"); got != 3 {
		t.Fatalf("expected short string 11 = 3, got %d", got)
	}
	if got := ToDecimal("x1y1"); got != 5 {
		t.Fatalf("expected non-binary characters to read as zero, got %d", got)
	}
}

func TestNewClampsDecimalInput(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{in: -1, want: 0},
		{in: -100, want: 0},
		{in: 16, want: 15},
		{in: 999, want: 15},
		{in: 1, want: 1},
		{in: 3, want: 3},
	}
	for _, tc := range cases {
		if got := New(Decimal(tc.in)).Decimal(); got != tc.want {
			t.Fatalf("New(Decimal(%d)).Decimal() = %d, want %d", tc.in, got, tc.want)
		}
	}
	if got := New(ParseDecimal("not-a-number")).Decimal(); got != 0 {
		t.Fatalf("expected non-numeric input to clamp to 0, got %d", got)
	}
}

func TestNewKeepsStoredBits(t *testing.T) {
	for n := 0; n <= All; n++ {
		if got := New(Decimal(n)).Decimal(); got != n {
			t.Fatalf("New(Decimal(%d)).Decimal() = %d", n, got)
		}
	}
	if v := New(Bits("1000")); v.Has(Read) || !v.Has(Delete) {
		t.Fatalf("expected delete only, got %s", v)
	}
}

func TestNewFromBits(t *testing.T) {
	v := New(Bits("0011"))
	if !v.Has(Read) || !v.Has(Update) || v.Has(Add) || v.Has(Delete) {
		t.Fatalf("unexpected capabilities for 0011: %s", v)
	}

	v = New(Bits("10000101"))
	if got := v.Binary(); got != "0101" {
		t.Fatalf("expected truncation to last four bits, got %s", got)
	}
}

func TestSetWriteImpliesRead(t *testing.T) {
	for _, c := range []Capability{Update, Add, Delete} {
		var v Value
		v.Set(c, true)
		if !v.Has(c) {
			t.Fatalf("%s not set", c)
		}
		if !v.Has(Read) {
			t.Fatalf("setting %s did not imply read", c)
		}
	}

	var v Value
	v.Set(Read, true)
	if v.Decimal() != 1 {
		t.Fatalf("setting read alone should only set read, got %d", v.Decimal())
	}
}

func TestSetOffClearsOnlyThatBit(t *testing.T) {
	v := New(Decimal(All))
	v.Set(Delete, false)
	if v.Has(Delete) {
		t.Fatal("delete still set")
	}
	if v.Decimal() != 7 {
		t.Fatalf("expected 7 after clearing delete, got %d", v.Decimal())
	}
}

func TestSuperUserIsImmutable(t *testing.T) {
	v := New(Decimal(SuperUser))
	if !v.IsSuper() || !v.HasAll() {
		t.Fatal("expected super-user value with all capabilities")
	}
	for c := Read; c <= Delete; c++ {
		v.Set(c, false)
		if !v.Has(c) {
			t.Fatalf("super-user lost %s", c)
		}
	}
	if v.Decimal() != SuperUser {
		t.Fatalf("expected sentinel decimal, got %d", v.Decimal())
	}
	if v.Binary() != "1111" {
		t.Fatalf("expected all ones, got %s", v.Binary())
	}
}

func TestMergeIsBitwiseOr(t *testing.T) {
	for a := 0; a <= All; a++ {
		for b := 0; b <= All; b++ {
			left := New(Decimal(a))
			right := New(Decimal(b))
			merged := left
			merged.Merge(right)
			for c := Read; c <= Delete; c++ {
				want := left.Has(c) || right.Has(c)
				if merged.Has(c) != want {
					t.Fatalf("merge(%d,%d).Has(%s) = %v, want %v", a, b, c, merged.Has(c), want)
				}
			}
		}
	}
}

func TestMergeKeepsWriteWithoutRead(t *testing.T) {
	var update Value
	update.Set(Update, true)
	update.Set(Read, false)

	var merged Value
	merged.Merge(update)
	if merged.Has(Read) {
		t.Fatalf("merge added read: %s", merged)
	}
	if !merged.Has(Update) || merged.Binary() != "0010" {
		t.Fatalf("expected 0010, got %s", merged)
	}

	merged.Merge(Super())
	if !merged.HasAll() || merged.IsSuper() {
		t.Fatalf("merging a super-user value should give every bit, got %s", merged)
	}
}

func TestMergeIntoAllIsNoOp(t *testing.T) {
	v := New(Decimal(All))
	v.Merge(Super())
	if v.IsSuper() {
		t.Fatal("merge must not promote a value to super-user")
	}
	if v.Decimal() != All {
		t.Fatalf("expected 15, got %d", v.Decimal())
	}
}

func TestCapabilityForMethod(t *testing.T) {
	cases := map[string]Capability{
		"GET":    Read,
		"post":   Add,
		"PUT":    Update,
		"DELETE": Delete,
	}
	for method, want := range cases {
		got, ok := CapabilityForMethod(method)
		if !ok || got != want {
			t.Fatalf("CapabilityForMethod(%q) = %v,%v want %v", method, got, ok, want)
		}
	}
	for _, method := range []string{"PATCH", "HEAD", ""} {
		if _, ok := CapabilityForMethod(method); ok {
			t.Fatalf("expected %q to map to no capability", method)
		}
	}
}

func TestInputRoundTrip(t *testing.T) {
	v := New(Bits("0110"))
	if got := New(v.Input()); got != v {
		t.Fatalf("expected %s, got %s", v, got)
	}
	if !New(Super().Input()).IsSuper() {
		t.Fatal("super-user input did not round trip")
	}
}

func TestParseCapability(t *testing.T) {
	for c := Read; c <= Delete; c++ {
		got, ok := ParseCapability(strings.ToUpper(c.String()))
		if !ok || got != c {
			t.Fatalf("ParseCapability(%q) = %v,%v", c.String(), got, ok)
		}
	}
	if _, ok := ParseCapability("write"); ok {
		t.Fatal("expected unknown capability name to fail")
	}
}
