package permission

import (
	"net/http"
	"strings"
)

// Capability identifies one bit of a [Value].
type Capability uint8

const (
	// Read grants GET access.
	Read Capability = iota
	// Update grants PUT access.
	Update
	// Add grants POST access.
	Add
	// Delete grants DELETE access.
	Delete
)

const (
	// SuperUser is the decimal sentinel stored for identities that bypass the bitfield.
	SuperUser = -3

	// All is the decimal value with every capability set.
	All = 15

	width = 4
)

var capabilityNames = [width]string{"read", "update", "add", "delete"}

func (c Capability) String() string {
	if int(c) < len(capabilityNames) {
		return capabilityNames[c]
	}
	return "unknown"
}

// ParseCapability resolves a capability by its lowercase name.
func ParseCapability(name string) (Capability, bool) {
	for i, n := range capabilityNames {
		if n == strings.ToLower(name) {
			return Capability(i), true
		}
	}
	return 0, false
}

// CapabilityForMethod maps an HTTP method to the capability it requires.
func CapabilityForMethod(method string) (Capability, bool) {
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return Read, true
	case http.MethodPost:
		return Add, true
	case http.MethodPut:
		return Update, true
	case http.MethodDelete:
		return Delete, true
	}
	return 0, false
}

// Value is a 4-bit capability set with an optional super-user override.
//
// The zero Value grants nothing.
type Value struct {
	bits  uint8
	super bool
}

// New builds a Value from a tagged input. Decimal input is clamped to [0,15]
// and the [SuperUser] sentinel yields a super-user value. The bits are kept
// exactly as given; read is only implied when a capability is turned on with
// [Value.Set].
func New(in Input) Value {
	if in.super {
		return Value{bits: All, super: true}
	}
	return Value{bits: uint8(in.decimal())}
}

// Super returns a super-user value.
func Super() Value {
	return Value{bits: All, super: true}
}

// Has reports whether the capability bit is set. Super-user values always answer true.
func (v Value) Has(c Capability) bool {
	if v.super {
		return true
	}
	if c > Delete {
		return false
	}
	return v.bits&(1<<c) != 0
}

// HasAll reports whether every capability is set.
func (v Value) HasAll() bool {
	return v.super || v.bits == All
}

// IsSuper reports whether v is the super-user sentinel.
func (v Value) IsSuper() bool {
	return v.super
}

// Set turns a capability on or off. Turning on update, add, or delete also turns
// on read. Super-user values are immutable.
func (v *Value) Set(c Capability, on bool) {
	if v.super || c > Delete {
		return
	}
	if !on {
		v.bits &^= 1 << c
		return
	}
	v.bits |= 1 << c
	if c != Read {
		v.bits |= 1 << Read
	}
}

// Merge ORs the capabilities of other into v. Merging into a value that already
// has every capability is a no-op.
func (v *Value) Merge(other Value) {
	if v.HasAll() {
		return
	}
	if other.super {
		v.bits = All
		return
	}
	v.bits |= other.bits
}

// Decimal returns the integer form of v, or [SuperUser] for super-user values.
func (v Value) Decimal() int {
	if v.super {
		return SuperUser
	}
	return int(v.bits)
}

// Binary returns the 4-character bit string of v, most significant bit first.
// Super-user values render as all ones.
func (v Value) Binary() string {
	return ToBinary(int(v.bits))
}

// Input returns the tagged input that reconstructs v.
func (v Value) Input() Input {
	if v.super {
		return SuperInput()
	}
	return Decimal(int(v.bits))
}

func (v Value) String() string {
	if v.super {
		return "super"
	}
	return v.Binary()
}

// ToBinary converts a decimal value to its 4-character bit string.
// Out of range input is clamped first.
func ToBinary(n int) string {
	n = clamp(n)
	var b [width]byte
	for i := 0; i < width; i++ {
		if n&(1<<(width-1-i)) != 0 {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b[:])
}

// ToDecimal converts a bit string to its decimal value. Only the last four
// characters are significant and any character other than '1' reads as zero.
func ToDecimal(bits string) int {
	if len(bits) > width {
		bits = bits[len(bits)-width:]
	}
	n := 0
	for i := 0; i < len(bits); i++ {
		n <<= 1
		if bits[i] == '1' {
			n |= 1
		}
	}
	return n
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > All {
		return All
	}
	return n
}
