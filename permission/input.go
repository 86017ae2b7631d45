package permission

import "strconv"

// Input is the tagged source of a [Value]: a decimal number, a bit string, or the
// super-user marker. It replaces passing ambiguous strings that may or may not
// look numeric.
type Input struct {
	kind  inputKind
	n     int
	bits  string
	super bool
}

type inputKind uint8

const (
	kindDecimal inputKind = iota
	kindBits
	kindSuper
)

// Decimal wraps a decimal permission value. The [SuperUser] sentinel is recognised.
func Decimal(n int) Input {
	if n == SuperUser {
		return SuperInput()
	}
	return Input{kind: kindDecimal, n: n}
}

// Bits wraps a binary permission string such as "0101".
func Bits(s string) Input {
	return Input{kind: kindBits, bits: s}
}

// SuperInput is the super-user marker.
func SuperInput() Input {
	return Input{kind: kindSuper, super: true}
}

// ParseDecimal reads a stored decimal column. Non-numeric text reads as 0.
func ParseDecimal(s string) Input {
	n, err := strconv.Atoi(s)
	if err != nil {
		return Decimal(0)
	}
	return Decimal(n)
}

// IsSuper reports whether the input is the super-user marker.
func (in Input) IsSuper() bool {
	return in.super
}

func (in Input) decimal() int {
	switch in.kind {
	case kindBits:
		return ToDecimal(in.bits)
	case kindSuper:
		return All
	default:
		return clamp(in.n)
	}
}

func (in Input) String() string {
	switch in.kind {
	case kindBits:
		return "bits(" + in.bits + ")"
	case kindSuper:
		return "super"
	default:
		return "decimal(" + strconv.Itoa(in.n) + ")"
	}
}
