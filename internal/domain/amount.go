package domain

import (
	"fmt"
	"regexp"

	"github.com/holiman/uint256"
)

// maxAmount is 2^128-1, the largest representable amount
var maxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

var decimalPattern = regexp.MustCompile(`^[0-9]{1,39}$`)

// Amount is an unsigned 128-bit quantity of the native unit.
// It marshals to and from a decimal string so that no precision is lost at the boundary.
type Amount struct {
	v uint256.Int
}

// NewAmount creates an amount from a uint64
func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// MaxAmount returns the largest representable amount
func MaxAmount() Amount {
	var a Amount
	a.v.Set(maxAmount)
	return a
}

// ParseAmount parses an unsigned decimal string no larger than 2^128-1
func ParseAmount(s string) (Amount, error) {
	if !decimalPattern.MatchString(s) {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v.Gt(maxAmount) {
		return Amount{}, fmt.Errorf("%w: %q exceeds 128 bits", ErrInvalidAmount, s)
	}
	return Amount{v: *v}, nil
}

// MustParseAmount is like ParseAmount but panics on error
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) String() string {
	return a.v.Dec()
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to or greater than b
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) LessThan(b Amount) bool {
	return a.v.Lt(&b.v)
}

// CheckedAdd returns a+b, or ErrOverflow if the sum does not fit in 128 bits
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	var sum Amount
	if _, overflow := sum.v.AddOverflow(&a.v, &b.v); overflow || sum.v.Gt(maxAmount) {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return sum, nil
}

// sub returns a-b; callers guarantee b <= a
func (a Amount) sub(b Amount) Amount {
	var d Amount
	d.v.Sub(&a.v, &b.v)
	return d
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// SplitDonation divides a donation between the campaign creator and the platform.
// The creator receives floor(amount * 90 / 100); the platform absorbs the remainder,
// so the two shares always sum to amount.
func SplitDonation(amount Amount) (creatorShare, platformShare Amount) {
	// amount < 2^128, so amount*90 fits comfortably in 256 bits
	var scaled uint256.Int
	scaled.Mul(&amount.v, uint256.NewInt(CREATOR_SHARE_PERCENT))
	creatorShare.v.Div(&scaled, uint256.NewInt(100))
	platformShare = amount.sub(creatorShare)
	return creatorShare, platformShare
}
