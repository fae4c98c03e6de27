package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

var (
	maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minAmount = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Amount is a signed 128-bit token quantity. The zero value is 0.
// Values are immutable: arithmetic always returns a new Amount.
type Amount struct {
	v *big.Int
}

func NewAmount(v int64) Amount {
	return Amount{v: big.NewInt(v)}
}

func ParseAmount(raw string) (Amount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", raw)
	}
	a := Amount{v: v}
	if !a.InRange() {
		return Amount{}, fmt.Errorf("amount %q overflows 128 bits", raw)
	}
	return a, nil
}

func MustParseAmount(raw string) Amount {
	a, err := ParseAmount(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) bigInt() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

func (a Amount) Add(o Amount) Amount {
	return Amount{v: new(big.Int).Add(a.bigInt(), o.bigInt())}
}

func (a Amount) Sub(o Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.bigInt(), o.bigInt())}
}

// MulDiv returns a*num/den truncated toward zero.
func (a Amount) MulDiv(num, den int64) Amount {
	r := new(big.Int).Mul(a.bigInt(), big.NewInt(num))
	return Amount{v: r.Quo(r, big.NewInt(den))}
}

func (a Amount) Cmp(o Amount) int {
	return a.bigInt().Cmp(o.bigInt())
}

func (a Amount) Sign() int {
	return a.bigInt().Sign()
}

func (a Amount) IsZero() bool {
	return a.Sign() == 0
}

func (a Amount) Equal(o Amount) bool {
	return a.Cmp(o) == 0
}

// InRange reports whether a fits into a signed 128-bit integer.
func (a Amount) InRange() bool {
	v := a.bigInt()
	return v.Cmp(maxAmount) <= 0 && v.Cmp(minAmount) >= 0
}

func (a Amount) String() string {
	return a.bigInt().String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both quoted decimal strings and bare JSON integers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case int64:
		*a = NewAmount(v)
		return nil
	case []byte:
		return a.scanString(string(v))
	case string:
		return a.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

func (a *Amount) scanString(raw string) error {
	// NUMERIC(39,0) may come back with a trailing scale from some drivers.
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		raw = raw[:dot]
	}
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
