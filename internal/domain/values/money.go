package values

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary amount with a fixed scale of two decimal
// places. All arithmetic and comparison is exact; the platform never widens
// to floating point. Auctions run in a single settlement currency, so Money
// carries no currency code.
type Money struct {
	amount decimal.Decimal
}

// NewMoney creates a Money value, rounding the input to two decimal places.
func NewMoney(amount decimal.Decimal) Money {
	return Money{amount: amount.Round(2)}
}

// NewMoneyFromString creates Money from a decimal string such as "105.50".
func NewMoneyFromString(s string) (Money, error) {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return NewMoney(dec), nil
}

// NewMoneyFromFloat creates Money from a float64 request field. The value is
// rounded to cents immediately so float imprecision never reaches storage.
func NewMoneyFromFloat(amount float64) Money {
	return NewMoney(decimal.NewFromFloat(amount))
}

// NewMoneyFromCents creates Money from integer cents.
func NewMoneyFromCents(cents int64) Money {
	return Money{amount: decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))}
}

// MustNewMoneyFromString creates Money and panics on error (for tests).
func MustNewMoneyFromString(s string) Money {
	m, err := NewMoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero Money value.
func Zero() Money {
	return Money{amount: decimal.Zero}
}

// Amount returns the underlying decimal.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// String returns the amount with exactly two decimal places.
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// Float64 converts to float64 for event payloads. Not used for arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Equal reports whether two amounts are equal.
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

// Compare returns -1, 0, or 1.
func (m Money) Compare(other Money) int {
	return m.amount.Cmp(other.amount)
}

// LessThan reports whether m < other.
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// GreaterThanOrEqual reports whether m >= other.
func (m Money) GreaterThanOrEqual(other Money) bool {
	return m.amount.GreaterThanOrEqual(other.amount)
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// MarshalJSON encodes the amount as a JSON string with two decimal places.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.amount.StringFixed(2) + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money value %s: %w", string(data), err)
	}
	*m = NewMoney(dec)
	return nil
}

// Scan implements sql.Scanner for NUMERIC(18,2) columns.
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		*m = Money{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return m.scanFromString(string(v))
	case string:
		return m.scanFromString(v)
	case float64:
		*m = NewMoneyFromFloat(v)
		return nil
	case int64:
		*m = Money{amount: decimal.NewFromInt(v)}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
}

// Value implements driver.Valuer; stored as a plain decimal string.
func (m Money) Value() (driver.Value, error) {
	return m.amount.StringFixed(2), nil
}

func (m *Money) scanFromString(s string) error {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money format %q: %w", s, err)
	}
	*m = Money{amount: dec}
	return nil
}
