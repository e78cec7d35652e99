package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an immutable amount tagged with a 3-letter currency code. All
// arithmetic returns a new value and refuses to combine currencies. Amounts
// are never negative; computations that could go below zero must clamp or
// fail before constructing a Money.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney builds a Money from a decimal amount and a currency code.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if err := ValidateCurrencyCode(currency); err != nil {
		return Money{}, err
	}
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s %s", ErrNegativeResult, amount.String(), currency)
	}
	return Money{amount: amount, currency: currency}, nil
}

// MustMoney is NewMoney for statically known-good inputs (tests, fixtures).
// It panics on invalid input and must not be used on request data.
func MustMoney(amount decimal.Decimal, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency string) (Money, error) {
	return NewMoney(decimal.Zero, currency)
}

// ValidateCurrencyCode checks for an uppercase ISO-4217 style 3-letter code.
func ValidateCurrencyCode(code string) error {
	if len(code) != 3 {
		return newValidationError("currencyCode", "must be a 3-letter code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return newValidationError("currencyCode", "must be uppercase letters")
		}
	}
	return nil
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the currency code.
func (m Money) Currency() string { return m.currency }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// Equal reports amount and currency equality. Amounts compare numerically,
// so 10 EUR equals 10.00 EUR.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Add returns m + other. Fails if the currencies differ.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract returns m - other. Fails if the currencies differ or the result
// would be negative.
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	diff := m.amount.Sub(other.amount)
	if diff.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrNegativeResult, m.amount.String(), other.amount.String())
	}
	return Money{amount: diff, currency: m.currency}, nil
}

// Multiply returns m scaled by factor. A negative factor is rejected rather
// than producing a negative amount.
func (m Money) Multiply(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, fmt.Errorf("%w: factor %s", ErrNegativeResult, factor.String())
	}
	return Money{amount: m.amount.Mul(factor), currency: m.currency}, nil
}

// Divide returns m divided by divisor. Zero and negative divisors are
// rejected.
func (m Money) Divide(divisor decimal.Decimal) (Money, error) {
	if divisor.IsZero() {
		return Money{}, fmt.Errorf("%w: division by zero", ErrInvalidAmount)
	}
	if divisor.IsNegative() {
		return Money{}, fmt.Errorf("%w: divisor %s", ErrNegativeResult, divisor.String())
	}
	return Money{amount: m.amount.Div(divisor), currency: m.currency}, nil
}

// String renders the amount with two decimal places, e.g. "1250.00 EUR".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}
