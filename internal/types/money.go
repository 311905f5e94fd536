// README: Money value object; amounts are held in minor units (cents).
package types

import "fmt"

// DefaultCurrency is the settlement currency for fares and M-Pesa payments.
const DefaultCurrency = "KES"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func NewMoney(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

// Major returns the amount in whole currency units, truncating cents.
func (m Money) Major() int64 {
	return m.Amount / 100
}

func (m Money) String() string {
	cur := m.Currency
	if cur == "" {
		cur = DefaultCurrency
	}
	return fmt.Sprintf("%s %d.%02d", cur, m.Amount/100, abs(m.Amount%100))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
