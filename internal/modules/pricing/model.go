// README: Tariff definition; amounts in minor units.
package pricing

import (
	"time"

	"twende/internal/types"
)

// DefaultRateName is the tariff applied to every ride.
const DefaultRateName = "standard"

type Rate struct {
	Name        string
	BaseFare    int64
	PerKm       int64
	MinimumFare int64
	Currency    string
	UpdatedAt   time.Time
}

// Fare is monotonic non-decreasing in meters and rounded up to a whole currency unit.
func (r Rate) Fare(meters int) types.Money {
	if meters < 0 {
		meters = 0
	}
	amount := r.BaseFare + ceilDiv(r.PerKm*int64(meters), 1000)
	amount = ceilDiv(amount, 100) * 100
	if amount < r.MinimumFare {
		amount = r.MinimumFare
	}
	cur := r.Currency
	if cur == "" {
		cur = types.DefaultCurrency
	}
	return types.Money{Amount: amount, Currency: cur}
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
