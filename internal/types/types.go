// README: Common value types shared across modules.
package types

import "fmt"

// ID is an opaque entity identifier (passenger, driver, request, ...).
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Money is an amount in the currency's minor unit (cents, paise).
type Money struct {
	Amount   int64
	Currency string
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}
