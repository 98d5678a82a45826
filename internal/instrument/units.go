package instrument

import (
	"fmt"
	"math"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/config"
)

// Conversion selects the unit system distances are converted to at
// derivation time, so every consumer sees already-converted values.
type Conversion int

const (
	ConvertNone Conversion = iota
	ConvertImperial
	ConvertScandinavianMiles
)

const kmPerMile = 1.609344

// ParseConversion maps a settings selector to a Conversion.
func ParseConversion(s string) (Conversion, error) {
	switch s {
	case "", config.ConvertNone:
		return ConvertNone, nil
	case config.ConvertImperial:
		return ConvertImperial, nil
	case config.ConvertScandinavianMiles:
		return ConvertScandinavianMiles, nil
	default:
		return ConvertNone, fmt.Errorf("unknown unit conversion %q", s)
	}
}

// Distance converts a kilometer reading and returns the value together
// with its unit label. Scandinavian miles (mil) are 10 km.
func (c Conversion) Distance(km float64) (float64, string) {
	switch c {
	case ConvertImperial:
		return round1(km / kmPerMile), "mi"
	case ConvertScandinavianMiles:
		return round1(km / 10), "mil"
	default:
		return round1(km), "km"
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
