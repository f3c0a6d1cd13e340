// Package units converts temperature values between Celsius and Fahrenheit,
// tolerating the free-form unit strings that sensors and forecast APIs report
// ("°C", "degC", " deg F").
package units

import "strings"

const (
	Celsius    = "C"
	Fahrenheit = "F"
)

// CToF converts Celsius to Fahrenheit.
func CToF(v float64) float64 {
	return v*9/5 + 32
}

// FToC converts Fahrenheit to Celsius.
func FToC(v float64) float64 {
	return (v - 32) * 5 / 9
}

// Canonical reduces a unit string to its bare scale letter: uppercased, with
// whitespace, degree signs and the substring "DEG" stripped.
func Canonical(unit string) string {
	u := strings.ToUpper(unit)
	u = strings.Join(strings.Fields(u), "")
	u = strings.ReplaceAll(u, "°", "")
	u = strings.ReplaceAll(u, "DEG", "")
	return u
}

// Normalize converts value from sourceUnit to targetUnit. Units that match
// after canonicalization, and unit strings that are not recognized as Celsius
// or Fahrenheit, pass the value through unchanged. The pass-through is
// deliberate permissiveness: a mislabeled upstream unit surfaces in the data
// instead of being guessed at here.
func Normalize(value float64, sourceUnit, targetUnit string) float64 {
	src := Canonical(sourceUnit)
	dst := Canonical(targetUnit)
	if src == dst {
		return value
	}
	switch {
	case src == Celsius && dst == Fahrenheit:
		return CToF(value)
	case src == Fahrenheit && dst == Celsius:
		return FToC(value)
	}
	return value
}
