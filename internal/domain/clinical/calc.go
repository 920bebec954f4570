package clinical

import (
	"math"
	"strings"
)

// FahrenheitThreshold is the reading above which a temperature without an
// explicit unit is taken to be Fahrenheit.
const FahrenheitThreshold = 50.0

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BMI is weight / (height in metres)², rounded to two decimals. Nil when
// either input is missing or height is not positive.
func BMI(heightCM, weightKG *float64) *float64 {
	if heightCM == nil || weightKG == nil || *heightCM <= 0 {
		return nil
	}
	m := *heightCM / 100
	v := round2(*weightKG / (m * m))
	return &v
}

// BloodSugarEstimate is a tiered fraction of body weight keyed by BMI.
// The upper tier starts above 30; a BMI of exactly 25.00 already uses the
// 0.3 tier.
func BloodSugarEstimate(bmi, weightKG *float64) *float64 {
	if bmi == nil || weightKG == nil {
		return nil
	}
	factor := 0.2
	switch {
	case *bmi > 30:
		factor = 0.4
	case *bmi >= 25:
		factor = 0.3
	}
	v := round2(*weightKG * factor)
	return &v
}

// ToCelsius normalizes a temperature reading. unit "C" or "F" is honoured
// as given; with no unit, readings above FahrenheitThreshold are converted.
func ToCelsius(t *float64, unit string) *float64 {
	if t == nil {
		return nil
	}
	v := *t
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "F":
		v = round2((v - 32) * 5 / 9)
	case "C":
	default:
		if v > FahrenheitThreshold {
			v = round2((v - 32) * 5 / 9)
		}
	}
	return &v
}

// Derive overwrites the computed fields of v from its measurements.
func Derive(v *Vitals) {
	v.BMI = BMI(v.Height, v.Weight)
	v.BloodSugar = BloodSugarEstimate(v.BMI, v.Weight)
}
