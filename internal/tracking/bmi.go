package tracking

import (
	"math"

	"fitgram/internal/apiclient"
)

type BMIResult struct {
	Value    float64 `json:"value"`
	Category string  `json:"category"`
}

// BMI computes weight / height² with height in centimetres, rounded to one
// decimal.
func BMI(heightCm, weightKg float64) (BMIResult, error) {
	if !(heightCm > 0 && heightCm <= 300) {
		return BMIResult{}, apiclient.Validation("Height must be between 1 and 300 cm.")
	}
	if !(weightKg > 0 && weightKg <= 700) {
		return BMIResult{}, apiclient.Validation("Weight must be between 1 and 700 kg.")
	}
	m := heightCm / 100
	raw := weightKg / (m * m)
	return BMIResult{
		Value:    math.Round(raw*10) / 10,
		Category: bmiCategory(raw),
	}, nil
}

func bmiCategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Normal"
	case bmi < 30:
		return "Overweight"
	default:
		return "Obese"
	}
}
