package roster

import "github.com/noah-isme/measureme/internal/models"

// BMI categories.
const (
	CategoryUnderweight = "Underweight"
	CategoryNormal      = "Normal"
	CategoryOverweight  = "Overweight"
	CategoryObese       = "Obese"
)

// BMI returns weight / height² with height in centimeters and weight in
// kilograms. ok is false unless both are positive.
func BMI(heightCm, weightKg float64) (bmi float64, ok bool) {
	if heightCm <= 0 || weightKg <= 0 {
		return 0, false
	}
	meters := heightCm / 100
	return weightKg / (meters * meters), true
}

// Category buckets a BMI value.
func Category(bmi float64) string {
	switch {
	case bmi < 18.5:
		return CategoryUnderweight
	case bmi < 25:
		return CategoryNormal
	case bmi < 30:
		return CategoryOverweight
	default:
		return CategoryObese
	}
}

// StudentBMI computes the BMI of a record that carries both measurements.
func StudentBMI(s models.Student) (float64, bool) {
	if s.Height == nil || s.Weight == nil {
		return 0, false
	}
	return BMI(*s.Height, *s.Weight)
}
