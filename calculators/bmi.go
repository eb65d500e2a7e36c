// Package calculators implements the portal's health calculators.
package calculators

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidInput is returned for missing, non-numeric or non-positive inputs
var ErrInvalidInput = errors.New("invalid calculator input")

const (
	UnitCentimeters = "cm"
	UnitInches      = "inches"
	UnitKilograms   = "kg"
	UnitPounds      = "lbs"

	cmPerInch = 2.54
	kgPerLb   = 0.453592
)

// BMIInput is decoded from the query string
type BMIInput struct {
	Height     float64 `schema:"height"`
	Weight     float64 `schema:"weight"`
	HeightUnit string  `schema:"height_unit"`
	WeightUnit string  `schema:"weight_unit"`
}

// BMICategory is one reference band
type BMICategory struct {
	Name  string  `json:"name"`
	Range string  `json:"range"`
	Upper float64 `json:"-"`
}

// BMIBands are the reference categories in ascending order
var BMIBands = []BMICategory{
	{Name: "Underweight", Range: "< 18.5", Upper: 18.5},
	{Name: "Normal", Range: "18.5 - 24.9", Upper: 25},
	{Name: "Overweight", Range: "25 - 29.9", Upper: 30},
	{Name: "Obese", Range: "≥ 30", Upper: math.Inf(1)},
}

// BMIResult is the calculator output
type BMIResult struct {
	BMI      float64       `json:"bmi"`
	Category string        `json:"category"`
	HeightCm float64       `json:"height_cm"`
	WeightKg float64       `json:"weight_kg"`
	Bands    []BMICategory `json:"bands"`
}

// CalculateBMI converts the inputs to metric and classifies the result.
// Empty units default to cm and kg.
func CalculateBMI(in BMIInput) (BMIResult, error) {
	if !positive(in.Height) || !positive(in.Weight) {
		return BMIResult{}, fmt.Errorf("%w: height and weight must be positive numbers", ErrInvalidInput)
	}

	heightCm := in.Height
	switch strings.ToLower(in.HeightUnit) {
	case "", UnitCentimeters:
	case UnitInches:
		heightCm = in.Height * cmPerInch
	default:
		return BMIResult{}, fmt.Errorf("%w: unknown height unit %q", ErrInvalidInput, in.HeightUnit)
	}

	weightKg := in.Weight
	switch strings.ToLower(in.WeightUnit) {
	case "", UnitKilograms:
	case UnitPounds:
		weightKg = in.Weight * kgPerLb
	default:
		return BMIResult{}, fmt.Errorf("%w: unknown weight unit %q", ErrInvalidInput, in.WeightUnit)
	}

	meters := heightCm / 100
	bmi := round2(weightKg / (meters * meters))

	return BMIResult{
		BMI:      bmi,
		Category: Classify(bmi),
		HeightCm: round2(heightCm),
		WeightKg: round2(weightKg),
		Bands:    BMIBands,
	}, nil
}

// Classify returns the band name of a BMI value
func Classify(bmi float64) string {
	for _, band := range BMIBands {
		if bmi < band.Upper {
			return band.Name
		}
	}
	return BMIBands[len(BMIBands)-1].Name
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
