package calculators

import (
	"fmt"
	"math"
	"strings"
)

const (
	UnitHours = "hours"
	UnitDays  = "days"

	// HalfLifeSteps is the number of half-lives listed after t=0
	HalfLifeSteps = 10
)

// HalfLifeInput is decoded from the query string
type HalfLifeInput struct {
	HalfLife float64 `schema:"half_life"`
	Unit     string  `schema:"unit"`
}

// ClearancePoint is one row of the clearance table
type ClearancePoint struct {
	Label     string  `json:"label"`
	Time      float64 `json:"time"`
	Remaining float64 `json:"remaining_percent"`
}

// HalfLifeResult is the calculator output
type HalfLifeResult struct {
	HalfLife float64          `json:"half_life"`
	Unit     string           `json:"unit"`
	Points   []ClearancePoint `json:"points"`
}

// CalculateHalfLife lists the remaining percentage after each of ten half-lives.
// An empty unit defaults to hours.
func CalculateHalfLife(in HalfLifeInput) (HalfLifeResult, error) {
	if !positive(in.HalfLife) {
		return HalfLifeResult{}, fmt.Errorf("%w: half-life must be a positive number", ErrInvalidInput)
	}

	unit := strings.ToLower(in.Unit)
	switch unit {
	case "":
		unit = UnitHours
	case UnitHours, UnitDays:
	default:
		return HalfLifeResult{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidInput, in.Unit)
	}

	points := make([]ClearancePoint, 0, HalfLifeSteps+1)
	for i := 0; i <= HalfLifeSteps; i++ {
		points = append(points, ClearancePoint{
			Label:     fmt.Sprintf("%d×", i),
			Time:      float64(i) * in.HalfLife,
			Remaining: 100 * math.Pow(0.5, float64(i)),
		})
	}

	return HalfLifeResult{HalfLife: in.HalfLife, Unit: unit, Points: points}, nil
}
