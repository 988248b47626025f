package command

import "math"

const (
	MinOutput = -1.0
	MaxOutput = 1.0
)

type DriverCommand struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
}

// CommandDriverIFace is implemented by the servo/ESC output boards.
type CommandDriverIFace interface {
	Init() error
	Set(DriverCommand) error
	SetMany([]DriverCommand) error
	Has(name string) bool
	CenterAll()
	Stop() error
}

// MapToRange linearly maps value from [min, max] onto [minReturn, maxReturn], clamping the result.
// An empty input range or a NaN value maps to the middle of the output range.
func MapToRange(value, min, max, minReturn, maxReturn float64) float64 {
	mappedValue := (maxReturn-minReturn)*(value-min)/(max-min) + minReturn

	if max <= min || math.IsNaN(mappedValue) {
		return (minReturn + maxReturn) / 2
	} else if mappedValue > maxReturn {
		return maxReturn
	} else if mappedValue < minReturn {
		return minReturn
	} else {
		return mappedValue
	}
}
