package game

import "math"

// Zones describes the 2x2 layout of the floor. X is normalized to [0,1];
// Y uses the sensor's native range [YMin,YMax]. The left half is
// Green inside the band and Red outside it; the right half is Yellow
// inside the band and Blue outside it.
type Zones struct {
	SplitX  float64
	BandMin float64
	BandMax float64
	YMin    float64
	YMax    float64
}

// DefaultZones matches the installed floor.
var DefaultZones = Zones{SplitX: 0.5, BandMin: 1.0, BandMax: 1.5, YMin: 0, YMax: 2}

// Map converts a position sample into a Symbol, or Unknown when the sample
// lies outside the floor.
func (z Zones) Map(x, y float64) Symbol {
	if math.IsNaN(x) || math.IsNaN(y) {
		return Unknown
	}
	if x < 0 || x > 1 || y < z.YMin || y > z.YMax {
		return Unknown
	}
	inBand := y >= z.BandMin && y <= z.BandMax
	if x <= z.SplitX {
		if inBand {
			return Green
		}
		return Red
	}
	if inBand {
		return Yellow
	}
	return Blue
}
