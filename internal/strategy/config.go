package strategy

import "math"

// Config holds the process-wide strategy constants.
type Config struct {
	// InitialMargin is the equity fraction required to open exposure.
	InitialMargin float64
	// MaintenanceMargin is the equity fraction below which the venue
	// liquidates; emergency rungs are priced against it.
	MaintenanceMargin float64
	// MinProfitPct gates every order on its simulated equity change.
	MinProfitPct float64

	CommissionRate float64
	CommissionMin  float64

	// MovingAverageWindow smooths ticks with a simple moving average when > 1.
	MovingAverageWindow int
}

func DefaultConfig() Config {
	return Config{
		InitialMargin:       0.5,
		MaintenanceMargin:   0.25,
		MovingAverageWindow: 1,
	}
}

func (c Config) withDefaults() Config {
	out := c
	if out.InitialMargin <= 0 || out.InitialMargin > 1 {
		out.InitialMargin = 0.5
	}
	if out.MaintenanceMargin <= 0 || out.MaintenanceMargin >= 1 {
		out.MaintenanceMargin = 0.25
	}
	if out.CommissionRate < 0 {
		out.CommissionRate = 0
	}
	if out.CommissionMin < 0 {
		out.CommissionMin = 0
	}
	if out.MovingAverageWindow < 1 {
		out.MovingAverageWindow = 1
	}
	return out
}

// Commission is the fee charged on a fill of the given notional value.
func (c Config) Commission(notional float64) float64 {
	notional = math.Abs(notional)
	if notional == 0 {
		return 0
	}
	return math.Max(notional*c.CommissionRate, c.CommissionMin)
}
