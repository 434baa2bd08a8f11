package forecast

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/marketlens/internal/contracts"
)

// Toggle switches a seasonal component
type Toggle string

const (
	Auto Toggle = "auto" // on when history covers two full periods
	On   Toggle = "on"
	Off  Toggle = "off"
)

// Config holds model hyper-parameters
type Config struct {
	MinObservations int

	// Trend
	Changepoints          int     // potential changepoints
	ChangepointRange      float64 // share of history where changepoints may sit
	ChangepointPriorScale float64 // trend flexibility; smaller = stiffer

	// Seasonality
	SeasonalityPriorScale float64
	Weekly                Toggle
	WeeklyOrder           int
	Yearly                Toggle
	YearlyOrder           int

	// Uncertainty
	IntervalWidth float64

	Clock func() time.Time
}

// DefaultConfig returns conservative defaults
func DefaultConfig() Config {
	return Config{
		MinObservations:       60,
		Changepoints:          25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		Weekly:                Auto,
		WeeklyOrder:           2, // weekday-only data has five phases
		Yearly:                Auto,
		YearlyOrder:           10,
		IntervalWidth:         0.95,
		Clock:                 time.Now,
	}
}

// ParseToggle accepts auto/on/off (also true/false)
func ParseToggle(s string) (Toggle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "on", "true":
		return On, nil
	case "off", "false":
		return Off, nil
	}
	return "", fmt.Errorf("%w: seasonality toggle %q", contracts.ErrInvalidArgument, s)
}

func (c Config) validate() error {
	switch {
	case c.MinObservations < 3:
		return fmt.Errorf("%w: MinObservations must be >= 3", contracts.ErrInvalidArgument)
	case c.Changepoints < 0:
		return fmt.Errorf("%w: Changepoints must be >= 0", contracts.ErrInvalidArgument)
	case c.ChangepointRange <= 0 || c.ChangepointRange > 1:
		return fmt.Errorf("%w: ChangepointRange must be in (0, 1]", contracts.ErrInvalidArgument)
	case c.ChangepointPriorScale <= 0 || c.SeasonalityPriorScale <= 0:
		return fmt.Errorf("%w: prior scales must be positive", contracts.ErrInvalidArgument)
	case c.IntervalWidth <= 0 || c.IntervalWidth >= 1:
		return fmt.Errorf("%w: IntervalWidth must be in (0, 1)", contracts.ErrInvalidArgument)
	}
	return nil
}
