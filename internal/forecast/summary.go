package forecast

import (
	"fmt"

	"github.com/wonny/marketlens/internal/contracts"
)

// Summarize compares the final forecast point to the current price
func Summarize(r *contracts.ForecastResult, currentPrice float64) (contracts.ForecastSummary, error) {
	final, ok := r.Final()
	if !ok {
		return contracts.ForecastSummary{}, fmt.Errorf("%w: forecast has no future points", contracts.ErrInvalidArgument)
	}

	s := contracts.ForecastSummary{
		Symbol:         r.Symbol,
		Horizon:        r.Horizon,
		TargetDate:     final.Date,
		CurrentPrice:   currentPrice,
		PredictedPrice: final.Yhat,
		Confidence:     (final.Upper - final.Lower) / 2,
		Lower:          final.Lower,
		Upper:          final.Upper,
	}
	if currentPrice > 0 {
		s.ChangePercent = contracts.Float((final.Yhat - currentPrice) / currentPrice * 100)
	}
	return s, nil
}
