package strategy

import (
	"math"

	"github.com/markcheno/go-talib"
)

// Neutral indicator values returned when history is too short.
const (
	neutralRSI       = 50.0
	neutralStoch     = 50.0
	neutralWilliamsR = -50.0
)

// StochRSIValue is one Stochastic RSI reading. J = 3K - 2D.
type StochRSIValue struct {
	J float64 `json:"j"`
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// RSI returns the simple (non-smoothed) relative strength index over the
// last period changes: plain means of gains and losses, not Wilder's.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return neutralRSI
	}
	return last(rollingRSI(prices[len(prices)-period-1:], period), neutralRSI)
}

// rollingRSI returns one RSI value per index from period onwards.
func rollingRSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) <= period {
		return nil
	}
	gains := make([]float64, len(prices)-1)
	losses := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if change := prices[i] - prices[i-1]; change >= 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}
	avgGain := talib.Sma(gains, period)
	avgLoss := talib.Sma(losses, period)

	out := make([]float64, 0, len(gains)-period+1)
	for i := period - 1; i < len(gains); i++ {
		out = append(out, rsiFromMeans(avgGain[i], avgLoss[i]))
	}
	return out
}

func rsiFromMeans(gain, loss float64) float64 {
	if gain == 0 {
		return 0
	}
	if loss == 0 {
		return 100
	}
	return 100 - 100/(1+gain/loss)
}

// StochRSI computes the Stochastic RSI of prices. K is the kPeriod mean of
// the raw stochastic, D the dPeriod mean of smoothed K.
func StochRSI(prices []float64, rsiPeriod, stochPeriod, kPeriod, dPeriod int) StochRSIValue {
	neutral := StochRSIValue{J: neutralStoch, K: neutralStoch, D: neutralStoch}
	if rsiPeriod <= 0 || stochPeriod <= 0 || kPeriod <= 0 || dPeriod <= 0 {
		return neutral
	}
	if len(prices) < rsiPeriod+stochPeriod-1 {
		return neutral
	}

	rsi := rollingRSI(prices, rsiPeriod)
	if len(rsi) < stochPeriod {
		return neutral
	}

	highs := talib.Max(rsi, stochPeriod)
	lows := talib.Min(rsi, stochPeriod)
	raw := make([]float64, 0, len(rsi)-stochPeriod+1)
	for i := stochPeriod - 1; i < len(rsi); i++ {
		if highs[i] == lows[i] {
			raw = append(raw, neutralStoch)
			continue
		}
		raw = append(raw, (rsi[i]-lows[i])/(highs[i]-lows[i])*100)
	}

	var k float64
	var smoothed []float64
	if len(raw) >= kPeriod {
		smoothed = talib.Sma(raw, kPeriod)[kPeriod-1:]
		k = smoothed[len(smoothed)-1]
	} else {
		k = last(raw, neutralStoch)
	}

	var d float64
	if len(smoothed) >= dPeriod {
		d = last(talib.Sma(smoothed, dPeriod), neutralStoch)
	} else {
		d = last(smoothed, neutralStoch)
	}

	return StochRSIValue{J: 3*k - 2*d, K: k, D: d}
}

// WilliamsR returns Williams %R over the last period closes, inverted to
// 0..100 so that high values mean the close sits near the period low.
// A flat window reads 0.
func WilliamsR(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return neutralWilliamsR
	}
	window := prices[len(prices)-period:]
	highest := last(talib.Max(window, period), 0)
	lowest := last(talib.Min(window, period), 0)
	if highest == lowest {
		return 0
	}
	wr := last(talib.WillR(window, window, window, period), 0)
	return math.Abs(wr)
}

func last(xs []float64, fallback float64) float64 {
	if len(xs) == 0 {
		return fallback
	}
	return xs[len(xs)-1]
}
