// Package ml provides a lightweight trend model trained on candle features.
// It is an ensemble of decision stumps, one per feature, voting on whether
// the next close will be above the current close.
package ml

import (
	"sort"
	"sync"

	"weex-trading-bot/internal/exchange"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/strategy"
)

// Prediction directions.
const (
	DirectionUp      = "UP"
	DirectionDown    = "DOWN"
	DirectionUnknown = "UNKNOWN"
)

// minTrainingCandles is the floor below which the model refuses to answer.
const minTrainingCandles = 50

const featureCount = 4

// Prediction is the model output.
type Prediction struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"` // 0-100
}

type sample struct {
	features [featureCount]float64
	up       bool
}

type stump struct {
	feature   int
	threshold float64
	upAbove   bool    // whether values above threshold vote UP
	accuracy  float64 // training accuracy, used as vote weight
}

// Analyst trains on a candle series and predicts the next move.
type Analyst struct {
	mu      sync.RWMutex
	stumps  []stump
	trained bool
	logger  *logging.Logger
}

// NewAnalyst creates an untrained analyst.
func NewAnalyst() *Analyst {
	return &Analyst{logger: logging.WithComponent("ml_analyst")}
}

// Train fits the stump ensemble. Returns false when there is not enough
// data; the analyst then predicts UNKNOWN.
func (a *Analyst) Train(candles []exchange.Candle) bool {
	samples := buildSamples(candles)
	if len(samples) < minTrainingCandles {
		a.mu.Lock()
		a.trained = false
		a.mu.Unlock()
		return false
	}

	stumps := make([]stump, 0, featureCount)
	for f := 0; f < featureCount; f++ {
		stumps = append(stumps, fitStump(samples, f))
	}

	a.mu.Lock()
	a.stumps = stumps
	a.trained = true
	a.mu.Unlock()
	return true
}

// Predict returns the expected direction of the next close.
func (a *Analyst) Predict(candles []exchange.Candle) Prediction {
	a.mu.RLock()
	trained := a.trained
	stumps := a.stumps
	a.mu.RUnlock()

	if !trained || len(candles) < minTrainingCandles {
		return Prediction{Direction: DirectionUnknown, Confidence: 0}
	}

	features, ok := extractFeatures(candles, len(candles)-1)
	if !ok {
		return Prediction{Direction: DirectionUnknown, Confidence: 0}
	}

	upWeight, totalWeight := 0.0, 0.0
	for _, s := range stumps {
		votesUp := (features[s.feature] > s.threshold) == s.upAbove
		if votesUp {
			upWeight += s.accuracy
		}
		totalWeight += s.accuracy
	}
	if totalWeight == 0 {
		return Prediction{Direction: DirectionUnknown, Confidence: 0}
	}

	share := upWeight / totalWeight
	if share >= 0.5 {
		return Prediction{Direction: DirectionUp, Confidence: share * 100}
	}
	return Prediction{Direction: DirectionDown, Confidence: (1 - share) * 100}
}

// TrainAndPredict is the common one-shot path used by the loops.
func (a *Analyst) TrainAndPredict(candles []exchange.Candle) Prediction {
	if !a.Train(candles) {
		return Prediction{Direction: DirectionUnknown, Confidence: 0}
	}
	return a.Predict(candles)
}

// buildSamples produces one labeled row per candle that has a successor.
func buildSamples(candles []exchange.Candle) []sample {
	var samples []sample
	for i := 0; i < len(candles)-1; i++ {
		features, ok := extractFeatures(candles, i)
		if !ok {
			continue
		}
		samples = append(samples, sample{
			features: features,
			up:       candles[i+1].Close > candles[i].Close,
		})
	}
	return samples
}

// extractFeatures computes [RSI, EMA20 distance, return, normalized volume]
// at index i using only candles up to and including i.
func extractFeatures(candles []exchange.Candle, i int) ([featureCount]float64, bool) {
	var out [featureCount]float64
	window := candles[:i+1]
	if len(window) < 21 || candles[i].Close == 0 {
		return out, false
	}

	ema20 := strategy.CalculateEMA(window, 20)
	avgVol := strategy.CalculateAverageVolume(window, 20)

	out[0] = strategy.CalculateRSI(window, 14)
	out[1] = (candles[i].Close - ema20) / candles[i].Close
	if i > 0 && candles[i-1].Close != 0 {
		out[2] = (candles[i].Close - candles[i-1].Close) / candles[i-1].Close
	}
	if avgVol != 0 {
		out[3] = candles[i].Volume / avgVol
	}
	return out, true
}

// fitStump picks the median threshold for a feature and orients the vote to
// maximize training accuracy.
func fitStump(samples []sample, feature int) stump {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.features[feature]
	}
	sort.Float64s(values)
	threshold := values[len(values)/2]

	correctAbove := 0
	for _, s := range samples {
		if (s.features[feature] > threshold) == s.up {
			correctAbove++
		}
	}

	accuracy := float64(correctAbove) / float64(len(samples))
	upAbove := true
	if accuracy < 0.5 {
		upAbove = false
		accuracy = 1 - accuracy
	}

	return stump{
		feature:   feature,
		threshold: threshold,
		upAbove:   upAbove,
		accuracy:  accuracy,
	}
}
