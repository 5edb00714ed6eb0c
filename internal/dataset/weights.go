package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"FinForecast/internal/model"
)

// weightsFile is the on-disk layout of an optimization result.
type weightsFile struct {
	GeneratedAt     time.Time          `json:"generated_at"`
	Objective       string             `json:"objective"`
	Tickers         []string           `json:"tickers"`
	Weights         map[string]float64 `json:"weights"`
	Leverage        float64            `json:"leverage"`
	ExpectedReturn  float64            `json:"expected_return"`
	Volatility      float64            `json:"volatility"`
	Sharpe          float64            `json:"sharpe"`
	ExpectedReturns map[string]float64 `json:"expected_returns"`
	Allocation      map[string]string  `json:"allocation,omitempty"`
}

// WriteWeights stores the weights, and the cash allocation when given, as JSON.
func WriteWeights(path string, w *model.PortfolioWeights, allocation map[string]string) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(weightsFile{
		GeneratedAt:     time.Now().UTC(),
		Objective:       string(w.Objective),
		Tickers:         w.Tickers,
		Weights:         w.Weights,
		Leverage:        w.Leverage,
		ExpectedReturn:  w.ExpectedReturn,
		Volatility:      w.Volatility,
		Sharpe:          w.Sharpe,
		ExpectedReturns: w.ExpectedReturns,
		Allocation:      allocation,
	}); err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	return f.Close()
}

// ReadWeights loads weights written by WriteWeights.
func ReadWeights(path string) (*model.PortfolioWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wf weightsFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}
	return &model.PortfolioWeights{
		Objective:       model.Objective(wf.Objective),
		Tickers:         wf.Tickers,
		Weights:         wf.Weights,
		Leverage:        wf.Leverage,
		ExpectedReturn:  wf.ExpectedReturn,
		Volatility:      wf.Volatility,
		Sharpe:          wf.Sharpe,
		ExpectedReturns: wf.ExpectedReturns,
	}, nil
}
