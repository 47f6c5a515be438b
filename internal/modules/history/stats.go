package history

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the execution records of one order
type Summary struct {
	OrderID             string        `json:"order_id"`
	Attempts            int           `json:"attempts"`
	Successes           int           `json:"successes"`
	Failures            int           `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastFailureReason   FailureReason `json:"last_failure_reason,omitempty"`
	LastSuccessAt       *time.Time    `json:"last_success_at,omitempty"`
	TotalInvested       float64       `json:"total_invested"`
	TotalShares         float64       `json:"total_shares"`
	AveragePrice        float64       `json:"average_price"`
	PriceStdDev         float64       `json:"price_std_dev"`
}

// Summarize computes a Summary from the log. AveragePrice is weighted by
// shares acquired, so it is the cost per share actually paid.
// ConsecutiveFailures counts failures since the most recent success.
func (l *Log) Summarize(orderID string) Summary {
	// newest first
	records := l.ForOrder(orderID)

	s := Summary{OrderID: orderID, Attempts: len(records)}
	prices := make([]float64, 0, len(records))
	shares := make([]float64, 0, len(records))
	trailing := true

	for _, rec := range records {
		if !rec.Success {
			s.Failures++
			if trailing {
				s.ConsecutiveFailures++
			}
			if s.LastFailureReason == "" {
				s.LastFailureReason = rec.ErrorReason
			}
			continue
		}

		trailing = false
		s.Successes++
		if s.LastSuccessAt == nil {
			at := rec.Timestamp
			s.LastSuccessAt = &at
		}
		s.TotalInvested += rec.Amount
		s.TotalShares += rec.SharesAcquired
		prices = append(prices, rec.PricePerShare)
		shares = append(shares, rec.SharesAcquired)
	}

	if s.TotalShares > 0 {
		s.AveragePrice = stat.Mean(prices, shares)
	}
	if len(prices) > 1 {
		s.PriceStdDev = stat.StdDev(prices, nil)
	}
	return s
}
