package forecast

import (
	"context"
	"fmt"
	"time"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"
	"go-ledger-reconciliation/pkg/errors"
	"go-ledger-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
)

// minHistoryPoints is the smallest history series a trend can be fitted to.
const minHistoryPoints = 2

// StatModel produces trend-based forecasts by fitting a least-squares line
// over reconstructed balance history and extrapolating it.
type StatModel struct {
	store  ledger.Store
	logger logger.Logger
}

// NewStatModel creates a statistical model bound to a ledger store.
func NewStatModel(store ledger.Store) *StatModel {
	return &StatModel{
		store:  store,
		logger: logger.WithComponent("stat_model"),
	}
}

// Project fits a linear trend to the account's stored balance history and
// extends it over [start, start+horizon]. History must have been
// reconstructed first; the model never derives balances from raw
// transactions itself.
func (m *StatModel) Project(ctx context.Context, accountID string, start time.Time, horizonDays int) (*Timeline, error) {
	if horizonDays <= 0 {
		return nil, errors.ProjectionError(errors.CodeInvalidHorizon,
			fmt.Sprintf("%d days", horizonDays), nil)
	}
	start = models.DateOnly(start)

	history, err := m.store.ListHistory(ctx, accountID, time.Time{}, start)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "account history", err)
	}
	if len(history) < minHistoryPoints {
		return nil, errors.ProjectionError(errors.CodeNoHistory,
			fmt.Sprintf("account %s has %d history points, need at least %d",
				accountID, len(history), minHistoryPoints), nil)
	}

	slope, intercept := fitTrend(history)

	origin := models.DateOnly(history[0].Date)
	points := make([]TimelinePoint, 0, horizonDays+1)
	for offset := 0; offset <= horizonDays; offset++ {
		day := start.AddDate(0, 0, offset)
		x := float64(models.DaysBetween(origin, day))
		projected := decimal.NewFromFloat(slope*x + intercept).Round(2)
		points = append(points, TimelinePoint{Date: day, ProjectedBalance: projected})
	}

	timeline := &Timeline{
		Method: MethodStat,
		Points: points,
		Summary: Summary{
			StartBalance: points[0].ProjectedBalance,
			EndBalance:   points[len(points)-1].ProjectedBalance,
			HorizonDays:  horizonDays,
		},
	}

	m.logger.WithFields(logger.Fields{
		"account_id":     accountID,
		"history_points": len(history),
		"slope_per_day":  slope,
	}).Info("Trend forecast produced")
	return timeline, nil
}

// fitTrend computes the least-squares line through the history series, with x
// measured in days from the first point. Balances are reduced to float64 for
// the fit; a projection is an estimate, not ledger arithmetic.
func fitTrend(history []*models.AccountHistory) (slope, intercept float64) {
	origin := models.DateOnly(history[0].Date)

	var n, sumX, sumY, sumXY, sumXX float64
	for _, point := range history {
		x := float64(models.DaysBetween(origin, point.Date))
		y, _ := point.Balance.Float64()
		n++
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		// Every point shares one date; fall back to a flat line.
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
