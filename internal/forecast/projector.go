// Package forecast projects future balances for a user's accounts. Two
// methods exist: a rule-based projector that expands known recurring
// schedules day by day, and a statistical model that extrapolates the trend
// of reconstructed balance history. Both produce the same timeline shape so
// callers can switch methods without reshaping output.
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

// TimelinePoint is one projected daily balance.
type TimelinePoint struct {
	Date             time.Time       `json:"-"`
	ProjectedBalance decimal.Decimal `json:"-"`
}

// MarshalJSON serializes the point with a business date and decimal string.
func (p TimelinePoint) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"date":%q,"projected_balance":%q}`,
		p.Date.Format(models.DateFormat), p.ProjectedBalance.String())), nil
}

// CashflowItem is one expected recurring event inside the horizon.
type CashflowItem struct {
	TransactionID string           `json:"transaction_id"`
	AccountID     string           `json:"account_id"`
	Description   string           `json:"description"`
	Date          time.Time        `json:"date"`
	Amount        decimal.Decimal  `json:"amount"`
	Frequency     models.Frequency `json:"frequency"`
}

// Summary aggregates the projected inflow and outflow over the horizon.
type Summary struct {
	StartBalance    decimal.Decimal `json:"start_balance"`
	EndBalance      decimal.Decimal `json:"end_balance"`
	ExpectedInflow  decimal.Decimal `json:"expected_inflow"`
	ExpectedOutflow decimal.Decimal `json:"expected_outflow"`
	ScheduledEvents int             `json:"scheduled_events"`
	HorizonDays     int             `json:"horizon_days"`
}

// Timeline is the output shape shared by both forecast methods.
type Timeline struct {
	Method   Method          `json:"method"`
	Points   []TimelinePoint `json:"points"`
	Cashflow []CashflowItem  `json:"cashflow,omitempty"`
	Summary  Summary         `json:"summary"`
}

// Projector produces rule-based forecasts by expanding recurring schedules.
type Projector struct {
	store  ledger.Store
	logger logger.Logger
}

// NewProjector creates a rule-based projector bound to a ledger store.
func NewProjector(store ledger.Store) *Projector {
	return &Projector{
		store:  store,
		logger: logger.WithComponent("rule_projector"),
	}
}

// Project expands the user's recurring schedules over [start, start+horizon]
// and accumulates them on top of the starting balance. Each schedule fires on
// its next due date and then every Frequency.Days() thereafter; occurrences
// outside the horizon are ignored.
func (p *Projector) Project(ctx context.Context, userID string, startBalance decimal.Decimal, start time.Time, horizonDays int) (*Timeline, error) {
	if horizonDays <= 0 {
		return nil, errors.ProjectionError(errors.CodeInvalidHorizon,
			fmt.Sprintf("%d days", horizonDays), nil)
	}
	start = models.DateOnly(start)
	end := start.AddDate(0, 0, horizonDays)

	schedules, err := p.store.ListRecurringByUser(ctx, userID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "recurring schedules", err)
	}

	// Day buckets of expected deltas, keyed by offset from start.
	deltas := make(map[int]decimal.Decimal)
	var cashflow []CashflowItem
	inflow, outflow := decimal.Zero, decimal.Zero

	for _, rec := range schedules {
		representative, err := p.store.GetTransaction(ctx, rec.TransactionID)
		if err == ledger.ErrNotFound {
			// Schedule points at a row that was since removed; skip rather
			// than fail the whole forecast.
			p.logger.WithField("transaction_id", rec.TransactionID).
				Warn("Recurring schedule references a missing ledger row")
			continue
		}
		if err != nil {
			return nil, errors.StorageError(errors.CodeStoreUnavailable, "transaction", err)
		}

		step := rec.Frequency.Days()
		if step <= 0 {
			step = 30
		}

		// Roll the due date forward into the horizon if it is already past.
		due := models.DateOnly(rec.NextDueDate)
		for due.Before(start) {
			due = due.AddDate(0, 0, step)
		}

		for ; !due.After(end); due = due.AddDate(0, 0, step) {
			offset := models.DaysBetween(start, due)
			deltas[offset] = deltas[offset].Add(representative.Amount)
			cashflow = append(cashflow, CashflowItem{
				TransactionID: rec.TransactionID,
				AccountID:     rec.AccountID,
				Description:   representative.Description,
				Date:          due,
				Amount:        representative.Amount,
				Frequency:     rec.Frequency,
			})
			if representative.Amount.IsNegative() {
				outflow = outflow.Add(representative.Amount)
			} else {
				inflow = inflow.Add(representative.Amount)
			}
		}
	}

	sortCashflow(cashflow)

	points := make([]TimelinePoint, 0, horizonDays+1)
	balance := startBalance
	for offset := 0; offset <= horizonDays; offset++ {
		if delta, ok := deltas[offset]; ok {
			balance = balance.Add(delta)
		}
		points = append(points, TimelinePoint{
			Date:             start.AddDate(0, 0, offset),
			ProjectedBalance: balance,
		})
	}

	timeline := &Timeline{
		Method:   MethodRule,
		Points:   points,
		Cashflow: cashflow,
		Summary: Summary{
			StartBalance:    startBalance,
			EndBalance:      balance,
			ExpectedInflow:  inflow,
			ExpectedOutflow: outflow,
			ScheduledEvents: len(cashflow),
			HorizonDays:     horizonDays,
		},
	}

	p.logger.WithFields(logger.Fields{
		"user_id":      userID,
		"horizon_days": horizonDays,
		"events":       len(cashflow),
	}).Info("Rule-based forecast produced")
	return timeline, nil
}
