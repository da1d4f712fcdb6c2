package forecast

import (
	"context"
	"sort"
	"time"

	"go-ledger-reconciliation/internal/ledger"
	"go-ledger-reconciliation/internal/models"
	"go-ledger-reconciliation/pkg/errors"

	"github.com/shopspring/decimal"
)

// Method selects the forecasting strategy.
type Method string

const (
	// MethodRule expands known recurring schedules over the horizon.
	MethodRule Method = "rule"
	// MethodStat extrapolates the trend of reconstructed balance history.
	MethodStat Method = "stat"
)

// ParseMethod validates a method name supplied by a caller.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodRule:
		return MethodRule, nil
	case MethodStat:
		return MethodStat, nil
	default:
		return "", errors.ProjectionError(errors.CodeUnknownMethod, s, nil)
	}
}

// Forecaster dispatches forecast requests to the configured strategy.
type Forecaster struct {
	store     ledger.Store
	projector *Projector
	statmodel *StatModel
}

// NewForecaster creates a forecaster bound to a ledger store.
func NewForecaster(store ledger.Store) *Forecaster {
	return &Forecaster{
		store:     store,
		projector: NewProjector(store),
		statmodel: NewStatModel(store),
	}
}

// ForecastAccount projects one account's balance over the horizon using the
// given method, starting from the account's anchor balance.
func (f *Forecaster) ForecastAccount(ctx context.Context, accountID string, method Method, start time.Time, horizonDays int) (*Timeline, error) {
	account, err := f.store.GetAccount(ctx, accountID)
	if err == ledger.ErrNotFound {
		return nil, errors.StorageError(errors.CodeNotFound, "account", err).
			WithContext("account_id", accountID)
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "account", err)
	}

	switch method {
	case MethodRule:
		if account.CurrentBalance == nil {
			return nil, errors.ProjectionError(errors.CodeMissingAnchor, accountID, nil)
		}
		timeline, err := f.projector.Project(ctx, account.UserID, *account.CurrentBalance, start, horizonDays)
		if err != nil {
			return nil, err
		}
		restrictToAccount(timeline, accountID)
		return timeline, nil
	case MethodStat:
		return f.statmodel.Project(ctx, accountID, start, horizonDays)
	default:
		return nil, errors.ProjectionError(errors.CodeUnknownMethod, string(method), nil)
	}
}

// ForecastUser projects a user's combined balance across all accounts with
// the rule-based method.
func (f *Forecaster) ForecastUser(ctx context.Context, userID string, start time.Time, horizonDays int) (*Timeline, error) {
	accounts, err := f.store.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, "accounts", err)
	}

	total := decimal.Zero
	anchored := false
	for _, account := range accounts {
		if account.CurrentBalance != nil {
			total = total.Add(*account.CurrentBalance)
			anchored = true
		}
	}
	if !anchored {
		return nil, errors.ProjectionError(errors.CodeMissingAnchor, userID, nil)
	}

	return f.projector.Project(ctx, userID, total, start, horizonDays)
}

// restrictToAccount rebuilds a user-wide rule timeline so only the given
// account's schedules contribute, keeping the summary consistent with the
// filtered cashflow.
func restrictToAccount(timeline *Timeline, accountID string) {
	var kept []CashflowItem
	inflow, outflow := decimal.Zero, decimal.Zero
	removed := make(map[string]decimal.Decimal)
	for _, item := range timeline.Cashflow {
		if item.AccountID == accountID {
			kept = append(kept, item)
			if item.Amount.IsNegative() {
				outflow = outflow.Add(item.Amount)
			} else {
				inflow = inflow.Add(item.Amount)
			}
			continue
		}
		key := item.Date.Format(models.DateFormat)
		removed[key] = removed[key].Add(item.Amount)
	}

	// Undo the removed events' cumulative effect on each point.
	adjustment := decimal.Zero
	for i := range timeline.Points {
		key := timeline.Points[i].Date.Format(models.DateFormat)
		if delta, ok := removed[key]; ok {
			adjustment = adjustment.Add(delta)
		}
		timeline.Points[i].ProjectedBalance = timeline.Points[i].ProjectedBalance.Sub(adjustment)
	}

	timeline.Cashflow = kept
	timeline.Summary.ExpectedInflow = inflow
	timeline.Summary.ExpectedOutflow = outflow
	timeline.Summary.ScheduledEvents = len(kept)
	if len(timeline.Points) > 0 {
		timeline.Summary.EndBalance = timeline.Points[len(timeline.Points)-1].ProjectedBalance
	}
}

// sortCashflow orders expected events by date, then account, then id, so
// forecast output is reproducible.
func sortCashflow(items []CashflowItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		if items[i].AccountID != items[j].AccountID {
			return items[i].AccountID < items[j].AccountID
		}
		return items[i].TransactionID < items[j].TransactionID
	})
}
