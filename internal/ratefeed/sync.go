package ratefeed

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "budgetledger/internal/errors"
	"budgetledger/internal/logger"
	"budgetledger/internal/models"
	"budgetledger/internal/services"
)

// RateSource provides market rates into the reporting currency.
type RateSource interface {
	ReportingCurrency() string
	GetRate(ctx context.Context, fromCurrency string) (decimal.Decimal, error)
}

// RateStore persists a month of conversion rates atomically.
type RateStore interface {
	SetRates(budgetID string, month int, updates []services.RateUpdate) ([]models.ConversionRate, error)
}

// Syncer copies market rates into a budget's conversion rate table.
type Syncer struct {
	source RateSource
	store  RateStore
}

// NewSyncer creates a Syncer.
func NewSyncer(source RateSource, store RateStore) *Syncer {
	return &Syncer{source: source, store: store}
}

// SyncRates fetches every requested currency and then upserts the rates for
// (budget, month) in one transaction, so either every rate is stored or none
// is. The reporting currency and duplicates are skipped.
func (s *Syncer) SyncRates(ctx context.Context, budgetID string, month int, currencies []string) ([]models.ConversionRate, error) {
	if !models.ValidMonth(month) {
		return nil, apperrors.ErrInvalidMonth
	}

	seen := make(map[string]struct{}, len(currencies))
	var wanted []string
	for _, c := range currencies {
		code := strings.ToUpper(strings.TrimSpace(c))
		if code == "" || code == s.source.ReportingCurrency() {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		wanted = append(wanted, code)
	}
	if len(wanted) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "At least one foreign currency is required")
	}

	updates := make([]services.RateUpdate, len(wanted))
	for i, code := range wanted {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrUpstream, err)
		}
		rate, err := s.source.GetRate(ctx, code)
		if err != nil {
			logger.Get().Warnw("forex fetch failed", "budget_id", budgetID, "currency", code, "error", err)
			appErr := apperrors.Wrap(apperrors.ErrUpstream, err)
			appErr.Message = fmt.Sprintf("Rate feed unavailable for %s", code)
			return nil, appErr
		}
		updates[i] = services.RateUpdate{Currency: code, Rate: rate}
	}

	stored, err := s.store.SetRates(budgetID, month, updates)
	if err != nil {
		return nil, err
	}

	logger.Get().Infow("conversion rates synced", "budget_id", budgetID, "month", month, "currencies", wanted)
	return stored, nil
}
