package service

import (
	"context"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/util"
)

// PromotionValidator checks promotion codes against their validity window
type PromotionValidator struct {
	catalog Catalog
}

// NewPromotionValidator creates a new promotion validator
func NewPromotionValidator(catalog Catalog) *PromotionValidator {
	return &PromotionValidator{catalog: catalog}
}

// Validate returns the discount percent of code if it is active on today.
// Only calendar dates are compared; both bounds are inclusive.
func (pv *PromotionValidator) Validate(ctx context.Context, code string, today time.Time) (float64, error) {
	ctx, span := util.StartSpan(ctx, "PromotionValidator.Validate")
	defer span.End()

	promo, err := pv.catalog.GetPromotionByCode(ctx, code)
	if err != nil {
		return 0, lookupError(err, apperr.CodePromotionNotFound, "promotion %q not found", code)
	}

	day := dateOf(today)
	if day.Before(dateOf(promo.StartDate)) {
		return 0, apperr.New(apperr.KindValidation, apperr.CodePromotionNotYetActive, "promotion %q starts on %s", code, promo.StartDate.Format(models.DateLayout))
	}
	if day.After(dateOf(promo.EndDate)) {
		return 0, apperr.New(apperr.KindValidation, apperr.CodePromotionExpired, "promotion %q ended on %s", code, promo.EndDate.Format(models.DateLayout))
	}

	return promo.DiscountPercent, nil
}

// ActivePromotions lists promotions valid on today
func (pv *PromotionValidator) ActivePromotions(ctx context.Context, today time.Time) ([]models.Promotion, error) {
	promos, err := pv.catalog.ListPromotionsActiveOn(ctx, dateOf(today))
	if err != nil {
		return nil, apperr.Internal(err, "failed to list promotions")
	}
	return promos, nil
}

// dateOf truncates t to midnight UTC of its own calendar date
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
