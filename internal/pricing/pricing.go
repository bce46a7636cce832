// Package pricing computes per-seat ticket prices.
package pricing

import (
	"fmt"

	"booking-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Input holds everything needed to price one seat of a booking
type Input struct {
	BasePrice       int64
	Multiplier      float64
	AddOnTotal      int64
	SeatCount       int
	DiscountPercent float64
}

// PerSeat returns the price of one seat in the smallest currency unit:
//
//	(base × multiplier + addOnTotal / seatCount) × (1 − discount/100)
//
// rounded half-up to a whole unit.
func PerSeat(in Input) (int64, error) {
	if in.SeatCount <= 0 {
		return 0, fmt.Errorf("seat count must be positive, got %d", in.SeatCount)
	}
	if in.BasePrice < 0 {
		return 0, fmt.Errorf("base price must not be negative, got %d", in.BasePrice)
	}
	if in.AddOnTotal < 0 {
		return 0, fmt.Errorf("add-on total must not be negative, got %d", in.AddOnTotal)
	}
	if in.Multiplier <= 0 {
		return 0, fmt.Errorf("multiplier must be positive, got %v", in.Multiplier)
	}
	if in.DiscountPercent < 0 || in.DiscountPercent > 100 {
		return 0, fmt.Errorf("discount must be within [0, 100], got %v", in.DiscountPercent)
	}

	// ((base × multiplier × seats + addOnTotal) × (100 − discount)) / (seats × 100),
	// rounded once
	seats := decimal.NewFromInt(int64(in.SeatCount))
	gross := decimal.NewFromInt(in.BasePrice).
		Mul(decimal.NewFromFloat(in.Multiplier)).
		Mul(seats).
		Add(decimal.NewFromInt(in.AddOnTotal))
	numerator := gross.Mul(hundred.Sub(decimal.NewFromFloat(in.DiscountPercent)))

	return numerator.DivRound(seats.Mul(hundred), 0).IntPart(), nil
}

// DefaultMultiplier returns the multiplier applied to a seat type when the
// seat itself does not carry one.
func DefaultMultiplier(seatType string) float64 {
	switch seatType {
	case models.SeatTypeVIP:
		return 1.5
	case models.SeatTypePremium:
		return 1.3
	case models.SeatTypeCouple:
		return 2.0
	default:
		return 1.0
	}
}

// MultiplierFor resolves the effective multiplier of a seat
func MultiplierFor(seat *models.Seat) float64 {
	if seat.PriceMultiplier > 0 {
		return seat.PriceMultiplier
	}
	return DefaultMultiplier(seat.SeatType)
}
