// README: Pricing service computes fare breakdowns from a rate card.
package pricing

import (
	"context"
	"errors"
	"math"
)

var ErrBadRequest = errors.New("invalid pricing request")

// RateStore loads rate cards. A nil store means DefaultRates.
type RateStore interface {
	GetRates(ctx context.Context, bookingType BookingType) (Rates, error)
}

type Service struct {
	store RateStore
}

func NewService(store RateStore) *Service {
	return &Service{store: store}
}

// Estimate loads the rate card for the booking type and prices the request.
func (s *Service) Estimate(ctx context.Context, req PricingRequest) (FareBreakdown, error) {
	rates, ok := DefaultRates[req.BookingType]
	if !ok {
		return FareBreakdown{}, ErrBadRequest
	}
	if s.store != nil {
		r, err := s.store.GetRates(ctx, req.BookingType)
		if err != nil {
			return FareBreakdown{}, err
		}
		rates = r
	}
	return Calculate(rates, req)
}

// Calculate is the pure fare function: identical inputs always give identical output,
// and TotalFare is always the sum of the four components.
func Calculate(rates Rates, req PricingRequest) (FareBreakdown, error) {
	if req.DistanceKm < 0 || req.BookingDuration < 0 || req.WaitingMinutes < 0 {
		return FareBreakdown{}, ErrBadRequest
	}
	tripFactor := 1.0
	switch req.RideType {
	case RideOneWay:
	case RideTwoWay:
		tripFactor = 2.0
	default:
		return FareBreakdown{}, ErrBadRequest
	}

	var fb FareBreakdown
	fb.BaseFare = rates.BaseFare

	switch req.BookingType {
	case BookingDistanceBased:
		fb.DistanceFare = roundAmount(req.DistanceKm * float64(rates.PerKm) * tripFactor)
	case BookingTimeBased:
		if req.BookingDuration <= 0 {
			return FareBreakdown{}, ErrBadRequest
		}
		// The driver stays with the client for the booked hours; the return leg is inside them.
		fb.TimeFare = roundAmount(req.BookingDuration * float64(rates.PerHour))
	default:
		return FareBreakdown{}, ErrBadRequest
	}

	if billable := req.WaitingMinutes - rates.FreeWaitingMinutes; billable > 0 {
		fb.WaitingCharge = int64(billable) * rates.PerWaitingMinute
	}

	fb.TotalFare = fb.BaseFare + fb.DistanceFare + fb.TimeFare + fb.WaitingCharge
	return fb, nil
}

func roundAmount(v float64) int64 {
	return int64(math.Round(v))
}
