// README: Fare rate card, pricing request and fare breakdown definitions.
package pricing

type BookingType string

const (
	BookingDistanceBased BookingType = "distance_based"
	BookingTimeBased     BookingType = "time_based"
)

type RideType string

const (
	RideOneWay RideType = "one-way"
	RideTwoWay RideType = "two-way"
)

const Currency = "INR"

// Rates is the rate card for one booking type. Amounts are whole rupees.
type Rates struct {
	BookingType        BookingType
	BaseFare           int64
	PerKm              int64
	PerHour            int64
	PerWaitingMinute   int64
	FreeWaitingMinutes int
}

// DefaultRates is used when no rate card row exists for a booking type.
var DefaultRates = map[BookingType]Rates{
	BookingDistanceBased: {
		BookingType:        BookingDistanceBased,
		BaseFare:           50,
		PerKm:              12,
		PerWaitingMinute:   2,
		FreeWaitingMinutes: 3,
	},
	BookingTimeBased: {
		BookingType:        BookingTimeBased,
		BaseFare:           100,
		PerHour:            150,
		PerWaitingMinute:   2,
		FreeWaitingMinutes: 3,
	},
}

type PricingRequest struct {
	BookingType     BookingType
	RideType        RideType
	DistanceKm      float64
	BookingDuration float64 // hours, time-based only
	WaitingMinutes  int
}

type FareBreakdown struct {
	BaseFare      int64 `json:"baseFare"`
	DistanceFare  int64 `json:"distanceFare"`
	TimeFare      int64 `json:"timeFare"`
	WaitingCharge int64 `json:"waitingCharge"`
	TotalFare     int64 `json:"totalFare"`
}
