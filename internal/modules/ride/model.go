// README: Ride aggregate and status definitions.
package ride

import (
	"time"

	"ridebook/internal/modules/pricing"
	"ridebook/internal/types"
)

type Status string

const (
	StatusRequested         Status = "REQUESTED"
	StatusAccepted          Status = "ACCEPTED"
	StatusDriverArrived     Status = "DRIVER_ARRIVED"
	StatusOnRide            Status = "ON_RIDE"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelledByClient Status = "CANCELLED_BY_CLIENT"
	StatusCancelledByDriver Status = "CANCELLED_BY_DRIVER"
)

type PaymentMode string

const (
	PayNow       PaymentMode = "pay_now"
	PayAfterRide PaymentMode = "pay_after_ride"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)

const (
	RequestTTL         = 60 * time.Second
	CancellationWindow = 5 * time.Minute
	PickupOTPLength    = 4
)

type Ride struct {
	ID              types.ID              `json:"id"`
	ClientID        types.ID              `json:"clientId"`
	DriverID        *types.ID             `json:"driverId"`
	BookingType     pricing.BookingType   `json:"bookingType"`
	BookingDuration float64               `json:"bookingDuration,omitempty"`
	Pickup          types.Place           `json:"pickupLocation"`
	Drop            types.Place           `json:"dropLocation"`
	RideType        pricing.RideType      `json:"rideType"`
	DistanceKm      float64               `json:"distanceKm"`
	WaitingTime     int                   `json:"waitingTime"`
	Fare            pricing.FareBreakdown `json:"fareBreakdown"`
	PaymentMode     PaymentMode           `json:"paymentMode"`
	PaymentStatus   PaymentStatus         `json:"paymentStatus"`
	OTP             string                `json:"otp,omitempty"`
	OTPVerified     bool                  `json:"otpVerified"`
	Status          Status                `json:"status"`
	FinalFareLocked bool                  `json:"finalFareLocked"`
	Version         int                   `json:"-"`

	AssignedAt        *time.Time `json:"assignedAt,omitempty"`
	RequestExpiresAt  *time.Time `json:"requestExpiresAt,omitempty"`
	AcceptedAt        *time.Time `json:"acceptedAt,omitempty"`
	ArrivedAt         *time.Time `json:"arrivedAt,omitempty"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CancelledAt       *time.Time `json:"cancelledAt,omitempty"`
	PaymentReceivedAt *time.Time `json:"paymentReceivedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// AllowedTransitions represents the ride state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusRequested:     {StatusAccepted, StatusCancelledByClient, StatusCancelledByDriver},
	StatusAccepted:      {StatusDriverArrived, StatusCancelledByClient, StatusCancelledByDriver},
	StatusDriverArrived: {StatusOnRide},
	StatusOnRide:        {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelledByClient, StatusCancelledByDriver:
		return true
	}
	return false
}

// AssignedTo reports whether driverID is the ride's driver.
func (r *Ride) AssignedTo(driverID types.ID) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}

// ForDriver is the driver's view: the pickup OTP is withheld.
func (r Ride) ForDriver() Ride {
	r.OTP = ""
	return r
}

func (r *Ride) clone() *Ride {
	cp := *r
	if r.DriverID != nil {
		d := *r.DriverID
		cp.DriverID = &d
	}
	return &cp
}

func (r *Ride) pricingRequest() pricing.PricingRequest {
	return pricing.PricingRequest{
		BookingType:     r.BookingType,
		RideType:        r.RideType,
		DistanceKm:      r.DistanceKm,
		BookingDuration: r.BookingDuration,
		WaitingMinutes:  r.WaitingTime,
	}
}
