// README: Real-time notifier: named events published to ride and driver channels, at-most-once.
package notify

import (
	"context"
	"errors"

	"ridebook/internal/types"
)

const (
	EventDriverLocation  = "driver_location_update"
	EventRideStatus      = "ride_status_update"
	EventPaymentReceived = "payment_received"
	EventRideRequest     = "ride_request"
	EventChatMessage     = "chat_message"
)

// Event is one named message on a channel.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

type Notifier interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

func RideChannel(rideID types.ID) string { return "ride:" + string(rideID) }

func DriverChannel(driverID types.ID) string { return "driver:" + string(driverID) }

type LocationPayload struct {
	RideID types.ID `json:"rideId"`
	Lat    float64  `json:"lat"`
	Lng    float64  `json:"lng"`
}

type StatusPayload struct {
	Status string `json:"status"`
}

// RideRequestPayload is what an assigned driver is told about a new ride.
type RideRequestPayload struct {
	RideID    types.ID    `json:"rideId"`
	Pickup    types.Place `json:"pickupLocation"`
	Drop      types.Place `json:"dropLocation"`
	TotalFare int64       `json:"totalFare"`
	ExpiresAt int64       `json:"requestExpiresAt"`
}

type ChatPayload struct {
	RideID  types.ID `json:"rideId"`
	From    types.ID `json:"from"`
	Role    string   `json:"role"`
	Message string   `json:"message"`
}

func LocationUpdate(rideID types.ID, p types.Point) Event {
	return Event{Name: EventDriverLocation, Data: LocationPayload{RideID: rideID, Lat: p.Lat, Lng: p.Lng}}
}

func StatusUpdate(status string) Event {
	return Event{Name: EventRideStatus, Data: StatusPayload{Status: status}}
}

func PaymentReceived() Event {
	return Event{Name: EventPaymentReceived, Data: struct{}{}}
}

// Multi fans an event out to every notifier. All are attempted; errors are joined.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, channel string, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, channel, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }
