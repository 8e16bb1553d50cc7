// README: FCM push for ride requests. Only driver-channel ride_request events are pushed.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// MessageSender is the subset of *messaging.Client used here.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMPusher struct {
	client MessageSender
	log    *zap.Logger
}

func NewFCMPusher(client MessageSender, log *zap.Logger) *FCMPusher {
	if log == nil {
		log = zap.NewNop()
	}
	return &FCMPusher{client: client, log: log}
}

// DriverTopic is the FCM topic a driver's devices subscribe to.
func DriverTopic(driverID string) string { return "driver_" + driverID }

func (p *FCMPusher) Publish(ctx context.Context, channel string, ev Event) error {
	driverID, ok := strings.CutPrefix(channel, "driver:")
	if !ok || ev.Name != EventRideRequest {
		return nil
	}
	req, ok := ev.Data.(RideRequestPayload)
	if !ok {
		return fmt.Errorf("fcm: unexpected payload %T for %s", ev.Data, ev.Name)
	}

	msg := &messaging.Message{
		Topic: DriverTopic(driverID),
		Data: map[string]string{
			"type":       EventRideRequest,
			"ride_id":    string(req.RideID),
			"pickup_lat": strconv.FormatFloat(req.Pickup.Lat, 'f', 6, 64),
			"pickup_lng": strconv.FormatFloat(req.Pickup.Lng, 'f', 6, 64),
			"drop_lat":   strconv.FormatFloat(req.Drop.Lat, 'f', 6, 64),
			"drop_lng":   strconv.FormatFloat(req.Drop.Lng, 'f', 6, 64),
			"total_fare": strconv.FormatInt(req.TotalFare, 10),
			"expires_at": strconv.FormatInt(req.ExpiresAt, 10),
		},
		Notification: &messaging.Notification{
			Title: "New ride request",
			Body:  fmt.Sprintf("Pickup at %s, fare ₹%d", req.Pickup.Address, req.TotalFare),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	id, err := p.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm send to %s: %w", msg.Topic, err)
	}
	p.log.Debug("fcm sent", zap.String("ride_id", string(req.RideID)), zap.String("message_id", id))
	return nil
}
