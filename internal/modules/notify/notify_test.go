package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/gorilla/websocket"

	"ridebook/internal/types"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (r *recorder) Publish(_ context.Context, channel string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, channel+"/"+ev.Name)
	return r.err
}

func TestMulti_AttemptsAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &recorder{}, &recorder{err: boom}, &recorder{}
	err := Multi{a, b, nil, c}.Publish(context.Background(), RideChannel("r1"), StatusUpdate("ACCEPTED"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	for i, r := range []*recorder{a, b, c} {
		if len(r.events) != 1 || r.events[0] != "ride:r1/ride_status_update" {
			t.Errorf("notifier %d: events = %v", i, r.events)
		}
	}
}

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		channel string
		ev      Event
		want    string
	}{
		{RideChannel("abc"), StatusUpdate("ON_RIDE"), "ride.ride_status_update.abc"},
		{DriverChannel("d1"), Event{Name: EventRideRequest}, "driver.ride_request.d1"},
		{"broadcast", PaymentReceived(), "broadcast.payment_received"},
	}
	for _, tt := range tests {
		if got := RoutingKey(tt.channel, tt.ev); got != tt.want {
			t.Errorf("RoutingKey(%q, %s) = %q, want %q", tt.channel, tt.ev.Name, got, tt.want)
		}
	}
}

type fakeSender struct {
	sent []*messaging.Message
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.sent = append(f.sent, m)
	return "projects/x/messages/1", nil
}

func TestFCMPusher_OnlyRideRequestsToDrivers(t *testing.T) {
	sender := &fakeSender{}
	p := NewFCMPusher(sender, nil)
	ctx := context.Background()

	req := RideRequestPayload{
		RideID:    "r1",
		Pickup:    types.Place{Address: "Connaught Place", Point: types.Point{Lat: 28.6315, Lng: 77.2167}},
		Drop:      types.Place{Address: "India Gate", Point: types.Point{Lat: 28.6129, Lng: 77.2295}},
		TotalFare: 170,
		ExpiresAt: 1700000060,
	}
	if err := p.Publish(ctx, DriverChannel("d7"), Event{Name: EventRideRequest, Data: req}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = p.Publish(ctx, RideChannel("r1"), StatusUpdate("ACCEPTED"))
	_ = p.Publish(ctx, DriverChannel("d7"), StatusUpdate("ACCEPTED"))

	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one push, got %d", len(sender.sent))
	}
	m := sender.sent[0]
	if m.Topic != "driver_d7" {
		t.Errorf("topic = %q", m.Topic)
	}
	if m.Data["ride_id"] != "r1" || m.Data["total_fare"] != "170" {
		t.Errorf("unexpected data %v", m.Data)
	}
}

type allowRides map[types.ID]types.ID

func (a allowRides) CanJoinRide(_ context.Context, rideID types.ID, who types.Identity) (bool, error) {
	return a[rideID] == who.UserID, nil
}

func startHub(t *testing.T, auth RoomAuthorizer) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(auth, nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who := types.Identity{UserID: types.ID(r.URL.Query().Get("uid")), Role: types.Role(r.URL.Query().Get("role"))}
		if err := hub.ServeWS(w, r, who); err != nil {
			t.Logf("serve ws: %v", err)
		}
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, uid, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?uid=" + uid + "&role=" + role
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return msg
}

func TestHub_JoinRideAndReceiveEvents(t *testing.T) {
	hub, srv := startHub(t, allowRides{"r1": "c1"})
	conn := dial(t, srv, "c1", "client")

	if err := conn.WriteJSON(map[string]string{"type": "join_ride", "rideId": "r1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ack := readFrame(t, conn); ack.Type != "joined" || ack.Channel != "ride:r1" {
		t.Fatalf("expected join ack, got %+v", ack)
	}

	if err := hub.Publish(context.Background(), RideChannel("r1"), StatusUpdate("DRIVER_ARRIVED")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := readFrame(t, conn)
	if got.Type != EventRideStatus {
		t.Fatalf("type = %q", got.Type)
	}
	payload, _ := json.Marshal(got.Payload)
	if string(payload) != `{"status":"DRIVER_ARRIVED"}` {
		t.Fatalf("payload = %s", payload)
	}
}

func TestHub_ChatRelayedToRoom(t *testing.T) {
	_, srv := startHub(t, allowRides{"r1": "c1", "r2": "c1"})
	client := dial(t, srv, "c1", "client")

	_ = client.WriteJSON(map[string]string{"type": "join_ride", "rideId": "r1"})
	readFrame(t, client)

	// Chat to a room the sender never joined is dropped; the next frame is the r1 relay.
	_ = client.WriteJSON(map[string]string{"type": "chat_message", "rideId": "r2", "message": "lost"})
	_ = client.WriteJSON(map[string]string{"type": "chat_message", "rideId": "r1", "message": "at gate 2"})

	got := readFrame(t, client)
	if got.Type != EventChatMessage || got.Channel != "ride:r1" {
		t.Fatalf("unexpected frame %+v", got)
	}
	payload, _ := json.Marshal(got.Payload)
	if !strings.Contains(string(payload), `"message":"at gate 2"`) || !strings.Contains(string(payload), `"from":"c1"`) {
		t.Fatalf("payload = %s", payload)
	}
}

func TestHub_DriverGetsOwnChannel(t *testing.T) {
	hub, srv := startHub(t, allowRides{})
	conn := dial(t, srv, "d1", "driver")

	if ack := readFrame(t, conn); ack.Channel != "driver:d1" {
		t.Fatalf("expected driver channel ack, got %+v", ack)
	}
	_ = hub.Publish(context.Background(), DriverChannel("d2"), Event{Name: EventRideRequest, Data: "other"})
	_ = hub.Publish(context.Background(), DriverChannel("d1"), Event{Name: EventRideRequest, Data: "mine"})
	if got := readFrame(t, conn); got.Payload != "mine" {
		t.Fatalf("expected only own driver channel, got %+v", got)
	}
}
