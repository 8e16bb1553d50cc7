// README: Ride handlers: client create/get/cancel and the driver's pickup-to-completion actions.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebook/internal/http/middleware"
	"ridebook/internal/modules/pricing"
	"ridebook/internal/modules/ride"
	"ridebook/internal/types"
)

type RideService interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, bool, error)
	GetForActor(ctx context.Context, id types.ID, who types.Identity) (*ride.Ride, error)
	CancelByClient(ctx context.Context, cmd ride.CancelCommand) (*ride.Ride, error)
	MarkArrived(ctx context.Context, cmd ride.DriverAction) (*ride.Ride, error)
	VerifyOTP(ctx context.Context, cmd ride.VerifyOTPCommand) (*ride.Ride, error)
	MarkPaymentReceived(ctx context.Context, cmd ride.DriverAction) (*ride.Ride, error)
	Complete(ctx context.Context, cmd ride.DriverAction) (*ride.Ride, error)
	ActiveForDriver(ctx context.Context, driverID types.ID) (*ride.Ride, error)
	PendingRequest(ctx context.Context, driverID types.ID) (*ride.Ride, error)
	AcceptRide(ctx context.Context, cmd ride.DriverAction) (*ride.Ride, error)
	RejectRide(ctx context.Context, cmd ride.DriverAction) (*ride.Ride, error)
}

type RideHandler struct {
	rides RideService
}

func NewRideHandler(svc RideService) *RideHandler {
	return &RideHandler{rides: svc}
}

type createRideReq struct {
	BookingType     pricing.BookingType `json:"bookingType" binding:"required,oneof=distance_based time_based"`
	BookingDuration float64             `json:"bookingDuration" binding:"gte=0"`
	Pickup          types.Place         `json:"pickupLocation"`
	Drop            types.Place         `json:"dropLocation"`
	RideType        pricing.RideType    `json:"rideType" binding:"omitempty,oneof=one-way two-way"`
	DistanceKm      float64             `json:"distanceKm" binding:"gte=0"`
	PaymentMode     ride.PaymentMode    `json:"paymentMode" binding:"required,oneof=pay_now pay_after_ride"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	r, assigned, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		ClientID:        types.ID(middleware.CallerUID(c)),
		BookingType:     req.BookingType,
		BookingDuration: req.BookingDuration,
		Pickup:          req.Pickup,
		Drop:            req.Drop,
		RideType:        req.RideType,
		DistanceKm:      req.DistanceKm,
		PaymentMode:     req.PaymentMode,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	msg := "Ride requested, waiting for driver"
	if assigned {
		msg = "Ride requested & driver notified"
	}
	writeJSON(c, http.StatusCreated, msg, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.GetForActor(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", r)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.CancelByClient(c.Request.Context(), ride.CancelCommand{
		RideID:   id,
		ClientID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Ride cancelled successfully", r)
}

func (h *RideHandler) MarkArrived(c *gin.Context) {
	h.driverAction(c, h.rides.MarkArrived, "Driver arrived at pickup")
}

type verifyOTPReq struct {
	OTP string `json:"otp" binding:"required"`
}

func (h *RideHandler) VerifyOTP(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req verifyOTPReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	r, err := h.rides.VerifyOTP(c.Request.Context(), ride.VerifyOTPCommand{
		RideID:   id,
		DriverID: types.ID(middleware.CallerUID(c)),
		OTP:      req.OTP,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "OTP verified. Ride started", r.ForDriver())
}

func (h *RideHandler) PaymentReceived(c *gin.Context) {
	h.driverAction(c, h.rides.MarkPaymentReceived, "Payment marked as received")
}

func (h *RideHandler) Complete(c *gin.Context) {
	h.driverAction(c, h.rides.Complete, "Ride completed successfully")
}

func (h *RideHandler) Accept(c *gin.Context) {
	h.driverAction(c, h.rides.AcceptRide, "Ride accepted")
}

func (h *RideHandler) Reject(c *gin.Context) {
	h.driverAction(c, h.rides.RejectRide, "Ride rejected")
}

func (h *RideHandler) DriverActive(c *gin.Context) {
	r, err := h.rides.ActiveForDriver(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "No active ride found")
			return
		}
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", r)
}

func (h *RideHandler) PendingRequest(c *gin.Context) {
	r, err := h.rides.PendingRequest(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		if isNotFound(err) {
			writeJSON(c, http.StatusOK, "No ride request", nil)
			return
		}
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", r)
}

func (h *RideHandler) driverAction(c *gin.Context, act func(context.Context, ride.DriverAction) (*ride.Ride, error), msg string) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := act(c.Request.Context(), ride.DriverAction{RideID: id, DriverID: types.ID(middleware.CallerUID(c))})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, msg, r.ForDriver())
}

func isNotFound(err error) bool {
	return errors.Is(err, ride.ErrNotFound)
}
