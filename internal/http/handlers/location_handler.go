// README: Location handlers: driver position reports and a ride's recorded path.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebook/internal/http/middleware"
	"ridebook/internal/modules/location"
	"ridebook/internal/types"
)

type LocationService interface {
	Report(ctx context.Context, rep location.Report) (*location.Snapshot, error)
	History(ctx context.Context, rideID types.ID, who types.Identity) ([]location.Snapshot, error)
}

type LocationHandler struct {
	location LocationService
}

func NewLocationHandler(svc LocationService) *LocationHandler {
	return &LocationHandler{location: svc}
}

type reportLocationReq struct {
	RideID string  `json:"rideId" binding:"required,uuid"`
	Lat    float64 `json:"lat" binding:"latitude"`
	Lng    float64 `json:"lng" binding:"longitude"`
}

func (h *LocationHandler) Report(c *gin.Context) {
	var req reportLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	_, err := h.location.Report(c.Request.Context(), location.Report{
		RideID:   types.ID(req.RideID),
		DriverID: types.ID(middleware.CallerUID(c)),
		Position: types.Point{Lat: req.Lat, Lng: req.Lng},
	})
	if err != nil {
		writeLocationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Location broadcasted", nil)
}

func (h *LocationHandler) History(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	snaps, err := h.location.History(c.Request.Context(), id, middleware.Caller(c))
	if err != nil {
		writeLocationError(c, err)
		return
	}
	if snaps == nil {
		snaps = []location.Snapshot{}
	}
	writeJSON(c, http.StatusOK, "", snaps)
}
