// README: Driver handlers: availability toggle and status.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridebook/internal/http/middleware"
	"ridebook/internal/modules/driver"
	"ridebook/internal/types"
)

type DriverService interface {
	SetStatus(ctx context.Context, cmd driver.SetStatusCommand) (*driver.Status, error)
	Get(ctx context.Context, driverID types.ID) (*driver.Status, error)
}

type DriverHandler struct {
	drivers DriverService
}

func NewDriverHandler(svc DriverService) *DriverHandler {
	return &DriverHandler{drivers: svc}
}

type toggleStatusReq struct {
	IsOnline *bool    `json:"isOnline" binding:"required"`
	Lat      *float64 `json:"lat" binding:"omitempty,latitude"`
	Lng      *float64 `json:"lng" binding:"omitempty,longitude"`
}

type driverStatusView struct {
	DriverID types.ID     `json:"driverId"`
	IsOnline bool         `json:"isOnline"`
	Location *types.Point `json:"location"`
	LastSeen time.Time    `json:"lastSeen"`
}

func statusView(st *driver.Status) driverStatusView {
	return driverStatusView{DriverID: st.DriverID, IsOnline: st.IsOnline, Location: st.Location, LastSeen: st.LastSeen}
}

func (h *DriverHandler) ToggleStatus(c *gin.Context) {
	var req toggleStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	cmd := driver.SetStatusCommand{
		DriverID: types.ID(middleware.CallerUID(c)),
		IsOnline: *req.IsOnline,
	}
	if req.Lat != nil && req.Lng != nil {
		cmd.Location = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	st, err := h.drivers.SetStatus(c.Request.Context(), cmd)
	if err != nil {
		writeDriverError(c, err)
		return
	}
	msg := "Driver is now Offline"
	if st.IsOnline {
		msg = "Driver is now Online"
	}
	writeJSON(c, http.StatusOK, msg, statusView(st))
}

func (h *DriverHandler) Status(c *gin.Context) {
	st, err := h.drivers.Get(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDriverError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", statusView(st))
}
