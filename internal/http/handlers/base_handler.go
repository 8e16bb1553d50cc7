// README: Base handler utilities (envelope helpers, ID validation, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ridebook/internal/http/response"
	"ridebook/internal/modules/auth"
	"ridebook/internal/modules/driver"
	"ridebook/internal/modules/location"
	"ridebook/internal/modules/otp"
	"ridebook/internal/modules/ride"
	"ridebook/internal/types"
)

func init() {
	// Bind errors name fields the way clients send them.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	}
}

// isValidID accepts the UUIDs our ID generator produces.
func isValidID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

func pathID(c *gin.Context, name string) (types.ID, bool) {
	id := c.Param(name)
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(id), true
}

func writeJSON(c *gin.Context, status int, message string, v any) {
	response.Success(c, status, message, v)
}

func writeError(c *gin.Context, status int, msg string) {
	response.Error(c, status, msg)
}

// writeBindError reports the first field that failed validation, or a malformed body.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	fe := verrs[0]
	if strings.HasPrefix(fe.Tag(), "required") {
		writeError(c, http.StatusBadRequest, fe.Field()+" required")
		return
	}
	writeError(c, http.StatusBadRequest, "invalid "+fe.Field())
}

// writeInternal records err for the request logger and hides it from the caller.
func writeInternal(c *gin.Context, err error) {
	_ = c.Error(err)
	writeError(c, http.StatusInternalServerError, "internal error")
}

func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound):
		writeError(c, http.StatusNotFound, "Ride not found")
	case errors.Is(err, ride.ErrBlocked):
		writeError(c, http.StatusForbidden, "Account blocked due to excessive cancellations")
	case errors.Is(err, ride.ErrForbidden):
		writeError(c, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, ride.ErrInvalidState):
		writeError(c, http.StatusBadRequest, "Invalid state")
	case errors.Is(err, ride.ErrInvalidOTP):
		writeError(c, http.StatusBadRequest, "Invalid OTP")
	case errors.Is(err, ride.ErrWindowExpired):
		writeError(c, http.StatusBadRequest, "Cancellation window expired")
	case errors.Is(err, ride.ErrPaymentRequired):
		writeError(c, http.StatusBadRequest, "Payment not completed yet")
	case errors.Is(err, ride.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writeDriverError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, driver.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, driver.ErrForbidden):
		writeError(c, http.StatusForbidden, "Complete KYC to go online")
	case errors.Is(err, driver.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, driver.ErrOffline):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		writeInternal(c, err)
	}
}

func writeLocationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, location.ErrBadRequest), errors.Is(err, location.ErrInvalidState):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, location.ErrNotFound):
		writeError(c, http.StatusNotFound, "Ride not found")
	case errors.Is(err, location.ErrForbidden):
		writeError(c, http.StatusForbidden, "Unauthorized")
	default:
		writeInternal(c, err)
	}
}

func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrBadRequest), errors.Is(err, otp.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(c, http.StatusBadRequest, "Email exists")
	case errors.Is(err, auth.ErrInvalidOTP):
		writeError(c, http.StatusBadRequest, "Invalid OTP")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, auth.ErrWrongPassword):
		writeError(c, http.StatusUnauthorized, "Wrong password")
	case errors.Is(err, otp.ErrDispatch):
		_ = c.Error(err)
		writeError(c, http.StatusBadGateway, "could not send OTP email")
	default:
		writeInternal(c, err)
	}
}
