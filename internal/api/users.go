package api

import (
	"net/http"

	"p2p_wallet/internal/users"
	"p2p_wallet/internal/utils"

	"github.com/gin-gonic/gin"
)

// ProfileRequest is the body of PUT /users/:dni/update; absent fields are kept
type ProfileRequest struct {
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	BirthDate *string `json:"birth_date"`
	Image     *string `json:"image"`
}

// GetMeHandler returns the caller's own profile, balance included
func GetMeHandler(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		user, err := svc.Get(c.Request.Context(), caller.DNI())
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// GetUserHandler returns a full profile to its owner or an admin and the public summary to anyone else
func GetUserHandler(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		user, err := svc.Get(c.Request.Context(), c.Param("dni"))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if caller.DNI() == user.DNI || caller.IsAdmin() {
			c.JSON(http.StatusOK, user)
			return
		}
		c.JSON(http.StatusOK, user.Summary())
	}
}

// UpdateUserHandler edits a profile
func UpdateUserHandler(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		var req ProfileRequest
		if !bindJSON(c, &req) {
			return
		}
		user, err := svc.Update(c.Request.Context(), caller, c.Param("dni"), users.Profile{
			Name:      req.Name,
			Phone:     req.Phone,
			Address:   req.Address,
			BirthDate: req.BirthDate,
			Image:     req.Image,
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
