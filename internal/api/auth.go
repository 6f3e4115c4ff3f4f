package api

import (
	"net/http" // HTTP status codes

	"p2p_wallet/internal/users" // Identity store
	"p2p_wallet/internal/utils" // Response helpers

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Opening balance
)

// RegisterRequest is the body of POST /users/create
type RegisterRequest struct {
	DNI       string          `json:"dni"`        // National identity number
	Name      string          `json:"name"`       // Display name
	Email     string          `json:"email"`      // Login email
	Password  string          `json:"pwd"`        // Plain password, 8-64 characters
	BirthDate string          `json:"birth_date"` // YYYY-MM-DD
	Phone     string          `json:"phone"`      // Optional phone
	Address   string          `json:"address"`    // Optional address
	Image     string          `json:"image"`      // Optional avatar URL
	Amount    decimal.Decimal `json:"amount"`     // Opening balance, defaults to zero
}

// LoginRequest is the body of POST /auth/authenticate
type LoginRequest struct {
	Email    string `json:"email"`    // Login email
	Password string `json:"password"` // Plain password
}

// RegisterHandler creates a user account
func RegisterHandler(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if !bindJSON(c, &req) {
			return
		}
		user, err := svc.Create(c.Request.Context(), users.Registration{
			DNI:       req.DNI,
			Name:      req.Name,
			Email:     req.Email,
			Password:  req.Password,
			BirthDate: req.BirthDate,
			Phone:     req.Phone,
			Address:   req.Address,
			Image:     req.Image,
			Amount:    req.Amount,
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

// LoginHandler checks the credentials and returns a bearer token
func LoginHandler(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if !bindJSON(c, &req) {
			return
		}
		session, err := svc.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}
