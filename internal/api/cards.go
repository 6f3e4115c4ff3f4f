package api

import (
	"net/http"

	"p2p_wallet/internal/cards"
	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/utils"

	"github.com/gin-gonic/gin"
)

// CardRequest is the body of POST /cards/card
type CardRequest struct {
	Number         string `json:"number"`
	CVV            string `json:"cvv"`
	Type           string `json:"type"`
	ExpirationDate string `json:"expiration_date"` // MM/YY
	HolderName     string `json:"card_holder_name"`
}

// CardPatchRequest is the body of PUT /cards/card/:number
type CardPatchRequest struct {
	Active         *bool   `json:"active"`
	HolderName     *string `json:"card_holder_name"`
	ExpirationDate *string `json:"expiration_date"`
}

func cardViews(list []domain.Card) []domain.CardView {
	views := make([]domain.CardView, len(list))
	for i := range list {
		views[i] = list[i].View()
	}
	return views
}

// RegisterCardHandler links a card to the caller
func RegisterCardHandler(svc *cards.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		var req CardRequest
		if !bindJSON(c, &req) {
			return
		}
		card, err := svc.Register(c.Request.Context(), caller, cards.Registration{
			Number:     req.Number,
			CVV:        req.CVV,
			Type:       req.Type,
			Expiration: req.ExpirationDate,
			HolderName: req.HolderName,
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, card.View())
	}
}

// ListMyCardsHandler lists the caller's cards
func ListMyCardsHandler(svc *cards.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		list, err := svc.ListMine(c.Request.Context(), caller)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cards": cardViews(list)})
	}
}

// GetCardHandler returns one card of the caller
func GetCardHandler(svc *cards.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		card, err := svc.Get(c.Request.Context(), caller, c.Param("number"))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, card.View())
	}
}

// UpdateCardHandler edits holder name, expiry or active flag
func UpdateCardHandler(svc *cards.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		var req CardPatchRequest
		if !bindJSON(c, &req) {
			return
		}
		card, err := svc.Update(c.Request.Context(), caller, c.Param("number"), cards.Patch{
			Active:     req.Active,
			HolderName: req.HolderName,
			Expiration: req.ExpirationDate,
		})
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, card.View())
	}
}

// DeleteCardHandler deactivates a card; it stays referenced by past transfers
func DeleteCardHandler(svc *cards.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		if err := svc.Deactivate(c.Request.Context(), caller, c.Param("number")); err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Card deactivated"})
	}
}
