package api

import (
	"context"
	"net/http"

	"p2p_wallet/internal/domain"
	"p2p_wallet/internal/social"
	"p2p_wallet/internal/utils"

	"github.com/gin-gonic/gin"
)

// FriendRequest is the body of POST /friendship/new
type FriendRequest struct {
	FriendDNI string `json:"friend_dni"`
}

// BlockRequest is the body of POST /friendship/block and /friendship/unblock
type BlockRequest struct {
	BlockedDNI string `json:"blocked_dni"`
}

// FavouriteRequest is the body of POST /friendship/favourite and /friendship/favourite/remove
type FavouriteRequest struct {
	FavouriteDNI string `json:"favourite_dni"`
}

// SendFriendRequestHandler asks another user for friendship
func SendFriendRequestHandler(svc *social.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		var req FriendRequest
		if !bindJSON(c, &req) {
			return
		}
		view, err := svc.SendRequest(c.Request.Context(), caller, req.FriendDNI)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

func respondFriendRequest(respond func(context.Context, domain.Caller, uint) error, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id", "Friendship request not found")
		if !ok {
			return
		}
		if err := respond(c.Request.Context(), caller, id); err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message})
	}
}

// AcceptFriendRequestHandler accepts a request addressed to the caller
func AcceptFriendRequestHandler(svc *social.Service) gin.HandlerFunc {
	return respondFriendRequest(svc.Accept, "Friendship request accepted")
}

// RejectFriendRequestHandler rejects a request addressed to the caller
func RejectFriendRequestHandler(svc *social.Service) gin.HandlerFunc {
	return respondFriendRequest(svc.Reject, "Friendship request rejected")
}

// relationHandler applies a relation change towards the DNI picked from the request
func relationHandler(apply func(context.Context, domain.Caller, string) error, target func(*gin.Context) (string, bool), message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		dni, ok := target(c)
		if !ok {
			return
		}
		if err := apply(c.Request.Context(), caller, dni); err != nil {
			utils.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message})
	}
}

func blockedTarget(c *gin.Context) (string, bool) {
	var req BlockRequest
	if !bindJSON(c, &req) {
		return "", false
	}
	return req.BlockedDNI, true
}

func favouriteTarget(c *gin.Context) (string, bool) {
	var req FavouriteRequest
	if !bindJSON(c, &req) {
		return "", false
	}
	return req.FavouriteDNI, true
}

// RemoveFriendHandler ends a friendship
func RemoveFriendHandler(svc *social.Service) gin.HandlerFunc {
	return relationHandler(svc.RemoveFriend, func(c *gin.Context) (string, bool) {
		return c.Param("dni"), true
	}, "Friend removed")
}

// BlockUserHandler blocks another user
func BlockUserHandler(svc *social.Service) gin.HandlerFunc {
	return relationHandler(svc.Block, blockedTarget, "User blocked")
}

// UnblockUserHandler lifts a block
func UnblockUserHandler(svc *social.Service) gin.HandlerFunc {
	return relationHandler(svc.Unblock, blockedTarget, "User unblocked")
}

// AddFavouriteHandler marks a user as favourite
func AddFavouriteHandler(svc *social.Service) gin.HandlerFunc {
	return relationHandler(svc.AddFavourite, favouriteTarget, "Favourite added")
}

// RemoveFavouriteHandler unmarks a favourite
func RemoveFavouriteHandler(svc *social.Service) gin.HandlerFunc {
	return relationHandler(svc.RemoveFavourite, favouriteTarget, "Favourite removed")
}

func listHandler[T any](list func(context.Context, domain.Caller) ([]T, error), field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		items, err := list(c.Request.Context(), caller)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if items == nil {
			items = []T{}
		}
		c.JSON(http.StatusOK, gin.H{field: items})
	}
}

// PendingFriendRequestsHandler lists friendship requests addressed to the caller
func PendingFriendRequestsHandler(svc *social.Service) gin.HandlerFunc {
	return listHandler(svc.ListPending, "requests")
}

// FriendsHandler lists the caller's friends
func FriendsHandler(svc *social.Service) gin.HandlerFunc {
	return listHandler(svc.ListFriends, "friends")
}

// BlockedUsersHandler lists the users the caller blocked
func BlockedUsersHandler(svc *social.Service) gin.HandlerFunc {
	return listHandler(svc.ListBlocked, "blocked")
}

// FavouritesHandler lists the caller's favourites
func FavouritesHandler(svc *social.Service) gin.HandlerFunc {
	return listHandler(svc.ListFavourites, "favourites")
}
