package api

import (
	"time"

	"p2p_wallet/internal/apikeys"
	"p2p_wallet/internal/cards"
	"p2p_wallet/internal/ledger"
	"p2p_wallet/internal/middleware"
	"p2p_wallet/internal/social"
	"p2p_wallet/internal/users"
	"p2p_wallet/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP layer is built on
type Deps struct {
	DB             *gorm.DB
	Redis          *redis.Client // Optional, caching and idempotency are skipped without it
	Users          *users.Service
	Cards          *cards.Service
	Social         *social.Service
	Ledger         *ledger.Engine
	APIKeys        *apikeys.Service
	Idempotency    *utils.IdempotencyStore
	JWTSecret      string
	RequestTimeout time.Duration
	TrustedProxies []string
}

// NewRouter wires every route onto a new gin engine
func NewRouter(d Deps) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Timeout(d.RequestTimeout))
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		return nil, err
	}

	auth := middleware.JWTAuthMiddleware(d.JWTSecret, d.Users)

	r.GET("/healthz", HealthHandler(d.DB, d.Redis))
	r.POST("/auth/authenticate", LoginHandler(d.Users))

	userGroup := r.Group("/users")
	userGroup.POST("/create", RegisterHandler(d.Users))
	userGroup.GET("/me", auth, GetMeHandler(d.Users))
	userGroup.GET("/:dni", auth, GetUserHandler(d.Users))
	userGroup.PUT("/:dni/update", auth, UpdateUserHandler(d.Users))

	cardGroup := r.Group("/cards", auth)
	cardGroup.POST("/card", RegisterCardHandler(d.Cards))
	cardGroup.GET("/me", ListMyCardsHandler(d.Cards))
	cardGroup.GET("/card/:number", GetCardHandler(d.Cards))
	cardGroup.PUT("/card/:number", UpdateCardHandler(d.Cards))
	cardGroup.DELETE("/card/:number", DeleteCardHandler(d.Cards))

	txGroup := r.Group("/transactions", auth)
	txGroup.POST("/create", CreateTransferHandler(d.Ledger, d.Users, d.Redis, d.Idempotency))
	txGroup.POST("/createrequest", CreateTransferRequestHandler(d.Ledger, d.Users, d.Redis))
	txGroup.POST("/acceptrequest/:id", AcceptTransferRequestHandler(d.Ledger, d.Users, d.Redis))
	txGroup.POST("/rejectrequest/:id", RejectTransferRequestHandler(d.Ledger, d.Users, d.Redis))
	txGroup.POST("/revokerequest/:id", RevokeTransferRequestHandler(d.Ledger, d.Users, d.Redis))
	txGroup.GET("/me", TransactionHistoryHandler(d.Ledger, d.Redis))
	txGroup.GET("/pending", PendingTransfersHandler(d.Ledger))
	txGroup.GET("/outgoing", OutgoingTransfersHandler(d.Ledger))
	txGroup.GET("/:id", GetTransactionHandler(d.Ledger))

	friendGroup := r.Group("/friendship", auth)
	friendGroup.GET("/pending", PendingFriendRequestsHandler(d.Social))
	friendGroup.GET("/friends", FriendsHandler(d.Social))
	friendGroup.GET("/blocked", BlockedUsersHandler(d.Social))
	friendGroup.GET("/favourites", FavouritesHandler(d.Social))
	friendGroup.POST("/new", SendFriendRequestHandler(d.Social))
	friendGroup.POST("/accept/:id", AcceptFriendRequestHandler(d.Social))
	friendGroup.POST("/reject/:id", RejectFriendRequestHandler(d.Social))
	friendGroup.POST("/block", BlockUserHandler(d.Social))
	friendGroup.POST("/unblock", UnblockUserHandler(d.Social))
	friendGroup.POST("/favourite", AddFavouriteHandler(d.Social))
	friendGroup.POST("/favourite/remove", RemoveFavouriteHandler(d.Social))
	friendGroup.DELETE("/delete/:dni", RemoveFriendHandler(d.Social))

	apiGroup := r.Group("/api")
	apiGroup.POST("/requestkey", auth, CreateAPIKeyHandler(d.APIKeys))
	apiGroup.GET("/getkeys", auth, ListAPIKeysHandler(d.APIKeys))
	apiGroup.PUT("/updatekey", auth, RotateAPIKeyHandler(d.APIKeys))
	apiGroup.DELETE("/deletekey/:id", auth, DeleteAPIKeyHandler(d.APIKeys))
	apiGroup.POST("/payments/request", middleware.APIKeyMiddleware(d.APIKeys), PaymentRequestHandler(d.Ledger, d.Users, d.Redis))

	adminGroup := r.Group("/admin", auth, middleware.AdminOnlyMiddleware())
	adminGroup.GET("/users", ListUsersHandler(d.Users, d.Redis))
	adminGroup.GET("/transactions", ListTransactionsHandler(d.Ledger, d.Redis))
	adminGroup.GET("/cards", ListCardsHandler(d.Cards, d.Redis))
	adminGroup.POST("/users/:dni/activate", SetUserActiveHandler(d.Users, d.Redis, true))
	adminGroup.POST("/users/:dni/deactivate", SetUserActiveHandler(d.Users, d.Redis, false))

	return r, nil
}
