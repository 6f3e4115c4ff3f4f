package api

import (
	"net/http" // HTTP status codes
	"strconv"  // Cache key building
	"strings"  // String manipulation
	"time"     // Time durations

	"p2p_wallet/internal/cards"  // Card registry
	"p2p_wallet/internal/domain" // Domain models
	"p2p_wallet/internal/ledger" // Transfer engine
	"p2p_wallet/internal/users"  // Identity store
	"p2p_wallet/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
)

const (
	adminCacheTTL = 60 * time.Second // Admin listings tolerate a minute of staleness
	adminDateFmt  = "2006-01-02"     // from / to query format
	adminUsersKey = utils.AdminCachePrefix + "users:"
	adminTxsKey   = utils.AdminCachePrefix + "transactions:"
	adminCardsKey = utils.AdminCachePrefix + "cards:"
)

// adminPage is the paginated, cacheable body of every admin listing
type adminPage[T any] struct {
	Items      []T   `json:"items"`       // Page content
	Page       int   `json:"page"`        // Current page
	PageSize   int   `json:"page_size"`   // Page size
	Total      int64 `json:"total"`       // Total number of rows
	TotalPages int   `json:"total_pages"` // Total pages
	Cached     bool  `json:"cached"`      // Response served from Redis
}

func pageKey(prefix string, p utils.Page) string {
	return prefix + "page=" + strconv.Itoa(p.Page) + ":size=" + strconv.Itoa(p.PageSize)
}

// serveCached answers from Redis when possible, otherwise loads the page and caches it
func serveCached[T any](c *gin.Context, rdb *redis.Client, key string, page utils.Page, load func() ([]T, int64, error)) {
	ctx := c.Request.Context()
	var cached adminPage[T]
	// If cached data found, return it
	if found, err := utils.GetCache(ctx, rdb, key, &cached); err == nil && found {
		cached.Cached = true
		c.JSON(http.StatusOK, cached)
		return
	}
	items, total, err := load()
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	resp := adminPage[T]{
		Items:      items,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      total,
		TotalPages: totalPages(total, page.PageSize),
	}
	// Cache the response for future requests
	_ = utils.SetCache(ctx, rdb, key, resp, adminCacheTTL)
	c.JSON(http.StatusOK, resp)
}

// ListUsersHandler returns every user with balance and flags
func ListUsersHandler(svc *users.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		page := utils.PageFromQuery(c)
		serveCached(c, rdb, pageKey(adminUsersKey, page), page, func() ([]domain.User, int64, error) {
			return svc.List(c.Request.Context(), caller, page)
		})
	}
}

// ListCardsHandler returns every registered card, masked
func ListCardsHandler(svc *cards.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := utils.PageFromQuery(c)
		serveCached(c, rdb, pageKey(adminCardsKey, page), page, func() ([]domain.CardView, int64, error) {
			list, total, err := svc.ListAll(c.Request.Context(), page)
			return cardViews(list), total, err
		})
	}
}

// ListTransactionsHandler returns all transfers, optionally filtered by user, type, status or date
func ListTransactionsHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := utils.PageFromQuery(c)
		filter := ledger.AdminFilter{UserDNI: c.Query("user_dni"), Page: page}
		if raw := c.Query("type"); raw != "" {
			t, err := domain.ParseTransactionType(strings.ToUpper(raw))
			if err != nil {
				utils.RespondStatus(c, http.StatusBadRequest, "Invalid transaction type")
				return
			}
			filter.Type = t
		}
		if raw := c.Query("status"); raw != "" {
			s, err := domain.ParseTransactionStatus(strings.ToUpper(raw))
			if err != nil {
				utils.RespondStatus(c, http.StatusBadRequest, "Invalid transaction status")
				return
			}
			filter.Status = s
		}
		if raw := c.Query("from"); raw != "" {
			from, err := time.Parse(adminDateFmt, raw)
			if err != nil {
				utils.RespondStatus(c, http.StatusBadRequest, "Dates must be in YYYY-MM-DD format")
				return
			}
			filter.From = from
		}
		if raw := c.Query("to"); raw != "" {
			to, err := time.Parse(adminDateFmt, raw)
			if err != nil {
				utils.RespondStatus(c, http.StatusBadRequest, "Dates must be in YYYY-MM-DD format")
				return
			}
			filter.To = to.AddDate(0, 0, 1) // inclusive day
		}
		// Build cache key from all query params
		var keyParts []string
		for _, k := range []string{"user_dni", "type", "status", "from", "to"} {
			keyParts = append(keyParts, k+"="+c.Query(k))
		}
		key := pageKey(adminTxsKey+strings.Join(keyParts, ":")+":", page)
		serveCached(c, rdb, key, page, func() ([]domain.TransactionView, int64, error) {
			return engine.ListAll(c.Request.Context(), filter)
		})
	}
}

// SetUserActiveHandler activates or deactivates the user in the path
func SetUserActiveHandler(svc *users.Service, rdb *redis.Client, active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := callerOrAbort(c)
		if !ok {
			return
		}
		user, err := svc.SetActive(c.Request.Context(), caller, c.Param("dni"), active)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if err := utils.DeletePrefix(c.Request.Context(), rdb, adminUsersKey); err != nil {
			logrus.WithError(err).Warn("Failed to invalidate admin user listing")
		}
		c.JSON(http.StatusOK, user)
	}
}
