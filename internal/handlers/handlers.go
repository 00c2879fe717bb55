package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"papertrade/internal/auth"
	"papertrade/internal/database"
	"papertrade/internal/quote"
	"papertrade/internal/service"
)

type Handler struct {
	trading *service.Trading
	auth    *auth.Service
	quotes  quote.Provider
	log     *logrus.Logger
}

func NewHandler(trading *service.Trading, authSvc *auth.Service, quotes quote.Provider, log *logrus.Logger) *Handler {
	return &Handler{trading: trading, auth: authSvc, quotes: quotes, log: log}
}

type RegisterRequest struct {
	Username     string `json:"username" binding:"required"`
	Password     string `json:"password" binding:"required"`
	Confirmation string `json:"confirmation" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, pair, err := h.auth.Register(c.Request.Context(), req.Username, req.Password, req.Confirmation)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user_id":       id,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, pair, err := h.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":       id,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	access, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access})
}

func (h *Handler) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Quote(c *gin.Context) {
	q, err := h.quotes.Lookup(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol": q.Symbol,
		"name":   q.Name,
		"price":  q.Price.StringFixed(2),
	})
}

type TradeRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Shares int64  `json:"shares" binding:"required"`
}

func (h *Handler) Buy(c *gin.Context) {
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	balance, err := h.trading.Buy(c.Request.Context(), userID(c), req.Symbol, req.Shares)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance.StringFixed(2)})
}

func (h *Handler) Sell(c *gin.Context) {
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	balance, err := h.trading.Sell(c.Request.Context(), userID(c), req.Symbol, req.Shares)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance.StringFixed(2)})
}

type DepositRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount format"})
		return
	}
	balance, err := h.trading.Deposit(c.Request.Context(), userID(c), amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance.StringFixed(2)})
}

func (h *Handler) Portfolio(c *gin.Context) {
	view, err := h.trading.Portfolio(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	items := []gin.H{}
	for _, it := range view.Items {
		items = append(items, gin.H{
			"symbol": it.Symbol,
			"name":   it.Name,
			"shares": it.Shares,
			"price":  it.Price.StringFixed(2),
			"total":  it.Value.StringFixed(2),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"cash":        view.Cash.StringFixed(2),
		"grand_total": view.GrandTotal.StringFixed(2),
	})
}

func (h *Handler) History(c *gin.Context) {
	recs, err := h.trading.History(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	res := []gin.H{}
	for _, rec := range recs {
		res = append(res, gin.H{
			"symbol":    rec.Symbol,
			"name":      rec.Name,
			"shares":    rec.Shares,
			"action":    rec.Action,
			"price":     rec.Price.StringFixed(2),
			"total":     rec.Total.StringFixed(2),
			"timestamp": rec.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, res)
}

// fail maps domain errors to statuses; anything unexpected becomes a
// generic 500 so internals never leak to the caller.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrWeakInput),
		errors.Is(err, auth.ErrPasswordMismatch),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrInsufficientShares):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, quote.ErrUnknownSymbol):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, quote.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quote service unavailable, try again"})
	default:
		h.log.Errorf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func userID(c *gin.Context) int64 {
	return c.MustGet(userIDKey).(int64)
}
