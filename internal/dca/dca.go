package dca

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/dca-api/internal/auth"
	"github.com/ksred/dca-api/internal/custody"
	"github.com/ksred/dca-api/internal/types"
	"github.com/ksred/dca-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the admin interface over the order store: creation, funding,
// cancellation and withdrawal, plus the read-only query surface. It enforces
// caller authorization before delegating and holds no state of its own.
type Service struct {
	db     *Database
	ledger *custody.Ledger
}

// NewService creates a DCA admin service over the given database connection.
func NewService(gormDB *gorm.DB, ledger *custody.Ledger) *Service {
	return &Service{
		db:     NewDatabase(gormDB, ledger),
		ledger: ledger,
	}
}

// Database exposes the underlying order store for the execution engine and
// scheduler.
func (s *Service) Database() *Database {
	return s.db
}

// CreateOrder validates and persists a new recurring-purchase order for
// owner. The order starts ACTIVE with a zero budget; it only becomes
// executable once funded.
func (s *Service) CreateOrder(owner string, req *types.CreateOrderRequest) (*types.Order, error) {
	if req.TrancheAmount <= 0 {
		return nil, fmt.Errorf("%w: tranche amount must be positive", types.ErrInvalidParameters)
	}
	if req.IntervalSeconds <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", types.ErrInvalidParameters)
	}
	if req.MaxExecutions < 0 {
		return nil, fmt.Errorf("%w: max executions must not be negative", types.ErrInvalidParameters)
	}
	if req.SourceAsset == "" || req.TargetAsset == "" || req.SourceAsset == req.TargetAsset {
		return nil, fmt.Errorf("%w: source and target assets must differ", types.ErrInvalidParameters)
	}

	side := req.Side
	if side == "" {
		side = types.SideBuy
	}
	if side != types.SideBuy && side != types.SideSell {
		return nil, fmt.Errorf("%w: side must be BUY or SELL", types.ErrInvalidParameters)
	}

	now := time.Now()
	startAt := now
	if req.StartAt > 0 {
		startAt = time.Unix(req.StartAt, 0)
	}

	order := &types.Order{
		OrderID:         uuid.New().String(),
		Owner:           owner,
		SourceAsset:     req.SourceAsset,
		TargetAsset:     req.TargetAsset,
		Side:            side,
		TrancheAmount:   req.TrancheAmount,
		IntervalSeconds: req.IntervalSeconds,
		MaxExecutions:   req.MaxExecutions,
		NextEligibleAt:  startAt,
		Status:          types.OrderStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.CreateOrder(order); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("owner", owner).
		Str("source_asset", order.SourceAsset).
		Str("target_asset", order.TargetAsset).
		Int64("tranche_amount", order.TrancheAmount).
		Int64("interval_seconds", order.IntervalSeconds).
		Msg("order created")

	return order, nil
}

// GetOrderForOwner retrieves an order scoped to its owner.
func (s *Service) GetOrderForOwner(orderID, owner string) (*types.Order, error) {
	order, err := s.db.GetOrderByOrderIDAndOwner(orderID, owner)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrNotFound
	}
	return order, nil
}

// FundOrder moves amount from the owner's custody balance into the order's
// budget.
func (s *Service) FundOrder(orderID, caller string, amount int64) (*types.Order, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: funding amount must be positive", types.ErrInvalidParameters)
	}

	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrNotFound
	}
	if order.Owner != caller {
		return nil, types.ErrUnauthorized
	}

	funded, err := s.db.FundOrder(orderID, amount)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", orderID).
		Int64("amount", amount).
		Int64("remaining_budget", funded.RemainingBudget).
		Msg("order funded")

	return funded, nil
}

// CancelOrder transitions an active order to CANCELLED on behalf of caller.
func (s *Service) CancelOrder(orderID, caller string) (*types.Order, error) {
	order, err := s.db.CancelOrder(orderID, caller)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", orderID).
		Str("owner", caller).
		Msg("order cancelled")

	return order, nil
}

// WithdrawRemaining returns the unused budget of a cancelled order to the
// owner.
func (s *Service) WithdrawRemaining(orderID, caller string) (*types.WithdrawResponse, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrNotFound
	}

	amount, err := s.db.WithdrawRemaining(orderID, caller)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", orderID).
		Int64("amount", amount).
		Msg("remaining budget withdrawn")

	return &types.WithdrawResponse{
		OrderID: orderID,
		Asset:   order.SourceAsset,
		Amount:  amount,
	}, nil
}

// ListExecutions returns an order's execution history for its owner.
func (s *Service) ListExecutions(orderID, owner string) ([]types.ExecutionRecord, error) {
	order, err := s.db.GetOrderByOrderIDAndOwner(orderID, owner)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, types.ErrNotFound
	}
	return s.db.ListExecutions(orderID)
}

// BalanceOf returns the owner's custody balance in asset.
func (s *Service) BalanceOf(owner, asset string) (int64, error) {
	return s.ledger.BalanceOf(owner, asset)
}

// Deposit credits the owner's custody balance from outside the ledger.
func (s *Service) Deposit(owner, asset string, amount int64) (int64, error) {
	if err := s.ledger.TransferIn(owner, asset, amount); err != nil {
		return 0, err
	}
	return s.ledger.BalanceOf(owner, asset)
}

// GinHandlers contains HTTP handlers for the order admin and query endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ownerFromContext extracts the authenticated owner identity set by the JWT
// middleware.
func ownerFromContext(c *gin.Context) (string, bool) {
	claims, exists := c.Get("claims")
	if !exists {
		response.Unauthorized(c, "Missing authentication claims")
		return "", false
	}

	owner := auth.GetClientID(claims)
	if owner == "" {
		response.Unauthorized(c, "Invalid client ID in token")
		return "", false
	}
	return owner, true
}

// CreateOrderHandler handles POST requests to create new DCA orders
// Requires a valid JWT token; the owner is taken from the token claims
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerFromContext(c)
		if !ok {
			return
		}

		var req types.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateOrder(owner, &req)
		response.Handle(c, order, err)
	}
}

// GetOrderHandler handles GET requests for an order's current state
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerFromContext(c)
		if !ok {
			return
		}

		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.service.GetOrderForOwner(orderID, owner)
		response.Handle(c, order, err)
	}
}

// ListExecutionsHandler handles GET requests for an order's execution history
// URL parameter: order_id
func (h *GinHandlers) ListExecutionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerFromContext(c)
		if !ok {
			return
		}

		records, err := h.service.ListExecutions(c.Param("order_id"), owner)
		response.Handle(c, records, err)
	}
}

// FundOrderHandler handles POST requests to fund an order from the owner's
// custody balance
// URL parameter: order_id
func (h *GinHandlers) FundOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerFromContext(c)
		if !ok {
			return
		}

		var req types.FundOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.FundOrder(c.Param("order_id"), owner, req.Amount)
		response.Handle(c, order, err)
	}
}

// CancelOrderHandler handles POST requests to cancel an order
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerFromContext(c)
		if !ok {
			return
		}

		order, err := h.service.CancelOrder(c.Param("order_id"), owner)
		response.Handle(c, order, err)
	}
}

// WithdrawHandler handles POST requests to withdraw the unused budget of a
// cancelled order
// URL parameter: order_id
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerFromContext(c)
		if !ok {
			return
		}

		result, err := h.service.WithdrawRemaining(c.Param("order_id"), owner)
		response.Handle(c, result, err)
	}
}

// BalanceHandler handles GET requests for the owner's custody balance
// URL parameter: asset
func (h *GinHandlers) BalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerFromContext(c)
		if !ok {
			return
		}

		asset := c.Param("asset")
		amount, err := h.service.BalanceOf(owner, asset)
		response.Handle(c, types.Balance{Owner: owner, Asset: asset, Amount: amount}, err)
	}
}

// DepositHandler handles POST requests to credit the owner's custody balance
// URL parameter: asset
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerFromContext(c)
		if !ok {
			return
		}

		var req types.FundOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		asset := c.Param("asset")
		amount, err := h.service.Deposit(owner, asset, req.Amount)
		response.Handle(c, types.Balance{Owner: owner, Asset: asset, Amount: amount}, err)
	}
}
