package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/Aidin1998/pincex_futures/api/responses"
	"github.com/Aidin1998/pincex_futures/internal/marketdata"
	"github.com/Aidin1998/pincex_futures/internal/trading/gateway"
	"github.com/Aidin1998/pincex_futures/internal/trading/model"
	"github.com/Aidin1998/pincex_futures/internal/trading/registry"
	"github.com/Aidin1998/pincex_futures/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// submitOrderBody is the JSON body of POST /orders; the owner comes from
// the X-Owner-ID header.
type submitOrderBody struct {
	InstrumentID string          `json:"instrument_id"`
	Side         string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// createInstrumentBody is the JSON body of POST /instruments. Symbol is used
// for commodity futures and Pair for FX futures. Expiry accepts a date
// (2006-01-02) or an RFC 3339 timestamp.
type createInstrumentBody struct {
	Kind         model.InstrumentKind `json:"kind"`
	Symbol       string               `json:"symbol"`
	Pair         string               `json:"pair"`
	Expiry       string               `json:"expiry"`
	TickSize     decimal.Decimal      `json:"tick_size"`
	MinQuantity  decimal.Decimal      `json:"min_quantity"`
	OpenInterest decimal.Decimal      `json:"open_interest"`
}

func badBody(err error) error {
	return errors.InvalidArgument.Explain("malformed request body: %v", err)
}

func (s *Server) submitOrder(c *gin.Context) {
	var body submitOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		responses.Error(c, badBody(err))
		return
	}
	res, err := s.deps.Gateway.SubmitOrder(c.Request.Context(), gateway.SubmitOrderRequest{
		InstrumentID: body.InstrumentID,
		OwnerID:      c.GetHeader(OwnerHeader),
		Side:         model.Side(body.Side),
		Price:        body.Price,
		Quantity:     body.Quantity,
	})
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, res)
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, err := orderID(c)
	if err != nil {
		responses.Error(c, err)
		return
	}
	order, err := s.deps.Gateway.CancelOrder(c.Request.Context(), gateway.CancelOrderRequest{
		OrderID: id,
		OwnerID: c.GetHeader(OwnerHeader),
	})
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, order)
}

func (s *Server) getOrder(c *gin.Context) {
	id, err := orderID(c)
	if err != nil {
		responses.Error(c, err)
		return
	}
	order, err := s.deps.Gateway.GetOrder(c.Request.Context(), id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, order)
}

func (s *Server) listOrders(c *gin.Context) {
	page, err := pageQuery(c)
	if err != nil {
		responses.Error(c, err)
		return
	}
	filter := model.OrderFilter{
		InstrumentID: strings.ToUpper(c.Query("instrument_id")),
		OwnerID:      c.Query("owner_id"),
		Status:       model.Status(strings.ToUpper(c.Query("status"))),
		Page:         page,
	}
	orders, err := s.deps.Gateway.ListOrders(c.Request.Context(), filter)
	if err != nil {
		responses.Error(c, err)
		return
	}
	n := page.Normalize()
	responses.Paginated(c, orders, responses.NewPaginationMeta(n.Page, n.Limit, len(orders)))
}

func (s *Server) listTrades(c *gin.Context) {
	page, err := pageQuery(c)
	if err != nil {
		responses.Error(c, err)
		return
	}
	trades, err := s.deps.Gateway.ListTrades(c.Request.Context(), model.TradeFilter{
		InstrumentID: strings.ToUpper(c.Query("instrument_id")),
		Page:         page,
	})
	if err != nil {
		responses.Error(c, err)
		return
	}
	n := page.Normalize()
	responses.Paginated(c, trades, responses.NewPaginationMeta(n.Page, n.Limit, len(trades)))
}

func (s *Server) createInstrument(c *gin.Context) {
	var body createInstrumentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		responses.Error(c, badBody(err))
		return
	}
	expiry, err := parseExpiry(body.Expiry)
	if err != nil {
		responses.Error(c, err)
		return
	}

	var inst *model.Instrument
	ctx := c.Request.Context()
	switch model.InstrumentKind(strings.ToUpper(string(body.Kind))) {
	case model.KindCommodityFuture:
		inst, err = s.deps.Registry.CreateCommodityFuture(ctx, registry.CommodityFutureRequest{
			Symbol: body.Symbol, Expiry: expiry, TickSize: body.TickSize,
			MinQuantity: body.MinQuantity, OpenInterest: body.OpenInterest,
		})
	case model.KindFXFuture:
		inst, err = s.deps.Registry.CreateFXFuture(ctx, registry.FXFutureRequest{
			Pair: body.Pair, Expiry: expiry, TickSize: body.TickSize,
			MinQuantity: body.MinQuantity, OpenInterest: body.OpenInterest,
		})
	default:
		err = errors.InvalidArgument.
			Explain("unknown instrument kind %q", body.Kind).
			WithField("oneof", "kind", "must be COMMODITY_FUTURE or FX_FUTURE")
	}
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Created(c, inst)
}

func (s *Server) listInstruments(c *gin.Context) {
	insts, err := s.deps.Registry.List(c.Request.Context())
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, insts)
}

func (s *Server) getInstrument(c *gin.Context) {
	inst, err := s.deps.Registry.Get(c.Request.Context(), strings.ToUpper(c.Param("id")))
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, inst)
}

func (s *Server) getDepth(c *gin.Context) {
	levels, err := intQuery(c, "levels")
	if err != nil {
		responses.Error(c, err)
		return
	}
	depth, err := s.deps.Gateway.Depth(c.Request.Context(), strings.ToUpper(c.Param("id")), levels)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, depth)
}

// getTicker serves the cached ticker when redis is configured and falls
// back to the stored instrument otherwise.
func (s *Server) getTicker(c *gin.Context) {
	id := strings.ToUpper(c.Param("id"))
	ctx := c.Request.Context()
	if s.deps.Tickers != nil {
		t, err := s.deps.Tickers.Get(ctx, id)
		if err == nil {
			responses.Success(c, t)
			return
		}
		if !errors.Is(err, errors.NotFound) {
			responses.Error(c, err)
			return
		}
	}
	inst, err := s.deps.Registry.Get(ctx, id)
	if err != nil {
		responses.Error(c, err)
		return
	}
	responses.Success(c, marketdata.Ticker{
		InstrumentID: inst.ID,
		LastPrice:    inst.LastPrice.String(),
		Volume:       inst.Volume.String(),
		OpenInterest: inst.OpenInterest.String(),
		UpdatedAt:    inst.UpdatedAt,
	})
}

func orderID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errors.InvalidArgument.
			Explain("invalid order id %q", c.Param("id")).
			WithField("uuid", "id", "must be a UUID")
	}
	return id, nil
}

func pageQuery(c *gin.Context) (model.Page, error) {
	page, err := intQuery(c, "page")
	if err != nil {
		return model.Page{}, err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return model.Page{}, err
	}
	return model.Page{Page: page, Limit: limit}, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidArgument.
			Explain("query parameter %s must be an integer", name).
			WithField("numeric", name, "must be an integer")
	}
	return v, nil
}

func parseExpiry(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.InvalidArgument.Explain("expiry is required").WithField("required", "expiry", "is required")
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.InvalidArgument.
			Explain("expiry %q is neither a date nor an RFC 3339 timestamp", raw).
			WithField("datetime", "expiry", "must be YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}
