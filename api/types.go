package api

import (
	"venue/domain/orderbook"
	"venue/engine"
)

type PlaceOrderRequest struct {
	// CommandID is the client idempotency key; assigned server-side when
	// absent.
	CommandID  string `json:"command_id,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	AccountID  string `json:"account_id"`
	Instrument string `json:"instrument"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	Quantity   int64  `json:"quantity"`
	Price      string `json:"price,omitempty"`
}

type TradeView struct {
	ID            string `json:"id"`
	Instrument    string `json:"instrument"`
	BuyerOrderID  string `json:"buyer_order_id"`
	SellerOrderID string `json:"seller_order_id"`
	Price         string `json:"price"`
	Quantity      int64  `json:"quantity"`
}

type PlaceOrderResponse struct {
	CommandID string      `json:"command_id"`
	OrderID   string      `json:"order_id"`
	Seq       uint64      `json:"seq"`
	Accepted  bool        `json:"accepted"`
	Reason    string      `json:"reason,omitempty"`
	Status    string      `json:"status"`
	Filled    int64       `json:"filled"`
	Trades    []TradeView `json:"trades,omitempty"`
}

type CancelRequest struct {
	CommandID  string `json:"command_id,omitempty"`
	Instrument string `json:"instrument,omitempty"`
	OrderID    string `json:"order_id"`
}

type CancelResponse struct {
	CommandID string `json:"command_id"`
	Seq       uint64 `json:"seq"`
	Canceled  bool   `json:"canceled"`
}

type MarketDataResponse struct {
	Instrument string  `json:"instrument"`
	BestBid    *string `json:"best_bid"`
	BestAsk    *string `json:"best_ask"`
	Spread     *string `json:"spread"`
	LastTrade  *string `json:"last_trade"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func tradeViews(trades []orderbook.Trade) []TradeView {
	if len(trades) == 0 {
		return nil
	}
	out := make([]TradeView, len(trades))
	for i, t := range trades {
		out[i] = TradeView{
			ID:            t.ID,
			Instrument:    t.Instrument,
			BuyerOrderID:  t.BuyerOrderID,
			SellerOrderID: t.SellerOrderID,
			Price:         t.Price.String(),
			Quantity:      t.Quantity,
		}
	}
	return out
}

func marketDataResponse(md engine.MarketData) MarketDataResponse {
	resp := MarketDataResponse{Instrument: md.Instrument}
	if md.HasBid {
		s := md.BestBid.String()
		resp.BestBid = &s
	}
	if md.HasAsk {
		s := md.BestAsk.String()
		resp.BestAsk = &s
	}
	if md.HasSpread {
		s := md.Spread.String()
		resp.Spread = &s
	}
	if md.HasLast {
		s := md.LastTrade.String()
		resp.LastTrade = &s
	}
	return resp
}
