package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"venue/domain/orderbook"
	"venue/engine"
)

// Server is the HTTP boundary. All order state lives behind the core; the
// server only translates between JSON and commands.
type Server struct {
	log  *zap.Logger
	core *engine.Core
	hub  *Hub
	srv  *http.Server
}

func NewServer(log *zap.Logger, core *engine.Core, hub *Hub, addr string) *Server {
	s := &Server{log: log, core: core, hub: hub}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	v1.HandleFunc("/orders/cancel", s.handleCancel).Methods(http.MethodPost)
	v1.HandleFunc("/markets", s.handleMarkets).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{symbol}", s.handleMarket).Methods(http.MethodGet)
	r.HandleFunc("/ws", hub.handleWS)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	typ, err := orderbook.ParseOrderType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var price decimal.Decimal
	if typ == orderbook.Limit {
		price, err = decimal.NewFromString(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid price")
			return
		}
	}

	if req.CommandID == "" {
		req.CommandID = uuid.NewString()
	}
	if req.OrderID == "" {
		req.OrderID = uuid.NewString()
	}

	res, err := s.core.Submit(engine.Command{
		Kind:       engine.CommandNewOrder,
		ID:         req.CommandID,
		OrderID:    req.OrderID,
		AccountID:  req.AccountID,
		Instrument: req.Instrument,
		Side:       side,
		Type:       typ,
		Quantity:   req.Quantity,
		Price:      price,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PlaceOrderResponse{
		CommandID: req.CommandID,
		OrderID:   req.OrderID,
		Seq:       res.Seq,
		Accepted:  res.Accepted,
		Reason:    res.Reason,
		Status:    res.Status.String(),
		Filled:    res.Filled,
		Trades:    tradeViews(res.Trades),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CommandID == "" {
		req.CommandID = uuid.NewString()
	}

	res, err := s.core.Submit(engine.Command{
		Kind:       engine.CommandCancel,
		ID:         req.CommandID,
		Instrument: req.Instrument,
		OrderID:    req.OrderID,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CancelResponse{
		CommandID: req.CommandID,
		Seq:       res.Seq,
		Canceled:  res.Canceled,
	})
}

func (s *Server) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	instruments := s.core.Instruments()
	out := make([]MarketDataResponse, 0, len(instruments))
	for _, ins := range instruments {
		md, err := s.core.MarketData(ins)
		if err != nil {
			continue
		}
		out = append(out, marketDataResponse(md))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	md, err := s.core.MarketData(symbol)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown instrument")
		return
	}
	writeJSON(w, http.StatusOK, marketDataResponse(md))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeSubmitError maps core errors onto HTTP statuses. Validation
// failures are the client's fault; anything else means the log append
// failed and the process is no longer trustworthy.
func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnsupportedInstrument):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrMissingPrice),
		errors.Is(err, engine.ErrMissingOrderID),
		errors.Is(err, engine.ErrMissingCommandID),
		errors.Is(err, engine.ErrMissingAccount),
		errors.Is(err, engine.ErrDuplicateOrderID),
		errors.Is(err, engine.ErrUnknownCommand):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("command processing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
