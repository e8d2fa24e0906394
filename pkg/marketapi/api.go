// package marketapi serves the engine over HTTP JSON plus a WebSocket event
// feed. Amounts cross the wire as decimal strings ("12.5"), never floats.

package marketapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/curvemarkets/curvemarkets/pkg/fixedpoint"
	"github.com/curvemarkets/curvemarkets/pkg/market"
	"github.com/curvemarkets/curvemarkets/pkg/marketstore"
)

type Server struct {
	engine *market.Engine
	store  *marketstore.SqliteStore
	hub    *Hub
	logger zerolog.Logger
}

func NewServer(engine *market.Engine, store *marketstore.SqliteStore, hub *Hub, logger zerolog.Logger) *Server {
	return &Server{engine: engine, store: store, hub: hub, logger: logger}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/markets", s.listMarkets)
	mux.HandleFunc("POST /api/markets", s.createMarket)
	mux.HandleFunc("GET /api/markets/{id}", s.getMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", s.getPrices)
	mux.HandleFunc("GET /api/markets/{id}/trades", s.listTrades)
	mux.HandleFunc("POST /api/markets/{id}/buy", s.buy)
	mux.HandleFunc("POST /api/markets/{id}/sell", s.sell)
	mux.HandleFunc("POST /api/markets/{id}/resolve", s.resolve)
	mux.HandleFunc("POST /api/markets/{id}/redeem", s.redeem)
	mux.HandleFunc("POST /api/markets/{id}/withdraw", s.withdraw)
	mux.HandleFunc("GET /api/accounts/{account}", s.getAccount)
	mux.Handle("GET /ws", s.hub)

	return RequestLogger(s.logger)(mux)
}

// marketView is the wire shape of one market.
type marketView struct {
	ID            uint64   `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	K             string   `json:"k"`
	Supplies      []string `json:"supplies"`
	TotalSupply   string   `json:"total_supply"`
	Collateral    string   `json:"collateral"`
	Deadline      string   `json:"deadline"`
	Resolved      bool     `json:"resolved"`
	Winner        int      `json:"winner"`
	Prices        []string `json:"prices,omitempty"`
	Probabilities []string `json:"probabilities,omitempty"`
}

func viewOf(m *market.Market) marketView {
	v := marketView{
		ID:          m.ID,
		Question:    m.Question,
		Options:     m.Options,
		K:           fixedpoint.Format(m.K),
		TotalSupply: fixedpoint.Format(m.TotalSupply),
		Collateral:  fixedpoint.Format(m.Collateral),
		Deadline:    m.Deadline.Format(time.RFC3339),
		Resolved:    m.Resolved,
		Winner:      m.Winner,
	}
	for _, s := range m.Supplies {
		v.Supplies = append(v.Supplies, fixedpoint.Format(s))
	}
	return v
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.engine.Markets()
	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, viewOf(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": views})
}

type createMarketRequest struct {
	Account  string   `json:"account"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Duration string   `json:"duration"` // Go duration string, e.g. "168h"
	K        string   `json:"k"`        // optional decimal steepness override
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration: "+req.Duration)
		return
	}
	k, err := fixedpoint.FromDecimal(req.K)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid k: "+req.K)
		return
	}

	id, err := s.engine.CreateMarket(r.Context(), req.Account, req.Question, req.Options, duration, k)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	m, err := s.engine.GetMarket(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	v := viewOf(m)
	prices, err := s.engine.Prices(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	probs, err := s.engine.NormalizedPrices(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	for i := range prices {
		v.Prices = append(v.Prices, fixedpoint.Format(prices[i]))
		v.Probabilities = append(v.Probabilities, fixedpoint.Format(probs[i]))
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	prices, err := s.engine.Prices(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	probs, err := s.engine.NormalizedPrices(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := map[string][]string{"prices": {}, "probabilities": {}}
	for i := range prices {
		out["prices"] = append(out["prices"], fixedpoint.Format(prices[i]))
		out["probabilities"] = append(out["probabilities"], fixedpoint.Format(probs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type buyRequest struct {
	Account      string `json:"account"`
	Option       int    `json:"option"`
	MaxSpend     string `json:"max_spend"`
	MinTokensOut string `json:"min_tokens_out"`
}

func (s *Server) buy(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	maxSpend, err := parseAmountField(req.MaxSpend, "max_spend")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minTokens, err := fixedpoint.FromDecimal(req.MinTokensOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_tokens_out")
		return
	}

	tokens, cost, err := s.engine.Buy(r.Context(), req.Account, id, req.Option, maxSpend, minTokens)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"tokens": fixedpoint.Format(tokens),
		"cost":   fixedpoint.Format(cost),
	})
}

type sellRequest struct {
	Account     string `json:"account"`
	Option      int    `json:"option"`
	Amount      string `json:"amount"`
	MinProceeds string `json:"min_proceeds"`
}

func (s *Server) sell(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmountField(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minProceeds, err := fixedpoint.FromDecimal(req.MinProceeds)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_proceeds")
		return
	}

	proceeds, err := s.engine.Sell(r.Context(), req.Account, id, req.Option, amount, minProceeds)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"proceeds": fixedpoint.Format(proceeds),
	})
}

type resolveRequest struct {
	Account string `json:"account"`
	Winner  int    `json:"winner"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.Resolve(r.Context(), req.Account, id, req.Winner); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

type accountRequest struct {
	Account string `json:"account"`
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payout, err := s.engine.Redeem(r.Context(), req.Account, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"payout": fixedpoint.Format(payout),
	})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := s.engine.EmergencyWithdraw(r.Context(), req.Account, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"amount": fixedpoint.Format(amount),
	})
}

func (s *Server) listTrades(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	since := time.Time{}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		}
	}

	trades, err := s.store.ListTrades(r.Context(), int64(id), q.Get("account"), since, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list-trades-failed")
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}
	bal, err := s.store.CollateralBalance(r.Context(), account)
	if err != nil {
		s.logger.Error().Err(err).Msg("account-balance-failed")
		writeError(w, http.StatusInternalServerError, "failed to read account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account":    account,
		"collateral": fixedpoint.Format(bal),
	})
}
