package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"stock-predictor/internal/dataset"
)

// priceRanges maps the accepted range parameter to months.
var priceRanges = map[string]int{"1mo": 1, "6mo": 6, "1y": 12}

const defaultRange = "1mo"

type symbolParam struct {
	Symbol string `validate:"required,max=32,printascii"`
}

type priceParams struct {
	Symbol string `validate:"required,max=32,printascii"`
	Range  string `validate:"oneof=1mo 6mo 1y"`
}

type stocksResponse struct {
	Stocks []string `json:"stocks"`
}

type predictResponse struct {
	Symbol         string  `json:"symbol"`
	PredictedPrice float64 `json:"predicted_price"`
	Source         string  `json:"source"`
}

type pricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

type priceResponse struct {
	Symbol string       `json:"symbol"`
	Range  string       `json:"range"`
	Prices []pricePoint `json:"prices"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	WindowSize  int    `json:"window_size"`
	Symbols     int    `json:"symbols"`
	Version     string `json:"version,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		ModelLoaded: s.deps.Predictor.ModelLoaded(),
		WindowSize:  s.deps.Predictor.WindowSize(),
		Symbols:     len(s.deps.Series.Symbols()),
		Version:     s.cfg.Version,
	})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	symbols := s.deps.Series.Symbols()
	if symbols == nil {
		// encode as [] rather than null
		symbols = []string{}
	}
	s.writeJSON(w, http.StatusOK, stocksResponse{Stocks: symbols})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	params := symbolParam{Symbol: chi.URLParam(r, "symbol")}
	if err := s.validate.Struct(params); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	res, err := s.deps.Predictor.Predict(r.Context(), params.Symbol)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", params.Symbol).Msg("prediction failed")
		s.writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	s.writeJSON(w, http.StatusOK, predictResponse{
		Symbol:         res.Symbol,
		PredictedPrice: res.PredictedPrice.InexactFloat64(),
		Source:         string(res.Source),
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	params := priceParams{
		Symbol: chi.URLParam(r, "symbol"),
		Range:  r.URL.Query().Get("range"),
	}
	if params.Range == "" {
		params.Range = defaultRange
	}
	if err := s.validate.Struct(params); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	series, ok := s.deps.Series.Series(params.Symbol)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no price data found for the symbol")
		return
	}
	last, _ := series.Last()
	window := series.Since(monthsBefore(last.Date, priceRanges[params.Range]))

	s.writeJSON(w, http.StatusOK, priceResponse{
		Symbol: dataset.NormalizeSymbol(params.Symbol),
		Range:  params.Range,
		Prices: toPricePoints(window),
	})
}

// monthsBefore steps back n calendar months, clamping the day to the end of
// the target month (2024-03-31 minus one month is 2024-02-29).
func monthsBefore(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m-time.Month(n), 1, 0, 0, 0, 0, t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(d, lastDay),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func toPricePoints(series dataset.Series) []pricePoint {
	out := make([]pricePoint, len(series))
	for i, p := range series {
		out[i] = pricePoint{Date: p.Date.Format("2006-01-02"), Close: p.Close.InexactFloat64()}
	}
	return out
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Range":
		return "invalid range, use '1mo', '6mo' or '1y'"
	case "Symbol":
		return "invalid symbol"
	default:
		return "invalid " + fe.Field()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
