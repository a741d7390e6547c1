package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"rangesim/internal/model"
)

// BacktestRunner executes one backtest run.
type BacktestRunner interface {
	Run(ctx context.Context, params model.Params) (*model.Report, error)
}

// Server exposes the backtest API.
type Server struct {
	runner BacktestRunner
	logger *zap.Logger
}

func New(runner BacktestRunner, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{runner: runner, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/backtest", s.handleBacktest).Methods(http.MethodPost)
	return r
}

// jsonResult is the fixed response envelope. Code 200 marks success; any
// failure is reported as code 500 with a generic message.
type jsonResult struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, jsonResult{Code: 200})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var params model.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.logger.Warn("bad backtest request", zap.Error(err))
		writeJSON(w, jsonResult{Code: 500, Msg: "Server Error!"})
		return
	}

	report, err := s.runner.Run(r.Context(), params)
	if err != nil {
		// Internals stay in the log; the client gets a generic failure.
		s.logger.Error("backtest failed", zap.String("pair", params.Pair), zap.Error(err))
		writeJSON(w, jsonResult{Code: 500, Msg: "Server Error!"})
		return
	}

	writeJSON(w, jsonResult{Code: 200, Data: report})
}

func writeJSON(w http.ResponseWriter, body jsonResult) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already out; nothing left to do for the client.
		return
	}
}
