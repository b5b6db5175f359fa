package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/core"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/gateway/estimator"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/gateway/ratelimit"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/ledger"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/native/flashpool"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/observability"
)

const maxBodyBytes = 1 << 20

// Server exposes the flash-loan orchestration surface over HTTP.
type Server struct {
	cfg     Config
	log     *slog.Logger
	client  *ledger.Client
	exec    *ledger.Executor
	pool    *ledger.EndpointPool
	gate    *ratelimit.Gate
	est     *estimator.Estimator
	store   *SQLiteStore
	metrics *observability.GatewayMetrics
	nowFn   func() time.Time
}

// NewServer wires the orchestration components together.
func NewServer(cfg Config, log *slog.Logger, client *ledger.Client, pool *ledger.EndpointPool, gate *ratelimit.Gate, store *SQLiteStore) *Server {
	metrics := observability.Gateway()
	exec := ledger.NewExecutor(pool, cfg.Ledger.RetryPolicy())
	exec.OnRotate(metrics.Rotations.Inc)
	return &Server{
		cfg:     cfg,
		log:     log,
		client:  client,
		exec:    exec,
		pool:    pool,
		gate:    gate,
		est:     estimator.New(client, exec, cfg.Gas.MarginPercent, cfg.Gas.Ceiling),
		store:   store,
		metrics: metrics,
		nowFn:   time.Now,
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/estimate", s.handleEstimate)
	r.Post("/execute", s.handleExecute)
	r.Get("/pool/{id}", s.handlePool)
	r.Get("/stats", s.handleStats)
	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleHealthDetailed)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type estimateRequest struct {
	PoolID          string `json:"poolId"`
	Amount          string `json:"amount"`
	BorrowerAddress string `json:"borrowerAddress"`
}

type estimateResponse struct {
	FeeAmount      string `json:"feeAmount"`
	TotalRepayment string `json:"totalRepayment"`
	GasEstimate    uint64 `json:"gasEstimate"`
	IsViable       bool   `json:"isViable"`
	Error          string `json:"error,omitempty"`
}

type executeRequest struct {
	PoolID          string `json:"poolId"`
	Amount          string `json:"amount"`
	BorrowerAddress string `json:"borrowerAddress"`
	SignedOperation string `json:"signedOperation"`
}

type executeResponse struct {
	TransactionHash string `json:"transactionHash,omitempty"`
	Status          string `json:"status"`
	GasUsed         uint64 `json:"gasUsed,omitempty"`
	Error           string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Scope string `json:"scope,omitempty"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	started := s.nowFn()
	requestID := uuid.NewString()
	log := s.log.With("request_id", requestID, "action", "estimate")

	var req estimateRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, log, "estimate", requestID, req.PoolID, req.BorrowerAddress, req.Amount, http.StatusBadRequest, err)
		return
	}
	amount, err := parsePositiveAmount(req.Amount)
	if err != nil {
		s.fail(w, log, "estimate", requestID, req.PoolID, req.BorrowerAddress, req.Amount, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.PoolID) == "" || strings.TrimSpace(req.BorrowerAddress) == "" {
		s.fail(w, log, "estimate", requestID, req.PoolID, req.BorrowerAddress, req.Amount, http.StatusBadRequest, errors.New("poolId and borrowerAddress required"))
		return
	}
	if err := s.admit(r, req.BorrowerAddress, false); err != nil {
		s.throttled(w, log, "estimate", requestID, req.PoolID, req.BorrowerAddress, req.Amount, err)
		return
	}

	ctx := r.Context()
	pool, err := s.fetchPool(ctx, req.PoolID)
	if err != nil {
		s.fail(w, log, "estimate", requestID, req.PoolID, req.BorrowerAddress, req.Amount, upstreamStatus(err), err)
		return
	}

	fee := flashpool.QuoteFee(amount, pool.FeeRateBps)
	total := new(big.Int).Add(amount, fee)

	envelope, err := core.EncodeTransaction(&core.Transaction{
		Action: core.ActionRequestLoan,
		PoolID: req.PoolID,
		Sender: req.BorrowerAddress,
		Amount: amount.String(),
		Nonce:  requestID,
	})
	if err != nil {
		s.fail(w, log, "estimate", requestID, req.PoolID, req.BorrowerAddress, req.Amount, http.StatusInternalServerError, err)
		return
	}
	result, err := s.est.Estimate(ctx, envelope)
	if err != nil {
		s.fail(w, log, "estimate", requestID, req.PoolID, req.BorrowerAddress, req.Amount, upstreamStatus(err), err)
		return
	}

	resp := estimateResponse{
		FeeAmount:      fee.String(),
		TotalRepayment: total.String(),
		GasEstimate:    result.MarginedCost,
		IsViable:       result.Viable,
		Error:          result.Reason,
	}
	s.audit(ctx, AuditEntry{
		RequestID: requestID, Action: "estimate", PoolID: req.PoolID,
		Borrower: req.BorrowerAddress, Amount: req.Amount,
		Status: "ok", Timestamp: s.nowFn(),
	})
	s.observe("estimate", "ok", started)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	started := s.nowFn()
	requestID := uuid.NewString()
	log := s.log.With("request_id", requestID, "action", "execute")

	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, log, "execute", requestID, req.PoolID, req.BorrowerAddress, req.Amount, http.StatusBadRequest, err)
		return
	}
	amount, err := parsePositiveAmount(req.Amount)
	if err != nil {
		s.fail(w, log, "execute", requestID, req.PoolID, req.BorrowerAddress, req.Amount, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.PoolID) == "" || strings.TrimSpace(req.BorrowerAddress) == "" {
		s.fail(w, log, "execute", requestID, req.PoolID, req.BorrowerAddress, req.Amount, http.StatusBadRequest, errors.New("poolId and borrowerAddress required"))
		return
	}
	if strings.TrimSpace(req.SignedOperation) == "" {
		s.fail(w, log, "execute", requestID, req.PoolID, req.BorrowerAddress, req.Amount, http.StatusBadRequest, errors.New("signedOperation required"))
		return
	}
	if err := s.admit(r, req.BorrowerAddress, true); err != nil {
		s.throttled(w, log, "execute", requestID, req.PoolID, req.BorrowerAddress, req.Amount, err)
		return
	}

	ctx := r.Context()

	// Viability is re-checked immediately before submission so a pool that
	// was paused or drained since the caller's estimate is rejected here
	// rather than on the ledger.
	est, err := s.est.Estimate(ctx, req.SignedOperation)
	if err != nil {
		s.fail(w, log, "execute", requestID, req.PoolID, req.BorrowerAddress, req.Amount, upstreamStatus(err), err)
		return
	}
	if !est.Viable {
		s.audit(ctx, AuditEntry{
			RequestID: requestID, Action: "execute", PoolID: req.PoolID,
			Borrower: req.BorrowerAddress, Amount: req.Amount,
			Status: "rejected", Error: est.Reason, Timestamp: s.nowFn(),
		})
		s.observe("execute", "rejected", started)
		writeJSON(w, http.StatusUnprocessableEntity, executeResponse{Status: "rejected", Error: est.Reason})
		return
	}

	var result *ledger.ExecuteResult
	err = s.exec.Execute(ctx, func(ctx context.Context, endpoint string) error {
		res, submitErr := s.client.SubmitTransaction(ctx, endpoint, req.SignedOperation)
		s.recordAttempt("execute", submitErr)
		if submitErr != nil {
			return submitErr
		}
		result = res
		return nil
	})
	if err != nil {
		var ambiguous *ledger.AmbiguousCommitError
		if errors.As(err, &ambiguous) {
			// The write may have landed; report uncertainty instead of
			// retrying or claiming failure.
			s.audit(ctx, AuditEntry{
				RequestID: requestID, Action: "execute", PoolID: req.PoolID,
				Borrower: req.BorrowerAddress, Amount: req.Amount,
				Status: "unknown", Error: err.Error(), Timestamp: s.nowFn(),
			})
			s.observe("execute", "unknown", started)
			writeJSON(w, http.StatusBadGateway, executeResponse{Status: "unknown", Error: "submission outcome unknown: " + ambiguous.Error()})
			return
		}
		s.fail(w, log, "execute", requestID, req.PoolID, req.BorrowerAddress, req.Amount, upstreamStatus(err), err)
		return
	}

	feeCharged := "0"
	if fee, ok := result.Effects["fee"]; ok {
		feeCharged = fee
	} else if pool, poolErr := s.fetchPool(ctx, req.PoolID); poolErr == nil {
		feeCharged = flashpool.QuoteFee(amount, pool.FeeRateBps).String()
	}
	record := TransactionRecord{
		Digest:    result.Digest,
		PoolID:    req.PoolID,
		Borrower:  req.BorrowerAddress,
		Amount:    amount.String(),
		Fee:       feeCharged,
		Status:    result.Status,
		GasUsed:   result.GasUsed.Net(),
		Timestamp: s.nowFn(),
	}
	if err := s.store.InsertTransaction(ctx, record); err != nil {
		log.Error("record transaction", "error", err)
	}

	resp := executeResponse{
		TransactionHash: result.Digest,
		Status:          result.Status,
		GasUsed:         result.GasUsed.Net(),
		Error:           result.Error,
	}
	s.audit(ctx, AuditEntry{
		RequestID: requestID, Action: "execute", PoolID: req.PoolID,
		Borrower: req.BorrowerAddress, Amount: req.Amount,
		Status: result.Status, Error: result.Error, Timestamp: s.nowFn(),
	})
	s.observe("execute", result.Status, started)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	started := s.nowFn()
	poolID := chi.URLParam(r, "id")
	pool, err := s.fetchPool(r.Context(), poolID)
	if err != nil {
		s.observe("pool", "error", started)
		writeJSON(w, upstreamStatus(err), errorResponse{Error: err.Error()})
		return
	}
	s.observe("pool", "ok", started)
	writeJSON(w, http.StatusOK, pool)
}

type statsResponse struct {
	Ledger  *ledger.Stats `json:"ledger"`
	History *HistoryStats `json:"history"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	started := s.nowFn()
	ctx := r.Context()

	var ledgerStats *ledger.Stats
	err := s.exec.Execute(ctx, func(ctx context.Context, endpoint string) error {
		stats, statsErr := s.client.Stats(ctx, endpoint)
		s.recordAttempt("stats", statsErr)
		if statsErr != nil {
			return statsErr
		}
		ledgerStats = stats
		return nil
	})
	if err != nil {
		s.observe("stats", "error", started)
		writeJSON(w, upstreamStatus(err), errorResponse{Error: err.Error()})
		return
	}
	history, err := s.store.Stats(ctx)
	if err != nil {
		s.observe("stats", "error", started)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.observe("stats", "ok", started)
	writeJSON(w, http.StatusOK, statsResponse{Ledger: ledgerStats, History: history})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type detailedHealth struct {
	Status    string                  `json:"status"`
	Endpoints []ledger.EndpointStatus `json:"endpoints"`
	Database  string                  `json:"database"`
	Ledger    string                  `json:"ledger"`
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := detailedHealth{
		Status:    "ok",
		Endpoints: s.pool.Snapshot(),
		Database:  "ok",
		Ledger:    "ok",
	}
	if err := s.store.Ping(ctx); err != nil {
		health.Status = "degraded"
		health.Database = err.Error()
	}
	if err := s.client.Health(ctx, s.pool.Current()); err != nil {
		health.Status = "degraded"
		health.Ledger = err.Error()
	}
	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) fetchPool(ctx context.Context, poolID string) (*ledger.PoolState, error) {
	var pool *ledger.PoolState
	err := s.exec.Execute(ctx, func(ctx context.Context, endpoint string) error {
		state, getErr := s.client.GetPool(ctx, endpoint, poolID)
		s.recordAttempt("getPool", getErr)
		if getErr != nil {
			return getErr
		}
		pool = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (s *Server) admit(r *http.Request, identity string, sensitive bool) error {
	return s.gate.Check(r.Context(), clientOrigin(r), strings.ToLower(strings.TrimSpace(identity)), sensitive)
}

func (s *Server) throttled(w http.ResponseWriter, log *slog.Logger, action, requestID, poolID, borrower, amount string, err error) {
	scope := ""
	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		scope = limitErr.Scope
	}
	s.metrics.Throttled.WithLabelValues(scope).Inc()
	log.Warn("request throttled", "scope", scope)
	s.audit(context.Background(), AuditEntry{
		RequestID: requestID, Action: action, PoolID: poolID,
		Borrower: borrower, Amount: amount,
		Status: "throttled", Error: err.Error(), Timestamp: s.nowFn(),
	})
	w.Header().Set("Retry-After", "60")
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error(), Scope: scope})
}

func (s *Server) fail(w http.ResponseWriter, log *slog.Logger, action, requestID, poolID, borrower, amount string, status int, err error) {
	log.Error("request failed", "status", status, "error", err)
	s.metrics.Requests.WithLabelValues(action, "error").Inc()
	s.audit(context.Background(), AuditEntry{
		RequestID: requestID, Action: action, PoolID: poolID,
		Borrower: borrower, Amount: amount,
		Status: "error", Error: err.Error(), Timestamp: s.nowFn(),
	})
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) audit(ctx context.Context, entry AuditEntry) {
	if s.store == nil {
		return
	}
	if err := s.store.InsertAudit(ctx, entry); err != nil {
		s.log.Error("audit write failed", "error", err)
	}
}

func (s *Server) recordAttempt(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.LedgerAttempts.WithLabelValues(method, outcome).Inc()
}

func (s *Server) observe(action, outcome string, started time.Time) {
	s.metrics.Requests.WithLabelValues(action, outcome).Inc()
	s.metrics.Latency.WithLabelValues(action).Observe(s.nowFn().Sub(started).Seconds())
}

// upstreamStatus maps executor failures onto HTTP codes: ledger-reported
// errors surface as 400-class, transport exhaustion as 502.
func upstreamStatus(err error) int {
	var rpcErr *ledger.RPCError
	if errors.As(err, &rpcErr) {
		if strings.Contains(rpcErr.Message, "not found") {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	}
	if errors.Is(err, ledger.ErrAllEndpointsUnreachable) {
		return http.StatusBadGateway
	}
	return http.StatusBadGateway
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parsePositiveAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() <= 0 {
		return nil, errors.New("amount must be positive")
	}
	return amount, nil
}

// clientOrigin resolves the caller's network origin, trusting proxy headers
// the way the deployment's ingress sets them.
func clientOrigin(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
