package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/core"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/native/flashpool"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeDomainError    = -32010
)

// Server exposes the node over JSON-RPC.
type Server struct {
	node *core.Node
	log  *slog.Logger
}

// NewServer wires the RPC server to a node.
func NewServer(node *core.Node, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{node: node, log: log}
}

// Handler returns the HTTP handler serving the JSON-RPC surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

// RPCRequest is one JSON-RPC 2.0 call envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int64             `json:"id"`
}

// RPCResponse is the reply envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCErr     `json:"error,omitempty"`
}

// RPCErr is the error object within a reply.
type RPCErr struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request too large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON", err.Error())
		return
	}

	switch req.Method {
	case "flash_getPool":
		s.handleGetPool(w, &req)
	case "flash_dryRun":
		s.handleDryRun(w, &req)
	case "flash_execute":
		s.handleExecute(w, &req)
	case "flash_stats":
		s.handleStats(w, &req)
	case "flash_health":
		writeResult(w, req.ID, map[string]string{"status": "ok"})
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

type poolIDParams struct {
	ID string `json:"id"`
}

type txParams struct {
	TxBytes string `json:"txBytes"`
}

func (s *Server) handleGetPool(w http.ResponseWriter, req *RPCRequest) {
	var params poolIDParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	if params.ID == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "pool id required", nil)
		return
	}
	snapshot, err := s.node.GetPool(params.ID)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, snapshot)
}

func (s *Server) handleDryRun(w http.ResponseWriter, req *RPCRequest) {
	var params txParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	result, err := s.node.DryRun(params.TxBytes)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, req *RPCRequest) {
	var params txParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	result, err := s.node.Execute(params.TxBytes)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleStats(w http.ResponseWriter, req *RPCRequest) {
	stats, err := s.node.Stats()
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, stats)
}

func decodeSingleParam(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter", err.Error())
		return false
	}
	return true
}

// writeNodeError maps engine errors onto stable RPC codes. Domain failures
// keep their exact engine message so callers see them verbatim.
func (s *Server) writeNodeError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case isDomainError(err):
		writeError(w, http.StatusOK, id, codeDomainError, err.Error(), nil)
	case errors.Is(err, flashpool.ErrPoolNotFound):
		writeError(w, http.StatusOK, id, codeDomainError, err.Error(), nil)
	default:
		s.log.Error("rpc request failed", "error", err)
		writeError(w, http.StatusOK, id, codeServerError, err.Error(), nil)
	}
}

func isDomainError(err error) bool {
	for _, domainErr := range []error{
		flashpool.ErrPoolNotFound,
		flashpool.ErrPoolExists,
		flashpool.ErrFeeRateTooHigh,
		flashpool.ErrPoolPaused,
		flashpool.ErrInvalidAmount,
		flashpool.ErrInsufficientBalance,
		flashpool.ErrLoanNotFound,
		flashpool.ErrLoanAlreadyRepaid,
		flashpool.ErrInsufficientRepayment,
		flashpool.ErrCapabilityMismatch,
		flashpool.ErrUnauthorized,
		flashpool.ErrInsufficientFees,
	} {
		if errors.Is(err, domainErr) {
			return true
		}
	}
	return false
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCErr{Code: code, Message: message, Data: data},
	})
}
