package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/state"
)

// Request bodies. Amounts are raw 1e18 integers as strings, decoded by
// fixedpoint's JSON unmarshaller.

type fundRequest struct {
	Identity uuid.UUID           `json:"identity"`
	Amount   fixedpoint.Unsigned `json:"amount"`
}

type tokenTransferRequest struct {
	From   uuid.UUID           `json:"from"`
	To     uuid.UUID           `json:"to"`
	Amount fixedpoint.Unsigned `json:"amount"`
}

type createRequest struct {
	Sponsor    uuid.UUID           `json:"sponsor"`
	Collateral fixedpoint.Unsigned `json:"collateral"`
	Tokens     fixedpoint.Unsigned `json:"tokens"`
}

type collateralRequest struct {
	Sponsor    uuid.UUID           `json:"sponsor"`
	Collateral fixedpoint.Unsigned `json:"collateral"`
}

type sponsorRequest struct {
	Sponsor uuid.UUID `json:"sponsor"`
}

type redeemRequest struct {
	Sponsor uuid.UUID           `json:"sponsor"`
	Tokens  fixedpoint.Unsigned `json:"tokens"`
}

type transferExecuteRequest struct {
	Sponsor    uuid.UUID `json:"sponsor"`
	NewSponsor uuid.UUID `json:"new_sponsor"`
}

type callerRequest struct {
	Caller uuid.UUID `json:"caller"`
}

type createLiquidationRequest struct {
	Liquidator uuid.UUID `json:"liquidator"`
	Sponsor    uuid.UUID `json:"sponsor"`
}

type liquidationRequest struct {
	Caller        uuid.UUID `json:"caller"`
	Sponsor       uuid.UUID `json:"sponsor"`
	LiquidationID int64     `json:"liquidation_id"`
}

// --- Mutations ---

func (s *Server) handleFundWallet(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.FundWallet(req.Identity, req.Amount), nil)
}

func (s *Server) handleTransferTokens(w http.ResponseWriter, r *http.Request) {
	var req tokenTransferRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.TransferTokens(req.From, req.To, req.Amount), nil)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.CreatePosition(req.Sponsor, req.Collateral, req.Tokens), nil)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.Deposit(req.Sponsor, req.Collateral), nil)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.Withdraw(req.Sponsor, req.Collateral), nil)
}

func (s *Server) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.RequestWithdrawal(req.Sponsor, req.Collateral), nil)
}

func (s *Server) handleCancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req sponsorRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.CancelWithdrawal(req.Sponsor), nil)
}

func (s *Server) handleWithdrawPassedRequest(w http.ResponseWriter, r *http.Request) {
	var req sponsorRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.WithdrawPassedRequest(req.Sponsor), nil)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.Redeem(req.Sponsor, req.Tokens), nil)
}

func (s *Server) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	var req sponsorRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.RequestTransferPosition(req.Sponsor), nil)
}

func (s *Server) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	var req sponsorRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.CancelTransferPosition(req.Sponsor), nil)
}

func (s *Server) handleExecuteTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferExecuteRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.TransferPositionPassedRequest(req.Sponsor, req.NewSponsor), nil)
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.Expire(req.Caller), nil)
}

func (s *Server) handleEmergencyShutdown(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.EmergencyShutdown(req.Caller), nil)
}

func (s *Server) handleSettleExpired(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.SettleExpired(req.Caller), nil)
}

func (s *Server) handleCreateLiquidation(w http.ResponseWriter, r *http.Request) {
	var req createLiquidationRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.engine.CreateLiquidation(req.Liquidator, req.Sponsor)
	s.respond(w, err, map[string]any{"liquidation_id": id})
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	var req liquidationRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.DisputeLiquidation(req.Caller, req.Sponsor, req.LiquidationID), nil)
}

func (s *Server) handleSettleDispute(w http.ResponseWriter, r *http.Request) {
	var req liquidationRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.SettleDispute(req.Caller, req.Sponsor, req.LiquidationID), nil)
}

func (s *Server) handleWithdrawLiquidation(w http.ResponseWriter, r *http.Request) {
	var req liquidationRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.WithdrawLiquidation(req.Caller, req.Sponsor, req.LiquidationID), nil)
}

// --- Reads ---

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	sponsor, err := uuid.Parse(chi.URLParam(r, "sponsor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed sponsor id")
		return
	}
	v := s.engine.PositionView(sponsor)
	if v == nil {
		writeError(w, http.StatusNotFound, state.ErrPositionNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetLiquidation(w http.ResponseWriter, r *http.Request) {
	sponsor, err := uuid.Parse(chi.URLParam(r, "sponsor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed sponsor id")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed liquidation id")
		return
	}
	v := s.engine.LiquidationView(sponsor, id)
	if v == nil {
		writeError(w, http.StatusNotFound, state.ErrLiquidationNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ContractView())
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed wallet id")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.WalletView(id))
}

// --- Plumbing ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

// respond maps an engine result onto an HTTP response. extra, when
// non-nil, is merged into the success body.
func (s *Server) respond(w http.ResponseWriter, err error, extra map[string]any) {
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	body := map[string]any{"status": "ok"}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, state.ErrPositionNotFound), errors.Is(err, state.ErrLiquidationNotFound):
		return http.StatusNotFound
	case errors.Is(err, state.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, state.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, state.ErrInvalidState),
		errors.Is(err, state.ErrPositionExists),
		errors.Is(err, state.ErrPendingRequest),
		errors.Is(err, state.ErrNoPendingRequest),
		errors.Is(err, state.ErrRequestNotPassed),
		errors.Is(err, state.ErrBelowGCR),
		errors.Is(err, state.ErrMinSponsorTokens),
		errors.Is(err, state.ErrInsufficientBalance),
		errors.Is(err, state.ErrInsufficientCollateral),
		errors.Is(err, state.ErrPastExpiry),
		errors.Is(err, state.ErrPreExpiry),
		errors.Is(err, state.ErrPriceNotResolved),
		errors.Is(err, state.ErrFinalFeeUnpayable),
		errors.Is(err, state.ErrDisputeWindowClosed),
		errors.Is(err, state.ErrAlreadyDisputed),
		errors.Is(err, state.ErrNotDisputed),
		errors.Is(err, state.ErrAlreadyPaid):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
