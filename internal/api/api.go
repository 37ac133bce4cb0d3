// Package api exposes the treasury engine over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CosmWasm/tinyjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"okinoko_treasury/contract"
	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

const maxBodyBytes = 64 << 10

// Treasury is the engine surface the handler drives. *contract.Engine
// implements it.
type Treasury interface {
	Initialize(ctx context.Context, args dao.InitArgs) (*dao.GovernanceConfig, error)
	CreateDepositOrder(ctx context.Context, args dao.DepositArgs) (*dao.DepositOrder, error)
	CompleteDeposit(ctx context.Context, args dao.CompleteDepositArgs) (*dao.DepositOrder, error)
	RedeemShares(ctx context.Context, args dao.RedeemArgs) (uint64, error)
	TransferShares(ctx context.Context, args dao.TransferArgs) error
	CreateProposal(ctx context.Context, args dao.CreateProposalArgs) (*dao.Proposal, error)
	VoteProposal(ctx context.Context, args dao.ProposalArgs) (*dao.Proposal, error)
	ExecuteProposal(ctx context.Context, args dao.ProposalArgs) (*dao.ExecuteResult, error)
	UserShares(ctx context.Context, addr sdk.Address) (sdk.Amount, error)
	Shareholders(ctx context.Context) ([]dao.Shareholder, error)
	GovernanceConfig(ctx context.Context) (*dao.GovernanceConfig, error)
	Proposals(ctx context.Context) ([]dao.Proposal, error)
	Proposal(ctx context.Context, id uint32) (*dao.Proposal, error)
	LatestDeposit(ctx context.Context, addr sdk.Address) (*dao.DepositOrder, error)
	DepositHistory(ctx context.Context, addr sdk.Address) ([]dao.DepositOrder, error)
	PendingDeposits(ctx context.Context) ([]dao.DepositOrder, error)
	InFlightPayouts(ctx context.Context) ([]dao.PayoutMarker, error)
	TreasuryAccount() sdk.Account
}

var _ Treasury = (*contract.Engine)(nil)

// Handler serves the treasury API.
type Handler struct {
	treasury Treasury
	identity sdk.Address
	tokens   *TokenService
	logger   *slog.Logger
	// devLedger is set in dev mode only; it enables /dev routes.
	devLedger *sdk.MemLedger
	resolver  sdk.AccountResolver
}

// Options configures New. DevLedger and Resolver are only used in dev mode.
type Options struct {
	Treasury  Treasury
	Identity  sdk.Address
	Tokens    *TokenService
	Logger    *slog.Logger
	DevLedger *sdk.MemLedger
	Resolver  sdk.AccountResolver
}

func New(opts Options) (*Handler, error) {
	if opts.Treasury == nil {
		return nil, errors.New("api: treasury is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("api: token service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Resolver == nil {
		opts.Resolver = sdk.DefaultResolver{}
	}
	return &Handler{
		treasury:  opts.Treasury,
		identity:  opts.Identity,
		tokens:    opts.Tokens,
		logger:    opts.Logger,
		devLedger: opts.DevLedger,
		resolver:  opts.Resolver,
	}, nil
}

// Router builds a chi router with every route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Register(r)
	return r
}

// Register mounts the routes on r. Reads are public; every call that
// mutates the treasury needs a bearer token naming the caller. Only the
// treasury identity may initialize.
func (h *Handler) Register(r chi.Router) {
	r.Get("/config", h.handleConfig)
	r.Get("/treasury", h.handleTreasury)
	r.Get("/shares", h.handleShareholders)
	r.Get("/shares/{address}", h.handleUserShares)
	r.Get("/deposits/pending", h.handlePendingDeposits)
	r.Get("/deposits/{address}", h.handleDepositHistory)
	r.Get("/deposits/{address}/latest", h.handleLatestDeposit)
	r.Get("/proposals", h.handleProposals)
	r.Get("/proposals/{id}", h.handleProposal)
	r.Get("/payouts/inflight", h.handleInFlightPayouts)

	r.Group(func(r chi.Router) {
		r.Use(RequireCaller(h.tokens, h.logger))
		r.Post("/init", h.handleInit)
		r.Post("/deposits", h.handleCreateDeposit)
		r.Post("/deposits/complete", h.handleCompleteDeposit)
		r.Post("/shares/redeem", h.handleRedeem)
		r.Post("/shares/transfer", h.handleTransfer)
		r.Post("/proposals", h.handleCreateProposal)
		r.Post("/proposals/{id}/vote", h.handleVote)
		r.Post("/proposals/{id}/execute", h.handleExecute)
		if h.devLedger != nil {
			r.Post("/dev/ledger/transfers", h.handleDevTransfer)
		}
	})
}

// ==============================
// Mutations
// ==============================

// Example payload: {"quorum":50,"contribution_days":30,"vote_minutes":10080}
func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	if caller, _ := contract.CallerFrom(r.Context()); caller != h.identity {
		h.logger.Warn("init refused", "caller", caller)
		writeJSON(w, http.StatusForbidden, &errorView{Kind: "Forbidden", Message: "only the treasury identity may initialize"})
		return
	}
	var args dao.InitArgs
	if !h.decode(w, r, &args) {
		return
	}
	cfg, err := h.treasury.Initialize(r.Context(), args)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// Example payload: {"amount":100000}
func (h *Handler) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	var args dao.DepositArgs
	if !h.decode(w, r, &args) {
		return
	}
	order, err := h.treasury.CreateDepositOrder(r.Context(), args)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// Example payload: {"order_id":"...","amount":100000,"block":42,"memo":"7623"}
func (h *Handler) handleCompleteDeposit(w http.ResponseWriter, r *http.Request) {
	var args dao.CompleteDepositArgs
	if !h.decode(w, r, &args) {
		return
	}
	order, err := h.treasury.CompleteDeposit(r.Context(), args)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Example payload: {"amount":5000}
func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var args dao.RedeemArgs
	if !h.decode(w, r, &args) {
		return
	}
	block, err := h.treasury.RedeemShares(r.Context(), args)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &blockView{Block: block})
}

// Example payload: {"to":"principal:bob","amount":5000}
func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var args dao.TransferArgs
	if !h.decode(w, r, &args) {
		return
	}
	if err := h.treasury.TransferShares(r.Context(), args); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Example payload: {"title":"fund the roof","amount":40000,"recipient":"principal:carol"}
func (h *Handler) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var args dao.CreateProposalArgs
	if !h.decode(w, r, &args) {
		return
	}
	p, err := h.treasury.CreateProposal(r.Context(), args)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}
	p, err := h.treasury.VoteProposal(r.Context(), dao.ProposalArgs{ProposalID: id})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}
	res, err := h.treasury.ExecuteProposal(r.Context(), dao.ProposalArgs{ProposalID: id})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDevTransfer pays the treasury from the caller on the in-memory
// ledger, so deposits can be completed without a real chain.
// Example payload: {"amount":100000,"memo":"7623"}
func (h *Handler) handleDevTransfer(w http.ResponseWriter, r *http.Request) {
	var args devTransferArgs
	if !h.decode(w, r, &args) {
		return
	}
	caller, _ := contract.CallerFrom(r.Context())
	block := h.devLedger.Deposit(h.resolver.AccountOf(caller), h.treasury.TreasuryAccount(), args.Amount, args.Memo)
	h.logger.DebugContext(r.Context(), "dev transfer", "from", caller, "amount", args.Amount.Format(), "block", block)
	writeJSON(w, http.StatusCreated, &blockView{Block: block})
}

// ==============================
// Queries
// ==============================

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.treasury.GovernanceConfig(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handleTreasury(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &treasuryView{Identity: h.identity, Account: h.treasury.TreasuryAccount()})
}

func (h *Handler) handleShareholders(w http.ResponseWriter, r *http.Request) {
	holders, err := h.treasury.Shareholders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dao.ShareholderList(holders))
}

func (h *Handler) handleUserShares(w http.ResponseWriter, r *http.Request) {
	addr := sdk.Address(chi.URLParam(r, "address"))
	shares, err := h.treasury.UserShares(r.Context(), addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &sharesView{Address: addr, Shares: shares})
}

func (h *Handler) handlePendingDeposits(w http.ResponseWriter, r *http.Request) {
	orders, err := h.treasury.PendingDeposits(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dao.DepositList(orders))
}

func (h *Handler) handleDepositHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := h.treasury.DepositHistory(r.Context(), sdk.Address(chi.URLParam(r, "address")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dao.DepositList(orders))
}

func (h *Handler) handleLatestDeposit(w http.ResponseWriter, r *http.Request) {
	order, err := h.treasury.LatestDeposit(r.Context(), sdk.Address(chi.URLParam(r, "address")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.treasury.Proposals(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dao.ProposalList(proposals))
}

func (h *Handler) handleProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.proposalID(w, r)
	if !ok {
		return
	}
	p, err := h.treasury.Proposal(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleInFlightPayouts(w http.ResponseWriter, r *http.Request) {
	markers, err := h.treasury.InFlightPayouts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dao.PayoutMarkerList(markers))
}

// ==============================
// Plumbing
// ==============================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v tinyjson.Unmarshaler) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read request body", "error", err)
		writeJSON(w, http.StatusRequestEntityTooLarge, &errorView{Kind: contract.KindInvalidPayload.String(), Message: "request body too large"})
		return false
	}
	if err := tinyjson.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, &errorView{Kind: contract.KindInvalidPayload.String(), Message: "invalid json: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) proposalID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &errorView{Kind: contract.KindInvalidPayload.String(), Message: "proposal id must be a number"})
		return 0, false
	}
	return uint32(id), true
}

// statusOf maps engine error kinds onto HTTP statuses.
func statusOf(kind contract.Kind) int {
	switch kind {
	case contract.KindInvalidConfig, contract.KindInvalidPayload:
		return http.StatusBadRequest
	case contract.KindNotFound:
		return http.StatusNotFound
	case contract.KindNotConfigured,
		contract.KindInsufficientFunds,
		contract.KindInsufficientShares,
		contract.KindAlreadyVoted,
		contract.KindVotingClosed,
		contract.KindTooEarly,
		contract.KindAlreadyEnded:
		return http.StatusConflict
	case contract.KindVerificationFailed:
		return http.StatusUnprocessableEntity
	case contract.KindPaymentFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := contract.KindOf(err)
	status := statusOf(kind)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "kind", kind.String(), "error", err)
	}
	writeJSON(w, status, &errorView{Kind: kind.String(), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v tinyjson.Marshaler) {
	body, err := tinyjson.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
