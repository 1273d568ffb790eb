package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mobcity/internal/asset"
	"mobcity/internal/auth"
	"mobcity/internal/bank"
	"mobcity/internal/company"
	"mobcity/internal/config"
	"mobcity/internal/ledger"
	"mobcity/internal/loan"
	"mobcity/internal/networth"
	"mobcity/internal/wager"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Token  string
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	auth     *auth.Client
	store    *ledger.Store
	bank     *bank.Service
	loans    *loan.Service
	company  *company.Service
	assets   *asset.Service
	events   *wager.EventService
	casino   *wager.CasinoService
	networth *networth.Service
	mux      *chi.Mux
}

type Services struct {
	Store    *ledger.Store
	Bank     *bank.Service
	Loans    *loan.Service
	Company  *company.Service
	Assets   *asset.Service
	Events   *wager.EventService
	Casino   *wager.CasinoService
	NetWorth *networth.Service
}

func New(cfg config.APIConfig, logger *slog.Logger, authClient *auth.Client, svc Services) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		auth:     authClient,
		store:    svc.Store,
		bank:     svc.Bank,
		loans:    svc.Loans,
		company:  svc.Company,
		assets:   svc.Assets,
		events:   svc.Events,
		casino:   svc.Casino,
		networth: svc.NetWorth,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/wallet", s.handleWallet)

			r.Post("/bank/accounts", s.handleOpenAccount)
			r.Get("/bank/accounts", s.handleListAccounts)
			r.Get("/bank/accounts/{id}", s.handleAccount)
			r.Get("/bank/accounts/{id}/history", s.handleAccountHistory)
			r.Post("/bank/accounts/{id}/deposit", s.handleDeposit)
			r.Post("/bank/accounts/{id}/withdraw", s.handleWithdraw)
			r.Post("/bank/transfer", s.handleTransfer)

			r.Post("/loans", s.handleOriginateLoan)
			r.Get("/loans", s.handleListLoans)
			r.Get("/loans/overdue", s.handleOverdueLoans)
			r.Get("/loans/{id}", s.handleLoan)
			r.Post("/loans/{id}/pay", s.handleLoanPayment)

			r.Post("/companies", s.handleCreateCompany)
			r.Get("/companies", s.handleListCompanies)
			r.Get("/companies/{id}", s.handleCompany)
			r.Get("/companies/{id}/employees", s.handleCompanyEmployees)
			r.Post("/companies/{id}/employees/hire", s.handleHire)
			r.Delete("/companies/{id}/employees/{employee_id}", s.handleFire)
			r.Get("/companies/upgrades/catalog", s.handleUpgradeCatalog)
			r.Post("/companies/{id}/upgrades/buy", s.handleBuyUpgrade)
			r.Post("/companies/{id}/shares/issue", s.handleIssueShares)
			r.Post("/companies/{id}/shares/buy", s.handleBuyShares)
			r.Post("/companies/{id}/shares/sell", s.handleSellShares)
			r.Get("/companies/{id}/treasury", s.handleTreasuryHistory)
			r.Get("/shares", s.handleMyShares)

			r.Get("/assets/catalog", s.handleAssetCatalog)
			r.Get("/assets", s.handleMyAssets)
			r.Post("/assets/buy", s.handleBuyAsset)
			r.Post("/assets/{holding_id}/sell", s.handleSellAsset)

			r.Get("/events", s.handleOpenEvents)
			r.Get("/events/{id}", s.handleEvent)
			r.Post("/events/{id}/bets", s.handlePlaceBet)
			r.Get("/bets", s.handleMyBets)

			r.Get("/casino/games", s.handleGames)
			r.Post("/casino/wager", s.handleWager)
			r.Get("/casino/history", s.handleCasinoHistory)

			r.Get("/networth", s.handleNetWorth)
			r.Get("/leaderboard", s.handleLeaderboard)
		})

		r.Route("/ops", func(r chi.Router) {
			r.Use(s.opsMiddleware)
			r.Post("/events", s.handleOpsCreateEvent)
			r.Post("/events/{id}/close", s.handleOpsCloseEvent)
			r.Post("/events/{id}/settle", s.handleOpsSettleEvent)
			r.Get("/casino/games", s.handleGames)
			r.Post("/casino/games/{code}/enabled", s.handleOpsSetGameEnabled)
			r.Get("/networth/{user_id}", s.handleOpsNetWorth)
			r.Post("/sweeps/interest", s.handleOpsSweepInterest)
			r.Post("/sweeps/delinquency", s.handleOpsSweepDelinquency)
			r.Post("/sweeps/payroll", s.handleOpsSweepPayroll)
			r.Post("/sweeps/company-income", s.handleOpsSweepCompanyIncome)
			r.Post("/sweeps/asset-income", s.handleOpsSweepAssetIncome)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		if err := s.store.EnsureWallet(r.Context(), user.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: user.ID,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// opsMiddleware gates the operator surface behind the shared ops token.
func (s *Server) opsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.OpsToken == "" || bearerToken(r.Header.Get("Authorization")) != s.cfg.OpsToken {
			writeError(w, http.StatusForbidden, "invalid ops token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	balance, err := s.store.CashBalance(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance_cents": balance})
}

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.bank.OpenAccount(r.Context(), user.UserID, in.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.bank.AccountsByOwner(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	out, err := s.bank.Account(r.Context(), user.UserID, accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccountHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	out, err := s.bank.History(r.Context(), user.UserID, accountID, queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleBankMove(w, r, s.bank.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleBankMove(w, r, s.bank.Withdraw)
}

func (s *Server) handleBankMove(w http.ResponseWriter, r *http.Request, fn func(context.Context, bank.MoveInput) (bank.Transaction, error)) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}
	var in struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := fn(r.Context(), bank.MoveInput{
		OwnerID:        user.UserID,
		AccountID:      accountID,
		AmountCents:    in.AmountCents,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		FromID      int64 `json:"from_id"`
		ToID        int64 `json:"to_id"`
		AmountCents int64 `json:"amount_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.bank.Transfer(r.Context(), bank.TransferInput{
		OwnerID:        user.UserID,
		FromID:         in.FromID,
		ToID:           in.ToID,
		AmountCents:    in.AmountCents,
		IdempotencyKey: idempotencyKey(r),
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleOriginateLoan(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		PrincipalCents  int64 `json:"principal_cents"`
		InterestRateBps int64 `json:"interest_rate_bps"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.loans.Originate(r.Context(), loan.OriginateInput{
		OwnerID:         user.UserID,
		PrincipalCents:  in.PrincipalCents,
		InterestRateBps: in.InterestRateBps,
		IdempotencyKey:  idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.loans.LoansByOwner(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": out})
}

func (s *Server) handleOverdueLoans(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.loans.ListOverdue(r.Context(), user.UserID, time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": out})
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	out, err := s.loans.Loan(r.Context(), user.UserID, loanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLoanPayment(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	loanID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan id")
		return
	}
	var in struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.loans.RecordPayment(r.Context(), loan.PaymentInput{
		OwnerID:        user.UserID,
		LoanID:         loanID,
		AmountCents:    in.AmountCents,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name         string `json:"name"`
		InitialCents int64  `json:"initial_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.company.Create(r.Context(), company.CreateInput{
		OwnerID:        user.UserID,
		Name:           in.Name,
		InitialCents:   in.InitialCents,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.company.CompaniesByOwner(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": out})
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	out, err := s.company.Company(r.Context(), companyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompanyEmployees(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	companyID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	out, err := s.company.Employees(r.Context(), user.UserID, companyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": out})
}

func (s *Server) handleHire(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	companyID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in struct {
		UserID      string `json:"user_id"`
		SalaryCents int64  `json:"salary_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.company.Hire(r.Context(), company.HireInput{
		OwnerID:        user.UserID,
		CompanyID:      companyID,
		UserID:         in.UserID,
		SalaryCents:    in.SalaryCents,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	employeeID, err := pathID(r, "employee_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid employee id")
		return
	}
	fired, err := s.company.Fire(r.Context(), user.UserID, employeeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !fired {
		writeDomainError(w, ledger.ErrEmployeeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUpgradeCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"upgrades": s.company.UpgradeCatalog()})
}

func (s *Server) handleBuyUpgrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	companyID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in struct {
		Kind string `json:"kind"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.company.BuyUpgrade(r.Context(), company.UpgradeInput{
		OwnerID:        user.UserID,
		CompanyID:      companyID,
		Kind:           in.Kind,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIssueShares(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	companyID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in struct {
		TotalShares     int64 `json:"total_shares"`
		SharePriceCents int64 `json:"share_price_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.company.IssueShares(r.Context(), company.IssueInput{
		OwnerID:         user.UserID,
		CompanyID:       companyID,
		TotalShares:     in.TotalShares,
		SharePriceCents: in.SharePriceCents,
		IdempotencyKey:  idempotencyKey(r),
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBuyShares(w http.ResponseWriter, r *http.Request) {
	s.handleShareTrade(w, r, s.company.BuyShares)
}

func (s *Server) handleSellShares(w http.ResponseWriter, r *http.Request) {
	s.handleShareTrade(w, r, s.company.SellShares)
}

func (s *Server) handleShareTrade(w http.ResponseWriter, r *http.Request, fn func(context.Context, company.TradeInput) error) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	companyID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := fn(r.Context(), company.TradeInput{
		UserID:         user.UserID,
		CompanyID:      companyID,
		Amount:         in.Amount,
		IdempotencyKey: idempotencyKey(r),
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTreasuryHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	companyID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}
	out, err := s.company.TreasuryHistory(r.Context(), user.UserID, companyID, queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleMyShares(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.company.SharesByUser(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": out})
}

func (s *Server) handleAssetCatalog(w http.ResponseWriter, r *http.Request) {
	out, err := s.assets.Catalog(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

func (s *Server) handleMyAssets(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.assets.HoldingsByUser(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holdings": out})
}

func (s *Server) handleBuyAsset(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		AssetID int64 `json:"asset_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.assets.Purchase(r.Context(), asset.PurchaseInput{
		UserID:         user.UserID,
		AssetID:        in.AssetID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleSellAsset(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	holdingID, err := pathID(r, "holding_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid holding id")
		return
	}
	proceeds, err := s.assets.Sell(r.Context(), asset.SellInput{
		UserID:         user.UserID,
		HoldingID:      holdingID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proceeds_cents": proceeds})
}

func (s *Server) handleOpenEvents(w http.ResponseWriter, r *http.Request) {
	out, err := s.events.OpenEvents(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	out, err := s.events.Event(r.Context(), eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	eventID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	var in struct {
		OptionID    int64 `json:"option_id"`
		AmountCents int64 `json:"amount_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.events.PlaceBet(r.Context(), wager.PlaceBetInput{
		UserID:         user.UserID,
		EventID:        eventID,
		OptionID:       in.OptionID,
		AmountCents:    in.AmountCents,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleMyBets(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.events.BetsByUser(r.Context(), user.UserID, queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": out})
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	out, err := s.casino.Games(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": out})
}

func (s *Server) handleWager(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		GameCode string `json:"game_code"`
		BetCents int64  `json:"bet_cents"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.casino.PlaceWager(r.Context(), wager.WagerInput{
		UserID:         user.UserID,
		GameCode:       in.GameCode,
		BetCents:       in.BetCents,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCasinoHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.casino.HistoryByUser(r.Context(), user.UserID, queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.networth.NetWorth(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	out, err := s.networth.Leaderboard(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (s *Server) handleOpsCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title   string    `json:"title"`
		EndTime time.Time `json:"end_time"`
		Options []string  `json:"options"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.events.CreateEvent(r.Context(), wager.CreateEventInput{
		Title:   in.Title,
		EndTime: in.EndTime,
		Options: in.Options,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleOpsCloseEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	if err := s.events.CloseEvent(r.Context(), eventID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleOpsSettleEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	var in struct {
		WinningOptionID int64 `json:"winning_option_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.events.Settle(r.Context(), eventID, in.WinningOptionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOpsSetGameEnabled(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.casino.SetGameEnabled(r.Context(), chi.URLParam(r, "code"), in.Enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleOpsNetWorth(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	out, err := s.networth.NetWorth(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOpsSweepInterest(w http.ResponseWriter, r *http.Request) {
	s.runSweep(w, r, s.bank.AccrueInterest)
}

func (s *Server) handleOpsSweepDelinquency(w http.ResponseWriter, r *http.Request) {
	s.runSweep(w, r, s.loans.SweepDelinquent)
}

func (s *Server) handleOpsSweepPayroll(w http.ResponseWriter, r *http.Request) {
	s.runSweep(w, r, s.company.Payroll)
}

func (s *Server) handleOpsSweepCompanyIncome(w http.ResponseWriter, r *http.Request) {
	s.runSweep(w, r, s.company.AccrueIncome)
}

func (s *Server) handleOpsSweepAssetIncome(w http.ResponseWriter, r *http.Request) {
	s.runSweep(w, r, s.assets.AccrueIncome)
}

func (s *Server) runSweep(w http.ResponseWriter, r *http.Request, fn func(context.Context, time.Time) (ledger.SweepReport, error)) {
	report, err := fn(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrDuplicateIdempotency), errors.Is(err, ledger.ErrTxConflict), errors.Is(err, ledger.ErrAlreadySettled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrBetTooSmall), errors.Is(err, ledger.ErrBetTooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrEventNotOpen), errors.Is(err, ledger.ErrEventNotClosed),
		errors.Is(err, ledger.ErrLoanNotActive), errors.Is(err, ledger.ErrCompanyNotTraded),
		errors.Is(err, ledger.ErrGameDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound), errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrLoanNotFound), errors.Is(err, ledger.ErrCompanyNotFound),
		errors.Is(err, ledger.ErrEmployeeNotFound), errors.Is(err, ledger.ErrAssetNotFound),
		errors.Is(err, ledger.ErrHoldingNotFound), errors.Is(err, ledger.ErrEventNotFound),
		errors.Is(err, ledger.ErrOptionNotFound), errors.Is(err, ledger.ErrGameNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
