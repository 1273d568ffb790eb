package ledger

import "errors"

const (
	CentsPerDollar = int64(100)

	// New players receive starter cash so the early loop is playable.
	StarterBalanceCents = int64(5_000) * CentsPerDollar

	BpsScale = int64(10_000)
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientShares   = errors.New("insufficient shares")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrLoanNotFound         = errors.New("loan not found")
	ErrLoanNotActive        = errors.New("loan is not active")
	ErrCompanyNotFound      = errors.New("company not found")
	ErrCompanyNotTraded     = errors.New("company is not publicly traded")
	ErrEmployeeNotFound     = errors.New("employee not found")
	ErrAssetNotFound        = errors.New("asset not found")
	ErrHoldingNotFound      = errors.New("asset holding not found")
	ErrEventNotFound        = errors.New("betting event not found")
	ErrEventNotOpen         = errors.New("betting event is not open")
	ErrEventNotClosed       = errors.New("betting event is not closed yet")
	ErrAlreadySettled       = errors.New("betting event already settled")
	ErrOptionNotFound       = errors.New("betting option not found")
	ErrGameNotFound         = errors.New("casino game not found")
	ErrGameDisabled         = errors.New("casino game is disabled")
	ErrBetTooSmall          = errors.New("bet below game minimum")
	ErrBetTooLarge          = errors.New("bet above game maximum")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrTxConflict           = errors.New("transaction conflict, retry")
	ErrUnauthorized         = errors.New("unauthorized")
)

// MulBps applies a basis-point rate to an amount, flooring to the cent.
// Floors always favor the house.
func MulBps(amountCents, bps int64) int64 {
	return amountCents * bps / BpsScale
}

// CentsToDollars is for display only; balances never leave int64 cents.
func CentsToDollars(v int64) float64 {
	return float64(v) / float64(CentsPerDollar)
}
