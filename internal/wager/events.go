package wager

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"mobcity/internal/ledger"
	"mobcity/internal/notify"
)

const (
	EventOpen    = "open"
	EventClosed  = "closed"
	EventSettled = "settled"
)

type Event struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	EndTime         time.Time `json:"end_time"`
	WinningOptionID *int64    `json:"winning_option_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Options         []Option  `json:"options,omitempty"`
}

type Option struct {
	ID      int64  `json:"id"`
	EventID int64  `json:"event_id"`
	Label   string `json:"label"`
}

type Bet struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	OptionID    int64     `json:"option_id"`
	UserID      string    `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	PayoutCents *int64    `json:"payout_cents,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateEventInput struct {
	Title   string
	EndTime time.Time
	Options []string
}

type PlaceBetInput struct {
	UserID         string
	EventID        int64
	OptionID       int64
	AmountCents    int64
	IdempotencyKey string
}

// SettleResult summarizes a finalized event for ops output and notification.
type SettleResult struct {
	EventID         int64 `json:"event_id"`
	WinningOptionID int64 `json:"winning_option_id"`
	TotalPoolCents  int64 `json:"total_pool_cents"`
	WinningCents    int64 `json:"winning_cents"`
	PaidBets        int   `json:"paid_bets"`
	Refunded        bool  `json:"refunded"`
}

// EventService runs parimutuel betting events: the stakes on every option
// form one pool and winners split it pro rata.
type EventService struct {
	store *ledger.Store
	log   *slog.Logger
	sink  notify.Sink
}

func NewEventService(store *ledger.Store, logger *slog.Logger, sink notify.Sink) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = notify.LogSink{Log: logger}
	}
	return &EventService{store: store, log: logger, sink: sink}
}

// CreateEvent opens an event with at least two options.
func (s *EventService) CreateEvent(ctx context.Context, in CreateEventInput) (Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return Event{}, fmt.Errorf("%w: event title is required", ledger.ErrInvalidInput)
	}
	if len(in.Options) < 2 {
		return Event{}, fmt.Errorf("%w: an event needs at least two options", ledger.ErrInvalidInput)
	}
	if !in.EndTime.After(time.Now()) {
		return Event{}, fmt.Errorf("%w: end time must be in the future", ledger.ErrInvalidInput)
	}
	var out Event
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO econ.betting_events (title, end_time)
			VALUES ($1, $2)
			RETURNING id, title, status, end_time, winning_option_id, created_at
		`, in.Title, in.EndTime.UTC()).Scan(
			&out.ID, &out.Title, &out.Status, &out.EndTime, &out.WinningOptionID, &out.CreatedAt,
		); err != nil {
			return err
		}
		for _, label := range in.Options {
			label = strings.TrimSpace(label)
			if label == "" {
				return fmt.Errorf("%w: option labels must be non-empty", ledger.ErrInvalidInput)
			}
			var opt Option
			if err := tx.QueryRow(ctx, `
				INSERT INTO econ.betting_options (event_id, label)
				VALUES ($1, $2)
				RETURNING id, event_id, label
			`, out.ID, label).Scan(&opt.ID, &opt.EventID, &opt.Label); err != nil {
				return err
			}
			out.Options = append(out.Options, opt)
		}
		return nil
	})
	return out, err
}

// PlaceBet escrows the stake from the bettor's wallet. Bets are only accepted
// while the event is open and before its end time.
func (s *EventService) PlaceBet(ctx context.Context, in PlaceBetInput) (Bet, error) {
	if in.AmountCents <= 0 {
		return Bet{}, fmt.Errorf("%w: bet amount must be > 0", ledger.ErrInvalidInput)
	}
	var out Bet
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "event_bet"); err != nil {
			return err
		}
		ev, err := lockEvent(ctx, tx, in.EventID)
		if err != nil {
			return err
		}
		if ev.Status != EventOpen || !ev.EndTime.After(time.Now()) {
			return ledger.ErrEventNotOpen
		}
		var optEventID int64
		err = tx.QueryRow(ctx, `
			SELECT event_id FROM econ.betting_options WHERE id = $1
		`, in.OptionID).Scan(&optEventID)
		if err == pgx.ErrNoRows || (err == nil && optEventID != ev.ID) {
			return ledger.ErrOptionNotFound
		}
		if err != nil {
			return err
		}
		if err := ledger.DebitWallet(ctx, tx, in.UserID, in.AmountCents, "bet_stake", fmt.Sprint(ev.ID)); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO econ.bets (event_id, option_id, user_id, amount_cents)
			VALUES ($1, $2, $3, $4)
			RETURNING id, event_id, option_id, user_id, amount_cents, payout_cents, created_at
		`, ev.ID, in.OptionID, in.UserID, in.AmountCents).Scan(
			&out.ID, &out.EventID, &out.OptionID, &out.UserID, &out.AmountCents, &out.PayoutCents, &out.CreatedAt,
		)
	})
	return out, err
}

// CloseEvent moves an open event to closed so no further bets land. The
// status check and transition are one conditional update.
func (s *EventService) CloseEvent(ctx context.Context, eventID int64) error {
	return s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
			UPDATE econ.betting_events SET status = 'closed' WHERE id = $1 AND status = 'open'
		`, eventID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			ev, err := lockEvent(ctx, tx, eventID)
			if err != nil {
				return err
			}
			if ev.Status == EventSettled {
				return ledger.ErrAlreadySettled
			}
			return nil
		}
		return nil
	})
}

// CloseExpired closes every open event past its end time.
func (s *EventService) CloseExpired(ctx context.Context, now time.Time) (ledger.SweepReport, error) {
	var report ledger.SweepReport
	cmd, err := s.store.Pool().Exec(ctx, `
		UPDATE econ.betting_events SET status = 'closed' WHERE status = 'open' AND end_time <= $1
	`, now)
	if err != nil {
		return report, err
	}
	report.Eligible = int(cmd.RowsAffected())
	report.Applied = int(cmd.RowsAffected())
	return report, nil
}

// Settle finalizes an event on the given winning option and pays out the
// parimutuel pool. An already-settled event is rejected, so at most one
// settlement ever pays; an empty winning pool refunds every stake instead.
func (s *EventService) Settle(ctx context.Context, eventID, winningOptionID int64) (SettleResult, error) {
	var res SettleResult
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		res = SettleResult{}
		ev, err := lockEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		switch ev.Status {
		case EventSettled:
			return ledger.ErrAlreadySettled
		case EventOpen:
			if ev.EndTime.After(time.Now()) {
				return ledger.ErrEventNotClosed
			}
			// Expired while open: close it first so the event still passes
			// through every state.
			if _, err := tx.Exec(ctx, `
				UPDATE econ.betting_events SET status = 'closed' WHERE id = $1
			`, ev.ID); err != nil {
				return err
			}
		}
		var optEventID int64
		err = tx.QueryRow(ctx, `
			SELECT event_id FROM econ.betting_options WHERE id = $1
		`, winningOptionID).Scan(&optEventID)
		if err == pgx.ErrNoRows || (err == nil && optEventID != ev.ID) {
			return ledger.ErrOptionNotFound
		}
		if err != nil {
			return err
		}

		bets, err := eventBets(ctx, tx, ev.ID)
		if err != nil {
			return err
		}
		var totalPool, winningPool int64
		for _, b := range bets {
			totalPool += b.AmountCents
			if b.OptionID == winningOptionID {
				winningPool += b.AmountCents
			}
		}
		res.EventID = ev.ID
		res.WinningOptionID = winningOptionID
		res.TotalPoolCents = totalPool
		res.WinningCents = winningPool

		for _, b := range bets {
			payout := int64(0)
			if winningPool == 0 {
				// Nobody backed the winner: refund every stake.
				payout = b.AmountCents
				res.Refunded = true
			} else if b.OptionID == winningOptionID {
				payout = poolPayout(b.AmountCents, totalPool, winningPool)
			}
			if payout > 0 {
				if err := ledger.CreditWallet(ctx, tx, b.UserID, payout, "bet_payout", fmt.Sprint(ev.ID)); err != nil {
					return err
				}
				res.PaidBets++
			}
			if _, err := tx.Exec(ctx, `
				UPDATE econ.bets SET payout_cents = $1 WHERE id = $2
			`, payout, b.ID); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE econ.betting_events SET status = 'settled', winning_option_id = $1 WHERE id = $2
		`, winningOptionID, ev.ID)
		return err
	})
	if err != nil {
		return SettleResult{}, err
	}

	// Notification is best effort and runs outside the transaction.
	s.sink.Push(ctx, notify.Event{
		Kind: "event_settled",
		Text: fmt.Sprintf("event %d settled: pool $%.2f paid across %d bets", res.EventID, ledger.CentsToDollars(res.TotalPoolCents), res.PaidBets),
	})
	return res, nil
}

func (s *EventService) Event(ctx context.Context, eventID int64) (Event, error) {
	var out Event
	err := s.store.Pool().QueryRow(ctx, `
		SELECT id, title, status, end_time, winning_option_id, created_at
		FROM econ.betting_events
		WHERE id = $1
	`, eventID).Scan(&out.ID, &out.Title, &out.Status, &out.EndTime, &out.WinningOptionID, &out.CreatedAt)
	if err == pgx.ErrNoRows {
		return out, ledger.ErrEventNotFound
	}
	if err != nil {
		return out, err
	}
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, event_id, label FROM econ.betting_options WHERE event_id = $1 ORDER BY id
	`, eventID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var opt Option
		if err := rows.Scan(&opt.ID, &opt.EventID, &opt.Label); err != nil {
			return out, err
		}
		out.Options = append(out.Options, opt)
	}
	return out, rows.Err()
}

func (s *EventService) OpenEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, title, status, end_time, winning_option_id, created_at
		FROM econ.betting_events
		WHERE status = 'open'
		ORDER BY end_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Event, 0)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.Status, &ev.EndTime, &ev.WinningOptionID, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *EventService) BetsByUser(ctx context.Context, userID string, limit int) ([]Bet, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, event_id, option_id, user_id, amount_cents, payout_cents, created_at
		FROM econ.bets
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Bet, 0)
	for rows.Next() {
		var b Bet
		if err := rows.Scan(&b.ID, &b.EventID, &b.OptionID, &b.UserID, &b.AmountCents, &b.PayoutCents, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// poolPayout is the parimutuel share: stake * totalPool / winningPool, floored.
// The intermediate product can overflow int64 for large pools, so it goes
// through big.Int.
func poolPayout(stakeCents, totalPoolCents, winningPoolCents int64) int64 {
	if winningPoolCents <= 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(stakeCents), big.NewInt(totalPoolCents))
	n.Quo(n, big.NewInt(winningPoolCents))
	return n.Int64()
}

func lockEvent(ctx context.Context, tx pgx.Tx, eventID int64) (Event, error) {
	var out Event
	err := tx.QueryRow(ctx, `
		SELECT id, title, status, end_time, winning_option_id, created_at
		FROM econ.betting_events
		WHERE id = $1
		FOR UPDATE
	`, eventID).Scan(&out.ID, &out.Title, &out.Status, &out.EndTime, &out.WinningOptionID, &out.CreatedAt)
	if err == pgx.ErrNoRows {
		return out, ledger.ErrEventNotFound
	}
	return out, err
}

func eventBets(ctx context.Context, tx pgx.Tx, eventID int64) ([]Bet, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, option_id, user_id, amount_cents, payout_cents, created_at
		FROM econ.bets
		WHERE event_id = $1
		ORDER BY id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bet
	for rows.Next() {
		var b Bet
		if err := rows.Scan(&b.ID, &b.EventID, &b.OptionID, &b.UserID, &b.AmountCents, &b.PayoutCents, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
