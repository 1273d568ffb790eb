package wager

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"mobcity/internal/ledger"
	"mobcity/internal/notify"
)

type Game struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	HouseEdgeBps int64  `json:"house_edge_bps"`
	MinBetCents  int64  `json:"min_bet_cents"`
	MaxBetCents  int64  `json:"max_bet_cents"`
}

type WagerInput struct {
	UserID         string
	GameCode       string
	BetCents       int64
	IdempotencyKey string
}

type WagerResult struct {
	GameCode      string `json:"game_code"`
	BetCents      int64  `json:"bet_cents"`
	Won           bool   `json:"won"`
	MultiplierBps int64  `json:"multiplier_bps"`
	PayoutCents   int64  `json:"payout_cents"`
}

type HistoryEntry struct {
	ID            int64     `json:"id"`
	GameCode      string    `json:"game_code"`
	BetCents      int64     `json:"bet_cents"`
	Won           bool      `json:"won"`
	MultiplierBps int64     `json:"multiplier_bps"`
	PayoutCents   int64     `json:"payout_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

// Outcome is one resolved round. MultiplierBps applies to the stake when the
// round is won; a lost round pays nothing regardless.
type Outcome struct {
	Win           bool
	MultiplierBps int64
}

// OutcomeGenerator resolves a round for a game. Implementations are registered
// per game code so each game can carry its own odds model.
type OutcomeGenerator interface {
	Outcome(ctx context.Context, game Game, betCents int64) (Outcome, error)
}

// houseEdgeGenerator is the default model: an even-money coin flip whose win
// probability is shaved by the game's house edge.
type houseEdgeGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newHouseEdgeGenerator() *houseEdgeGenerator {
	return &houseEdgeGenerator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *houseEdgeGenerator) Outcome(_ context.Context, game Game, _ int64) (Outcome, error) {
	winBps := ledger.BpsScale/2 - game.HouseEdgeBps/2
	if winBps < 0 {
		winBps = 0
	}
	g.mu.Lock()
	roll := g.rng.Int63n(ledger.BpsScale)
	g.mu.Unlock()
	return Outcome{Win: roll < winBps, MultiplierBps: 2 * ledger.BpsScale}, nil
}

// CasinoService settles single-round wagers against the house.
type CasinoService struct {
	store *ledger.Store
	log   *slog.Logger
	sink  notify.Sink

	mu         sync.RWMutex
	generators map[string]OutcomeGenerator
	fallback   OutcomeGenerator
}

func NewCasinoService(store *ledger.Store, logger *slog.Logger, sink notify.Sink) *CasinoService {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = notify.LogSink{Log: logger}
	}
	return &CasinoService{
		store:      store,
		log:        logger,
		sink:       sink,
		generators: make(map[string]OutcomeGenerator),
		fallback:   newHouseEdgeGenerator(),
	}
}

// RegisterGenerator installs a custom odds model for a game code.
func (s *CasinoService) RegisterGenerator(code string, gen OutcomeGenerator) {
	s.mu.Lock()
	s.generators[strings.ToLower(code)] = gen
	s.mu.Unlock()
}

func (s *CasinoService) generatorFor(code string) OutcomeGenerator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if gen, ok := s.generators[code]; ok {
		return gen
	}
	return s.fallback
}

var defaultGames = []Game{
	{Code: "coinflip", Name: "Coin Flip", HouseEdgeBps: 200, MinBetCents: 1 * ledger.CentsPerDollar, MaxBetCents: 10_000 * ledger.CentsPerDollar},
	{Code: "dice", Name: "Street Dice", HouseEdgeBps: 350, MinBetCents: 5 * ledger.CentsPerDollar, MaxBetCents: 25_000 * ledger.CentsPerDollar},
	{Code: "roulette", Name: "Back Room Roulette", HouseEdgeBps: 530, MinBetCents: 10 * ledger.CentsPerDollar, MaxBetCents: 100_000 * ledger.CentsPerDollar},
}

// SeedGames inserts the default game table. Existing codes keep their tuning.
func (s *CasinoService) SeedGames(ctx context.Context) error {
	for _, g := range defaultGames {
		_, err := s.store.Pool().Exec(ctx, `
			INSERT INTO econ.casino_games (code, name, enabled, house_edge_bps, min_bet_cents, max_bet_cents)
			VALUES ($1, $2, true, $3, $4, $5)
			ON CONFLICT (code) DO NOTHING
		`, g.Code, g.Name, g.HouseEdgeBps, g.MinBetCents, g.MaxBetCents)
		if err != nil {
			return fmt.Errorf("seed game %q: %w", g.Code, err)
		}
	}
	return nil
}

// PlaceWager debits the stake, resolves the round, and credits any winnings,
// all in one transaction with the history row. Unknown and disabled games
// fail closed before any money moves.
func (s *CasinoService) PlaceWager(ctx context.Context, in WagerInput) (WagerResult, error) {
	code := strings.ToLower(strings.TrimSpace(in.GameCode))
	if code == "" {
		return WagerResult{}, fmt.Errorf("%w: game code is required", ledger.ErrInvalidInput)
	}
	if in.BetCents <= 0 {
		return WagerResult{}, fmt.Errorf("%w: bet must be > 0", ledger.ErrInvalidInput)
	}
	var res WagerResult
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "casino_wager"); err != nil {
			return err
		}
		var g Game
		err := tx.QueryRow(ctx, `
			SELECT id, code, name, enabled, house_edge_bps, min_bet_cents, max_bet_cents
			FROM econ.casino_games
			WHERE code = $1
		`, code).Scan(&g.ID, &g.Code, &g.Name, &g.Enabled, &g.HouseEdgeBps, &g.MinBetCents, &g.MaxBetCents)
		if err == pgx.ErrNoRows {
			return ledger.ErrGameNotFound
		}
		if err != nil {
			return err
		}
		if !g.Enabled {
			return ledger.ErrGameDisabled
		}
		if in.BetCents < g.MinBetCents {
			return ledger.ErrBetTooSmall
		}
		if in.BetCents > g.MaxBetCents {
			return ledger.ErrBetTooLarge
		}
		if err := ledger.DebitWallet(ctx, tx, in.UserID, in.BetCents, "casino_stake", g.Code); err != nil {
			return err
		}
		outcome, err := s.generatorFor(code).Outcome(ctx, g, in.BetCents)
		if err != nil {
			return fmt.Errorf("resolve %s round: %w", g.Code, err)
		}
		payout := int64(0)
		if outcome.Win {
			payout = ledger.MulBps(in.BetCents, outcome.MultiplierBps)
			if err := ledger.CreditWallet(ctx, tx, in.UserID, payout, "casino_payout", g.Code); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO econ.casino_history (user_id, game_id, bet_cents, won, multiplier_bps, payout_cents)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, in.UserID, g.ID, in.BetCents, outcome.Win, outcome.MultiplierBps, payout); err != nil {
			return err
		}
		res = WagerResult{
			GameCode:      g.Code,
			BetCents:      in.BetCents,
			Won:           outcome.Win,
			MultiplierBps: outcome.MultiplierBps,
			PayoutCents:   payout,
		}
		return nil
	})
	if err != nil {
		return WagerResult{}, err
	}

	// Winning rounds are announced best effort, outside the transaction.
	if res.Won {
		s.sink.Push(ctx, notify.Event{
			Kind: "casino_win",
			Text: fmt.Sprintf("%s won $%.2f on %s", in.UserID, ledger.CentsToDollars(res.PayoutCents), res.GameCode),
		})
	}
	return res, nil
}

func (s *CasinoService) Games(ctx context.Context) ([]Game, error) {
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, code, name, enabled, house_edge_bps, min_bet_cents, max_bet_cents
		FROM econ.casino_games
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Game, 0)
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Code, &g.Name, &g.Enabled, &g.HouseEdgeBps, &g.MinBetCents, &g.MaxBetCents); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SetGameEnabled flips a game's kill switch.
func (s *CasinoService) SetGameEnabled(ctx context.Context, code string, enabled bool) error {
	cmd, err := s.store.Pool().Exec(ctx, `
		UPDATE econ.casino_games SET enabled = $1 WHERE code = $2
	`, enabled, strings.ToLower(strings.TrimSpace(code)))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ledger.ErrGameNotFound
	}
	return nil
}

func (s *CasinoService) HistoryByUser(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.store.Pool().Query(ctx, `
		SELECT h.id, g.code, h.bet_cents, h.won, h.multiplier_bps, h.payout_cents, h.created_at
		FROM econ.casino_history h
		JOIN econ.casino_games g ON g.id = h.game_id
		WHERE h.user_id = $1
		ORDER BY h.id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]HistoryEntry, 0)
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.GameCode, &h.BetCents, &h.Won, &h.MultiplierBps, &h.PayoutCents, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
