package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skjftp/fpl-auction-sub001/go/internal/events"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/sqlutil"
	"github.com/skjftp/fpl-auction-sub001/go/internal/store"
)

const uniqueViolation = "23505"

// Store implements every repository interface against PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- teams, players, clubs ---

func (s *Store) ListTeams(ctx context.Context) ([]models.Team, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, username, budget, is_admin, created_at FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list teams: %w", err)
	}
	defer rows.Close()

	var out []models.Team
	for rows.Next() {
		var t models.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Username, &t.Budget, &t.IsAdmin, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTeam(ctx context.Context, id int64) (*models.Team, error) {
	var t models.Team
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, username, budget, is_admin, created_at FROM teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Username, &t.Budget, &t.IsAdmin, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("team %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get team %d: %w", id, err)
	}
	return &t, nil
}

func (s *Store) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	var p models.Player
	var position string
	err := s.pool.QueryRow(ctx,
		`SELECT id, web_name, position, club_id, price FROM players WHERE id = $1`, id,
	).Scan(&p.ID, &p.WebName, &position, &p.ClubID, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("player %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get player %d: %w", id, err)
	}
	p.Position = models.Position(position)
	return &p, nil
}

func (s *Store) GetClub(ctx context.Context, id int64) (*models.Club, error) {
	var c models.Club
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, short_name FROM clubs WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.ShortName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("club %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get club %d: %w", id, err)
	}
	return &c, nil
}

// UpsertTeams inserts or updates teams. Budgets of existing teams are kept.
func (s *Store) UpsertTeams(ctx context.Context, teams ...models.Team) error {
	batch := &pgx.Batch{}
	for _, t := range teams {
		batch.Queue(`
			INSERT INTO teams (id, name, username, budget, is_admin)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, username = EXCLUDED.username, is_admin = EXCLUDED.is_admin`,
			t.ID, t.Name, t.Username, t.Budget, t.IsAdmin)
	}
	return s.sendBatch(ctx, "upsert teams", batch)
}

// UpsertClubs inserts or updates clubs
func (s *Store) UpsertClubs(ctx context.Context, clubs ...models.Club) error {
	batch := &pgx.Batch{}
	for _, c := range clubs {
		batch.Queue(`
			INSERT INTO clubs (id, name, short_name) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, short_name = EXCLUDED.short_name`,
			c.ID, c.Name, c.ShortName)
	}
	return s.sendBatch(ctx, "upsert clubs", batch)
}

// UpsertPlayers inserts or updates players
func (s *Store) UpsertPlayers(ctx context.Context, players ...models.Player) error {
	batch := &pgx.Batch{}
	for _, p := range players {
		batch.Queue(`
			INSERT INTO players (id, web_name, position, club_id, price) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET web_name = EXCLUDED.web_name, position = EXCLUDED.position,
				club_id = EXCLUDED.club_id, price = EXCLUDED.price`,
			p.ID, p.WebName, string(p.Position), p.ClubID, p.Price)
	}
	return s.sendBatch(ctx, "upsert players", batch)
}

func (s *Store) sendBatch(ctx context.Context, op string, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	return nil
}

// --- squads ---

const squadCols = `id, team_id, auction_id, item_type, item_id, position, club_id, price_paid, acquired_at`

func scanSquadEntry(row rowScanner) (models.SquadEntry, error) {
	var e models.SquadEntry
	var itemType, position string
	err := row.Scan(&e.ID, &e.TeamID, &e.AuctionID, &itemType, &e.ItemID, &position, &e.ClubID, &e.PricePaid, &e.AcquiredAt)
	e.ItemType = models.ItemType(itemType)
	e.Position = models.Position(position)
	return e, err
}

func (s *Store) querySquads(ctx context.Context, query string, args ...any) ([]models.SquadEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list squads: %w", err)
	}
	defer rows.Close()

	var out []models.SquadEntry
	for rows.Next() {
		e, err := scanSquadEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan squad entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetSquad(ctx context.Context, teamID int64) ([]models.SquadEntry, error) {
	return s.querySquads(ctx, `SELECT `+squadCols+` FROM team_squads WHERE team_id = $1 ORDER BY acquired_at`, teamID)
}

func (s *Store) ListSquads(ctx context.Context) ([]models.SquadEntry, error) {
	return s.querySquads(ctx, `SELECT `+squadCols+` FROM team_squads ORDER BY team_id, acquired_at`)
}

func (s *Store) IsItemOwned(ctx context.Context, itemType models.ItemType, itemID int64) (bool, error) {
	var owned bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM team_squads WHERE item_type = $1 AND item_id = $2)`,
		string(itemType), itemID,
	).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("postgres: check ownership: %w", err)
	}
	return owned, nil
}

// --- draft state ---

func (s *Store) GetDraftState(ctx context.Context) (*models.DraftState, error) {
	var d models.DraftState
	err := s.pool.QueryRow(ctx, `
		SELECT pick_order, current_position, current_team_id, is_active, version, started_at, completed_at, updated_at
		FROM draft_state WHERE id = 1`,
	).Scan(&d.Order, &d.CurrentPosition, &d.CurrentTeamID, &d.IsActive, &d.Version, &d.StartedAt, &d.CompletedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.DraftState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get draft state: %w", err)
	}
	return &d, nil
}

// SaveDraftState writes the draft singleton if its stored version still
// equals expectedVersion
func (s *Store) SaveDraftState(ctx context.Context, state *models.DraftState, expectedVersion int64, evts ...events.Event) error {
	order := state.Order
	if order == nil {
		order = []int64{}
	}
	return sqlutil.RunTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO draft_state (id, pick_order, current_position, current_team_id, is_active, version, started_at, completed_at, updated_at)
			VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				pick_order = EXCLUDED.pick_order,
				current_position = EXCLUDED.current_position,
				current_team_id = EXCLUDED.current_team_id,
				is_active = EXCLUDED.is_active,
				version = EXCLUDED.version,
				started_at = EXCLUDED.started_at,
				completed_at = EXCLUDED.completed_at,
				updated_at = EXCLUDED.updated_at
			WHERE draft_state.version = $9`,
			order, state.CurrentPosition, state.CurrentTeamID, state.IsActive, state.Version,
			state.StartedAt, state.CompletedAt, state.UpdatedAt, expectedVersion)
		if err != nil {
			return fmt.Errorf("postgres: save draft state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("draft state moved past version %d: %w", expectedVersion, store.ErrVersionConflict)
		}
		return insertOutbox(ctx, tx, evts)
	})
}

// ResetDraft clears auctions, squads and the pick order, optionally restoring budgets
func (s *Store) ResetDraft(ctx context.Context, budget int, resetBudgets bool, evts ...events.Event) error {
	return sqlutil.RunTx(ctx, s.pool, func(tx pgx.Tx) error {
		stmts := []string{
			`DELETE FROM team_squads`,
			`DELETE FROM auctions`,
			`INSERT INTO draft_state (id, version, updated_at) VALUES (1, 1, NOW())
			 ON CONFLICT (id) DO UPDATE SET pick_order = '{}', current_position = 0, current_team_id = NULL,
				is_active = FALSE, started_at = NULL, completed_at = NULL, version = draft_state.version + 1`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("postgres: reset draft: %w", err)
			}
		}
		if resetBudgets {
			if _, err := tx.Exec(ctx, `UPDATE teams SET budget = $1`, budget); err != nil {
				return fmt.Errorf("postgres: reset budgets: %w", err)
			}
		}
		return insertOutbox(ctx, tx, evts)
	})
}

// --- auctions ---

const auctionCols = `id, item_type, item_id, nominated_by, draft_position, status, current_bid,
	current_bidder_id, wait_requested_by, cancel_reason, version, started_at, ended_at`

func scanAuction(row rowScanner) (*models.Auction, error) {
	var a models.Auction
	var itemType, status string
	err := row.Scan(&a.ID, &itemType, &a.ItemID, &a.NominatedBy, &a.DraftPosition, &status, &a.CurrentBid,
		&a.CurrentBidderID, &a.WaitRequestedBy, &a.CancelReason, &a.Version, &a.StartedAt, &a.EndedAt)
	if err != nil {
		return nil, err
	}
	a.ItemType = models.ItemType(itemType)
	a.Status = models.AuctionStatus(status)
	a.BidHistory = []models.Bid{}
	return &a, nil
}

func (s *Store) loadBids(ctx context.Context, a *models.Auction) error {
	rows, err := s.pool.Query(ctx,
		`SELECT team_id, amount, is_auto_bid, created_at FROM bid_history WHERE auction_id = $1 ORDER BY seq`, a.ID)
	if err != nil {
		return fmt.Errorf("postgres: load bids %s: %w", a.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.TeamID, &b.Amount, &b.IsAutoBid, &b.Timestamp); err != nil {
			return fmt.Errorf("postgres: scan bid: %w", err)
		}
		a.BidHistory = append(a.BidHistory, b)
	}
	return rows.Err()
}

func (s *Store) GetLiveAuction(ctx context.Context) (*models.Auction, error) {
	a, err := scanAuction(s.pool.QueryRow(ctx,
		`SELECT `+auctionCols+` FROM auctions WHERE status IN ('ACTIVE', 'SELLING_1', 'SELLING_2') LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("live auction: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get live auction: %w", err)
	}
	return a, s.loadBids(ctx, a)
}

func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	a, err := scanAuction(s.pool.QueryRow(ctx, `SELECT `+auctionCols+` FROM auctions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	return a, s.loadBids(ctx, a)
}

// ListAuctions returns every auction ordered by start time
func (s *Store) ListAuctions(ctx context.Context) ([]models.Auction, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+auctionCols+` FROM auctions ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	var out []*models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	list := make([]models.Auction, 0, len(out))
	for _, a := range out {
		if err := s.loadBids(ctx, a); err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, nil
}

// CreateAuction inserts a new auction, refusing while another is live
func (s *Store) CreateAuction(ctx context.Context, a *models.Auction, evts ...events.Event) error {
	return sqlutil.RunTx(ctx, s.pool, func(tx pgx.Tx) error {
		var owned bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM team_squads WHERE item_type = $1 AND item_id = $2)`,
			string(a.ItemType), a.ItemID,
		).Scan(&owned); err != nil {
			return fmt.Errorf("postgres: check ownership: %w", err)
		}
		if owned {
			return fmt.Errorf("%s %d: %w", a.ItemType, a.ItemID, store.ErrItemOwned)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO auctions (`+auctionCols+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			a.ID, string(a.ItemType), a.ItemID, a.NominatedBy, a.DraftPosition, string(a.Status), a.CurrentBid,
			a.CurrentBidderID, a.WaitRequestedBy, a.CancelReason, a.Version, a.StartedAt, a.EndedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "auctions_single_live" {
			return fmt.Errorf("auction %s: %w", a.ID, store.ErrLiveAuctionExists)
		}
		if err != nil {
			return fmt.Errorf("postgres: create auction: %w", err)
		}
		if err := insertBids(ctx, tx, a, 0); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, evts)
	})
}

// UpdateAuction writes the auction if its stored version equals
// expectedVersion. Bids beyond those already stored are appended.
func (s *Store) UpdateAuction(ctx context.Context, a *models.Auction, expectedVersion int64, evts ...events.Event) error {
	return sqlutil.RunTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := updateAuction(ctx, tx, a, expectedVersion); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, evts)
	})
}

// FinalizeSale marks the auction sold, debits the winner and records the
// squad entry in one transaction
func (s *Store) FinalizeSale(ctx context.Context, a *models.Auction, expectedVersion int64, entry models.SquadEntry, evts ...events.Event) error {
	return sqlutil.RunTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := updateAuction(ctx, tx, a, expectedVersion); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`UPDATE teams SET budget = budget - $1 WHERE id = $2 AND budget >= $1`, entry.PricePaid, entry.TeamID)
		if err != nil {
			return fmt.Errorf("postgres: debit team %d: %w", entry.TeamID, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE id = $1)`, entry.TeamID).Scan(&exists); err != nil {
				return fmt.Errorf("postgres: check team %d: %w", entry.TeamID, err)
			}
			if !exists {
				return fmt.Errorf("team %d: %w", entry.TeamID, store.ErrNotFound)
			}
			return fmt.Errorf("team %d price %d: %w", entry.TeamID, entry.PricePaid, store.ErrBudgetExceeded)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO team_squads (`+squadCols+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			entry.ID, entry.TeamID, entry.AuctionID, string(entry.ItemType), entry.ItemID,
			string(entry.Position), entry.ClubID, entry.PricePaid, entry.AcquiredAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%s %d: %w", entry.ItemType, entry.ItemID, store.ErrItemOwned)
		}
		if err != nil {
			return fmt.Errorf("postgres: insert squad entry: %w", err)
		}
		return insertOutbox(ctx, tx, evts)
	})
}

func updateAuction(ctx context.Context, tx pgx.Tx, a *models.Auction, expectedVersion int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE auctions SET
			status = $1, current_bid = $2, current_bidder_id = $3, wait_requested_by = $4,
			cancel_reason = $5, version = $6, ended_at = $7
		WHERE id = $8 AND version = $9`,
		string(a.Status), a.CurrentBid, a.CurrentBidderID, a.WaitRequestedBy,
		a.CancelReason, a.Version, a.EndedAt, a.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("postgres: update auction %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM auctions WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check auction %s: %w", a.ID, err)
		}
		if !exists {
			return fmt.Errorf("auction %s: %w", a.ID, store.ErrNotFound)
		}
		return fmt.Errorf("auction %s moved past version %d: %w", a.ID, expectedVersion, store.ErrVersionConflict)
	}

	var stored int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM bid_history WHERE auction_id = $1`, a.ID).Scan(&stored); err != nil {
		return fmt.Errorf("postgres: count bids %s: %w", a.ID, err)
	}
	return insertBids(ctx, tx, a, stored)
}

func insertBids(ctx context.Context, tx pgx.Tx, a *models.Auction, from int) error {
	for i := from; i < len(a.BidHistory); i++ {
		b := a.BidHistory[i]
		if _, err := tx.Exec(ctx, `
			INSERT INTO bid_history (auction_id, seq, team_id, amount, is_auto_bid, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, i, b.TeamID, b.Amount, b.IsAutoBid, b.Timestamp); err != nil {
			return fmt.Errorf("postgres: insert bid %d for %s: %w", i, a.ID, err)
		}
	}
	return nil
}

// insertOutbox records each event in the same transaction as the state
// change and notifies the relay
func insertOutbox(ctx context.Context, tx pgx.Tx, evts []events.Event) error {
	for _, e := range evts {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("postgres: encode event %s: %w", e.Type, err)
		}
		var auctionID *uuid.UUID
		if e.AuctionID != uuid.Nil {
			id := e.AuctionID
			auctionID = &id
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO outbox (id, event_type, auction_id, sequence, payload) VALUES ($1, $2, $3, $4, $5)`,
			e.ID, string(e.Type), auctionID, e.Sequence, body); err != nil {
			return fmt.Errorf("postgres: insert outbox %s: %w", e.Type, err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, store.OutboxChannel, e.ID.String()); err != nil {
			return fmt.Errorf("postgres: notify outbox: %w", err)
		}
	}
	return nil
}

// --- auto-bid configs ---

func (s *Store) GetAutoBidConfig(ctx context.Context, teamID int64) (*models.AutoBidConfig, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT config FROM autobid_configs WHERE team_id = $1`, teamID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("autobid config for team %d: %w", teamID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get autobid config %d: %w", teamID, err)
	}
	var cfg models.AutoBidConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("postgres: decode autobid config %d: %w", teamID, err)
	}
	return &cfg, nil
}

func (s *Store) SaveAutoBidConfig(ctx context.Context, cfg *models.AutoBidConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("postgres: encode autobid config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO autobid_configs (team_id, config, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (team_id) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at`,
		cfg.TeamID, raw, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save autobid config %d: %w", cfg.TeamID, err)
	}
	return nil
}

func (s *Store) ListAutoBidConfigs(ctx context.Context) ([]models.AutoBidConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT config FROM autobid_configs ORDER BY team_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list autobid configs: %w", err)
	}
	defer rows.Close()

	var out []models.AutoBidConfig
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan autobid config: %w", err)
		}
		var cfg models.AutoBidConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("postgres: decode autobid config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}
