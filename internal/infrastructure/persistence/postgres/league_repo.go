package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/beanwise/learning-engine/internal/domain/league"
	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// LeagueRepository implements league.Repository and league.CatalogWriter.
type LeagueRepository struct {
	conn *Connection
}

// NewLeagueRepository creates a new LeagueRepository.
func NewLeagueRepository(conn *Connection) *LeagueRepository {
	return &LeagueRepository{conn: conn}
}

const membershipColumns = `id::text, user_id, league_id, week_start_date, weekly_xp,
	previous_league_id, promoted_at, demoted_at`

func scanMembership(row pgx.Row) (league.Membership, error) {
	var m league.Membership
	var week time.Time
	err := row.Scan(&m.ID, &m.UserID, &m.LeagueID, &week, &m.WeeklyXP,
		&m.PreviousLeagueID, &m.PromotedAt, &m.DemotedAt)
	m.WeekStartDate = timeutil.Date(week.Year(), week.Month(), week.Day())
	return m, err
}

func scanLeague(row pgx.Row) (league.League, error) {
	var l league.League
	err := row.Scan(&l.ID, &l.Tier, &l.Name, &l.Icon, &l.PromoteTopN, &l.DemoteBottomN)
	return l, err
}

// GetLeague implements league.Repository.
func (r *LeagueRepository) GetLeague(ctx context.Context, id string) (*league.League, error) {
	l, err := scanLeague(r.conn.QueryRow(ctx, `
		SELECT id, tier, name, icon, promote_top_n, demote_bottom_n
		FROM leagues WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrLeagueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get league: %w", err)
	}
	return &l, nil
}

// ListLeagues implements league.Repository.
func (r *LeagueRepository) ListLeagues(ctx context.Context) ([]league.League, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, tier, name, icon, promote_top_n, demote_bottom_n
		FROM leagues ORDER BY tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to list leagues: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (league.League, error) {
		return scanLeague(row)
	})
}

// GetCurrentMembership implements league.Repository.
func (r *LeagueRepository) GetCurrentMembership(ctx context.Context, userID string) (*league.Membership, error) {
	m, err := scanMembership(r.conn.QueryRow(ctx, `
		SELECT `+membershipColumns+`
		FROM user_league_memberships
		WHERE user_id = $1
		ORDER BY week_start_date DESC
		LIMIT 1`, userID))
	if IsNoRows(err) {
		return nil, shared.ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// AddWeeklyXP implements league.Repository. The increment targets the most
// recent membership in one statement; no row means nothing is applied.
func (r *LeagueRepository) AddWeeklyXP(ctx context.Context, userID string, xp int) (league.AddResult, error) {
	if xp < 0 {
		return league.AddResult{}, shared.ErrInvalidXP
	}
	m, err := scanMembership(r.conn.QueryRow(ctx, `
		UPDATE user_league_memberships SET weekly_xp = weekly_xp + $2
		WHERE id = (
			SELECT id FROM user_league_memberships
			WHERE user_id = $1
			ORDER BY week_start_date DESC
			LIMIT 1
		)
		RETURNING `+membershipColumns, userID, xp))
	if IsNoRows(err) {
		return league.AddResult{Applied: false}, nil
	}
	if err != nil {
		return league.AddResult{}, shared.WrapError("league", "AddWeeklyXP", shared.ErrServiceUnavailable, "add weekly xp", err)
	}
	return league.AddResult{Applied: true, Membership: m}, nil
}

// ListMemberships implements league.Repository.
func (r *LeagueRepository) ListMemberships(ctx context.Context, leagueID string, weekStart time.Time) ([]league.Membership, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+membershipColumns+`
		FROM user_league_memberships
		WHERE league_id = $1 AND week_start_date = $2::date
		ORDER BY weekly_xp DESC, user_id`, leagueID, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (league.Membership, error) {
		return scanMembership(row)
	})
}

// AddMembership inserts a membership for a week. Used by the rollover job
// that runs outside the engine.
func (r *LeagueRepository) AddMembership(ctx context.Context, m league.Membership) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO user_league_memberships
			(user_id, league_id, week_start_date, weekly_xp, previous_league_id, promoted_at, demoted_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7)`,
		m.UserID, m.LeagueID, m.WeekStartDate, m.WeeklyXP, m.PreviousLeagueID, m.PromotedAt, m.DemotedAt)
	if IsUniqueViolation(err) {
		return shared.ErrMembershipExists
	}
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// UpsertLeague implements league.CatalogWriter.
func (r *LeagueRepository) UpsertLeague(ctx context.Context, l league.League) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO leagues (id, tier, name, icon, promote_top_n, demote_bottom_n)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			tier = EXCLUDED.tier,
			name = EXCLUDED.name,
			icon = EXCLUDED.icon,
			promote_top_n = EXCLUDED.promote_top_n,
			demote_bottom_n = EXCLUDED.demote_bottom_n`,
		l.ID, l.Tier, l.Name, l.Icon, l.PromoteTopN, l.DemoteBottomN)
	if err != nil {
		return fmt.Errorf("failed to upsert league %s: %w", l.ID, err)
	}
	return nil
}
