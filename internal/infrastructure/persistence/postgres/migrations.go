package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded schema migrations in version order.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the built-in migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: Migrations(),
		tableName:  "schema_migrations",
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

// Rollback reverts the most recent applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range done {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
		}
	}
	if target == nil || target.DownSQL == "" {
		return fmt.Errorf("%w: no down SQL for version %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status reports which migrations are applied.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// Migrations returns the built-in migrations sorted by version.
func Migrations() []Migration {
	list := []Migration{
		{Version: 1, Name: "create_user_stats", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_content_and_progress", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_achievements", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_leagues", UpSQL: migration004Up, DownSQL: migration004Down},
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	return list
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USER STATS AND DAILY GOALS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS user_streaks (
    user_id                  TEXT PRIMARY KEY,
    current_streak           INTEGER NOT NULL DEFAULT 0,
    longest_streak           INTEGER NOT NULL DEFAULT 0,
    last_activity_date       DATE,
    total_xp                 INTEGER NOT NULL DEFAULT 0,
    total_lessons_completed  INTEGER NOT NULL DEFAULT 0,
    hearts                   INTEGER NOT NULL DEFAULT 5,
    max_hearts               INTEGER NOT NULL DEFAULT 5,
    hearts_last_refilled_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT streak_not_above_longest CHECK (current_streak <= longest_streak),
    CONSTRAINT hearts_in_range CHECK (hearts >= 0 AND hearts <= max_hearts),
    CONSTRAINT xp_not_negative CHECK (total_xp >= 0)
);

CREATE TABLE IF NOT EXISTS daily_goals (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id     TEXT NOT NULL,
    date        DATE NOT NULL,
    goal_xp     INTEGER NOT NULL DEFAULT 10,
    earned_xp   INTEGER NOT NULL DEFAULT 0,
    is_achieved BOOLEAN NOT NULL DEFAULT FALSE,

    CONSTRAINT daily_goal_unique UNIQUE (user_id, date),
    CONSTRAINT goal_positive CHECK (goal_xp > 0)
);

CREATE INDEX IF NOT EXISTS idx_daily_goals_user_date ON daily_goals(user_id, date DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS daily_goals;
DROP TABLE IF EXISTS user_streaks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: LESSON CONTENT, PROGRESS, ANSWER HISTORY
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS lessons (
    id                 TEXT PRIMARY KEY,
    track_id           TEXT NOT NULL,
    title              TEXT NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    xp_reward          INTEGER NOT NULL DEFAULT 10,
    sort_order         INTEGER NOT NULL DEFAULT 0,
    estimated_minutes  INTEGER NOT NULL DEFAULT 5
);

CREATE TABLE IF NOT EXISTS exercises (
    id              TEXT PRIMARY KEY,
    lesson_id       TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
    type            TEXT NOT NULL,
    prompt          TEXT NOT NULL,
    options         TEXT[] NOT NULL DEFAULT '{}',
    correct_answer  TEXT NOT NULL,
    explanation     TEXT NOT NULL DEFAULT '',
    sort_order      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_exercises_lesson ON exercises(lesson_id, sort_order);

CREATE TABLE IF NOT EXISTS lesson_progress (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id             TEXT NOT NULL,
    lesson_id           TEXT NOT NULL,
    status              TEXT NOT NULL DEFAULT 'completed',
    best_score_percent  INTEGER NOT NULL DEFAULT 0,
    last_score_percent  INTEGER NOT NULL DEFAULT 0,
    attempts            INTEGER NOT NULL DEFAULT 0,
    xp_earned           INTEGER NOT NULL DEFAULT 0,
    time_spent_seconds  INTEGER NOT NULL DEFAULT 0,
    completed_at        TIMESTAMPTZ,

    CONSTRAINT lesson_progress_unique UNIQUE (user_id, lesson_id)
);

CREATE TABLE IF NOT EXISTS exercise_history (
    id                  UUID PRIMARY KEY,
    user_id             TEXT NOT NULL,
    lesson_id           TEXT NOT NULL,
    exercise_id         TEXT NOT NULL,
    is_correct          BOOLEAN NOT NULL,
    time_spent_seconds  INTEGER NOT NULL DEFAULT 0,
    attempted_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_exercise_history_user ON exercise_history(user_id, attempted_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS exercise_history;
DROP TABLE IF EXISTS lesson_progress;
DROP TABLE IF EXISTS exercises;
DROP TABLE IF EXISTS lessons;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS achievements (
    id               TEXT PRIMARY KEY,
    code             TEXT NOT NULL UNIQUE,
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    icon             TEXT NOT NULL DEFAULT '',
    xp_reward        INTEGER NOT NULL DEFAULT 0,
    condition_type   TEXT NOT NULL,
    condition_value  INTEGER NOT NULL DEFAULT 0,
    is_active        BOOLEAN NOT NULL DEFAULT TRUE,
    sort_order       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_achievements (
    user_id         TEXT NOT NULL,
    achievement_id  TEXT NOT NULL REFERENCES achievements(id),
    earned_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT user_achievement_unique UNIQUE (user_id, achievement_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS achievements;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: LEAGUES
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS leagues (
    id               TEXT PRIMARY KEY,
    tier             INTEGER NOT NULL UNIQUE,
    name             TEXT NOT NULL,
    icon             TEXT NOT NULL DEFAULT '',
    promote_top_n    INTEGER NOT NULL DEFAULT 0,
    demote_bottom_n  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_league_memberships (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id             TEXT NOT NULL,
    league_id           TEXT NOT NULL REFERENCES leagues(id),
    week_start_date     DATE NOT NULL,
    weekly_xp           INTEGER NOT NULL DEFAULT 0,
    previous_league_id  TEXT REFERENCES leagues(id),
    promoted_at         TIMESTAMPTZ,
    demoted_at          TIMESTAMPTZ,

    CONSTRAINT membership_week_unique UNIQUE (user_id, week_start_date),
    CONSTRAINT weekly_xp_not_negative CHECK (weekly_xp >= 0)
);

CREATE INDEX IF NOT EXISTS idx_memberships_league_week
    ON user_league_memberships(league_id, week_start_date, weekly_xp DESC);
CREATE INDEX IF NOT EXISTS idx_memberships_user_week
    ON user_league_memberships(user_id, week_start_date DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS user_league_memberships;
DROP TABLE IF EXISTS leagues;
`
