package league

import (
	"context"
	"time"
)

// Repository - хранилище лиг и членства.
type Repository interface {
	// GetLeague возвращает лигу или shared.ErrLeagueNotFound.
	GetLeague(ctx context.Context, id string) (*League, error)

	// ListLeagues возвращает каталог лиг по возрастанию уровня.
	ListLeagues(ctx context.Context) ([]League, error)

	// GetCurrentMembership возвращает самое свежее членство или shared.ErrMembershipNotFound.
	GetCurrentMembership(ctx context.Context, userID string) (*Membership, error)

	// AddWeeklyXP прибавляет опыт к самому свежему членству.
	// Без членства ничего не создаётся: Applied = false.
	AddWeeklyXP(ctx context.Context, userID string, xp int) (AddResult, error)

	// ListMemberships возвращает всех участников лиги за неделю.
	ListMemberships(ctx context.Context, leagueID string, weekStart time.Time) ([]Membership, error)
}

// CatalogWriter - запись каталога лиг (используется при загрузке сидов).
type CatalogWriter interface {
	UpsertLeague(ctx context.Context, l League) error
}

// StandingsCache - горячая копия недельной таблицы.
type StandingsCache interface {
	SetWeeklyXP(ctx context.Context, leagueID string, weekStart time.Time, userID string, weeklyXP int) error
	ReplaceStandings(ctx context.Context, leagueID string, weekStart time.Time, memberships []Membership) error
	Ranked(ctx context.Context, leagueID string, weekStart time.Time) ([]Membership, error)
}
