// Package league содержит еженедельные лиги: членство, ранжирование и зоны
// повышения и понижения.
package league

import (
	"time"

	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// League - запись каталога лиг.
type League struct {
	ID            string `yaml:"id" json:"id"`
	Tier          int    `yaml:"tier" json:"tier"`
	Name          string `yaml:"name" json:"name"`
	Icon          string `yaml:"icon" json:"icon"`
	PromoteTopN   int    `yaml:"promote_top_n" json:"promote_top_n"`
	DemoteBottomN int    `yaml:"demote_bottom_n" json:"demote_bottom_n"`
}

// Membership - участие пользователя в лиге за одну ISO-неделю.
type Membership struct {
	ID               string
	UserID           string
	LeagueID         string
	WeekStartDate    time.Time
	WeeklyXP         int
	PreviousLeagueID *string
	PromotedAt       *time.Time
	DemotedAt        *time.Time
}

// AddResult - результат начисления недельного опыта.
type AddResult struct {
	// Applied - false, если у пользователя нет членства. Это не ошибка.
	Applied bool

	// Membership - обновлённое членство (только если Applied).
	Membership Membership
}

// Zone - зона в таблице лиги.
type Zone string

const (
	ZonePromote Zone = "promote"
	ZoneStay    Zone = "stay"
	ZoneDemote  Zone = "demote"
)

// ZoneFor вычисляет зону по позиции. Зоны не хранятся.
// Если зоны пересекаются в маленькой группе, повышение важнее.
func ZoneFor(rank, total, promoteTopN, demoteBottomN int) Zone {
	if rank <= 0 || rank > total {
		return ZoneStay
	}
	if promoteTopN > 0 && rank <= promoteTopN {
		return ZonePromote
	}
	if demoteBottomN > 0 && rank >= total-demoteBottomN+1 {
		return ZoneDemote
	}
	return ZoneStay
}

// DaysRemaining - дней до конца недели, округление вверх, не меньше нуля.
// weekStart - календарная дата; конец недели считается в зоне отчётности.
func DaysRemaining(weekStart, now time.Time) int {
	y, m, d := weekStart.Date()
	end := time.Date(y, m, d+7, 0, 0, 0, 0, timeutil.Zone())
	return timeutil.CeilDays(end.Sub(now))
}
