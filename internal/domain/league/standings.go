package league

import (
	"sort"
	"time"
)

// Standing - строка таблицы лиги.
type Standing struct {
	Membership
	Rank int
	Zone Zone
}

// Standings - таблица одной лиги за одну неделю.
type Standings struct {
	League    League
	WeekStart time.Time
	Entries   []Standing
}

// Rank сортирует участников по WeeklyXP по убыванию и присваивает позиции с 1.
// Сортировка стабильная: равные значения сохраняют исходный порядок.
func Rank(l League, weekStart time.Time, memberships []Membership) Standings {
	sorted := make([]Membership, len(memberships))
	copy(sorted, memberships)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WeeklyXP > sorted[j].WeeklyXP
	})

	total := len(sorted)
	entries := make([]Standing, total)
	for i, m := range sorted {
		rank := i + 1
		entries[i] = Standing{
			Membership: m,
			Rank:       rank,
			Zone:       ZoneFor(rank, total, l.PromoteTopN, l.DemoteBottomN),
		}
	}

	return Standings{League: l, WeekStart: weekStart, Entries: entries}
}

// Find возвращает строку пользователя.
func (s Standings) Find(userID string) (Standing, bool) {
	for _, e := range s.Entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return Standing{}, false
}

// Total возвращает количество участников.
func (s Standings) Total() int {
	return len(s.Entries)
}

// InZone возвращает участников зоны.
func (s Standings) InZone(z Zone) []Standing {
	out := make([]Standing, 0)
	for _, e := range s.Entries {
		if e.Zone == z {
			out = append(out, e)
		}
	}
	return out
}

// Zone возвращает зону для позиции rank в этой таблице.
func (s Standings) Zone(rank int) Zone {
	return ZoneFor(rank, len(s.Entries), s.League.PromoteTopN, s.League.DemoteBottomN)
}
