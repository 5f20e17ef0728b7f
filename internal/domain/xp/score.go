// Package xp содержит чистую функцию начисления опыта за урок.
package xp

// ══════════════════════════════════════════════════════════════════════════════
// BONUS RULES
// ══════════════════════════════════════════════════════════════════════════════

const (
	// PerfectBonus - бонус за урок без ошибок.
	PerfectBonus = 5

	// SpeedBonus - бонус за урок, пройденный быстрее SpeedThresholdSeconds.
	SpeedBonus = 3

	// SpeedThresholdSeconds - порог скорости в секундах (строго меньше).
	SpeedThresholdSeconds = 120

	// StreakBonusPerStep - бонус за каждые StreakStep дней серии.
	StreakBonusPerStep = 2

	// StreakStep - длина шага серии.
	StreakStep = 10

	// FirstOfDayBonus - бонус за первый урок дня.
	FirstOfDayBonus = 5
)

// Bonuses - разбивка бонусов.
type Bonuses struct {
	Perfect    int `json:"perfect"`
	Speed      int `json:"speed"`
	Streak     int `json:"streak"`
	FirstOfDay int `json:"first_of_day"`
}

// Sum возвращает сумму всех бонусов.
func (b Bonuses) Sum() int {
	return b.Perfect + b.Speed + b.Streak + b.FirstOfDay
}

// Breakdown - результат начисления опыта.
type Breakdown struct {
	BaseXP  int     `json:"base_xp"`
	Bonuses Bonuses `json:"bonuses"`
	TotalXP int     `json:"total_xp"`
}

// Input - параметры начисления.
type Input struct {
	BaseReward       int
	CorrectCount     int
	TotalCount       int
	TimeSpentSeconds int
	CurrentStreak    int
	IsFirstToday     bool
}

// Score считает опыт за урок. Функция детерминирована и не имеет побочных эффектов.
func Score(base, correct, total, timeSpentSeconds, currentStreak int, isFirstToday bool) Breakdown {
	var b Bonuses

	if total > 0 && correct == total {
		b.Perfect = PerfectBonus
	}
	if timeSpentSeconds < SpeedThresholdSeconds {
		b.Speed = SpeedBonus
	}
	if currentStreak > 0 {
		b.Streak = StreakBonusPerStep * (currentStreak / StreakStep)
	}
	if isFirstToday {
		b.FirstOfDay = FirstOfDayBonus
	}

	return Breakdown{
		BaseXP:  base,
		Bonuses: b,
		TotalXP: base + b.Sum(),
	}
}

// ScoreInput - вариант Score для структуры Input.
func ScoreInput(in Input) Breakdown {
	return Score(in.BaseReward, in.CorrectCount, in.TotalCount, in.TimeSpentSeconds, in.CurrentStreak, in.IsFirstToday)
}

// Percent возвращает процент правильных ответов (0..100). Пустой урок считается 100%.
func Percent(correct, total int) int {
	if total <= 0 {
		return 100
	}
	if correct < 0 {
		correct = 0
	}
	if correct > total {
		correct = total
	}
	return correct * 100 / total
}
