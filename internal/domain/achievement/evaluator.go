package achievement

import (
	"context"
	"errors"
	"fmt"

	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// Evaluator сравнивает статистику пользователя с каталогом и сохраняет
// новые разблокировки. Повторный запуск с теми же данными ничего не вставляет.
type Evaluator struct {
	repo  Repository
	clock timeutil.Clock
}

// NewEvaluator создаёт Evaluator.
func NewEvaluator(repo Repository, clock timeutil.Clock) *Evaluator {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Evaluator{repo: repo, clock: clock}
}

// Candidates возвращает ещё не полученные достижения, условия которых выполнены,
// в порядке каталога. Чистая функция.
func Candidates(catalog []Achievement, snapshot StatsSnapshot, earned map[string]struct{}) []Achievement {
	out := make([]Achievement, 0)
	for _, a := range catalog {
		if !a.IsActive {
			continue
		}
		if _, ok := earned[a.ID]; ok {
			continue
		}
		if a.IsSatisfied(snapshot) {
			out = append(out, a)
		}
	}
	SortCatalog(out)
	return out
}

// Evaluate загружает каталог и полученные достижения, затем пытается сохранить
// каждое подходящее. Возвращает только вставленные этим вызовом, в порядке каталога.
//
// Ошибка вставки одного достижения не мешает остальным: такие ошибки собираются
// и возвращаются вместе с успешно вставленными.
func (e *Evaluator) Evaluate(ctx context.Context, userID string, snapshot StatsSnapshot) ([]Achievement, error) {
	catalog, err := e.repo.ListActive(ctx)
	if err != nil {
		return nil, shared.WrapError("achievement", "Evaluate", shared.ErrServiceUnavailable, "failed to load catalog", err)
	}

	earnedIDs, err := e.repo.ListEarnedIDs(ctx, userID)
	if err != nil {
		return nil, shared.WrapError("achievement", "Evaluate", shared.ErrServiceUnavailable, "failed to load earned achievements", err)
	}

	earned := make(map[string]struct{}, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = struct{}{}
	}

	now := e.clock.Now()
	unlocked := make([]Achievement, 0)
	var errs []error

	for _, a := range Candidates(catalog, snapshot, earned) {
		outcome, err := e.repo.Unlock(ctx, userID, a.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("unlock %s: %w", a.Code, err))
			continue
		}
		if outcome == UnlockAlreadyExists {
			continue
		}
		unlocked = append(unlocked, a)
	}

	return unlocked, errors.Join(errs...)
}
