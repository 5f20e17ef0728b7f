package eventhandler

import (
	"context"
	"fmt"

	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/logger"
	"github.com/beanwise/learning-engine/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS NOTIFY HANDLER
// Превращает события прогресса в короткие уведомления пользователю.
// ═══════════════════════════════════════════════════════════════════════════

// OnProgressNotifyHandler отправляет тосты о прогрессе.
type OnProgressNotifyHandler struct {
	notifier shared.Notifier
	log      *logger.Logger
}

// NewOnProgressNotifyHandler создаёт обработчик.
func NewOnProgressNotifyHandler(notifier shared.Notifier, log *logger.Logger) *OnProgressNotifyHandler {
	if notifier == nil {
		notifier = shared.NopNotifier{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OnProgressNotifyHandler{notifier: notifier, log: log.With(logger.Component("on_progress_notify"))}
}

// EventTypes возвращает события, на которые нужно подписать обработчик.
func (h *OnProgressNotifyHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventAchievementUnlocked,
		shared.EventDailyGoalAchieved,
		shared.EventStreakBroken,
		shared.EventHeartsDepleted,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnProgressNotifyHandler) Handle(event shared.Event) error {
	toast, ok := h.toastFor(event)
	if !ok {
		return nil
	}
	h.notifier.Notify(context.Background(), toast)
	h.log.Debug("toast sent", logger.UserID(toast.UserID), logger.String("event_type", string(event.EventType())))
	return nil
}

func (h *OnProgressNotifyHandler) toastFor(event shared.Event) (shared.Toast, bool) {
	switch ev := event.(type) {
	case shared.AchievementUnlockedEvent:
		return shared.Toast{UserID: ev.UserID, Level: shared.ToastInfo, Message: fmt.Sprintf("Achievement unlocked: %s", ev.Code)}, true
	case shared.DailyGoalAchievedEvent:
		return shared.Toast{UserID: ev.UserID, Level: shared.ToastInfo, Message: fmt.Sprintf("Daily goal reached: %d/%d XP", ev.EarnedXP, ev.GoalXP)}, true
	case shared.StreakBrokenEvent:
		if ev.PreviousStreak < 2 {
			return shared.Toast{}, false
		}
		return shared.Toast{UserID: ev.UserID, Level: shared.ToastWarning, Message: fmt.Sprintf("Your %d-day streak ended. A new one starts today", ev.PreviousStreak)}, true
	case shared.HeartsDepletedEvent:
		return shared.Toast{UserID: ev.UserID, Level: shared.ToastWarning, Message: "Out of hearts. Next heart at " + ev.NextHeartAt.In(timeutil.Zone()).Format("15:04")}, true
	default:
		return shared.Toast{}, false
	}
}
