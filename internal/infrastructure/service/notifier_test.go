package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/logger"
)

func TestLogNotifier_LevelFollowsToast(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewLogNotifier(logger.NewFromZap(zap.New(core)))

	n.Notify(context.Background(), shared.Toast{UserID: "u-1", Level: shared.ToastWarning, Message: "Couldn't update league"})
	n.Notify(context.Background(), shared.Toast{UserID: "u-1", Level: shared.ToastInfo, Message: "Daily goal reached"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "Couldn't update league", entries[0].ContextMap()["toast"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
}

func TestChannelNotifier_DropsWhenFull(t *testing.T) {
	n := NewChannelNotifier(1)
	ctx := context.Background()

	n.Notify(ctx, shared.Toast{UserID: "u-1", Message: "first"})
	n.Notify(ctx, shared.Toast{UserID: "u-1", Message: "second"})

	got := <-n.Toasts()
	assert.Equal(t, "first", got.Message)
	assert.Equal(t, int64(1), n.Dropped())
}

func TestChannelNotifier_CloseIsIdempotent(t *testing.T) {
	n := NewChannelNotifier(2)
	n.Close()
	n.Close()

	n.Notify(context.Background(), shared.Toast{Message: "late"})
	_, open := <-n.Toasts()
	assert.False(t, open)
	assert.Equal(t, int64(1), n.Dropped())
}

func TestGatedNotifier(t *testing.T) {
	sink := NewChannelNotifier(4)
	n := MultiNotifier{NewGatedNotifier(sink, func(userID string) bool { return userID == "beta" })}

	n.Notify(context.Background(), shared.Toast{UserID: "other", Message: "hidden"})
	n.Notify(context.Background(), shared.Toast{UserID: "beta", Message: "shown"})
	sink.Close()

	var got []string
	for toast := range sink.Toasts() {
		got = append(got, toast.Message)
	}
	assert.Equal(t, []string{"shown"}, got)
}
