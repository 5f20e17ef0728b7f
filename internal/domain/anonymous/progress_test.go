package anonymous

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanwise/learning-engine/internal/domain/shared"
)

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestProgress_RecordCompletionDedupes(t *testing.T) {
	p := &Progress{}
	p.RecordCompletion("espresso-101", 10, day)
	p.RecordCompletion("espresso-101", 12, day.AddDate(0, 0, 1))

	assert.Equal(t, 1, p.CompletedCount())
	assert.Equal(t, 22, p.TotalXP)
	require.NotNil(t, p.LastActivityDate)
	assert.Equal(t, day.AddDate(0, 0, 1), *p.LastActivityDate)
}

func TestProgress_GateFunnel(t *testing.T) {
	p := &Progress{}
	assert.Equal(t, GateNone, p.Gate())

	p.RecordCompletion("a", 10, day)
	assert.Equal(t, GateSoft, p.Gate())

	require.NoError(t, p.DismissPrompt())
	assert.Equal(t, GateNone, p.Gate())

	p.RecordCompletion("b", 10, day)
	assert.Equal(t, GateNone, p.Gate())

	p.RecordCompletion("c", 10, day)
	assert.Equal(t, GateHard, p.Gate())
}

func TestProgress_HardGateCannotBeDismissed(t *testing.T) {
	p := &Progress{}
	for _, id := range []string{"a", "b", "c"} {
		p.RecordCompletion(id, 5, day)
	}

	err := p.DismissPrompt()
	assert.ErrorIs(t, err, shared.ErrHardGateActive)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, GateHard, p.Gate())
}

func TestProgress_HardGateIgnoresSeenFlag(t *testing.T) {
	p := &Progress{HasSeenSignupPrompt: true}
	for _, id := range []string{"c", "a", "b", "a"} {
		p.RecordCompletion(id, 5, day)
	}
	assert.Equal(t, []string{"a", "b", "c"}, p.CompletedLessons)
	assert.Equal(t, GateHard, p.Gate())
}
