package browse

import (
	"context"
	"testing"

	"github.com/orangescada/opcua/internal/configview"
	"github.com/orangescada/opcua/internal/domain"
	opcuaconn "github.com/orangescada/opcua/internal/opcua"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrowser(t *testing.T, frames *[]ProgressFrame) *Browser {
	t.Helper()
	manager := opcuaconn.NewManager(zerolog.Nop(), nil)
	store := configview.NewStore("", map[string]*domain.Device{})
	return NewBrowser(manager, store, zerolog.Nop(), func(f ProgressFrame) {
		*frames = append(*frames, f)
	})
}

func TestBrowse_UnknownDeviceReturnsDeviceIDNotFound(t *testing.T) {
	var frames []ProgressFrame
	b := newTestBrowser(t, &frames)

	err := b.Browse(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrDeviceIDNotFound)

	b.mu.Lock()
	browsing := b.browsing
	b.mu.Unlock()
	assert.False(t, browsing, "browse flag must reset after completion, even on failure")
}

func TestBrowse_FinalFrameReportsDone(t *testing.T) {
	var frames []ProgressFrame
	b := newTestBrowser(t, &frames)

	_ = b.Browse(context.Background(), "ghost")

	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.True(t, last.Done)
}

func TestBrowse_ProgressIDIncrementsAcrossRuns(t *testing.T) {
	var frames []ProgressFrame
	b := newTestBrowser(t, &frames)

	_ = b.Browse(context.Background(), "ghost")
	first := b.progressID

	_ = b.Browse(context.Background(), "ghost")
	second := b.progressID

	assert.Equal(t, first+1, second, "each new browse must bump the monotonic progressId")
}

func TestBrowse_ConcurrentTriggerIsDroppedNotQueued(t *testing.T) {
	var frames []ProgressFrame
	b := newTestBrowser(t, &frames)

	b.mu.Lock()
	b.browsing = true
	b.progressID = 1
	b.counter = 3
	b.mu.Unlock()

	err := b.Browse(context.Background(), "any-device")
	require.NoError(t, err, "a dropped concurrent trigger is not an error")

	require.Len(t, frames, 1)
	assert.False(t, frames[0].Done)
	assert.Equal(t, uint64(1), frames[0].ProgressID)
}
