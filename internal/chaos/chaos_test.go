package chaos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ismaiel54/event-sink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseProfile(t *testing.T) {
	drop, lo, hi, err := ParseProfile("drop-pct=30, delay=50-250")
	require.NoError(t, err)
	assert.Equal(t, 30, drop)
	assert.Equal(t, 50, lo)
	assert.Equal(t, 250, hi)

	drop, lo, hi, err = ParseProfile("")
	require.NoError(t, err)
	assert.Zero(t, drop+lo+hi)

	for _, bad := range []string{"drop-pct=x", "drop-pct=101", "delay=10", "delay=20-10", "jitter=5"} {
		_, _, _, err := ParseProfile(bad)
		assert.Error(t, err, bad)
	}
}

func TestChaos_Disabled(t *testing.T) {
	c, err := New(Config{DropPct: 100, DelayMsMin: 1000, DelayMsMax: 1000}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, c.MaybeDrop(OpInsert))
	assert.NoError(t, c.MaybeDelay(context.Background(), OpInsert))
}

func TestChaos_DeterministicForSeed(t *testing.T) {
	cfg := Config{Enabled: true, DropPct: 50, Seed: 42}
	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	b, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	var seqA, seqB []bool
	for i := 0; i < 50; i++ {
		seqA = append(seqA, a.MaybeDrop(OpInsert))
		seqB = append(seqB, b.MaybeDrop(OpInsert))
	}
	assert.Equal(t, seqA, seqB)
	assert.Contains(t, seqA, true)
	assert.Contains(t, seqA, false)
}

func TestChaos_OpsFilter(t *testing.T) {
	c, err := New(Config{Enabled: true, DropPct: 100, Ops: "insert"}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, c.MaybeDrop(OpInsert))
	assert.False(t, c.MaybeDrop(OpList))
}

func TestChaos_ProfileOverrides(t *testing.T) {
	c, err := New(Config{Enabled: true, Profile: "drop-pct=100", DropPct: 0}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, c.MaybeDrop(OpInsert))

	_, err = New(Config{Enabled: true, Profile: "delay=oops"}, zap.NewNop())
	assert.Error(t, err)
}

func TestChaos_WindowExpires(t *testing.T) {
	c, err := New(Config{Enabled: true, DropPct: 100, WindowMs: 20}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, c.EnabledFor(OpInsert))
	time.Sleep(40 * time.Millisecond)
	assert.False(t, c.EnabledFor(OpInsert))
}

func TestChaos_DelayHonoursContext(t *testing.T) {
	c, err := New(Config{Enabled: true, DelayMsMin: 5000, DelayMsMax: 5000}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = c.MaybeDelay(ctx, OpInsert)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStore_DropsWithUnavailable(t *testing.T) {
	inner, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer inner.Close()

	c, err := New(Config{Enabled: true, DropPct: 100, Ops: OpInsert}, zap.NewNop())
	require.NoError(t, err)
	s := WrapStore(inner, c)

	_, _, err = s.InsertOrGetExisting(context.Background(), store.Record{
		Value:     "x",
		CreatedAt: time.Now(),
		Source:    store.SourceOffset{Topic: "test-topic", Offset: 0},
	})
	require.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, err, ErrInjected)

	records, err := s.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records, "dropped insert never reached the store")
	assert.NoError(t, s.Ping(context.Background()))
}
