package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		entry   Entry
		wantErr bool
	}{
		{name: "version", entry: Entry{Session: "s", Kind: KindVersion, Source: "a.geojson", Timestamp: now}},
		{name: "comment", entry: Entry{Session: "s", Kind: KindComment, Text: "looks good", Timestamp: now}},
		{name: "no session", entry: Entry{Kind: KindComment, Text: "x", Timestamp: now}, wantErr: true},
		{name: "version without source", entry: Entry{Session: "s", Kind: KindVersion, Timestamp: now}, wantErr: true},
		{name: "empty comment", entry: Entry{Session: "s", Kind: KindComment, Timestamp: now}, wantErr: true},
		{name: "unknown kind", entry: Entry{Session: "s", Kind: "like", Timestamp: now}, wantErr: true},
		{name: "zero time", entry: Entry{Session: "s", Kind: KindComment, Text: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryLogSessionsAreSeparate(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, Entry{Session: "a", Kind: KindVersion, Source: "one.geojson", Timestamp: t0}))
	require.NoError(t, log.Append(ctx, Entry{Session: "a", Kind: KindComment, Text: "ok", Timestamp: t0.Add(time.Minute)}))
	require.NoError(t, log.Append(ctx, Entry{Session: "b", Kind: KindVersion, Source: "two.geojson", Timestamp: t0}))
	assert.Error(t, log.Append(ctx, Entry{Session: "a", Kind: KindComment, Timestamp: t0}))

	a, err := log.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, KindVersion, a[0].Kind)
	assert.Equal(t, "ok", a[1].Text)

	none, err := log.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryLogConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Append(ctx, Entry{Session: "s", Kind: KindComment, Text: "hi", Timestamp: time.Now()})
		}()
	}
	wg.Wait()

	entries, err := log.List(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, entries, 50)
}
