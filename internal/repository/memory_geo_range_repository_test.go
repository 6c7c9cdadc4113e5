package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoWatch-App/internal/domain/model"
	"GeoWatch-App/internal/geohash"
)

func record(t *testing.T, id string, lat, lng float64) model.GeoRecord {
	t.Helper()
	hash, err := geohash.Encode(lat, lng, geohash.StorePrecision)
	require.NoError(t, err)
	return model.GeoRecord{
		ID: id,
		Point: model.FirePoint{
			Geopoint: model.GeoPoint{Latitude: lat, Longitude: lng},
			Geohash:  hash,
		},
	}
}

func recvRangeSnapshot(t *testing.T, ch <-chan model.RangeSnapshot) model.RangeSnapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "チャネルが閉じられていた")
		return snap
	case <-time.After(time.Second):
		t.Fatal("スナップショットが届かない")
		return model.RangeSnapshot{}
	}
}

func TestMemoryRangeSubscribeInitialSnapshot(t *testing.T) {
	repo := NewMemoryGeoRangeRepository()
	ctx := context.Background()

	inRange := record(t, "in", 35.0, 135.0)
	outRange := record(t, "out", -35.0, -135.0)
	require.NoError(t, repo.SaveRecord(ctx, "position", inRange))
	require.NoError(t, repo.SaveRecord(ctx, "position", outRange))

	prefix := inRange.Point.Geohash[:4]
	sub, err := repo.RangeSubscribe(ctx, "position", prefix, prefix+"~")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := recvRangeSnapshot(t, sub.Snapshots())
	require.NoError(t, snap.Err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "in", snap.Records[0].ID)
}

func TestMemoryRangeSubscribeLiveUpdates(t *testing.T) {
	repo := NewMemoryGeoRangeRepository()
	ctx := context.Background()

	base := record(t, "base", 35.0, 135.0)
	prefix := base.Point.Geohash[:4]

	sub, err := repo.RangeSubscribe(ctx, "position", prefix, prefix+"~")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := recvRangeSnapshot(t, sub.Snapshots())
	assert.Empty(t, snap.Records)

	require.NoError(t, repo.SaveRecord(ctx, "position", base))
	snap = recvRangeSnapshot(t, sub.Snapshots())
	require.Len(t, snap.Records, 1)

	require.NoError(t, repo.DeleteRecord(ctx, "base"))
	snap = recvRangeSnapshot(t, sub.Snapshots())
	assert.Empty(t, snap.Records)
}

// ジオハッシュ昇順で返る（ソート済みインデックスの範囲スキャン相当）
func TestMemoryRangeSnapshotOrdering(t *testing.T) {
	repo := NewMemoryGeoRangeRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveRecord(ctx, "position", record(t, "a", 35.01, 135.01)))
	require.NoError(t, repo.SaveRecord(ctx, "position", record(t, "b", 35.02, 135.02)))
	require.NoError(t, repo.SaveRecord(ctx, "position", record(t, "c", 35.03, 135.03)))

	sub, err := repo.RangeSubscribe(ctx, "position", "0", "~")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := recvRangeSnapshot(t, sub.Snapshots())
	require.Len(t, snap.Records, 3)
	for i := 1; i < len(snap.Records); i++ {
		assert.LessOrEqual(t, snap.Records[i-1].Point.Geohash, snap.Records[i].Point.Geohash)
	}
}

func TestMemoryUnsubscribeIdempotent(t *testing.T) {
	repo := NewMemoryGeoRangeRepository()
	ctx := context.Background()

	sub, err := repo.RangeSubscribe(ctx, "position", "x", "x~")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.ActiveSubscriptions())

	sub.Unsubscribe()
	assert.Equal(t, 0, repo.ActiveSubscriptions())
	assert.NotPanics(t, sub.Unsubscribe)

	// 解除後のチャネルは閉じている
	_, open := <-sub.Snapshots()
	assert.False(t, open)
}

func TestMemorySubscriptionStopsOnContextCancel(t *testing.T) {
	repo := NewMemoryGeoRangeRepository()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := repo.RangeSubscribe(ctx, "position", "x", "x~")
	require.NoError(t, err)
	require.Equal(t, 1, repo.ActiveSubscriptions())

	cancel()
	assert.Eventually(t, func() bool {
		return repo.ActiveSubscriptions() == 0
	}, time.Second, 10*time.Millisecond)
}
