package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"wisefido-power/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMetricStore(t *testing.T) (*miniredis.Miniredis, *redis.Client, *MetricStore) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return mr, redisClient, NewMetricStore(redisClient, zap.NewNop())
}

func historyJSON(t *testing.T, ts int64, report models.Report) string {
	raw, err := json.Marshal(models.HistoryEntry{Ts: ts, Data: report})
	require.NoError(t, err)
	return string(raw)
}

func TestMetricStore_StoreSnapshot_AndGetLatest(t *testing.T) {
	_, _, s := setupMetricStore(t)
	ctx := context.Background()

	report := models.Report{
		models.FieldStatus:  "ONLINE",
		models.FieldLoadPct: "50.0 Percent",
	}
	require.NoError(t, s.StoreSnapshot(ctx, "rack-ups", report))

	latest, err := s.GetLatest(ctx, "rack-ups")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "ONLINE", latest[models.FieldStatus])
	assert.Equal(t, "50.0 Percent", latest[models.FieldLoadPct])
	assert.NotEmpty(t, latest[models.FieldSnapshotTs])
}

func TestMetricStore_StoreSnapshot_OverwritesWholesale(t *testing.T) {
	_, _, s := setupMetricStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreSnapshot(ctx, "u1", models.Report{
		models.FieldStatus:   "ONLINE",
		models.FieldLastXfer: "Low line voltage",
	}))
	// 第二个周期不再带 LASTXFER 字段
	require.NoError(t, s.StoreSnapshot(ctx, "u1", models.Report{
		models.FieldStatus: "ONBATT",
	}))

	latest, err := s.GetLatest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ONBATT", latest[models.FieldStatus])
	// 整体覆盖：上一周期的字段不残留
	_, stale := latest[models.FieldLastXfer]
	assert.False(t, stale)
}

func TestMetricStore_GetLatest_Missing(t *testing.T) {
	_, _, s := setupMetricStore(t)

	latest, err := s.GetLatest(context.Background(), "no-such-ups")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestMetricStore_GetHistory_FiltersByAge(t *testing.T) {
	_, redisClient, s := setupMetricStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	key := histKeyPrefix + "u1"
	// 一条超窗、一条窗内、一条无法解析
	require.NoError(t, redisClient.RPush(ctx, key,
		historyJSON(t, now-8*24*3600, models.Report{models.FieldStatus: "ONLINE"}),
		"not-json",
		historyJSON(t, now-3600, models.Report{models.FieldStatus: "ONBATT"}),
	).Err())

	entries, err := s.GetHistory(ctx, "u1", RetentionWindow)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ONBATT", entries[0].Data[models.FieldStatus])
}

func TestMetricStore_GetHistory_PreservesOrder(t *testing.T) {
	_, redisClient, s := setupMetricStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	key := histKeyPrefix + "u1"
	for i := 0; i < 3; i++ {
		require.NoError(t, redisClient.RPush(ctx, key,
			historyJSON(t, now-int64(3-i)*60, models.Report{"SEQ": fmt.Sprintf("%d", i)}),
		).Err())
	}

	entries, err := s.GetHistory(ctx, "u1", RetentionWindow)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// 旧到新
	assert.Equal(t, "0", entries[0].Data["SEQ"])
	assert.Equal(t, "2", entries[2].Data["SEQ"])
}

func TestMetricStore_StoreSnapshot_TrimsToCap(t *testing.T) {
	_, redisClient, s := setupMetricStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	key := histKeyPrefix + "u1"
	batch := make([]interface{}, 0, 512)
	for i := 0; i < maxSamplesPerUPS+5; i++ {
		batch = append(batch, historyJSON(t, now, models.Report{models.FieldStatus: "ONLINE"}))
		if len(batch) == 512 {
			require.NoError(t, redisClient.RPush(ctx, key, batch...).Err())
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		require.NoError(t, redisClient.RPush(ctx, key, batch...).Err())
	}

	require.NoError(t, s.StoreSnapshot(ctx, "u1", models.Report{models.FieldStatus: "ONLINE"}))

	length, err := redisClient.LLen(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(maxSamplesPerUPS), length)
}

func TestMetricStore_PruneOld(t *testing.T) {
	_, redisClient, s := setupMetricStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	key := histKeyPrefix + "u1"
	require.NoError(t, redisClient.RPush(ctx, key,
		historyJSON(t, now-9*24*3600, models.Report{models.FieldStatus: "OLD-1"}),
		"garbage-entry",
		historyJSON(t, now-8*24*3600, models.Report{models.FieldStatus: "OLD-2"}),
		historyJSON(t, now-600, models.Report{models.FieldStatus: "FRESH"}),
	).Err())

	// 第二台设备全部在窗内，不应被清理
	otherKey := histKeyPrefix + "u2"
	require.NoError(t, redisClient.RPush(ctx, otherKey,
		historyJSON(t, now-60, models.Report{models.FieldStatus: "ONLINE"}),
	).Err())

	require.NoError(t, s.PruneOld(ctx))

	entries, err := s.GetHistory(ctx, "u1", RetentionWindow)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "FRESH", entries[0].Data[models.FieldStatus])

	otherLen, err := redisClient.LLen(ctx, otherKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), otherLen)
}
