package store

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/alicebob/miniredis/v2"
)

func setupEnergyReportStore(t *testing.T) *EnergyStore {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return NewEnergyStore(redisClient, zap.NewNop())
}

func TestEnergyStore_BuildEnergyWorkbook(t *testing.T) {
	s := setupEnergyReportStore(t)
	ctx := context.Background()
	now := time.Now()

	today := now.Format("20060102")
	yesterday := now.AddDate(0, 0, -1).Format("20060102")

	// rack-a：昨日1.0kWh，今日2.0kWh；rack-b 无数据
	require.NoError(t, s.AddEnergy(ctx, "rack-a", yesterday, 3600000))
	require.NoError(t, s.AddEnergy(ctx, "rack-a", today, 7200000))

	older := now.Add(-2 * time.Minute).Format("200601021504")
	newer := now.Add(-1 * time.Minute).Format("200601021504")
	require.NoError(t, s.AppendPowerPoint(ctx, "rack-a", older, 100))
	require.NoError(t, s.AppendPowerPoint(ctx, "rack-a", newer, 200))

	data, err := s.BuildEnergyWorkbook(ctx, []string{"rack-a", "rack-b"}, 2, now)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Energy Summary")
	assert.Contains(t, sheets, "rack-a")
	assert.Contains(t, sheets, "rack-b")

	// 汇总页：日期列升序，末列为合计
	cell := func(sheet, ref string) string {
		v, err := f.GetCellValue(sheet, ref)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "UPS", cell("Energy Summary", "A1"))
	assert.Equal(t, now.AddDate(0, 0, -1).Format("2006-01-02"), cell("Energy Summary", "B1"))
	assert.Equal(t, now.Format("2006-01-02"), cell("Energy Summary", "C1"))
	assert.Equal(t, "Total kWh", cell("Energy Summary", "D1"))

	assert.Equal(t, "rack-a", cell("Energy Summary", "A2"))
	assert.Equal(t, "1", cell("Energy Summary", "B2"))
	assert.Equal(t, "2", cell("Energy Summary", "C2"))
	assert.Equal(t, "3", cell("Energy Summary", "D2"))

	assert.Equal(t, "rack-b", cell("Energy Summary", "A3"))
	assert.Equal(t, "0", cell("Energy Summary", "B3"))
	assert.Equal(t, "0", cell("Energy Summary", "D3"))

	// 设备页：功率点按时间升序
	assert.Equal(t, "Minute", cell("rack-a", "A1"))
	assert.Equal(t, "Avg Watts", cell("rack-a", "B1"))
	assert.Equal(t, now.Add(-2*time.Minute).Format("2006-01-02 15:04"), cell("rack-a", "A2"))
	assert.Equal(t, "100", cell("rack-a", "B2"))
	assert.Equal(t, now.Add(-1*time.Minute).Format("2006-01-02 15:04"), cell("rack-a", "A3"))
	assert.Equal(t, "200", cell("rack-a", "B3"))

	// 无数据设备页只有表头
	assert.Equal(t, "Minute", cell("rack-b", "A1"))
	assert.Equal(t, "", cell("rack-b", "A2"))
}

func TestSanitizeSheetName(t *testing.T) {
	assert.Equal(t, "rack-a", sanitizeSheetName("rack-a"))
	assert.Equal(t, "dc1-ups-01", sanitizeSheetName("dc1/ups:01"))
	assert.Equal(t, "UPS Energy Summary", sanitizeSheetName("Energy Summary"))

	long := sanitizeSheetName("a-very-long-ups-name-that-exceeds-the-sheet-limit")
	assert.LessOrEqual(t, len(long), 31)
}
