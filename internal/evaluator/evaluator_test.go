package evaluator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wisefido-power/internal/models"
	"wisefido-power/internal/notifier"
	"wisefido-power/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSink struct {
	fail    bool
	batches [][]string
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Send(_ context.Context, _ string, messages []string) error {
	if s.fail {
		return fmt.Errorf("capture sink unavailable")
	}
	s.batches = append(s.batches, messages)
	return nil
}

type evaluatorFixture struct {
	mr     *miniredis.Miniredis
	alerts *store.AlertStateStore
	events *store.EventStore
	sink   *captureSink
	eval   *AlertEvaluator
}

func setupEvaluator(t *testing.T) *evaluatorFixture {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	logger := zap.NewNop()
	alerts := store.NewAlertStateStore(redisClient, logger)
	events := store.NewEventStore(redisClient, logger)
	sink := &captureSink{}
	n := notifier.NewNotifier(logger, sink)

	return &evaluatorFixture{
		mr:     mr,
		alerts: alerts,
		events: events,
		sink:   sink,
		eval:   NewAlertEvaluator(alerts, events, n, nil, logger),
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestEvaluateThresholds_LoadHigh(t *testing.T) {
	cfg := &models.UPSConfig{Name: "rack-a", AlertLoadPctHigh: floatPtr(80)}

	msgs := evaluateThresholds(cfg, models.Report{models.FieldLoadPct: "91.0 Percent"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Load percentage high: 91.0% >= 80.0%", msgs[0])

	// 阈值以下不触发
	msgs = evaluateThresholds(cfg, models.Report{models.FieldLoadPct: "45.0 Percent"})
	assert.Empty(t, msgs)

	// 无法解析的取值不触发
	msgs = evaluateThresholds(cfg, models.Report{models.FieldLoadPct: "N/A"})
	assert.Empty(t, msgs)
}

func TestEvaluateThresholds_BChargeLow(t *testing.T) {
	cfg := &models.UPSConfig{Name: "rack-a", AlertBChargeLow: floatPtr(50)}

	msgs := evaluateThresholds(cfg, models.Report{models.FieldBCharge: "40.0 Percent"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Battery charge low: 40.0% <= 50.0%", msgs[0])

	msgs = evaluateThresholds(cfg, models.Report{models.FieldBCharge: "100.0 Percent"})
	assert.Empty(t, msgs)
}

func TestEvaluateThresholds_OnBattery(t *testing.T) {
	cfg := &models.UPSConfig{Name: "rack-a", AlertOnBattery: true}

	msgs := evaluateThresholds(cfg, models.Report{models.FieldStatus: "ONBATT"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "UPS on battery: status=ONBATT", msgs[0])

	// 关键字变体
	msgs = evaluateThresholds(cfg, models.Report{models.FieldStatus: "on battery"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "UPS on battery: status=ON BATTERY", msgs[0])

	msgs = evaluateThresholds(cfg, models.Report{models.FieldStatus: "ONLINE"})
	assert.Empty(t, msgs)

	// 开关关闭时不触发
	off := &models.UPSConfig{Name: "rack-a"}
	msgs = evaluateThresholds(off, models.Report{models.FieldStatus: "ONBATT"})
	assert.Empty(t, msgs)
}

func TestEvaluateThresholds_RuntimeLow(t *testing.T) {
	cfg := &models.UPSConfig{Name: "rack-a", AlertRuntimeLowMinutes: floatPtr(10)}

	msgs := evaluateThresholds(cfg, models.Report{models.FieldTimeLeft: "4.0 Minutes"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Runtime low: 4.0m <= 10.0m", msgs[0])

	msgs = evaluateThresholds(cfg, models.Report{models.FieldTimeLeft: "45.5 Minutes"})
	assert.Empty(t, msgs)
}

func TestEvaluateThresholds_MultipleRules(t *testing.T) {
	cfg := &models.UPSConfig{
		Name:                   "rack-a",
		AlertLoadPctHigh:       floatPtr(80),
		AlertBChargeLow:        floatPtr(50),
		AlertOnBattery:         true,
		AlertRuntimeLowMinutes: floatPtr(10),
	}
	report := models.Report{
		models.FieldLoadPct:  "91.0 Percent",
		models.FieldBCharge:  "40.0 Percent",
		models.FieldStatus:   "ONBATT",
		models.FieldTimeLeft: "4.0 Minutes",
	}

	msgs := evaluateThresholds(cfg, report)
	require.Len(t, msgs, 4)
	// 规则评估顺序固定
	assert.Equal(t, "Load percentage high: 91.0% >= 80.0%", msgs[0])
	assert.Equal(t, "Battery charge low: 40.0% <= 50.0%", msgs[1])
	assert.Equal(t, "UPS on battery: status=ONBATT", msgs[2])
	assert.Equal(t, "Runtime low: 4.0m <= 10.0m", msgs[3])
}

func TestAlertEvaluator_TransferBurst(t *testing.T) {
	f := setupEvaluator(t)
	ctx := context.Background()
	now := time.Now().Unix()
	cfg := &models.UPSConfig{Name: "rack-a"}
	ui := models.UIConfig{EnableTransferBurstAlert: true}

	// 两次切换不触发
	for i := 0; i < 2; i++ {
		require.NoError(t, f.events.AppendEvent(ctx, &models.UPSEvent{
			Ts: now - int64(i*60), UPSName: "rack-a", Kind: models.EventKindStatus, Detail: "ONBATT",
		}))
	}
	msgs := f.eval.Evaluate(ctx, cfg, ui, models.Report{})
	assert.Empty(t, msgs)

	// 第三次达到阈值
	require.NoError(t, f.events.AppendEvent(ctx, &models.UPSEvent{
		Ts: now - 120, UPSName: "rack-a", Kind: models.EventKindStatus, Detail: "ONBATT",
	}))
	msgs = f.eval.Evaluate(ctx, cfg, ui, models.Report{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "Frequent battery events: 3 in last hour", msgs[0])
}

func TestAlertEvaluator_TransferBurst_IgnoresOldAndUnrelated(t *testing.T) {
	f := setupEvaluator(t)
	ctx := context.Background()
	now := time.Now().Unix()
	cfg := &models.UPSConfig{Name: "rack-a"}
	ui := models.UIConfig{EnableTransferBurstAlert: true}

	// 窗口外的切换事件
	require.NoError(t, f.events.AppendEvent(ctx, &models.UPSEvent{
		Ts: now - 7200, UPSName: "rack-a", Kind: models.EventKindStatus, Detail: "ONBATT",
	}))
	// 非电池状态事件
	require.NoError(t, f.events.AppendEvent(ctx, &models.UPSEvent{
		Ts: now, UPSName: "rack-a", Kind: models.EventKindStatus, Detail: "ONLINE",
	}))
	// 切换原因事件不参与统计
	require.NoError(t, f.events.AppendEvent(ctx, &models.UPSEvent{
		Ts: now, UPSName: "rack-a", Kind: models.EventKindXfer, Detail: "Automatic or explicit self test, ONBATT",
	}))
	require.NoError(t, f.events.AppendEvent(ctx, &models.UPSEvent{
		Ts: now, UPSName: "rack-a", Kind: models.EventKindStatus, Detail: "ONBATT",
	}))
	require.NoError(t, f.events.AppendEvent(ctx, &models.UPSEvent{
		Ts: now - 60, UPSName: "rack-a", Kind: models.EventKindStatus, Detail: "ONBATT",
	}))

	msgs := f.eval.Evaluate(ctx, cfg, ui, models.Report{})
	assert.Empty(t, msgs)
}

func TestAlertEvaluator_VoltageDeviation_RequiresMinSamples(t *testing.T) {
	f := setupEvaluator(t)
	ctx := context.Background()
	cfg := &models.UPSConfig{Name: "rack-a"}
	ui := models.UIConfig{EnableVoltageDeviationAlert: true}
	// 偏差 9%：109V vs 标称 100V
	report := models.Report{
		models.FieldLineV:  "109.0 Volts",
		models.FieldNomInV: "100.0 Volts",
	}

	// 9个样本均值9%：样本数不足，不触发
	for i := 0; i < 9; i++ {
		msgs := f.eval.Evaluate(ctx, cfg, ui, report)
		assert.Empty(t, msgs, "sample %d should not fire", i+1)
	}

	// 第10个样本：样本数达标且均值超阈值
	msgs := f.eval.Evaluate(ctx, cfg, ui, report)
	require.Len(t, msgs, 1)
	assert.Equal(t, "High average voltage deviation: 9.0% over 10 samples", msgs[0])
}

func TestAlertEvaluator_VoltageDeviation_SkipsWithoutNominal(t *testing.T) {
	f := setupEvaluator(t)
	ctx := context.Background()
	cfg := &models.UPSConfig{Name: "rack-a"}
	ui := models.UIConfig{EnableVoltageDeviationAlert: true}

	msgs := f.eval.Evaluate(ctx, cfg, ui, models.Report{models.FieldLineV: "120.0 Volts"})
	assert.Empty(t, msgs)

	samples, err := f.alerts.VoltageSamples(ctx, "rack-a")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestAlertEvaluator_VoltageDeviation_NomInputFallback(t *testing.T) {
	f := setupEvaluator(t)
	ctx := context.Background()
	cfg := &models.UPSConfig{Name: "rack-a"}
	ui := models.UIConfig{EnableVoltageDeviationAlert: true}

	f.eval.Evaluate(ctx, cfg, ui, models.Report{
		models.FieldLineV:    "110.0 Volts",
		models.FieldNomInput: "100.0 Volts",
	})

	samples, err := f.alerts.VoltageSamples(ctx, "rack-a")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.InDelta(t, 10.0, samples[0], 0.001)
}

func TestAlertEvaluator_Process_CooldownSuppresses(t *testing.T) {
	f := setupEvaluator(t)
	ctx := context.Background()
	cfg := &models.UPSConfig{Name: "rack-a", AlertLoadPctHigh: floatPtr(80)}
	ui := models.DefaultUIConfig()
	report := models.Report{models.FieldLoadPct: "91.0 Percent"}

	require.NoError(t, f.eval.Process(ctx, cfg, ui, report))
	require.Len(t, f.sink.batches, 1)
	assert.Equal(t, []string{"Load percentage high: 91.0% >= 80.0%"}, f.sink.batches[0])

	// 冷却期内重复触发被抑制
	require.NoError(t, f.eval.Process(ctx, cfg, ui, report))
	assert.Len(t, f.sink.batches, 1)

	recent, err := f.alerts.RecentAlerts(ctx, "rack-a", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	// 冷却过期后重新可投递
	f.mr.FastForward(store.CooldownTTL + time.Second)
	require.NoError(t, f.eval.Process(ctx, cfg, ui, report))
	assert.Len(t, f.sink.batches, 2)
}

func TestAlertEvaluator_Process_DistinctMessagesNotSuppressed(t *testing.T) {
	f := setupEvaluator(t)
	ctx := context.Background()
	cfg := &models.UPSConfig{Name: "rack-a", AlertLoadPctHigh: floatPtr(80)}
	ui := models.DefaultUIConfig()

	require.NoError(t, f.eval.Process(ctx, cfg, ui, models.Report{models.FieldLoadPct: "91.0 Percent"}))
	// 负载值不同，消息内容不同，不受前一条冷却影响
	require.NoError(t, f.eval.Process(ctx, cfg, ui, models.Report{models.FieldLoadPct: "95.0 Percent"}))

	require.Len(t, f.sink.batches, 2)
	assert.Equal(t, []string{"Load percentage high: 95.0% >= 80.0%"}, f.sink.batches[1])
}

func TestAlertEvaluator_Process_DeliveryFailureKeepsCooldown(t *testing.T) {
	f := setupEvaluator(t)
	f.sink.fail = true
	ctx := context.Background()
	cfg := &models.UPSConfig{Name: "rack-a", AlertOnBattery: true}
	ui := models.DefaultUIConfig()
	report := models.Report{models.FieldStatus: "ONBATT"}

	require.NoError(t, f.eval.Process(ctx, cfg, ui, report))

	// 投递失败不回滚冷却与最近告警记录
	recent, err := f.alerts.RecentAlerts(ctx, "rack-a", 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	require.NoError(t, f.eval.Process(ctx, cfg, ui, report))
	recent, err = f.alerts.RecentAlerts(ctx, "rack-a", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestAlertEvaluator_Process_NoRulesConfigured(t *testing.T) {
	f := setupEvaluator(t)
	ctx := context.Background()
	cfg := &models.UPSConfig{Name: "rack-a"}
	ui := models.DefaultUIConfig()

	require.NoError(t, f.eval.Process(ctx, cfg, ui, models.Report{
		models.FieldLoadPct: "91.0 Percent",
		models.FieldStatus:  "ONLINE",
	}))

	assert.Empty(t, f.sink.batches)
	recent, err := f.alerts.RecentAlerts(ctx, "rack-a", 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	a := Fingerprint("rack-a", "UPS on battery: status=ONBATT")
	b := Fingerprint("rack-a", "UPS on battery: status=ONBATT")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	assert.NotEqual(t, a, Fingerprint("rack-b", "UPS on battery: status=ONBATT"))
	assert.NotEqual(t, a, Fingerprint("rack-a", "Runtime low: 4.0m <= 10.0m"))
}
