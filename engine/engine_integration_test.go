package engine

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/gateway/mqtt"
	"github.com/jack2012aa/farm-iot/metric"
	"github.com/jack2012aa/farm-iot/pipeline"
	"github.com/jack2012aa/farm-iot/sensor/feedergate"
	"github.com/jack2012aa/farm-iot/sensor/replay"
)

// startBroker runs an embedded broker on a free local port and returns its
// URL.
func startBroker(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })

	return "tcp://" + addr
}

// runEngine starts eng.Run on its own goroutine and returns the exit
// channel. The cancel is registered as cleanup so a failed assertion still
// stops the gateway.
func runEngine(t *testing.T, eng *Engine) (<-chan error, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	return done, cancel
}

func waitStopped(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
		return nil
	}
}

func TestEngine_ReplayEndToEnd(t *testing.T) {
	recording := filepath.Join(t.TempDir(), "scale.csv")
	require.NoError(t, os.WriteFile(recording, []byte(
		"datetime,weight\n"+
			"2024-03-01 10:00:00,10\n"+
			"2024-03-01 10:00:01,12\n"+
			"2024-03-01 10:00:02,11\n"+
			"2024-03-01 10:00:03,13\n"), 0o644))

	outDir := t.TempDir()
	rawSettings, err := json.Marshal(replay.Settings{Path: recording})
	require.NoError(t, err)

	cfg := &config.Config{
		Site: "farm-a",
		Sensors: []config.SensorConfig{{
			Name:     "scale-1",
			Type:     replay.Kind,
			Length:   2,
			Settings: rawSettings,
			Exporters: []config.ExporterConfig{{
				Type:     "weekly_csv",
				Settings: json.RawMessage(`{"directory": "` + outDir + `", "file_name": "raw"}`),
			}},
			Pipelines: []config.PipelineConfig{{
				Filters: []config.FilterConfig{{
					Type: pipeline.KindBatchAverage,
					Exporters: []config.ExporterConfig{{
						Type:     "weekly_csv",
						Settings: json.RawMessage(`{"directory": "` + outDir + `", "file_name": "avg"}`),
					}},
				}},
			}},
		}},
	}
	require.NoError(t, cfg.Validate())

	eng, err := New(cfg, nil)
	require.NoError(t, err)
	done, cancel := runEngine(t, eng)

	// Four recorded rows in batches of two: two frames, two averages.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(eng.metrics.FramesPublished.WithLabelValues("scale-1")) == 2
	}, 5*time.Second, 20*time.Millisecond, "replay frames not published")

	require.Eventually(t, func() bool {
		status, ok := eng.monitor.Get("scale-1")
		return ok && status.IsHealthy() && status.Message == "finished"
	}, 5*time.Second, 20*time.Millisecond, "replay worker did not finish")

	raw := readWeekly(t, outDir, "raw")
	assert.Contains(t, raw, "weight")
	assert.Contains(t, raw, "10")
	assert.Contains(t, raw, "13")

	// Batch averages: (10+12)/2 = 11 and (11+13)/2 = 12, one row each under
	// the filter's derived column.
	avg := readWeekly(t, outDir, "avg")
	assert.Contains(t, avg, pipeline.KindBatchAverage)
	assert.Contains(t, avg, "11")
	assert.Contains(t, avg, "12")

	cancel()
	require.NoError(t, waitStopped(t, done))
}

// readWeekly finds the week-stamped CSV written for the given file name.
func readWeekly(t *testing.T, dir, name string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "*_"+name+".csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one weekly file for %q", name)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestEngine_GateHeartbeatLossRaisesOneAlarm(t *testing.T) {
	broker := startBroker(t)

	cfg := &config.Config{
		Site: "farm-a",
		MQTT: &config.MQTTConfig{Broker: broker, ClientID: "gateway-test"},
		Sensors: []config.SensorConfig{{
			Name:   "gate-1",
			Type:   feedergate.Kind,
			Length: 1,
			Settings: json.RawMessage(
				`{"data_topic": "barn/gate-1/state",` +
					` "heartbeat_topic": "barn/gate-1/heartbeat",` +
					` "timeout": "1s"}`),
			Belonging: []string{"alice@farm-a"},
		}},
	}
	require.NoError(t, cfg.Validate())

	eng, err := New(cfg, nil)
	require.NoError(t, err)
	done, cancel := runEngine(t, eng)

	// The tracker appears once the worker graph is built.
	require.Eventually(t, func() bool {
		_, ok := eng.watchdog.Tracker("gate-1")
		return ok
	}, 5*time.Second, 20*time.Millisecond, "gate tracker not registered")

	// No heartbeat arrives, so the registration grace expires and the
	// watchdog escalates exactly once.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(eng.metrics.HeartbeatsLost.WithLabelValues("gate-1")) == 1
	}, 5*time.Second, 50*time.Millisecond, "heartbeat loss not detected")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		eng.metrics.AlarmsDispatched.WithLabelValues("gate-1", "heartbeat_lost", "ok")))

	// A continuing outage stays one alarm.
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		eng.metrics.AlarmsDispatched.WithLabelValues("gate-1", "heartbeat_lost", "ok")),
		"a continuing outage must not repeat the alarm")

	// Recovery is silent: a fresh heartbeat revives the tracker without a
	// second event.
	device := mqtt.New(config.MQTTConfig{Broker: broker, ClientID: "device-test"}, nil, metric.NewMetrics())
	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()
	require.NoError(t, device.Connect(ctx))
	t.Cleanup(device.Disconnect)

	require.NoError(t, device.Publish(ctx, "barn/gate-1/heartbeat", []byte("alive")))
	tracker, _ := eng.watchdog.Tracker("gate-1")
	require.Eventually(t, tracker.Alive, 5*time.Second, 20*time.Millisecond, "tracker not revived")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		eng.metrics.AlarmsDispatched.WithLabelValues("gate-1", "heartbeat_lost", "ok")),
		"recovery must not raise an alarm")

	// Gate reports flow as frames and drive the shared state registry.
	require.NoError(t, device.Publish(ctx, "barn/gate-1/state", []byte("Open")))
	require.Eventually(t, func() bool {
		return eng.gates.Status("gate-1") == feedergate.Open
	}, 5*time.Second, 20*time.Millisecond, "gate state not updated")

	require.NoError(t, device.Publish(ctx, "barn/gate-1/state", []byte("Closed")))
	require.Eventually(t, func() bool {
		return eng.gates.Status("gate-1") == feedergate.Closed
	}, 5*time.Second, 20*time.Millisecond, "gate close not observed")
	assert.True(t, eng.gates.ConsumeRefill("gate-1"),
		"open to closed cycle should flag a refill")

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(eng.metrics.FramesPublished.WithLabelValues("gate-1")) >= 2
	}, 5*time.Second, 20*time.Millisecond, "gate frames not published")

	cancel()
	require.NoError(t, waitStopped(t, done))
}
