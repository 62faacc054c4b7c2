// =============================================================================
// 文件: internal/metrics/metrics_test.go
// 描述: 指标累加与 Prometheus 暴露测试
// =============================================================================
package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mrcgq/arqsim/internal/emulator"
	"github.com/mrcgq/arqsim/internal/protocol"
)

func sampleReport() *emulator.Report {
	return &emulator.Report{
		Seed:              42,
		Duration:          512.5,
		MessagesOffered:   20,
		MessagesAccepted:  19,
		MessagesDelivered: 19,
		Sender: protocol.SenderStats{
			PacketsSent:   19,
			PacketsResent: 4,
			Timeouts:      3,
			DuplicateAcks: 2,
			CorruptedAcks: 1,
		},
		Receiver: protocol.ReceiverStats{
			AcksSent:         22,
			CorruptedPackets: 2,
		},
		Channel: emulator.ChannelStats{
			PacketsInjected:  45,
			PacketsLost:      3,
			PacketsCorrupted: 3,
		},
	}
}

func TestRecorderObserve(t *testing.T) {
	rec := NewRecorder()
	rec.Observe(sampleReport())
	rec.Observe(sampleReport())

	if got := rec.GetTrialsRun(); got != 2 {
		t.Errorf("试验数应为 2, 实际 %d", got)
	}
	if got := rec.GetTrialsPassed(); got != 2 {
		t.Errorf("通过数应为 2, 实际 %d", got)
	}
	if got := rec.GetPacketsResent(); got != 8 {
		t.Errorf("重传总数应为 8, 实际 %d", got)
	}
	if got := rec.GetCorruptedDrops(); got != 6 {
		t.Errorf("校验丢弃总数应为 6 (双向 3x2), 实际 %d", got)
	}

	failed := sampleReport()
	failed.Violations = []string{"测试违例"}
	rec.Observe(failed)

	if rec.GetTrialsRun() != 3 || rec.GetTrialsPassed() != 2 {
		t.Errorf("失败试验不应计入通过数: run=%d passed=%d",
			rec.GetTrialsRun(), rec.GetTrialsPassed())
	}

	rec.Reset()
	if rec.GetTrialsRun() != 0 {
		t.Error("Reset 后试验数应归零")
	}
}

func TestSimulationCollectorGather(t *testing.T) {
	rec := NewRecorder()
	rec.Observe(sampleReport())

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewSimulationCollector(rec))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather 失败: %v", err)
	}

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}

	for _, name := range []string{
		"arqsim_sim_trials_total",
		"arqsim_sim_messages_total",
		"arqsim_sim_packets_total",
		"arqsim_sim_channel_impairments_total",
		"arqsim_sim_timeouts_total",
		"arqsim_sim_uptime_seconds",
	} {
		if !found[name] {
			t.Errorf("缺少指标 %s", name)
		}
	}
}

func TestServerEndpoints(t *testing.T) {
	srv := NewServer(":0", "/metrics", "/health", false)
	rec := NewRecorder()
	rec.Observe(sampleReport())
	srv.MustRegisterCollector(NewSimulationCollector(rec))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	t.Run("metrics端点", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatalf("请求失败: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("状态码 %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("读取响应失败: %v", err)
		}
		if !strings.Contains(string(body), "arqsim_sim_trials_total") {
			t.Error("metrics 输出缺少仿真指标")
		}
	})

	t.Run("health端点", func(t *testing.T) {
		srv.SetHealthCheck(func() HealthStatus {
			return HealthStatus{
				Status:    "healthy",
				Timestamp: time.Now(),
				Components: map[string]ComponentHealth{
					"runner": {Status: "healthy"},
				},
			}
		})

		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("请求失败: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("健康时状态码应为 200, 实际 %d", resp.StatusCode)
		}
	})

	t.Run("存活探针", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health/live")
		if err != nil {
			t.Fatalf("请求失败: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("存活探针应为 200, 实际 %d", resp.StatusCode)
		}

		srv.SetHealthy(false)
		resp, err = http.Get(ts.URL + "/health/live")
		if err != nil {
			t.Fatalf("请求失败: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("不健康时存活探针应为 503, 实际 %d", resp.StatusCode)
		}
	})
}
