// =============================================================================
// 文件: internal/runner/runner_test.go
// 描述: 批量执行器测试 - 并行执行/种子派生/聚合正确性
// =============================================================================
package runner

import (
	"context"
	"sync"
	"testing"

	"github.com/mrcgq/arqsim/internal/config"
	"github.com/mrcgq/arqsim/internal/emulator"
	"github.com/mrcgq/arqsim/internal/protocol"
)

func testRunner(t *testing.T, trials, parallel int, seed int64) *Runner {
	t.Helper()
	proto := protocol.Config{WindowSize: 6, SeqSpace: 12, RTT: 30}
	sim := config.SimConfig{
		Messages:         20,
		LossProb:         0.15,
		CorruptProb:      0.1,
		MeanInterarrival: 50,
		Seed:             seed,
	}
	r, err := New(proto, sim, config.RunnerConfig{Trials: trials, Parallelism: parallel}, 0)
	if err != nil {
		t.Fatalf("创建执行器失败: %v", err)
	}
	return r
}

func TestRunnerBatch(t *testing.T) {
	r := testRunner(t, 8, 4, 1000)

	agg, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("批量执行失败: %v", err)
	}

	if agg.Trials != 8 {
		t.Errorf("应有 8 次试验, 实际 %d", agg.Trials)
	}
	if !agg.AllPassed() {
		t.Fatalf("应全部通过核验: %s", agg.Summary())
	}
	if agg.MessagesDelivered != agg.MessagesAccepted {
		t.Errorf("聚合后接纳 %d 与交付 %d 不符", agg.MessagesAccepted, agg.MessagesDelivered)
	}

	// 种子按试验序号派生, 互不相同
	seen := map[int64]bool{}
	for i, report := range agg.Reports {
		want := int64(1000 + i)
		if report.Seed != want {
			t.Errorf("试验 %d 的种子应为 %d, 实际 %d", i, want, report.Seed)
		}
		if seen[report.Seed] {
			t.Errorf("种子 %d 重复", report.Seed)
		}
		seen[report.Seed] = true
	}
}

func TestRunnerDeterministicAcrossParallelism(t *testing.T) {
	run := func(parallel int) *Aggregate {
		agg, err := testRunner(t, 6, parallel, 2000).Run(context.Background())
		if err != nil {
			t.Fatalf("批量执行失败: %v", err)
		}
		return agg
	}

	serial := run(1)
	concurrent := run(4)

	for i := range serial.Reports {
		if serial.Reports[i].Sender != concurrent.Reports[i].Sender {
			t.Errorf("试验 %d 在不同并行度下结果不一致", i)
		}
	}
}

func TestRunnerObserver(t *testing.T) {
	r := testRunner(t, 5, 2, 3000)

	var mu sync.Mutex
	var observed []*emulator.Report
	r.SetObserver(func(report *emulator.Report) {
		mu.Lock()
		observed = append(observed, report)
		mu.Unlock()
	})

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("批量执行失败: %v", err)
	}
	if len(observed) != 5 {
		t.Errorf("观察者应收到 5 份报告, 实际 %d", len(observed))
	}
}

func TestRunnerCancellation(t *testing.T) {
	r := testRunner(t, 100, 1, 4000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx); err == nil {
		t.Error("已取消的上下文应使批量执行返回错误")
	}
}

func TestRunnerRejectsBadParams(t *testing.T) {
	proto := protocol.Config{WindowSize: 6, SeqSpace: 12, RTT: 30}
	sim := config.SimConfig{Messages: 10, MeanInterarrival: 50, Seed: 1}

	tests := []struct {
		name string
		rc   config.RunnerConfig
	}{
		{"零试验数", config.RunnerConfig{Trials: 0, Parallelism: 1}},
		{"零并行度", config.RunnerConfig{Trials: 1, Parallelism: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(proto, sim, tt.rc, 0); err == nil {
				t.Error("非法参数应被拒绝")
			}
		})
	}
}

func TestRunnerObserved(t *testing.T) {
	r := testRunner(t, 1, 1, 5000)

	sink := &countingSink{}
	report, err := r.RunObserved(sink)
	if err != nil {
		t.Fatalf("单次执行失败: %v", err)
	}
	if !report.Passed() {
		t.Fatalf("核验失败: %v", report.Violations)
	}
	if sink.count == 0 {
		t.Error("事件流出口未收到事件")
	}
}

type countingSink struct{ count int }

func (s *countingSink) Emit(emulator.TraceEvent) { s.count++ }
