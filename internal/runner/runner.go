// =============================================================================
// 文件: internal/runner/runner.go
// 描述: 批量试验执行器 - 并行跑多个独立种子的仿真并聚合结果
// =============================================================================
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrcgq/arqsim/internal/config"
	"github.com/mrcgq/arqsim/internal/emulator"
	"github.com/mrcgq/arqsim/internal/protocol"
)

// Runner 按固定基准种子派生每次试验的种子, 批量结果可复现
type Runner struct {
	proto    protocol.Config
	sim      config.SimConfig
	trials   int
	parallel int
	logLevel int

	mu       sync.Mutex
	observer func(*emulator.Report)
}

// SetObserver 注册试验完成回调 (指标上报用), 回调可能被多个 goroutine 并发调用
func (r *Runner) SetObserver(fn func(*emulator.Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

func (r *Runner) notify(report *emulator.Report) {
	r.mu.Lock()
	fn := r.observer
	r.mu.Unlock()
	if fn != nil {
		fn(report)
	}
}

// New 创建批量执行器
func New(proto protocol.Config, sim config.SimConfig, rc config.RunnerConfig, logLevel int) (*Runner, error) {
	if err := proto.Validate(); err != nil {
		return nil, err
	}
	if rc.Trials < 1 {
		return nil, fmt.Errorf("trials 需大于 0: %d", rc.Trials)
	}
	if rc.Parallelism < 1 {
		return nil, fmt.Errorf("parallelism 需大于 0: %d", rc.Parallelism)
	}

	if sim.Seed == 0 {
		sim.Seed = time.Now().UnixNano()
	}

	return &Runner{
		proto:    proto,
		sim:      sim,
		trials:   rc.Trials,
		parallel: rc.Parallelism,
		logLevel: logLevel,
	}, nil
}

// Run 并行执行全部试验
// 试验 i 的种子为 基准种子+i, 结果按试验序号排列; 任一试验构造失败即中止
func (r *Runner) Run(ctx context.Context) (*Aggregate, error) {
	reports := make([]*emulator.Report, r.trials)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for i := 0; i < r.trials; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			sim := r.sim
			sim.Seed = r.sim.Seed + int64(i)

			em, err := emulator.New(r.proto, sim, r.logLevel, nil)
			if err != nil {
				return fmt.Errorf("试验 %d 构造失败: %w", i, err)
			}
			reports[i] = em.Run()
			r.notify(reports[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return aggregate(r.sim.Seed, reports), nil
}

// RunObserved 单次试验模式, 带事件流出口 (多试验并行时事件会交错, 故单独提供)
func (r *Runner) RunObserved(sink emulator.TraceSink) (*emulator.Report, error) {
	em, err := emulator.New(r.proto, r.sim, r.logLevel, sink)
	if err != nil {
		return nil, err
	}
	report := em.Run()
	r.notify(report)
	return report, nil
}
