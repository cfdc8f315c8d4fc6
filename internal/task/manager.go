package task

import (
	"context"
	"fmt"
	"time"

	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// Job 可调度的任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	jobs      []string
}

// NewManager 创建新的任务管理器
func NewManager() (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Manager{scheduler: s}, nil
}

// Register 注册任务，同一任务不会并发执行
func (m *Manager) Register(job Job) error {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.GetName(), err)
	}
	m.jobs = append(m.jobs, job.GetName())
	return nil
}

// Jobs 已注册的任务名称
func (m *Manager) Jobs() []string {
	return m.jobs
}

// Start 启动任务管理器
func (m *Manager) Start() {
	m.scheduler.Start()
	logger.Info("Task manager started with %d jobs", len(m.jobs))
}

// Stop 停止任务管理器，等待正在执行的任务结束
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}

// CycleJob 定时依次执行发放与核对，保证同一时刻只有一个写入者
type CycleJob struct {
	ctx      context.Context
	payout   *PayoutJob
	verify   *VerifyJob
	interval time.Duration
}

// NewCycleJob 创建周期任务，payout 为空时只核对
func NewCycleJob(ctx context.Context, payout *PayoutJob, verify *VerifyJob, interval time.Duration) *CycleJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CycleJob{ctx: ctx, payout: payout, verify: verify, interval: interval}
}

// GetName 获取任务名称
func (j *CycleJob) GetName() string {
	return "payout_cycle"
}

// GetSchedule 获取任务调度配置
func (j *CycleJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行一轮发放与核对
func (j *CycleJob) Execute() {
	if err := j.ctx.Err(); err != nil {
		return
	}

	if j.payout != nil {
		if _, err := j.payout.Run(j.ctx); err != nil {
			logger.Error("Payout run aborted: %v", err)
			return
		}
	}
	if j.verify != nil {
		if _, err := j.verify.Run(j.ctx); err != nil {
			logger.Error("Verify run aborted: %v", err)
		}
	}
}
