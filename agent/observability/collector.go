package observability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// TaskTypeStats 按任务类型聚合的委托统计
type TaskTypeStats struct {
	TaskType string `json:"taskType"`

	// 结果计数
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`

	SuccessRate float64 `json:"successRate"`

	// 延迟（基于最近的样本窗口）
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	P50LatencyMs int64   `json:"p50LatencyMs"`
	P95LatencyMs int64   `json:"p95LatencyMs"`
	P99LatencyMs int64   `json:"p99LatencyMs"`

	FirstAt time.Time `json:"firstAt"`
	LastAt  time.Time `json:"lastAt"`

	latencies []time.Duration
	next      int
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	Discoveries int64                     `json:"discoveries"`
	RateLimited map[string]int64          `json:"rateLimited"`
	InFlight    int64                     `json:"inFlight"`
	TaskTypes   map[string]*TaskTypeStats `json:"taskTypes"`
}

// Collector 进程内指标收集器
type Collector struct {
	mu          sync.RWMutex
	window      int
	discoveries int64
	rateLimited map[string]int64
	inFlight    int64
	taskTypes   map[string]*TaskTypeStats
	now         func() time.Time
}

// NewCollector creates a collector keeping up to window latency samples per
// task type. A window <= 0 defaults to 1000.
func NewCollector(window int) *Collector {
	if window <= 0 {
		window = 1000
	}
	return &Collector{
		window:      window,
		rateLimited: make(map[string]int64),
		taskTypes:   make(map[string]*TaskTypeStats),
		now:         time.Now,
	}
}

func (c *Collector) ObserveDiscovery(context.Context, string, int, time.Duration) {
	c.mu.Lock()
	c.discoveries++
	c.mu.Unlock()
}

func (c *Collector) ObserveRateLimited(_ context.Context, direction string) {
	c.mu.Lock()
	c.rateLimited[direction]++
	c.mu.Unlock()
}

func (c *Collector) ObserveInFlight(_ context.Context, delta int64) {
	c.mu.Lock()
	c.inFlight += delta
	c.mu.Unlock()
}

// ObserveDelegation 记录一次委托结果
func (c *Collector) ObserveDelegation(_ context.Context, taskType, status string, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats, ok := c.taskTypes[taskType]
	if !ok {
		stats = &TaskTypeStats{
			TaskType: taskType,
			ByStatus: make(map[string]int64),
			FirstAt:  now,
		}
		c.taskTypes[taskType] = stats
	}

	// 更新计数
	stats.Total++
	stats.ByStatus[status]++
	stats.SuccessRate = float64(stats.ByStatus["success"]) / float64(stats.Total)

	// 环形窗口
	if len(stats.latencies) < c.window {
		stats.latencies = append(stats.latencies, elapsed)
	} else {
		stats.latencies[stats.next] = elapsed
		stats.next = (stats.next + 1) % c.window
	}
	stats.AvgLatencyMs = float64(avgDuration(stats.latencies).Microseconds()) / 1000
	sorted := sortedDurations(stats.latencies)
	stats.P50LatencyMs = percentile(sorted, 0.5).Milliseconds()
	stats.P95LatencyMs = percentile(sorted, 0.95).Milliseconds()
	stats.P99LatencyMs = percentile(sorted, 0.99).Milliseconds()

	stats.LastAt = now
}

// Snapshot 获取所有指标的副本
func (c *Collector) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := &Snapshot{
		Discoveries: c.discoveries,
		RateLimited: make(map[string]int64, len(c.rateLimited)),
		InFlight:    c.inFlight,
		TaskTypes:   make(map[string]*TaskTypeStats, len(c.taskTypes)),
	}
	for k, v := range c.rateLimited {
		out.RateLimited[k] = v
	}
	for k, v := range c.taskTypes {
		cp := *v
		cp.ByStatus = make(map[string]int64, len(v.ByStatus))
		for s, n := range v.ByStatus {
			cp.ByStatus[s] = n
		}
		cp.latencies = nil
		out.TaskTypes[k] = &cp
	}
	return out
}

func avgDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}

func sortedDurations(ds []time.Duration) []time.Duration {
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

var _ Observer = (*Collector)(nil)
