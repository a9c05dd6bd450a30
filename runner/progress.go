package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
)

// ProgressIndicator interface for UI updates
type ProgressIndicator interface {
	StartStage(stageName string, totalTargets int)
	StartTask(taskKey string)
	UpdateTask(taskKey string, status types.TaskStatus)
	CompleteStage(stageName string)
}

// noOpProgressIndicator provides a no-op implementation of ProgressIndicator
type noOpProgressIndicator struct{}

// NewNoOpProgressIndicator creates a progress indicator that does nothing
func NewNoOpProgressIndicator() ProgressIndicator {
	return &noOpProgressIndicator{}
}

func (n *noOpProgressIndicator) StartStage(stageName string, totalTargets int)      {}
func (n *noOpProgressIndicator) StartTask(taskKey string)                           {}
func (n *noOpProgressIndicator) UpdateTask(taskKey string, status types.TaskStatus) {}
func (n *noOpProgressIndicator) CompleteStage(stageName string)                     {}

// ConsoleProgressIndicator periodically logs which tasks are running
type ConsoleProgressIndicator struct {
	logger log.Logger
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
	mu     sync.RWMutex

	currentStage   string
	completedTasks int
	failedTasks    int
	totalTargets   int
	stageStartTime time.Time

	// task key -> start time
	runningTasks map[string]time.Time
}

// NewConsoleProgressIndicator creates a progress indicator that shows updates in the console
func NewConsoleProgressIndicator(logger log.Logger, updateInterval time.Duration) *ConsoleProgressIndicator {
	if updateInterval == 0 {
		updateInterval = 30 * time.Second
	}

	indicator := &ConsoleProgressIndicator{
		logger:       logger,
		ticker:       time.NewTicker(updateInterval),
		stopCh:       make(chan struct{}),
		runningTasks: make(map[string]time.Time),
	}

	go indicator.progressReporter()

	return indicator
}

func (c *ConsoleProgressIndicator) StartStage(stageName string, totalTargets int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentStage = stageName
	c.totalTargets = totalTargets
	c.completedTasks = 0
	c.failedTasks = 0
	c.stageStartTime = time.Now()
	c.runningTasks = make(map[string]time.Time)

	c.logger.Info("Starting stage", "stage", stageName, "targets", totalTargets)
}

func (c *ConsoleProgressIndicator) StartTask(taskKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningTasks[taskKey] = time.Now()
	c.logger.Debug("Task started", "task", taskKey, "runningTasks", len(c.runningTasks))
}

func (c *ConsoleProgressIndicator) UpdateTask(taskKey string, status types.TaskStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.runningTasks, taskKey)
	c.completedTasks++
	if status.IsFailure() {
		c.failedTasks++
	}

	c.logger.Debug("Task completed", "task", taskKey, "status", status, "completed", c.completedTasks, "runningTasks", len(c.runningTasks))
}

func (c *ConsoleProgressIndicator) CompleteStage(stageName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := time.Since(c.stageStartTime).Truncate(time.Second)
	c.logger.Info("Completed stage", "stage", stageName, "tasks", c.completedTasks, "failed", c.failedTasks, "duration", duration)
	c.currentStage = ""
	c.runningTasks = make(map[string]time.Time)
}

func (c *ConsoleProgressIndicator) progressReporter() {
	for {
		select {
		case <-c.ticker.C:
			c.reportProgress()
		case <-c.stopCh:
			return
		}
	}
}

func (c *ConsoleProgressIndicator) reportProgress() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.currentStage == "" {
		return
	}
	c.logger.Info("Progress update",
		"stage", c.currentStage,
		"completed", c.completedTasks,
		"failed", c.failedTasks,
		"targets", c.totalTargets,
		"numRunning", len(c.runningTasks),
		"longestRunning", formatRunningTasks(c.runningTasks, 3),
	)
}

// Stop stops the progress indicator. It is safe to call more than once.
func (c *ConsoleProgressIndicator) Stop() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.stopCh)
	})
}

// formatRunningTasks lists the longest running tasks first
func formatRunningTasks(runningTasks map[string]time.Time, maxShow int) string {
	if len(runningTasks) == 0 {
		return ""
	}

	type runningTask struct {
		key      string
		duration time.Duration
	}

	var running []runningTask
	now := time.Now()
	for key, startTime := range runningTasks {
		running = append(running, runningTask{
			key:      key,
			duration: now.Sub(startTime),
		})
	}

	sort.Slice(running, func(i, j int) bool {
		return running[i].duration > running[j].duration
	})

	var parts []string
	for i, task := range running {
		if i >= maxShow {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", task.key, task.duration.Truncate(time.Second)))
	}

	if len(running) > maxShow {
		parts = append(parts, fmt.Sprintf("+%d more", len(running)-maxShow))
	}

	return strings.Join(parts, ", ")
}
