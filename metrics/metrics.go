package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum-optimism/infra/role-ci/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "role_ci"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tasks_total",
		Help:      "Count of executed pipeline tasks",
	}, []string{
		"stage",
		"target",
		"status",
	})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "task_duration_seconds",
		Help:      "Wall-clock duration of pipeline tasks",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{
		"stage",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Overall result of a pipeline run",
	}, []string{
		"run_id",
		"result",
	})

	runTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tasks",
		Help:      "Number of tasks in a pipeline run by status",
	}, []string{
		"run_id",
		"status",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a pipeline run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTask counts a terminal task and observes its duration.
// Skipped tasks are counted but not observed.
func RecordTask(task *types.ExecutionTask) {
	if task == nil || !task.Status.IsTerminal() {
		log.Error("RecordTask - task is not terminal", "task", task)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tasks_total",
			"stage", task.Stage,
			"target", task.Target,
			"status", task.Status)
	}
	tasksTotal.WithLabelValues(task.Stage, task.Target, string(task.Status)).Inc()
	if task.Status != types.TaskStatusSkipped {
		taskDuration.WithLabelValues(task.Stage).Observe(task.Duration().Seconds())
	}
}

// RecordRun publishes the summary of a sealed run
func RecordRun(run *types.PipelineRun) {
	if run == nil {
		return
	}
	runResults.WithLabelValues(run.RunID, string(run.Status)).Set(1)
	runTasks.WithLabelValues(run.RunID, "total").Set(float64(run.Stats.Total))
	runTasks.WithLabelValues(run.RunID, string(types.TaskStatusPassed)).Set(float64(run.Stats.Passed))
	runTasks.WithLabelValues(run.RunID, string(types.TaskStatusFailed)).Set(float64(run.Stats.Failed))
	runTasks.WithLabelValues(run.RunID, string(types.TaskStatusSkipped)).Set(float64(run.Stats.Skipped))
	runTasks.WithLabelValues(run.RunID, string(types.TaskStatusTimedOut)).Set(float64(run.Stats.TimedOut))
	runDuration.WithLabelValues(run.RunID).Set(run.Duration().Seconds())
}

// WriteTextfile writes every registered metric to path in the text
// exposition format, for pickup by a node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
