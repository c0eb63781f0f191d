package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"quantum-relay/observability"

	_ "github.com/shirou/gopsutil"
	"github.com/shirou/gopsutil/process"
)

// ReporterWorker samples the relay's own process stats on a fixed interval
// and feeds them into the health manager, where GET /health reads them.
type ReporterWorker struct {
	health   *observability.HealthManager
	interval time.Duration
	log      *slog.Logger
}

func NewReporterWorker(health *observability.HealthManager, interval time.Duration, log *slog.Logger) *ReporterWorker {
	return &ReporterWorker{health: health, interval: interval, log: log}
}

func (w *ReporterWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping reporter worker")
			return nil
		case <-ticker.C:
			w.sample(proc)
		}
	}
}

func (w *ReporterWorker) sample(proc *process.Process) {
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		w.log.Error("Error while finding process ram usage", "err", err)
		return
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		w.log.Error("Error while finding process cpu usage", "err", err)
		return
	}

	w.health.SetProcessStats(memInfo.RSS, cpu)
	snapshot := w.health.Snapshot()
	w.log.Debug("Health sampled",
		"connections", snapshot.ActiveConnections,
		"requests", snapshot.RequestsServed,
		"avg_ms", snapshot.AvgResponseMs,
		"ram_mb", snapshot.AllocMemMb,
		"cpu", snapshot.CPUPercent,
	)
}
