package pipeline

import (
	"log/slog"
	"sync"
	"time"
)

// Progress receives batch progress updates. Calls may come from several
// goroutines but are serialized by RunBatch.
type Progress interface {
	OnStart(total int)
	OnProgress(done, total int)
	OnError(index int, err error)
	OnComplete()
}

// LogProgress reports batch progress through slog.
type LogProgress struct {
	logger   *slog.Logger
	interval int

	mu        sync.Mutex
	lastLog   int
	startTime time.Time
}

// NewLogProgress logs every interval images; interval < 1 logs every image.
func NewLogProgress(logger *slog.Logger, interval int) *LogProgress {
	if logger == nil {
		logger = slog.Default()
	}
	if interval < 1 {
		interval = 1
	}
	return &LogProgress{logger: logger, interval: interval}
}

func (l *LogProgress) OnStart(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startTime = time.Now()
	l.lastLog = 0
	l.logger.Info("Batch started", "total", total)
}

func (l *LogProgress) OnProgress(done, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if done-l.lastLog < l.interval && done != total {
		return
	}
	l.lastLog = done
	elapsed := time.Since(l.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(done) / elapsed.Seconds()
	}
	l.logger.Info("Batch progress",
		"done", done,
		"total", total,
		"percent", float64(done)/float64(total)*100,
		"rate_per_sec", rate)
}

func (l *LogProgress) OnError(index int, err error) {
	l.logger.Warn("Batch item failed", "index", index, "error", err)
}

func (l *LogProgress) OnComplete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Info("Batch completed", "duration_ms", time.Since(l.startTime).Milliseconds())
}
