package profiling

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CPUProfileConfig controls on-demand CPU profiling of slow endpoints.
type CPUProfileConfig struct {
	// Threshold is the request duration that triggers a profile.
	Threshold time.Duration
	// Duration is how long the CPU profile runs once triggered.
	Duration time.Duration
	// Cooldown is the minimum time between two profiles of one path.
	Cooldown time.Duration
	// Dir receives the profile files. Empty means os.TempDir().
	Dir string
}

// CPUProfiler starts a pprof CPU profile when an endpoint is slow. The
// profile covers the requests that follow, not the slow one itself, since
// Go can only profile the whole process from the moment it starts.
type CPUProfiler struct {
	config CPUProfileConfig
	logger *zap.Logger

	mu        sync.Mutex
	cooldowns map[string]time.Time
	wg        sync.WaitGroup
}

// NewCPUProfiler returns nil when the threshold is not positive.
func NewCPUProfiler(cfg CPUProfileConfig, logger *zap.Logger) *CPUProfiler {
	if cfg.Threshold <= 0 {
		return nil
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CPUProfiler{
		config:    cfg,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
	}
}

// ProfileIfSlow starts a background CPU profile for path when duration
// crosses the threshold and path is not cooling down. It reports whether a
// profile was started.
func (p *CPUProfiler) ProfileIfSlow(path string, duration time.Duration) bool {
	if p == nil || duration < p.config.Threshold {
		return false
	}
	if !p.claim(path) {
		p.logger.Debug("slow endpoint in cpu profile cooldown", zap.String("path", path))
		return false
	}

	p.logger.Info("slow endpoint, starting cpu profile",
		zap.String("path", path),
		zap.Duration("duration", duration),
		zap.Duration("threshold", p.config.Threshold),
	)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.profile(path)
	}()
	return true
}

// Wait blocks until running profiles are written.
func (p *CPUProfiler) Wait() {
	if p != nil {
		p.wg.Wait()
	}
}

// claim sets the cooldown for path unless one is still running.
func (p *CPUProfiler) claim(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if end, ok := p.cooldowns[path]; ok && now.Before(end) {
		return false
	}
	p.cooldowns[path] = now.Add(p.config.Cooldown)
	return true
}

func (p *CPUProfiler) profile(path string) {
	name := strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")
	if name == "" {
		name = "root"
	}
	filename := filepath.Join(p.config.Dir, fmt.Sprintf("cpu_%s_%d.pprof", name, time.Now().UnixNano()))

	f, err := os.Create(filename)
	if err != nil {
		p.logger.Error("create cpu profile", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	if err := pprof.StartCPUProfile(f); err != nil {
		// Another profile is running; only one can be active per process.
		p.logger.Warn("start cpu profile", zap.String("path", path), zap.Error(err))
		_ = os.Remove(filename)
		return
	}
	time.Sleep(p.config.Duration)
	pprof.StopCPUProfile()

	p.logger.Info("cpu profile written", zap.String("path", path), zap.String("file", filename))
}
