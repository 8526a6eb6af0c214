// Package scheduler runs the periodic jobs and applies settings changes to
// them live: interval changes re-anchor the affected loop, the scanner job
// is added or removed when the scan flag flips, and model-chain changes
// reconfigure the LLM client.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"tradepulse/logger"
	"tradepulse/settings"
	"tradepulse/types"
)

// Stable job names.
const (
	JobPositionSync    = "position_sync_job"
	JobPositionChecker = "position_checker_job"
	JobOrphanOrders    = "orphan_order_job"
	JobScanner         = "scanner_job"
)

// jobDef is a registered job: what to run, which settings key drives its
// interval, and optionally which boolean key gates it entirely.
type jobDef struct {
	name        string
	intervalKey string
	enabledKey  string
	run         func(context.Context)
}

// loop is one running job goroutine.
type loop struct {
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

type Scheduler struct {
	settings *settings.Service
	llm      types.LLMClient
	apiKey   string

	mu    sync.Mutex
	defs  []jobDef
	loops map[string]*loop
}

// New builds the scheduler. apiKey is handed back to the LLM client on
// model-chain reconfiguration.
func New(svc *settings.Service, client types.LLMClient, apiKey string) *Scheduler {
	return &Scheduler{
		settings: svc,
		llm:      client,
		apiKey:   apiKey,
		loops:    make(map[string]*loop),
	}
}

// Register adds a job. enabledKey may be empty for always-on jobs.
func (s *Scheduler) Register(name, intervalKey, enabledKey string, run func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, jobDef{name: name, intervalKey: intervalKey, enabledKey: enabledKey, run: run})
}

// Start launches every registered and enabled job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range s.defs {
		if def.enabledKey != "" && !s.settings.Bool(def.enabledKey) {
			logger.Infof("⏸ %s disabled, not scheduled", def.name)
			continue
		}
		s.startLocked(def)
	}
}

// Stop halts every job loop and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.loops {
		s.stopLocked(name)
	}
	logger.Infof("🛑 Scheduler stopped")
}

func (s *Scheduler) interval(def jobDef) time.Duration {
	secs := s.settings.Int(def.intervalKey)
	if secs <= 0 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

func (s *Scheduler) startLocked(def jobDef) {
	if _, exists := s.loops[def.name]; exists {
		return
	}
	l := &loop{stopCh: make(chan struct{})}
	s.loops[def.name] = l

	interval := s.interval(def)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				s.fire(def, l)
			}
		}
	}()
	logger.Infof("✅ %s scheduled every %s", def.name, interval)
}

func (s *Scheduler) stopLocked(name string) {
	l, ok := s.loops[name]
	if !ok {
		return
	}
	close(l.stopCh)
	l.wg.Wait()
	delete(s.loops, name)
}

// fire runs one job invocation, skipping when the previous one is still
// going.
func (s *Scheduler) fire(def jobDef, l *loop) {
	if !l.running.CompareAndSwap(false, true) {
		logger.Debugf("⏭ %s still running, skipping this fire", def.name)
		return
	}
	defer l.running.Store(false)
	s.runJob(context.Background(), def)
}

// runJob contains a single job run: a panicking job must never take down
// the loop or the process, it is logged and the schedule carries on.
func (s *Scheduler) runJob(ctx context.Context, def jobDef) {
	defer func() {
		if r := recover(); r != nil {
			logger.Criticalf("🚨 %s panicked: %v\n%s", def.name, r, debug.Stack())
		}
	}()
	def.run(ctx)
}

// Trigger runs a registered job immediately, regardless of its schedule.
// Used by the REST surface for manual syncs and scans. A job mid-run on
// its own loop is not run twice; the trigger is dropped like a skipped
// tick.
func (s *Scheduler) Trigger(ctx context.Context, name string) bool {
	s.mu.Lock()
	var def *jobDef
	for i := range s.defs {
		if s.defs[i].name == name {
			def = &s.defs[i]
			break
		}
	}
	l := s.loops[name]
	s.mu.Unlock()
	if def == nil {
		return false
	}
	if l != nil {
		if !l.running.CompareAndSwap(false, true) {
			logger.Debugf("⏭ %s still running, manual trigger skipped", def.name)
			return true
		}
		defer l.running.Store(false)
	}
	s.runJob(ctx, *def)
	return true
}

// Reschedule applies a settings change set produced by settings.Update.
func (s *Scheduler) Reschedule(changed map[string]string) {
	if len(changed) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, def := range s.defs {
		if _, ok := changed[def.intervalKey]; ok {
			if _, active := s.loops[def.name]; active {
				s.stopLocked(def.name)
				s.startLocked(def)
				logger.Infof("🔄 %s rescheduled to %s", def.name, s.interval(def))
			}
		}

		if def.enabledKey == "" {
			continue
		}
		if _, ok := changed[def.enabledKey]; !ok {
			continue
		}
		enabled := s.settings.Bool(def.enabledKey)
		_, active := s.loops[def.name]
		switch {
		case enabled && !active:
			s.startLocked(def)
			logger.Infof("✅ %s enabled", def.name)
		case !enabled && active:
			s.stopLocked(def.name)
			logger.Infof("🛑 %s disabled", def.name)
		}
	}

	_, modelChanged := changed[settings.KeyGeminiModel]
	_, fallbackChanged := changed[settings.KeyGeminiFallbackModels]
	if modelChanged || fallbackChanged {
		models := append([]string{s.settings.Str(settings.KeyGeminiModel)},
			s.settings.List(settings.KeyGeminiFallbackModels)...)
		s.llm.Reconfigure(s.apiKey, models)
		logger.Infof("🤖 LLM model chain reconfigured: %v", models)
	}
}
