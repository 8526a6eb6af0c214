package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tradepulse/settings"
	"tradepulse/store"
)

type fakeLLM struct {
	reconfigured atomic.Int32
	lastModels   []string
}

func (f *fakeLLM) Ask(ctx context.Context, prompt string) (string, error) { return "", nil }

func (f *fakeLLM) Reconfigure(apiKey string, models []string) {
	f.reconfigured.Add(1)
	f.lastModels = models
}

type SchedulerTestSuite struct {
	suite.Suite
	st  *store.Store
	svc *settings.Service
	llm *fakeLLM
	sch *Scheduler
}

func (s *SchedulerTestSuite) SetupTest() {
	st, err := store.New(filepath.Join(s.T().TempDir(), "scheduler_test.db"))
	s.Require().NoError(err)
	s.st = st

	svc, err := settings.New(st.Settings())
	s.Require().NoError(err)
	s.svc = svc

	s.llm = &fakeLLM{}
	s.sch = New(svc, s.llm, "test-key")
}

func (s *SchedulerTestSuite) TearDownTest() {
	s.sch.Stop()
	s.st.Close()
}

func (s *SchedulerTestSuite) set(changes map[string]string) map[string]string {
	applied, err := s.svc.Update(changes)
	s.Require().NoError(err)
	return applied
}

func (s *SchedulerTestSuite) TestStartSkipsDisabledJob() {
	var fired atomic.Int32
	s.sch.Register(JobScanner, settings.KeyScanIntervalSeconds, settings.KeyScanEnabled,
		func(context.Context) { fired.Add(1) })

	// PROACTIVE_SCAN_ENABLED defaults to false.
	s.sch.Start()

	s.sch.mu.Lock()
	_, active := s.sch.loops[JobScanner]
	s.sch.mu.Unlock()
	s.False(active)
}

func (s *SchedulerTestSuite) TestRescheduleAddsAndRemovesScannerJob() {
	s.sch.Register(JobScanner, settings.KeyScanIntervalSeconds, settings.KeyScanEnabled,
		func(context.Context) {})
	s.sch.Start()

	applied := s.set(map[string]string{settings.KeyScanEnabled: "true"})
	s.sch.Reschedule(applied)

	s.sch.mu.Lock()
	_, active := s.sch.loops[JobScanner]
	s.sch.mu.Unlock()
	s.True(active)

	applied = s.set(map[string]string{settings.KeyScanEnabled: "false"})
	s.sch.Reschedule(applied)

	s.sch.mu.Lock()
	_, active = s.sch.loops[JobScanner]
	s.sch.mu.Unlock()
	s.False(active)
}

func (s *SchedulerTestSuite) TestRescheduleRestartsOnIntervalChange() {
	s.sch.Register(JobPositionChecker, settings.KeyPositionCheckIntervalSeconds, "",
		func(context.Context) {})
	s.sch.Start()

	s.sch.mu.Lock()
	before := s.sch.loops[JobPositionChecker]
	s.sch.mu.Unlock()
	s.Require().NotNil(before)

	applied := s.set(map[string]string{settings.KeyPositionCheckIntervalSeconds: "30"})
	s.sch.Reschedule(applied)

	s.sch.mu.Lock()
	after := s.sch.loops[JobPositionChecker]
	s.sch.mu.Unlock()
	s.Require().NotNil(after)
	s.NotSame(before, after)
}

func (s *SchedulerTestSuite) TestRescheduleReconfiguresModelChain() {
	applied := s.set(map[string]string{settings.KeyGeminiModel: "gemini-2.0-flash"})
	s.sch.Reschedule(applied)

	s.Equal(int32(1), s.llm.reconfigured.Load())
	require.NotEmpty(s.T(), s.llm.lastModels)
	s.Equal("gemini-2.0-flash", s.llm.lastModels[0])
}

func (s *SchedulerTestSuite) TestRescheduleIgnoresUnrelatedKeys() {
	applied := s.set(map[string]string{settings.KeyLeverage: "20"})
	s.sch.Reschedule(applied)
	s.Equal(int32(0), s.llm.reconfigured.Load())
}

func (s *SchedulerTestSuite) TestTriggerRunsJobImmediately() {
	var fired atomic.Int32
	s.sch.Register(JobPositionSync, settings.KeyPositionSyncIntervalSeconds, "",
		func(context.Context) { fired.Add(1) })

	s.True(s.sch.Trigger(context.Background(), JobPositionSync))
	s.Equal(int32(1), fired.Load())
	s.False(s.sch.Trigger(context.Background(), "unknown_job"))
}

func (s *SchedulerTestSuite) TestOverlappingFireSkips() {
	block := make(chan struct{})
	started := make(chan struct{}, 2)
	def := jobDef{name: "slow", intervalKey: settings.KeyPositionCheckIntervalSeconds,
		run: func(context.Context) {
			started <- struct{}{}
			<-block
		}}
	l := &loop{stopCh: make(chan struct{})}

	go s.sch.fire(def, l)
	<-started

	// Second fire while the first is in flight must skip.
	s.sch.fire(def, l)
	close(block)

	select {
	case <-started:
		s.Fail("overlapping fire ran the job")
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *SchedulerTestSuite) TestPanickingJobIsContained() {
	var fired atomic.Int32
	def := jobDef{name: "panicky", intervalKey: settings.KeyPositionCheckIntervalSeconds,
		run: func(context.Context) {
			fired.Add(1)
			panic("boom")
		}}
	l := &loop{stopCh: make(chan struct{})}

	s.NotPanics(func() { s.sch.fire(def, l) })
	s.Equal(int32(1), fired.Load())
	s.False(l.running.Load())

	// The next fire still runs: the schedule survives the panic.
	s.NotPanics(func() { s.sch.fire(def, l) })
	s.Equal(int32(2), fired.Load())
}

func (s *SchedulerTestSuite) TestTriggerPanicIsContained() {
	s.sch.Register(JobPositionSync, settings.KeyPositionSyncIntervalSeconds, "",
		func(context.Context) { panic("boom") })

	s.NotPanics(func() {
		s.True(s.sch.Trigger(context.Background(), JobPositionSync))
	})
}

func (s *SchedulerTestSuite) TestTriggerSkipsWhileJobRunning() {
	var fired atomic.Int32
	s.sch.Register(JobPositionChecker, settings.KeyPositionCheckIntervalSeconds, "",
		func(context.Context) { fired.Add(1) })
	s.sch.Start()

	s.sch.mu.Lock()
	l := s.sch.loops[JobPositionChecker]
	s.sch.mu.Unlock()
	s.Require().NotNil(l)

	// Simulate a scheduled run in flight: the manual trigger must not
	// overlap it.
	l.running.Store(true)
	s.True(s.sch.Trigger(context.Background(), JobPositionChecker))
	s.Equal(int32(0), fired.Load())

	l.running.Store(false)
	s.True(s.sch.Trigger(context.Background(), JobPositionChecker))
	s.Equal(int32(1), fired.Load())
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}
