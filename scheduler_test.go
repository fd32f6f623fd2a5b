package gridbroker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronScheduler_RunsAndStops(t *testing.T) {
	s := NewCronScheduler()
	var runs int32
	require.NoError(t, s.Every("tick", time.Second, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	}))

	s.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 50*time.Millisecond)

	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestCronScheduler_StopCancelsJobs(t *testing.T) {
	s := NewCronScheduler()
	cancelled := make(chan struct{})
	require.NoError(t, s.Every("block", time.Second, func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	s.Start()
	time.Sleep(1200 * time.Millisecond)
	<-s.Stop().Done()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}
}

func TestCronScheduler_RejectsBadInterval(t *testing.T) {
	s := NewCronScheduler()
	assert.Error(t, s.Every("never", 0, func(context.Context) {}))
}

type recordingScheduler struct {
	jobs  map[string]time.Duration
	funcs map[string]func(ctx context.Context)
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{jobs: map[string]time.Duration{}, funcs: map[string]func(ctx context.Context){}}
}

func (r *recordingScheduler) Every(name string, interval time.Duration, job func(ctx context.Context)) error {
	r.jobs[name] = interval
	r.funcs[name] = job
	return nil
}

func (r *recordingScheduler) Start() {}

func (r *recordingScheduler) Stop() context.Context { return context.Background() }

func TestBroker_Schedule(t *testing.T) {
	f := newFixture(t)
	s := newRecordingScheduler()

	require.NoError(t, f.broker.Schedule(s))
	assert.Equal(t, map[string]time.Duration{
		"watch":   60 * time.Second,
		"cleanup": 12 * time.Hour,
	}, s.jobs)
}

func TestBroker_ScheduleLogsWatchFailures(t *testing.T) {
	f := newFixture(t)
	f.wallet.listErr = errBoom
	s := newRecordingScheduler()
	require.NoError(t, f.broker.Schedule(s))

	hook := test.NewGlobal()
	defer hook.Reset()

	s.funcs["watch"](context.Background())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "watch run failed", entry.Message)
	assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), errBoom)
}
