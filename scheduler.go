/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package gridbroker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronScheduler is a Scheduler on robfig/cron. A job that is still running
// when its next tick comes is skipped.
type CronScheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

func NewCronScheduler() *CronScheduler {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every registers job to run each interval. Jobs receive a context that is
// cancelled by Stop.
func (s *CronScheduler) Every(name string, interval time.Duration, job func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		start := time.Now()
		logrus.WithField("job", name).Debug("job started")
		job(s.ctx)
		logrus.WithFields(logrus.Fields{"job": name, "took": time.Since(start).String()}).Debug("job finished")
	})
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	return nil
}

func (s *CronScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	logrus.Info("scheduler started")
}

// Stop cancels running jobs and returns a context that is done once they
// have returned.
func (s *CronScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := s.cron.Stop()
	s.cancel()
	if s.running {
		s.running = false
		logrus.Info("scheduler stopped")
	}
	return done
}

// Schedule registers the watch cycle and the lease cleanup on s.
func (b *Broker) Schedule(s Scheduler) error {
	watchEvery := time.Duration(b.config.Lease.WatchIntervalSeconds) * time.Second
	if err := s.Every("watch", watchEvery, func(ctx context.Context) {
		if err := b.RunWatchCycle(ctx); err != nil {
			logrus.WithError(err).Error("watch run failed")
		}
	}); err != nil {
		return err
	}

	cleanupEvery := time.Duration(b.config.Lease.CleanupIntervalHours) * time.Hour
	return s.Every("cleanup", cleanupEvery, func(ctx context.Context) {
		if _, err := b.Cleanup(ctx, b.now()); err != nil {
			logrus.WithError(err).Error("cleanup run failed")
		}
	})
}
