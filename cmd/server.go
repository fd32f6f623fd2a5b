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

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blnkfinance/gridbroker"
	"github.com/blnkfinance/gridbroker/api"
	"github.com/blnkfinance/gridbroker/config"
	"github.com/blnkfinance/gridbroker/database"
	"github.com/blnkfinance/gridbroker/internal/cache"
	"github.com/blnkfinance/gridbroker/internal/directory"
	"github.com/blnkfinance/gridbroker/internal/notary"
	"github.com/blnkfinance/gridbroker/internal/notification"
	redis_db "github.com/blnkfinance/gridbroker/internal/redis-db"
	"github.com/blnkfinance/gridbroker/internal/robot"
	"github.com/blnkfinance/gridbroker/internal/traces"
	"github.com/blnkfinance/gridbroker/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	alertTimeout    = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// runtime holds what the start command opened and must close on shutdown.
type runtime struct {
	broker *gridbroker.Broker
	redis  *redis_db.Redis
	queue  *gridbroker.Queue
}

func (r *runtime) close() {
	if err := r.queue.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close email queue")
	}
	if err := r.redis.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close redis")
	}
}

// setupBroker connects every collaborator of the broker from the configuration.
func setupBroker(cfg *config.Configuration) (*runtime, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	rdb, err := redis_db.NewRedisClient(redis_db.SplitAddresses(cfg.Redis.Dns), cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error connecting to redis: %v", err)
	}

	queue, err := gridbroker.NewQueue(cfg)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("error creating email queue: %v", err)
	}

	deps := gridbroker.Dependencies{
		DataSource: db,
		Redis:      rdb.Client(),
		Keys:       cache.NewCache(rdb.Client()),
		Wallet:     wallet.NewClient(cfg.Wallet.Url, cfg.Wallet.Name, time.Duration(cfg.Wallet.Timeout)*time.Second),
		Notary:     notary.NewClient(cfg.Notary.Url, cfg.Notary.TimeoutDuration()),
		Directory:  directory.NewClient(cfg.Directory.Url, cfg.Directory.TimeoutDuration()),
		Backend:    robot.NewClient(cfg.Robot.Url, cfg.Robot.TimeoutDuration()),
		Notifier:   queue,
		Alerter:    notification.NewAlerter(cfg.Notification.Slack.WebhookUrl, alertTimeout),
	}

	b, err := gridbroker.New(cfg, deps)
	if err != nil {
		_ = queue.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("error creating broker: %v", err)
	}
	return &runtime{broker: b, redis: rdb, queue: queue}, nil
}

// initializeTracing exports spans when telemetry is enabled. The returned
// shutdown is never nil.
func initializeTracing(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := traces.SetupOTelSDK(ctx, "gridbroker")
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func initializeRouter(b *gridbroker.Broker, cfg *config.Configuration) *gin.Engine {
	return api.NewAPI(b, cfg).Router()
}

// startServer serves the API until ctx is done, then shuts the server down.
func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) error {
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on http://localhost:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

/*
serverCommands returns the Cobra command responsible for starting the grid broker.
It connects the broker, schedules the watch and cleanup jobs and serves the API.
*/
func serverCommands(b *brokerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the grid broker",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := initializeTracing(ctx, b.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			rt, err := setupBroker(b.cnf)
			if err != nil {
				alertCtx, cancel := context.WithTimeout(ctx, alertTimeout)
				_ = notification.NewAlerter(b.cnf.Notification.Slack.WebhookUrl, alertTimeout).Send(alertCtx, "Grid broker failed to start", err, nil)
				cancel()
				log.Fatal(err)
			}
			defer rt.close()

			scheduler := gridbroker.NewCronScheduler()
			if err := rt.broker.Schedule(scheduler); err != nil {
				log.Fatal(err)
			}
			scheduler.Start()

			if err := startServer(ctx, initializeRouter(rt.broker, b.cnf), b.cnf.Server); err != nil {
				logrus.WithError(err).Error("server stopped")
			}

			// Wait for running watch and cleanup jobs to finish.
			<-scheduler.Stop().Done()
			logrus.Info("grid broker stopped")
		},
	}

	return cmd
}
