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
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/blnkfinance/gridbroker"
	"github.com/blnkfinance/gridbroker/config"
	"github.com/blnkfinance/gridbroker/internal/mail"
	redis_db "github.com/blnkfinance/gridbroker/internal/redis-db"
)

const mailTimeout = 30 * time.Second

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeWorkerServer(opt asynq.RedisClientOpt, conf *config.Configuration) *asynq.Server {
	return asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 1,
			Queues:      map[string]int{conf.Email.Queue: 1},
			Logger:      logrus.StandardLogger(),
		},
	)
}

func initializeTaskHandlers(conf *config.Configuration, mux *asynq.ServeMux) {
	sender := mail.NewClient(mail.DefaultBaseURL, conf.Email.SendgridApiKey, mailTimeout)
	if !sender.Configured() {
		logrus.Warn("sendgrid api key not set, queued emails will be dropped")
	}
	mux.HandleFunc(conf.Email.Queue, gridbroker.NewEmailHandler(sender))
}

// workerCommands defines the "workers" command that delivers queued emails.
func workerCommands(b *brokerInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start grid broker email workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf := b.cnf
			ctx := context.Background()

			shutdown, err := initializeTracing(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			if err != nil {
				log.Fatalf("error parsing Redis URL: %v", err)
			}

			srv := initializeWorkerServer(opt, conf)

			mux := asynq.NewServeMux()
			initializeTaskHandlers(conf, mux)

			// Start asynqmon server for health checks and monitoring
			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: opt,
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Email.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
