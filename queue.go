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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/gridbroker/config"
	"github.com/blnkfinance/gridbroker/internal/mail"
	redis_db "github.com/blnkfinance/gridbroker/internal/redis-db"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// emailRetention keeps delivered tasks around so the same email of a
// transaction is not queued twice.
const emailRetention = 24 * time.Hour

// Queue represents the email queue. It implements Notifier.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	name      string
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	return NewQueueWithOpt(opt, conf.Email.Queue), nil
}

// NewQueueWithOpt builds a Queue on an existing asynq connection option.
func NewQueueWithOpt(opt asynq.RedisConnOpt, name string) *Queue {
	return &Queue{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
		name:      name,
	}
}

func emailTaskID(email model.Email) string {
	return fmt.Sprintf("email:%s:%s", email.TxID, email.Category)
}

// Notify enqueues an email for the workers. An email already queued for the
// same transaction and category is not queued again.
func (q *Queue) Notify(ctx context.Context, email model.Email) error {
	payload, err := json.Marshal(email)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.Queue(q.name),
		asynq.MaxRetry(5),
		asynq.Retention(emailRetention),
	}
	if email.TxID != "" {
		taskOptions = append(taskOptions, asynq.TaskID(emailTaskID(email)))
	}

	task := asynq.NewTask(q.name, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			logrus.WithField("task_id", emailTaskID(email)).Info("email already queued")
			return nil
		}
		return err
	}
	logrus.WithFields(logrus.Fields{"task_id": info.ID, "queue": info.Queue}).Debug("email enqueued")
	return nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}

// EmailSender posts an email to the delivery provider.
type EmailSender interface {
	Send(ctx context.Context, email model.Email) error
}

// NewEmailHandler returns the asynq handler that delivers queued emails.
// Without a configured provider emails are dropped with a warning.
func NewEmailHandler(sender EmailSender) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var email model.Email
		if err := json.Unmarshal(t.Payload(), &email); err != nil {
			logrus.WithError(err).Error("failed to decode email task")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		log := logrus.WithFields(logrus.Fields{"tx_id": email.TxID, "to": email.To, "subject": email.Subject})
		if err := sender.Send(ctx, email); err != nil {
			if errors.Is(err, mail.ErrNotConfigured) {
				log.Warn("email provider is not configured, dropping email")
				return nil
			}
			log.WithError(err).Error("failed to deliver email")
			return err
		}
		log.Info("email delivered")
		return nil
	}
}
