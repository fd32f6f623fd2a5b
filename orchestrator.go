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
	"errors"
	"time"

	"github.com/blnkfinance/gridbroker/internal/brokererror"
	redlock "github.com/blnkfinance/gridbroker/internal/lock"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// finalizeTimeout bounds the refund, email and bookkeeping of a transaction
// once its outcome is known. It is detached from the caller's cancellation.
const finalizeTimeout = 2 * time.Minute

// retryPolicy returns the backoff used around install and extend.
func (b *Broker) retryPolicy() backoff.BackOff {
	if b.newBackOff != nil {
		return b.newBackOff()
	}
	cfg := b.config.Fulfillment
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(cfg.InitialDelaySeconds) * time.Second
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = time.Duration(cfg.AttemptTimeoutSeconds) * time.Second
	policy.MaxElapsedTime = 0
	return backoff.WithMaxRetries(policy, uint64(cfg.MaxAttempts-1))
}

func (b *Broker) lockTTL() time.Duration {
	return time.Duration(b.config.Fulfillment.LockTTLSeconds) * time.Second
}

// withRetry runs op until it succeeds, returns a permanent error, or the
// attempts run out. Each attempt gets its own timeout and refreshes the
// in-flight lock.
func (b *Broker) withRetry(ctx context.Context, txID string, locker *redlock.Locker, op func(ctx context.Context) error) error {
	attempt := 0
	attemptTimeout := time.Duration(b.config.Fulfillment.AttemptTimeoutSeconds) * time.Second

	return backoff.Retry(func() error {
		attempt++
		if attempt > 1 && locker != nil {
			if err := locker.ExtendLock(ctx, b.lockTTL()); err != nil {
				logrus.WithField("tx_id", txID).WithError(err).Warn("failed to extend in-flight lock")
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		err := op(attemptCtx)
		if err != nil {
			logrus.WithFields(logrus.Fields{"tx_id": txID, "attempt": attempt}).WithError(err).Warn("fulfillment attempt failed")
		}
		return err
	}, backoff.WithContext(b.retryPolicy(), ctx))
}

// Process takes one transaction to a terminal outcome and records it in the
// processed set. Failures of the transaction itself end in a refund and are
// reported through the returned entry. An error is returned only when the
// attempt could not start, was abandoned, or its outcome could not be
// recorded; a nil entry with a nil error means the transaction was skipped.
func (b *Broker) Process(ctx context.Context, tx model.Transaction) (*model.ProcessedTransaction, error) {
	ctx, span := tracer.Start(ctx, "Process")
	defer span.End()

	log := logrus.WithField("tx_id", tx.ID)

	locker := redlock.ForTransaction(b.redis, tx.ID)
	if err := locker.Lock(ctx, b.lockTTL()); err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			log.Info("transaction is already being processed")
			return nil, nil
		}
		return nil, brokererror.New(brokererror.ErrInternal, "failed to acquire in-flight lock", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := locker.Unlock(unlockCtx); err != nil {
			log.WithError(err).Warn("failed to release in-flight lock")
		}
	}()

	processed, err := b.datasource.IsProcessed(ctx, b.walletRef(), tx.ID)
	if err != nil {
		return nil, err
	}
	if processed {
		log.Info("transaction already processed")
		return nil, nil
	}

	log.WithField("amount", tx.Amount).Info("start processing transaction")
	entry, err := b.fulfill(ctx, tx, locker)
	if err != nil {
		return nil, err
	}

	if err := b.markProcessed(ctx, entry); err != nil {
		b.alert(ctx, "Recording a processed transaction failed", err, map[string]string{
			"tx_id":         tx.ID,
			"outcome":       string(entry.Outcome),
			"refund_status": entry.RefundStatus,
		})
		return entry, err
	}

	log.WithFields(logrus.Fields{"outcome": entry.Outcome, "refund_status": entry.RefundStatus}).Info("done processing transaction")
	return entry, nil
}

func (b *Broker) markProcessed(ctx context.Context, entry *model.ProcessedTransaction) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = b.now()
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 2)
	return backoff.Retry(func() error {
		inserted, err := b.datasource.MarkProcessed(ctx, entry)
		if err != nil {
			return err
		}
		if !inserted {
			logrus.WithField("tx_id", entry.TransactionID).Warn("transaction was already in the processed set")
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

// fulfill runs the state machine of one transaction. It returns an error
// only when ctx ends before an outcome is reached.
func (b *Broker) fulfill(ctx context.Context, tx model.Transaction, locker *redlock.Locker) (*model.ProcessedTransaction, error) {
	entry := &model.ProcessedTransaction{
		WalletRef:     b.walletRef(),
		TransactionID: tx.ID,
		RefundStatus:  model.RefundNotNeeded,
	}
	log := logrus.WithField("tx_id", tx.ID)

	order, err := b.ResolveOrder(ctx, tx)
	if err == nil && order == nil {
		err = brokererror.Newf(brokererror.ErrPayloadAbsent, "transaction %s carries no order", tx.ID)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Info("could not read order from transaction")
		final := context.WithoutCancel(ctx)
		entry.Outcome = model.OutcomeFailed
		entry.Detail = err.Error()
		entry.RefundStatus = b.refund(final, tx, err)
		return entry, nil
	}

	log = log.WithField("kind", order.Kind)

	if err := ValidateOrder(order); err != nil {
		log.WithError(err).Info("order rejected")
		b.fail(context.WithoutCancel(ctx), entry, tx, order, err)
		return entry, nil
	}

	var installed *InstallResult
	var extended *ExtendResult
	err = b.withRetry(ctx, tx.ID, locker, func(ctx context.Context) error {
		var opErr error
		if order.Kind == model.KindExtension {
			extended, opErr = b.Extend(ctx, order)
		} else {
			installed, opErr = b.Install(ctx, order)
		}
		return opErr
	})
	if err != nil && ctx.Err() != nil {
		log.WithError(err).Warn("processing abandoned")
		return nil, ctx.Err()
	}

	final := context.WithoutCancel(ctx)
	if err != nil {
		log.WithError(err).Error("error processing transaction")
		b.fail(final, entry, tx, order, err)
		return entry, nil
	}

	entry.Outcome = model.OutcomeDone
	if extended != nil {
		b.notifyExtended(final, order, extended)
	} else {
		b.notifyInstalled(final, order, installed)
	}
	return entry, nil
}

// fail refunds the transaction and tells the author why.
func (b *Broker) fail(ctx context.Context, entry *model.ProcessedTransaction, tx model.Transaction, order *model.Order, cause error) {
	entry.Outcome = model.OutcomeFailed
	entry.Detail = cause.Error()
	entry.RefundStatus = b.refund(ctx, tx, cause)
	b.notifyFailure(ctx, tx, order, cause, entry.RefundStatus)
}

// RunWatchCycle processes every new transaction of the watcher. Up to
// Fulfillment.Workers transactions run at once.
func (b *Broker) RunWatchCycle(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "RunWatchCycle")
	defer span.End()

	logrus.Debug("look for new incoming transactions")
	txs, err := b.watcher.Watch(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Fulfillment.Workers)
	for _, tx := range txs {
		tx := tx
		g.Go(func() error {
			entry, err := b.Process(gctx, tx)
			if err != nil {
				logrus.WithField("tx_id", tx.ID).WithError(err).Error("failed to process transaction")
				if entry == nil {
					b.watcher.Forget(tx.ID)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
