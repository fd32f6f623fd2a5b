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
	"time"

	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// FormatTFT renders an amount of minor units as TFT.
func FormatTFT(amount int64) string {
	return decimal.New(amount, -9).String() + " TFT"
}

// refund sends the transaction amount minus the miner fee back to its
// first source address and returns the refund status to record. A failed
// refund raises an operator alert and is not retried.
func (b *Broker) refund(ctx context.Context, tx model.Transaction, cause error) string {
	ctx, span := tracer.Start(ctx, "Refund")
	defer span.End()

	fee := b.config.Wallet.MinerFee
	address := tx.RefundAddress()
	log := logrus.WithFields(logrus.Fields{"tx_id": tx.ID, "address": address, "amount": tx.Amount})
	if cause != nil {
		log = log.WithField("reason", cause.Error())
	}

	var err error
	switch {
	case address == "":
		err = brokererror.Newf(brokererror.ErrRefundFailed, "transaction %s has no source address", tx.ID)
	case tx.Amount <= fee:
		err = brokererror.Newf(brokererror.ErrRefundFailed, "amount %s does not cover the miner fee %s", FormatTFT(tx.Amount), FormatTFT(fee))
	default:
		sendCtx, cancel := context.WithTimeout(ctx, time.Duration(b.config.Wallet.Timeout)*time.Second)
		var refundTx string
		refundTx, err = b.wallet.SendMoney(sendCtx, tx.Amount-fee, address)
		cancel()
		if err != nil {
			err = brokererror.New(brokererror.ErrRefundFailed, "failed to send refund", err)
			break
		}
		log.WithField("refund_tx_id", refundTx).Info("transaction refunded")
		return model.RefundSent
	}

	log.WithError(err).Error("failed to refund transaction")
	fields := map[string]string{
		"tx_id":   tx.ID,
		"address": address,
		"amount":  FormatTFT(tx.Amount),
	}
	if cause != nil {
		fields["reason"] = cause.Error()
	}
	b.alert(ctx, "Refund failed", err, fields)
	return model.RefundFailed
}

// alert forwards to the operator alerter when one is configured.
func (b *Broker) alert(ctx context.Context, title string, err error, fields map[string]string) {
	if b.alerter == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if sendErr := b.alerter.Send(alertCtx, title, err, fields); sendErr != nil {
		logrus.WithError(sendErr).Warn(fmt.Sprintf("failed to raise alert %q", title))
	}
}
