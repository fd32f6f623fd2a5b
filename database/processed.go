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
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"go.opentelemetry.io/otel"
)

func (d Datasource) IsProcessed(ctx context.Context, walletRef, transactionID string) (bool, error) {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Checking processed set")
	defer span.End()

	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM gridbroker.processed_transactions WHERE wallet_ref = $1 AND transaction_id = $2)
	`, walletRef, transactionID).Scan(&exists)
	if err != nil {
		return false, brokererror.New(brokererror.ErrInternal, "Failed to check processed set", err)
	}

	return exists, nil
}

// MarkProcessed adds an entry to the processed set. It reports false when the
// transaction was already present, in which case the stored entry is left as is.
func (d Datasource) MarkProcessed(ctx context.Context, entry *model.ProcessedTransaction) (bool, error) {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Marking transaction processed")
	defer span.End()

	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}

	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO gridbroker.processed_transactions (wallet_ref, transaction_id, outcome, detail, refund_status, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (wallet_ref, transaction_id) DO NOTHING
	`, entry.WalletRef, entry.TransactionID, entry.Outcome, entry.Detail, entry.RefundStatus, entry.ProcessedAt)
	if err != nil {
		return false, brokererror.New(brokererror.ErrInternal, "Failed to mark transaction processed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, brokererror.New(brokererror.ErrInternal, "Failed to get rows affected", err)
	}

	return rowsAffected > 0, nil
}

func (d Datasource) GetProcessed(ctx context.Context, walletRef, transactionID string) (*model.ProcessedTransaction, error) {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Getting processed entry from db")
	defer span.End()

	entry := &model.ProcessedTransaction{}
	var detail, refundStatus sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT wallet_ref, transaction_id, outcome, detail, refund_status, processed_at
		FROM gridbroker.processed_transactions
		WHERE wallet_ref = $1 AND transaction_id = $2
	`, walletRef, transactionID).Scan(&entry.WalletRef, &entry.TransactionID, &entry.Outcome, &detail, &refundStatus, &entry.ProcessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, brokererror.New(brokererror.ErrNotFound, fmt.Sprintf("Transaction '%s' has not been processed", transactionID), err)
		}
		return nil, brokererror.New(brokererror.ErrInternal, "Failed to retrieve processed entry", err)
	}
	entry.Detail = detail.String
	entry.RefundStatus = refundStatus.String
	entry.ProcessedAt = entry.ProcessedAt.UTC()

	return entry, nil
}
