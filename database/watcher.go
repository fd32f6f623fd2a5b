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

// GetWatcherState retrieves the cursor stored for a wallet.
func (d Datasource) GetWatcherState(ctx context.Context, walletRef string) (*model.WatcherState, error) {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Getting watcher state from db")
	defer span.End()

	state := &model.WatcherState{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT wallet_ref, min_height, updated_at
		FROM gridbroker.watchers
		WHERE wallet_ref = $1
	`, walletRef).Scan(&state.WalletRef, &state.MinHeight, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, brokererror.New(brokererror.ErrNotFound, fmt.Sprintf("Watcher for wallet '%s' not found", walletRef), err)
		}
		return nil, brokererror.New(brokererror.ErrInternal, "Failed to retrieve watcher state", err)
	}
	state.UpdatedAt = state.UpdatedAt.UTC()

	return state, nil
}

// SaveWatcherState creates the cursor of a wallet or moves it forward.
func (d Datasource) SaveWatcherState(ctx context.Context, state *model.WatcherState) error {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Saving watcher state to db")
	defer span.End()

	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO gridbroker.watchers (wallet_ref, min_height, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_ref) DO UPDATE
		SET min_height = EXCLUDED.min_height, updated_at = EXCLUDED.updated_at
	`, state.WalletRef, state.MinHeight, state.UpdatedAt)
	if err != nil {
		return brokererror.New(brokererror.ErrInternal, "Failed to save watcher state", err)
	}

	return nil
}
