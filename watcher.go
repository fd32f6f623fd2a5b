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
	"sync"

	"github.com/blnkfinance/gridbroker/database"
	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/sirupsen/logrus"
)

// TransactionWatcher enumerates new incoming payments of a wallet. Each
// transaction is emitted at most once while it stays in the wallet feed. The
// processed set decides what happens across restarts.
type TransactionWatcher struct {
	walletRef string
	wallet    Wallet
	store     database.IDataSource

	mu        sync.Mutex
	loaded    bool
	minHeight uint64
	emitted   map[string]struct{}
}

func NewTransactionWatcher(walletRef string, wallet Wallet, store database.IDataSource, minHeight uint64) *TransactionWatcher {
	return &TransactionWatcher{
		walletRef: walletRef,
		wallet:    wallet,
		store:     store,
		minHeight: minHeight,
		emitted:   make(map[string]struct{}),
	}
}

// load reads the persisted cursor, creating it on first use.
func (w *TransactionWatcher) load(ctx context.Context) error {
	if w.loaded {
		return nil
	}

	state, err := w.store.GetWatcherState(ctx, w.walletRef)
	switch {
	case err == nil:
		if state.MinHeight > w.minHeight {
			w.minHeight = state.MinHeight
		}
	case brokererror.Is(err, brokererror.ErrNotFound):
		err = w.store.SaveWatcherState(ctx, &model.WatcherState{WalletRef: w.walletRef, MinHeight: w.minHeight})
		if err != nil {
			return err
		}
	default:
		return err
	}

	w.loaded = true
	return nil
}

// Watch returns the transactions that appeared since the previous call,
// oldest first. Locked transactions are held back until they unlock.
// Confirmed transactions below the minimum height and payments from the
// wallet's own addresses are never returned.
func (w *TransactionWatcher) Watch(ctx context.Context) ([]model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Watch")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.load(ctx); err != nil {
		return nil, brokererror.New(brokererror.ErrInternal, "failed to load watcher state", err)
	}

	txs, err := w.wallet.ListIncomingTransactions(ctx, w.minHeight)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrFeedUnavailable, "failed to list incoming transactions", err)
	}
	addresses, err := w.wallet.Addresses(ctx)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrFeedUnavailable, "failed to list wallet addresses", err)
	}
	own := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		own[a] = struct{}{}
	}

	var fresh []model.Transaction
	listed := make(map[string]struct{}, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		listed[tx.ID] = struct{}{}
		if _, seen := w.emitted[tx.ID]; seen {
			continue
		}
		if tx.Locked {
			continue
		}
		if tx.BlockHeight != 0 && tx.BlockHeight < w.minHeight {
			continue
		}
		if fromSelf(tx, own) {
			continue
		}
		w.emitted[tx.ID] = struct{}{}
		fresh = append(fresh, tx)
	}

	// ids that left the feed cannot be listed again; if one comes back the
	// processed set still stops a second fulfillment
	for id := range w.emitted {
		if _, ok := listed[id]; !ok {
			delete(w.emitted, id)
		}
	}

	if len(fresh) > 0 {
		logrus.WithFields(logrus.Fields{"wallet": w.walletRef, "count": len(fresh), "min_height": w.minHeight}).Info("new incoming transactions")
	}
	return fresh, nil
}

// Forget makes an emitted transaction eligible again, for attempts that
// stopped before reaching a terminal outcome.
func (w *TransactionWatcher) Forget(txID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.emitted, txID)
}

func (w *TransactionWatcher) MinHeight() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minHeight
}

func fromSelf(tx model.Transaction, own map[string]struct{}) bool {
	for _, a := range tx.FromAddresses {
		if _, ok := own[a]; ok {
			return true
		}
	}
	return false
}
