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

package model

import "time"

// Transaction is an incoming payment observed on the chain. It is produced by
// the wallet client and never mutated by the broker.
type Transaction struct {
	ID            string   `json:"id"`
	Amount        int64    `json:"amount"` // minor units
	FromAddresses []string `json:"from_addresses"`
	ToAddress     string   `json:"to_address"`
	Data          []byte   `json:"data,omitempty"` // notary key
	Locked        bool     `json:"locked"`
	BlockHeight   uint64   `json:"block_height"` // 0 while unconfirmed
	Confirmed     bool     `json:"confirmed"`
}

// RefundAddress is where funds go back to when the transaction cannot be fulfilled.
func (t Transaction) RefundAddress() string {
	if len(t.FromAddresses) == 0 {
		return ""
	}
	return t.FromAddresses[0]
}

type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeFailed Outcome = "failed"
)

const (
	RefundNotNeeded = "not refunded"
	RefundSent      = "was refunded"
	RefundFailed    = "failed to refund"
)

// ProcessedTransaction is an entry of the processed set. Entries are written
// once per transaction id and never updated.
type ProcessedTransaction struct {
	WalletRef     string    `json:"wallet_ref"`
	TransactionID string    `json:"transaction_id"`
	Outcome       Outcome   `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	RefundStatus  string    `json:"refund_status"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// WatcherState is the persisted cursor of a watcher instance.
type WatcherState struct {
	WalletRef string    `json:"wallet_ref"`
	MinHeight uint64    `json:"min_height"`
	UpdatedAt time.Time `json:"updated_at"`
}
