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
	"time"

	"github.com/blnkfinance/gridbroker/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	watcher     // Interface for watcher cursor operations
	processed   // Interface for processed-set operations
	reservation // Interface for reservation operations
}

type watcher interface {
	GetWatcherState(ctx context.Context, walletRef string) (*model.WatcherState, error) // Retrieves the cursor of a watcher
	SaveWatcherState(ctx context.Context, state *model.WatcherState) error              // Creates or updates the cursor of a watcher
}

type processed interface {
	IsProcessed(ctx context.Context, walletRef, transactionID string) (bool, error)                         // Checks the processed set
	MarkProcessed(ctx context.Context, entry *model.ProcessedTransaction) (bool, error)                     // Adds an entry once; false if already present
	GetProcessed(ctx context.Context, walletRef, transactionID string) (*model.ProcessedTransaction, error) // Retrieves a processed entry
}

type reservation interface {
	CreateReservation(ctx context.Context, r *model.Reservation) error                                             // Records a new reservation
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)                                     // Retrieves a reservation by ID
	ExtendReservation(ctx context.Context, id, extensionID string, extension time.Duration) (time.Duration, error) // Lengthens the lease once per extension id
	ListActiveReservations(ctx context.Context) ([]*model.Reservation, error)                                      // Retrieves reservations not cleaned up yet
	MarkReservationCleaned(ctx context.Context, id string, cleanedAt time.Time) error                              // Drops created services and sets the cleanup marker
}
