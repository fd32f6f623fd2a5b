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
package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/gridbroker/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Watcher methods

func (m *MockDataSource) GetWatcherState(ctx context.Context, walletRef string) (*model.WatcherState, error) {
	args := m.Called(ctx, walletRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WatcherState), args.Error(1)
}

func (m *MockDataSource) SaveWatcherState(ctx context.Context, state *model.WatcherState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// Processed set methods

func (m *MockDataSource) IsProcessed(ctx context.Context, walletRef, transactionID string) (bool, error) {
	args := m.Called(ctx, walletRef, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) MarkProcessed(ctx context.Context, entry *model.ProcessedTransaction) (bool, error) {
	args := m.Called(ctx, entry)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetProcessed(ctx context.Context, walletRef, transactionID string) (*model.ProcessedTransaction, error) {
	args := m.Called(ctx, walletRef, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProcessedTransaction), args.Error(1)
}

// Reservation methods

func (m *MockDataSource) CreateReservation(ctx context.Context, r *model.Reservation) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockDataSource) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Reservation), args.Error(1)
}

func (m *MockDataSource) ExtendReservation(ctx context.Context, id, extensionID string, extension time.Duration) (time.Duration, error) {
	args := m.Called(ctx, id, extensionID, extension)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockDataSource) ListActiveReservations(ctx context.Context) ([]*model.Reservation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Reservation), args.Error(1)
}

func (m *MockDataSource) MarkReservationCleaned(ctx context.Context, id string, cleanedAt time.Time) error {
	args := m.Called(ctx, id, cleanedAt)
	return args.Error(0)
}
