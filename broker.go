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
	"crypto/ed25519"
	"embed"
	"errors"
	"time"

	"github.com/blnkfinance/gridbroker/config"
	"github.com/blnkfinance/gridbroker/database"
	"github.com/blnkfinance/gridbroker/internal/cache"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("gridbroker")

// Wallet is the wallet daemon holding the broker's funds.
type Wallet interface {
	// ListIncomingTransactions returns incoming transactions at or above
	// minHeight plus unconfirmed ones, newest first.
	ListIncomingTransactions(ctx context.Context, minHeight uint64) ([]model.Transaction, error)
	Addresses(ctx context.Context) ([]string, error)
	SendMoney(ctx context.Context, amount int64, address string) (string, error)
	// PrivateKey returns nil when the wallet does not own address.
	PrivateKey(ctx context.Context, address string) (ed25519.PrivateKey, error)
	ThreebotRecord(ctx context.Context, id string) (*model.ThreebotRecord, error)
}

// Notary returns the signed record stored under a key, or nil when there is none.
type Notary interface {
	Get(ctx context.Context, key string) (*model.NotaryBlob, error)
}

// Directory is the capacity directory. GetNode returns nil for an unknown node.
type Directory interface {
	GetNode(ctx context.Context, nodeID string) (*model.NodeCapacity, error)
	ListFarmNodes(ctx context.Context, farm string) ([]model.NodeCapacity, error)
}

// ProvisioningBackend creates and removes grid services. Install is
// find-or-create by spec name and returns once the service is running.
// Uninstall of an unknown service returns a NOT_FOUND error.
type ProvisioningBackend interface {
	Install(ctx context.Context, spec model.ResourceSpec) (string, error)
	Info(ctx context.Context, service model.CreatedService) (*model.ConnectionInfo, error)
	Uninstall(ctx context.Context, service model.CreatedService) error
}

// Notifier delivers user facing emails.
type Notifier interface {
	Notify(ctx context.Context, email model.Email) error
}

// Alerter raises operator alerts.
type Alerter interface {
	Send(ctx context.Context, title string, err error, fields map[string]string) error
}

// Scheduler runs named jobs on a fixed interval until stopped.
type Scheduler interface {
	Every(name string, interval time.Duration, job func(ctx context.Context)) error
	Start()
	Stop() context.Context
}

// Dependencies are the collaborators of a Broker. Keys and Alerter are optional.
type Dependencies struct {
	DataSource database.IDataSource
	Redis      redis.UniversalClient
	Keys       cache.Cache
	Wallet     Wallet
	Notary     Notary
	Directory  Directory
	Backend    ProvisioningBackend
	Notifier   Notifier
	Alerter    Alerter
}

// Broker turns payments into provisioned grid resources.
type Broker struct {
	config     *config.Configuration
	datasource database.IDataSource
	redis      redis.UniversalClient
	keys       cache.Cache
	wallet     Wallet
	notary     Notary
	directory  Directory
	backend    ProvisioningBackend
	notifier   Notifier
	alerter    Alerter
	watcher    *TransactionWatcher
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

func New(cfg *config.Configuration, deps Dependencies) (*Broker, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	switch {
	case deps.DataSource == nil:
		return nil, errors.New("data source is required")
	case deps.Redis == nil:
		return nil, errors.New("redis client is required")
	case deps.Wallet == nil:
		return nil, errors.New("wallet is required")
	case deps.Notary == nil:
		return nil, errors.New("notary is required")
	case deps.Directory == nil:
		return nil, errors.New("directory is required")
	case deps.Backend == nil:
		return nil, errors.New("provisioning backend is required")
	case deps.Notifier == nil:
		return nil, errors.New("notifier is required")
	}

	b := &Broker{
		config:     cfg,
		datasource: deps.DataSource,
		redis:      deps.Redis,
		keys:       deps.Keys,
		wallet:     deps.Wallet,
		notary:     deps.Notary,
		directory:  deps.Directory,
		backend:    deps.Backend,
		notifier:   deps.Notifier,
		alerter:    deps.Alerter,
		now:        func() time.Time { return time.Now().UTC() },
	}
	b.watcher = NewTransactionWatcher(cfg.Wallet.Name, deps.Wallet, deps.DataSource, cfg.Wallet.MinHeight)
	return b, nil
}

func (b *Broker) Watcher() *TransactionWatcher {
	return b.watcher
}

func (b *Broker) walletRef() string {
	return b.config.Wallet.Name
}

// GetReservation returns the stored reservation of a transaction.
func (b *Broker) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return b.datasource.GetReservation(ctx, id)
}

// GetProcessed returns the recorded outcome of a transaction.
func (b *Broker) GetProcessed(ctx context.Context, txID string) (*model.ProcessedTransaction, error) {
	return b.datasource.GetProcessed(ctx, b.walletRef(), txID)
}

func (b *Broker) Now() time.Time {
	return b.now()
}
