package gridbroker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolvedVMOrder(txID string) *model.Order {
	order := vmOrder()
	order.TxID = txID
	order.Amount = 1000000000
	order.ThreebotID = threebotID
	return order
}

func isPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}

func TestResourceSpec(t *testing.T) {
	spec, err := resourceSpec(resolvedVMOrder("tx-1"), "node-1", "gw")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", spec.Name)
	assert.Equal(t, "node-1", spec.NodeID)
	assert.Equal(t, 2048, spec.MemoryMiB)
	assert.Equal(t, zerotierNetwork, spec.ZerotierNetwork)

	proxy := &model.Order{TxID: "tx-2", Kind: model.KindReverseProxy, Deployment: &model.Deployment{
		Size: 1, Domain: "app.example.com", Backends: []string{"http://10.0.0.1"},
	}}
	spec, err = resourceSpec(proxy, "", "gw")
	require.NoError(t, err)
	assert.Equal(t, "gw", spec.WebGateway)
	assert.Equal(t, "app.example.com", spec.Domain)

	bad := resolvedVMOrder("tx-3")
	bad.Deployment.Size = 5
	_, err = resourceSpec(bad, "node-1", "gw")
	assert.True(t, brokererror.Is(err, brokererror.ErrUnknownKind))
}

func TestInstall_Idempotent(t *testing.T) {
	f := newFixture(t)
	order := resolvedVMOrder("tx-1")

	first, err := f.broker.Install(context.Background(), order)
	require.NoError(t, err)
	second, err := f.broker.Install(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, 1, f.backend.installCount())
	assert.Equal(t, first.Reservation.CreatedServices, second.Reservation.CreatedServices)
	assert.Equal(t, []model.CreatedService{{Backend: model.KindVM, Handle: "tx-1"}}, second.Reservation.CreatedServices)

	stored, err := f.store.GetReservation(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "node-1", stored.NodeID)
	assert.Equal(t, testNow, stored.CreationTimestamp)
	assert.Equal(t, 7*24*time.Hour, stored.Lease)
}

func TestInstall_FarmPlacement(t *testing.T) {
	f := newFixture(t)
	order := resolvedVMOrder("tx-1")
	order.Deployment.Location = "farm-1"

	result, err := f.broker.Install(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "node-2", result.Reservation.NodeID)
	assert.Equal(t, "node-2", f.backend.installs[0].NodeID)
}

func TestInstall_ThreebotExpiry(t *testing.T) {
	f := newFixture(t)
	f.wallet.records[threebotID].Expiration = testNow.Add(24 * time.Hour)

	_, err := f.broker.Install(context.Background(), resolvedVMOrder("tx-1"))
	require.Error(t, err)
	assert.True(t, isPermanent(err))
	assert.Equal(t, 0, f.backend.installCount())
}

func TestInstall_BackendFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.backend.installErr = brokererror.New(brokererror.ErrProvisioningFailed, "robot down", errBoom)

	_, err := f.broker.Install(context.Background(), resolvedVMOrder("tx-1"))
	require.Error(t, err)
	assert.False(t, isPermanent(err))

	_, err = f.store.GetReservation(context.Background(), "tx-1")
	assert.True(t, brokererror.Is(err, brokererror.ErrNotFound))
}

func TestInstall_CleanedReservation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateReservation(context.Background(), &model.Reservation{ID: "tx-1", Kind: model.KindVM, CleanupDone: true}))

	_, err := f.broker.Install(context.Background(), resolvedVMOrder("tx-1"))
	assert.True(t, isPermanent(err))
}

func TestConnectionInfo(t *testing.T) {
	f := newFixture(t)
	f.backend.info = &model.ConnectionInfo{Kind: model.KindVM, ZosAddr: "10.0.0.1:6379"}

	_, err := f.broker.Install(context.Background(), resolvedVMOrder("tx-1"))
	require.NoError(t, err)

	infos, err := f.broker.ConnectionInfo(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "10.0.0.1:6379", infos[0].ZosAddr)

	_, err = f.broker.ConnectionInfo(context.Background(), "missing")
	assert.True(t, brokererror.Is(err, brokererror.ErrNotFound))
}

func extensionOrder(target string, amount int64, duration int) *model.Order {
	return &model.Order{
		TxID:       "ext-" + target,
		Amount:     amount,
		ThreebotID: threebotID,
		Kind:       model.KindExtension,
		Email:      "user@example.com",
		Extension:  &model.Extension{TransactionID: target, Duration: duration},
	}
}

func TestExtend(t *testing.T) {
	f := newFixture(t)
	_, err := f.broker.Install(context.Background(), resolvedVMOrder("tx-1"))
	require.NoError(t, err)

	result, err := f.broker.Extend(context.Background(), extensionOrder("tx-1", 2000000000, 2))
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(3*Week), result.Expiry)

	stored, err := f.store.GetReservation(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, 3*Week, stored.Lease)
}

func TestExtend_AppliedOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.broker.Install(context.Background(), resolvedVMOrder("tx-1"))
	require.NoError(t, err)

	order := extensionOrder("tx-1", 2000000000, 2)
	first, err := f.broker.Extend(context.Background(), order)
	require.NoError(t, err)

	again, err := f.broker.Extend(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, first.Expiry, again.Expiry)

	stored, err := f.store.GetReservation(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, 3*Week, stored.Lease)
	assert.Equal(t, []string{order.TxID}, stored.Extensions)
}

func TestExtend_Failures(t *testing.T) {
	f := newFixture(t)
	_, err := f.broker.Install(context.Background(), resolvedVMOrder("tx-1"))
	require.NoError(t, err)

	t.Run("price too low", func(t *testing.T) {
		_, err := f.broker.Extend(context.Background(), extensionOrder("tx-1", 1999999999, 2))
		assert.True(t, brokererror.Is(err, brokererror.ErrPriceTooLow))
		assert.True(t, isPermanent(err))
	})

	t.Run("unknown reservation", func(t *testing.T) {
		_, err := f.broker.Extend(context.Background(), extensionOrder("missing", 2000000000, 2))
		assert.True(t, brokererror.Is(err, brokererror.ErrNotFound))
		assert.True(t, isPermanent(err))
	})

	t.Run("expired reservation", func(t *testing.T) {
		f.broker.now = func() time.Time { return testNow.Add(8 * 24 * time.Hour) }
		defer func() { f.broker.now = func() time.Time { return testNow } }()

		_, err := f.broker.Extend(context.Background(), extensionOrder("tx-1", 2000000000, 2))
		assert.True(t, brokererror.Is(err, brokererror.ErrProvisioningFailed))
		assert.True(t, isPermanent(err))
	})

	t.Run("beyond threebot expiry", func(t *testing.T) {
		f.wallet.records[threebotID].Expiration = testNow.Add(10 * 24 * time.Hour)
		_, err := f.broker.Extend(context.Background(), extensionOrder("tx-1", 2000000000, 2))
		assert.True(t, isPermanent(err))
	})
}
