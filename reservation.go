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
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Week is one lease unit of an extension.
const Week = 7 * 24 * time.Hour

const (
	vmImage         = "zero-os:master"
	zerotierNetwork = "9bee8941b5717835"
)

// InstallResult is a fulfilled deployment order. Info is nil when the
// backend could not report connection details.
type InstallResult struct {
	Reservation *model.Reservation
	Info        *model.ConnectionInfo
}

// ExtendResult is a fulfilled extension order.
type ExtendResult struct {
	Reservation *model.Reservation
	Expiry      time.Time
}

// resourceSpec maps a deployment order to what the backend should create.
func resourceSpec(order *model.Order, nodeID, webGateway string) (model.ResourceSpec, error) {
	spec := model.ResourceSpec{Kind: order.Kind, Name: order.TxID, NodeID: nodeID}
	size := order.Size()

	switch order.Kind {
	case model.KindVM:
		spec.Image = vmImage
		spec.ZerotierNetwork = zerotierNetwork
		spec.DiskType = "hdd"
		switch size {
		case 1:
			spec.CPU, spec.MemoryMiB, spec.DiskGiB = 1, 2048, 20
		case 2:
			spec.CPU, spec.MemoryMiB, spec.DiskGiB = 2, 4096, 60
		default:
			return spec, brokererror.Newf(brokererror.ErrUnknownKind, "vm size can only be 1 or 2, got %d", size)
		}
	case model.KindS3:
		spec.DataShards, spec.ParityShards = 4, 2
		switch size {
		case 1:
			spec.StorageGiB = 500
		case 2:
			spec.StorageGiB = 2000
		default:
			return spec, brokererror.Newf(brokererror.ErrUnknownKind, "s3 size can only be 1 or 2, got %d", size)
		}
	case model.KindNamespace:
		spec.Mode = "user"
		spec.DiskType = "ssd"
		switch size {
		case 1:
			spec.SizeGiB = 10
		case 2:
			spec.SizeGiB = 50
		default:
			return spec, brokererror.Newf(brokererror.ErrUnknownKind, "namespace size can only be 1 or 2, got %d", size)
		}
	case model.KindReverseProxy:
		if size != 1 {
			return spec, brokererror.Newf(brokererror.ErrUnknownKind, "reverse_proxy size can only be 1, got %d", size)
		}
		spec.Domain = order.Deployment.Domain
		spec.Backends = order.Deployment.Backends
		spec.WebGateway = webGateway
	default:
		return spec, brokererror.Newf(brokererror.ErrUnknownKind, "unsupported reservation type %s", order.Kind)
	}
	return spec, nil
}

// checkThreebotExpiry fails when expiry would outlive the author's threebot record.
func (b *Broker) checkThreebotExpiry(ctx context.Context, threebotID string, expiry time.Time) error {
	record, err := b.threebotRecord(ctx, threebotID)
	if err != nil {
		return brokererror.New(brokererror.ErrProvisioningFailed, fmt.Sprintf("failed to get record of threebot %s", threebotID), err)
	}
	if !record.Expiration.IsZero() && expiry.After(record.Expiration) {
		return backoff.Permanent(brokererror.Newf(brokererror.ErrProvisioningFailed,
			"reservation expiration %s can't exceed threebot expiration %s", expiry.Format(time.RFC3339), record.Expiration.Format(time.RFC3339)))
	}
	return nil
}

// Install provisions the resource asked for by a deployment order. It is
// idempotent per transaction: a reservation that already has its services
// is returned as is.
func (b *Broker) Install(ctx context.Context, order *model.Order) (*InstallResult, error) {
	ctx, span := tracer.Start(ctx, "Install")
	defer span.End()

	log := logrus.WithFields(logrus.Fields{"tx_id": order.TxID, "kind": order.Kind})

	existing, err := b.datasource.GetReservation(ctx, order.TxID)
	switch {
	case err == nil:
		if existing.CleanupDone {
			return nil, backoff.Permanent(brokererror.Newf(brokererror.ErrProvisioningFailed, "reservation %s was already cleaned up", order.TxID))
		}
		if len(existing.CreatedServices) > 0 {
			log.Info("reservation already installed")
			return &InstallResult{Reservation: existing, Info: b.connectionInfo(ctx, existing)}, nil
		}
	case !brokererror.Is(err, brokererror.ErrNotFound):
		return nil, err
	}

	if !order.Kind.IsDeployment() {
		return nil, backoff.Permanent(brokererror.Newf(brokererror.ErrUnknownKind, "%s is not a deployment", order.Kind))
	}

	now := b.now()
	lease := b.config.LeaseDuration()
	if err := b.checkThreebotExpiry(ctx, order.ThreebotID, now.Add(lease)); err != nil {
		return nil, err
	}

	var nodeID string
	if order.Kind != model.KindReverseProxy {
		node, err := b.placeNode(ctx, order.Deployment.Location)
		if err != nil {
			return nil, err
		}
		nodeID = node.NodeID
	}

	spec, err := resourceSpec(order, nodeID, b.config.WebGateway)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	handle, err := b.backend.Install(ctx, spec)
	if err != nil {
		if brokererror.Is(err, brokererror.ErrUnknownKind) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	reservation := &model.Reservation{
		ID:                order.TxID,
		Kind:              order.Kind,
		Size:              order.Size(),
		Location:          order.Deployment.Location,
		NodeID:            nodeID,
		Email:             order.Email,
		ThreebotID:        order.ThreebotID,
		Amount:            order.Amount,
		CreationTimestamp: now,
		Lease:             lease,
		CreatedServices:   []model.CreatedService{{Backend: order.Kind, Handle: handle}},
	}
	if err := b.datasource.CreateReservation(ctx, reservation); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"node_id": nodeID, "handle": handle}).Info("reservation installed")

	return &InstallResult{Reservation: reservation, Info: b.connectionInfo(ctx, reservation)}, nil
}

// connectionInfo asks the backend for the details of the first created
// service. Failures are logged and yield nil.
func (b *Broker) connectionInfo(ctx context.Context, r *model.Reservation) *model.ConnectionInfo {
	if len(r.CreatedServices) == 0 {
		return nil
	}
	info, err := b.backend.Info(ctx, r.CreatedServices[0])
	if err != nil {
		logrus.WithFields(logrus.Fields{"reservation_id": r.ID}).WithError(err).Warn("error retrieving connection info")
		return nil
	}
	return info
}

// ConnectionInfo returns the backend details of every service of a reservation.
func (b *Broker) ConnectionInfo(ctx context.Context, reservationID string) ([]model.ConnectionInfo, error) {
	ctx, span := tracer.Start(ctx, "ConnectionInfo")
	defer span.End()

	r, err := b.datasource.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if r.CleanupDone {
		return nil, brokererror.Newf(brokererror.ErrNotFound, "reservation %s has been cleaned up", reservationID)
	}

	infos := make([]model.ConnectionInfo, 0, len(r.CreatedServices))
	for _, service := range r.CreatedServices {
		info, err := b.backend.Info(ctx, service)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// Extend lengthens the lease of an active reservation by the duration of
// the order, once the payment covers it.
func (b *Broker) Extend(ctx context.Context, order *model.Order) (*ExtendResult, error) {
	ctx, span := tracer.Start(ctx, "Extend")
	defer span.End()

	if order.Extension == nil {
		return nil, backoff.Permanent(brokererror.Newf(brokererror.ErrBadEncoding, "extension order without extension details"))
	}
	ext := order.Extension

	r, err := b.datasource.GetReservation(ctx, ext.TransactionID)
	if err != nil {
		if brokererror.Is(err, brokererror.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{"tx_id": order.TxID, "reservation_id": r.ID})
	if r.HasExtension(order.TxID) {
		log.Info("extension already applied")
		return &ExtendResult{Reservation: r, Expiry: r.Expiry()}, nil
	}

	now := b.now()
	if r.CleanupDone || r.Expired(now) {
		return nil, backoff.Permanent(brokererror.Newf(brokererror.ErrProvisioningFailed, "reservation %s has expired", r.ID))
	}

	price, err := RequiredExtensionAmount(r.Kind, r.Size, ext.Duration)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if order.Amount < price {
		return nil, backoff.Permanent(brokererror.Newf(brokererror.ErrPriceTooLow,
			"transaction amount is too low to extend the reservation. given: %d needed: %d", order.Amount, price))
	}

	extension := time.Duration(ext.Duration) * Week
	if err := b.checkThreebotExpiry(ctx, order.ThreebotID, r.CreationTimestamp.Add(r.Lease+extension)); err != nil {
		return nil, err
	}

	lease, err := b.datasource.ExtendReservation(ctx, r.ID, order.TxID, extension)
	if err != nil {
		if brokererror.Is(err, brokererror.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	r.Lease = lease
	r.Extensions = append(r.Extensions, order.TxID)

	log.WithField("expiry", r.Expiry()).Info("reservation extended")
	return &ExtendResult{Reservation: r, Expiry: r.Expiry()}, nil
}
