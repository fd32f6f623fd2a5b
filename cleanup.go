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
	"time"

	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/sirupsen/logrus"
)

// CleanupReport summarizes one cleanup run.
type CleanupReport struct {
	Checked int      `json:"checked"`
	Cleaned []string `json:"cleaned"`
	Failed  []string `json:"failed"`
}

// Cleanup removes the backend services of every reservation whose lease has
// run out at now. Reservations that fail are retried on the next run.
func (b *Broker) Cleanup(ctx context.Context, now time.Time) (*CleanupReport, error) {
	ctx, span := tracer.Start(ctx, "Cleanup")
	defer span.End()

	reservations, err := b.datasource.ListActiveReservations(ctx)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{Checked: len(reservations), Cleaned: []string{}, Failed: []string{}}
	for _, r := range reservations {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !r.Expired(now) {
			continue
		}
		if err := b.cleanup(ctx, r, now); err != nil {
			report.Failed = append(report.Failed, r.ID)
			continue
		}
		report.Cleaned = append(report.Cleaned, r.ID)
	}

	logrus.WithFields(logrus.Fields{
		"checked": report.Checked,
		"cleaned": len(report.Cleaned),
		"failed":  len(report.Failed),
	}).Info("cleanup run finished")
	return report, nil
}

// CleanupReservation cleans up one reservation. It reports false when the
// lease is still running or the reservation was already cleaned.
func (b *Broker) CleanupReservation(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "CleanupReservation")
	defer span.End()

	r, err := b.datasource.GetReservation(ctx, id)
	if err != nil {
		return false, err
	}
	if r.CleanupDone || !r.Expired(now) {
		return false, nil
	}
	if err := b.cleanup(ctx, r, now); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Broker) cleanup(ctx context.Context, r *model.Reservation, now time.Time) error {
	log := logrus.WithFields(logrus.Fields{"reservation_id": r.ID, "kind": r.Kind})

	for _, service := range r.CreatedServices {
		err := b.backend.Uninstall(ctx, service)
		if err == nil {
			continue
		}
		if brokererror.Is(err, brokererror.ErrNotFound) {
			log.WithField("handle", service.Handle).Info("service already removed")
			continue
		}
		log.WithField("handle", service.Handle).WithError(err).Error("failed to uninstall service")
		return err
	}

	if err := b.datasource.MarkReservationCleaned(ctx, r.ID, now); err != nil {
		log.WithError(err).Error("failed to mark reservation as cleaned")
		return err
	}
	log.Info("reservation cleaned up")
	return nil
}
