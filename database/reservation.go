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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"go.opentelemetry.io/otel"
)

const reservationColumns = `reservation_id, type, size, location, node_id, email, threebot_id, amount, creation_timestamp, lease_seconds, created_services, extensions, cleanup_done, cleaned_at`

// CreateReservation records a reservation. Recording the same reservation id
// again replaces its node and created services, which happens when an install
// is repeated after the first attempt failed to persist.
func (d Datasource) CreateReservation(ctx context.Context, r *model.Reservation) error {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Saving reservation to db")
	defer span.End()

	if r.CreatedServices == nil {
		r.CreatedServices = []model.CreatedService{}
	}
	servicesJSON, err := json.Marshal(r.CreatedServices)
	if err != nil {
		return brokererror.New(brokererror.ErrInternal, "Failed to marshal created services", err)
	}
	if r.Extensions == nil {
		r.Extensions = []string{}
	}
	extensionsJSON, err := json.Marshal(r.Extensions)
	if err != nil {
		return brokererror.New(brokererror.ErrInternal, "Failed to marshal extensions", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO gridbroker.reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (reservation_id) DO UPDATE
		SET node_id = EXCLUDED.node_id, created_services = EXCLUDED.created_services
	`, r.ID, r.Kind, r.Size, r.Location, r.NodeID, r.Email, r.ThreebotID, r.Amount, r.CreationTimestamp.UTC(),
		int64(r.Lease/time.Second), servicesJSON, extensionsJSON, r.CleanupDone, r.CleanedAt)
	if err != nil {
		return brokererror.New(brokererror.ErrInternal, "Failed to record reservation", err)
	}

	return nil
}

func (d Datasource) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Getting reservation from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM gridbroker.reservations
		WHERE reservation_id = $1
	`, id)

	r, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, brokererror.New(brokererror.ErrNotFound, fmt.Sprintf("Reservation with ID '%s' not found", id), err)
		}
		return nil, brokererror.New(brokererror.ErrInternal, "Failed to retrieve reservation", err)
	}

	return r, nil
}

// ExtendReservation adds extension to the lease of an active reservation and
// records extensionID as applied, in one statement. An extension already
// applied is not added again. It returns the lease after the extension.
func (d Datasource) ExtendReservation(ctx context.Context, id, extensionID string, extension time.Duration) (time.Duration, error) {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Extending reservation lease")
	defer span.End()

	var leaseSeconds int64
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE gridbroker.reservations
		SET lease_seconds = lease_seconds + $3, extensions = extensions || jsonb_build_array($2::text)
		WHERE reservation_id = $1 AND cleanup_done = false AND NOT extensions @> jsonb_build_array($2::text)
		RETURNING lease_seconds
	`, id, extensionID, int64(extension/time.Second)).Scan(&leaseSeconds)
	if err == nil {
		return time.Duration(leaseSeconds) * time.Second, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, brokererror.New(brokererror.ErrInternal, "Failed to extend reservation lease", err)
	}

	// nothing updated: either the reservation is gone or the extension is already in
	var applied bool
	err = d.Conn.QueryRowContext(ctx, `
		SELECT lease_seconds, extensions @> jsonb_build_array($2::text)
		FROM gridbroker.reservations
		WHERE reservation_id = $1 AND cleanup_done = false
	`, id, extensionID).Scan(&leaseSeconds, &applied)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, brokererror.New(brokererror.ErrNotFound, fmt.Sprintf("Active reservation with ID '%s' not found", id), err)
		}
		return 0, brokererror.New(brokererror.ErrInternal, "Failed to read reservation lease", err)
	}
	if !applied {
		return 0, brokererror.Newf(brokererror.ErrInternal, "extension %s was not applied to reservation %s", extensionID, id)
	}
	return time.Duration(leaseSeconds) * time.Second, nil
}

// ListActiveReservations returns every reservation that has not been cleaned up, oldest first.
func (d Datasource) ListActiveReservations(ctx context.Context) ([]*model.Reservation, error) {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Listing active reservations")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM gridbroker.reservations
		WHERE cleanup_done = false
		ORDER BY creation_timestamp ASC
	`)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrInternal, "Failed to list reservations", err)
	}
	defer rows.Close()

	var reservations []*model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, brokererror.New(brokererror.ErrInternal, "Failed to scan reservation", err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, brokererror.New(brokererror.ErrInternal, "Error iterating reservations", err)
	}

	return reservations, nil
}

// MarkReservationCleaned drops the created services of a reservation and sets
// its cleanup marker. The row itself is kept.
func (d Datasource) MarkReservationCleaned(ctx context.Context, id string, cleanedAt time.Time) error {
	ctx, span := otel.Tracer("gridbroker.database").Start(ctx, "Marking reservation cleaned")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE gridbroker.reservations
		SET cleanup_done = true, cleaned_at = $2, created_services = '[]'
		WHERE reservation_id = $1
	`, id, cleanedAt.UTC())
	if err != nil {
		return brokererror.New(brokererror.ErrInternal, "Failed to mark reservation cleaned", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return brokererror.New(brokererror.ErrInternal, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return brokererror.New(brokererror.ErrNotFound, fmt.Sprintf("Reservation with ID '%s' not found", id), nil)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	r := &model.Reservation{}
	var location, nodeID, email, threebotID sql.NullString
	var leaseSeconds int64
	var servicesJSON, extensionsJSON []byte
	var cleanedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Kind, &r.Size, &location, &nodeID, &email, &threebotID, &r.Amount,
		&r.CreationTimestamp, &leaseSeconds, &servicesJSON, &extensionsJSON, &r.CleanupDone, &cleanedAt)
	if err != nil {
		return nil, err
	}

	r.Location = location.String
	r.NodeID = nodeID.String
	r.Email = email.String
	r.ThreebotID = threebotID.String
	r.CreationTimestamp = r.CreationTimestamp.UTC()
	r.Lease = time.Duration(leaseSeconds) * time.Second
	if cleanedAt.Valid {
		t := cleanedAt.Time.UTC()
		r.CleanedAt = &t
	}

	r.CreatedServices = []model.CreatedService{}
	if len(servicesJSON) > 0 {
		if err := json.Unmarshal(servicesJSON, &r.CreatedServices); err != nil {
			return nil, err
		}
	}
	r.Extensions = []string{}
	if len(extensionsJSON) > 0 {
		if err := json.Unmarshal(extensionsJSON, &r.Extensions); err != nil {
			return nil, err
		}
	}

	return r, nil
}
