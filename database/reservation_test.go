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
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reservationRowColumns = []string{
	"reservation_id", "type", "size", "location", "node_id", "email", "threebot_id", "amount",
	"creation_timestamp", "lease_seconds", "created_services", "extensions", "cleanup_done", "cleaned_at",
}

func TestCreateReservation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	r := &model.Reservation{
		ID:                gofakeit.UUID(),
		Kind:              model.KindVM,
		Size:              1,
		Location:          "farm-a",
		NodeID:            "node-1",
		Email:             gofakeit.Email(),
		ThreebotID:        "7",
		Amount:            1000000000,
		CreationTimestamp: time.Now().UTC(),
		Lease:             7 * 24 * time.Hour,
		CreatedServices:   []model.CreatedService{{Backend: model.KindVM, Handle: "vm-1"}},
	}
	servicesJSON, err := json.Marshal(r.CreatedServices)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO gridbroker.reservations").
		WithArgs(r.ID, "vm", 1, "farm-a", "node-1", r.Email, "7", r.Amount, r.CreationTimestamp,
			int64(7*24*3600), servicesJSON, []byte(`[]`), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ds.CreateReservation(context.Background(), r)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReservation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	created := time.Now().UTC().Add(-time.Hour)

	rows := sqlmock.NewRows(reservationRowColumns).
		AddRow("tx1", "s3", 2, "farm-a", "node-3", "user@example.com", "7", int64(40000000000),
			created, int64(3600), []byte(`[{"backend":"s3","handle":"tx1"}]`), []byte(`["tx9"]`), false, nil)
	mock.ExpectQuery("FROM gridbroker.reservations WHERE reservation_id").
		WithArgs("tx1").
		WillReturnRows(rows)

	r, err := ds.GetReservation(context.Background(), "tx1")
	require.NoError(t, err)
	assert.Equal(t, model.KindS3, r.Kind)
	assert.Equal(t, 2, r.Size)
	assert.Equal(t, "node-3", r.NodeID)
	assert.Equal(t, time.Hour, r.Lease)
	assert.Equal(t, []model.CreatedService{{Backend: model.KindS3, Handle: "tx1"}}, r.CreatedServices)
	assert.Equal(t, []string{"tx9"}, r.Extensions)
	assert.Nil(t, r.CleanedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReservation_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("FROM gridbroker.reservations WHERE reservation_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(reservationRowColumns))

	r, err := ds.GetReservation(context.Background(), "missing")
	assert.Nil(t, r)
	assert.True(t, brokererror.Is(err, brokererror.ErrNotFound))
}

func TestExtendReservation(t *testing.T) {
	week := int64(7 * 24 * 3600)

	t.Run("applies a new extension", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		ds := Datasource{Conn: db}

		mock.ExpectQuery("UPDATE gridbroker.reservations SET lease_seconds").
			WithArgs("tx1", "tx2", week).
			WillReturnRows(sqlmock.NewRows([]string{"lease_seconds"}).AddRow(2 * week))

		lease, err := ds.ExtendReservation(context.Background(), "tx1", "tx2", 7*24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 14*24*time.Hour, lease)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("extension already applied", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		ds := Datasource{Conn: db}

		mock.ExpectQuery("UPDATE gridbroker.reservations SET lease_seconds").
			WithArgs("tx1", "tx2", week).
			WillReturnRows(sqlmock.NewRows([]string{"lease_seconds"}))
		mock.ExpectQuery("SELECT lease_seconds").
			WithArgs("tx1", "tx2").
			WillReturnRows(sqlmock.NewRows([]string{"lease_seconds", "applied"}).AddRow(2*week, true))

		lease, err := ds.ExtendReservation(context.Background(), "tx1", "tx2", 7*24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 14*24*time.Hour, lease)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reservation gone", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		ds := Datasource{Conn: db}

		mock.ExpectQuery("UPDATE gridbroker.reservations SET lease_seconds").
			WithArgs("gone", "tx2", int64(3600)).
			WillReturnRows(sqlmock.NewRows([]string{"lease_seconds"}))
		mock.ExpectQuery("SELECT lease_seconds").
			WithArgs("gone", "tx2").
			WillReturnRows(sqlmock.NewRows([]string{"lease_seconds", "applied"}))

		_, err = ds.ExtendReservation(context.Background(), "gone", "tx2", time.Hour)
		assert.True(t, brokererror.Is(err, brokererror.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListActiveReservations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows(reservationRowColumns).
		AddRow("tx1", "vm", 1, "node-1", "node-1", "a@example.com", "7", int64(1000000000),
			now.Add(-48*time.Hour), int64(24*3600), []byte(`[{"backend":"vm","handle":"tx1"}]`), []byte(`[]`), false, nil).
		AddRow("tx2", "namespace", 1, "farm-b", "node-9", nil, nil, int64(500000000),
			now.Add(-time.Hour), int64(7*24*3600), []byte(`[]`), nil, false, nil)
	mock.ExpectQuery("FROM gridbroker.reservations WHERE cleanup_done = false").
		WillReturnRows(rows)

	reservations, err := ds.ListActiveReservations(context.Background())
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, "tx1", reservations[0].ID)
	assert.True(t, reservations[0].Expired(now))
	assert.Equal(t, "", reservations[1].Email)
	assert.Empty(t, reservations[1].CreatedServices)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReservationCleaned(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	cleanedAt := time.Date(2024, 3, 1, 15, 0, 0, 0, time.FixedZone("EAT", 3*3600))

	mock.ExpectExec("UPDATE gridbroker.reservations SET cleanup_done = true").
		WithArgs("tx1", cleanedAt.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.MarkReservationCleaned(context.Background(), "tx1", cleanedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
