package api

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/gridbroker"
	"github.com/blnkfinance/gridbroker/api/middleware"
	"github.com/blnkfinance/gridbroker/config"
	"github.com/blnkfinance/gridbroker/database/mocks"
	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubWallet struct{}

func (stubWallet) ListIncomingTransactions(context.Context, uint64) ([]model.Transaction, error) {
	return nil, nil
}
func (stubWallet) Addresses(context.Context) ([]string, error) { return nil, nil }
func (stubWallet) SendMoney(context.Context, int64, string) (string, error) {
	return "", nil
}
func (stubWallet) PrivateKey(context.Context, string) (ed25519.PrivateKey, error) {
	return nil, nil
}
func (stubWallet) ThreebotRecord(context.Context, string) (*model.ThreebotRecord, error) {
	return nil, brokererror.Newf(brokererror.ErrNotFound, "no threebot")
}

type stubNotary struct{}

func (stubNotary) Get(context.Context, string) (*model.NotaryBlob, error) { return nil, nil }

type stubDirectory struct{}

func (stubDirectory) GetNode(context.Context, string) (*model.NodeCapacity, error) { return nil, nil }
func (stubDirectory) ListFarmNodes(context.Context, string) ([]model.NodeCapacity, error) {
	return nil, nil
}

type stubBackend struct {
	uninstalled []model.CreatedService
}

func (b *stubBackend) Install(context.Context, model.ResourceSpec) (string, error) { return "", nil }
func (b *stubBackend) Info(_ context.Context, s model.CreatedService) (*model.ConnectionInfo, error) {
	return &model.ConnectionInfo{Kind: s.Backend, ZosAddr: "10.0.0.1:6379"}, nil
}
func (b *stubBackend) Uninstall(_ context.Context, s model.CreatedService) error {
	b.uninstalled = append(b.uninstalled, s)
	return nil
}

type stubNotifier struct{}

func (stubNotifier) Notify(context.Context, model.Email) error { return nil }

func setupRouter(t *testing.T, conf *config.Configuration) (*gin.Engine, *mocks.MockDataSource, *stubBackend) {
	t.Helper()
	config.MockConfig(conf)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ds := new(mocks.MockDataSource)
	backend := &stubBackend{}
	b, err := gridbroker.New(conf, gridbroker.Dependencies{
		DataSource: ds,
		Redis:      client,
		Wallet:     stubWallet{},
		Notary:     stubNotary{},
		Directory:  stubDirectory{},
		Backend:    backend,
		Notifier:   stubNotifier{},
	})
	require.NoError(t, err)
	return NewAPI(b, conf).Router(), ds, backend
}

func testConf() *config.Configuration {
	return &config.Configuration{Wallet: config.WalletConfig{Name: "broker"}}
}

func do(router *gin.Engine, method, route string, header map[string]string, out interface{}) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, route, nil)
	for key, value := range header {
		req.Header.Set(key, value)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if out != nil {
		body, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(body, out)
	}
	return resp
}

func activeReservation(id string, created time.Time) *model.Reservation {
	return &model.Reservation{
		ID:                id,
		Kind:              model.KindVM,
		Size:              1,
		Email:             gofakeit.Email(),
		CreationTimestamp: created,
		Lease:             7 * 24 * time.Hour,
		CreatedServices:   []model.CreatedService{{Backend: model.KindVM, Handle: id}},
	}
}

func TestHealth(t *testing.T) {
	router, _, _ := setupRouter(t, testConf())
	resp := do(router, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestGetReservation(t *testing.T) {
	router, ds, _ := setupRouter(t, testConf())
	id := gofakeit.UUID()
	ds.On("GetReservation", mock.Anything, id).Return(activeReservation(id, time.Now()), nil)
	ds.On("GetReservation", mock.Anything, "missing").Return(nil, brokererror.Newf(brokererror.ErrNotFound, "reservation missing not found"))

	var got model.Reservation
	resp := do(router, http.MethodGet, "/reservations/"+id, nil, &got)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, id, got.ID)

	resp = do(router, http.MethodGet, "/reservations/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetConnectionInfo(t *testing.T) {
	router, ds, _ := setupRouter(t, testConf())
	id := gofakeit.UUID()
	ds.On("GetReservation", mock.Anything, id).Return(activeReservation(id, time.Now()), nil)

	var got struct {
		ReservationID string                 `json:"reservation_id"`
		Services      []model.ConnectionInfo `json:"services"`
	}
	resp := do(router, http.MethodGet, "/reservations/"+id+"/connection-info", nil, &got)
	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, got.Services, 1)
	assert.Equal(t, "10.0.0.1:6379", got.Services[0].ZosAddr)
}

func TestCleanupReservation(t *testing.T) {
	router, ds, backend := setupRouter(t, testConf())
	expired := gofakeit.UUID()
	active := gofakeit.UUID()
	ds.On("GetReservation", mock.Anything, expired).Return(activeReservation(expired, time.Now().AddDate(0, 0, -30)), nil)
	ds.On("GetReservation", mock.Anything, active).Return(activeReservation(active, time.Now()), nil)
	ds.On("MarkReservationCleaned", mock.Anything, expired, mock.AnythingOfType("time.Time")).Return(nil).Once()

	var got map[string]interface{}
	resp := do(router, http.MethodPost, "/reservations/"+expired+"/cleanup", nil, &got)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, got["cleaned"])
	assert.Len(t, backend.uninstalled, 1)

	resp = do(router, http.MethodPost, "/reservations/"+active+"/cleanup", nil, &got)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, got["cleaned"])
	ds.AssertExpectations(t)
}

func TestGetTransaction(t *testing.T) {
	router, ds, _ := setupRouter(t, testConf())
	ds.On("GetProcessed", mock.Anything, "broker", "tx-1").Return(&model.ProcessedTransaction{
		WalletRef: "broker", TransactionID: "tx-1", Outcome: model.OutcomeDone, RefundStatus: model.RefundNotNeeded,
	}, nil)

	var got model.ProcessedTransaction
	resp := do(router, http.MethodGet, "/transactions/tx-1", nil, &got)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, model.OutcomeDone, got.Outcome)
}

func TestTriggerWatch(t *testing.T) {
	router, ds, _ := setupRouter(t, testConf())
	ds.On("GetWatcherState", mock.Anything, "broker").Return(&model.WatcherState{WalletRef: "broker"}, nil)

	resp := do(router, http.MethodPost, "/watch", nil, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSecureRoutes(t *testing.T) {
	conf := testConf()
	conf.Server = config.ServerConfig{Secure: true, SecretKey: "s3cret"}
	router, ds, _ := setupRouter(t, conf)
	ds.On("GetProcessed", mock.Anything, "broker", "tx-1").Return(&model.ProcessedTransaction{TransactionID: "tx-1"}, nil)

	resp := do(router, http.MethodGet, "/transactions/tx-1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = do(router, http.MethodGet, "/transactions/tx-1", map[string]string{middleware.KeyHeader: "s3cret"}, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}
