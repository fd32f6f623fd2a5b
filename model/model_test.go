package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name    string
		order   Order
		wantErr bool
	}{
		{
			name:  "valid vm order",
			order: Order{Kind: KindVM, Email: "user@example.com", Deployment: &Deployment{Size: 1, Location: "nodeA"}},
		},
		{
			name:    "unknown kind",
			order:   Order{Kind: "gpu", Email: "user@example.com", Deployment: &Deployment{Size: 1, Location: "nodeA"}},
			wantErr: true,
		},
		{
			name:    "bad email",
			order:   Order{Kind: KindVM, Email: "not-an-email", Deployment: &Deployment{Size: 1, Location: "nodeA"}},
			wantErr: true,
		},
		{
			name:    "missing location",
			order:   Order{Kind: KindS3, Email: "user@example.com", Deployment: &Deployment{Size: 1}},
			wantErr: true,
		},
		{
			name:    "missing deployment",
			order:   Order{Kind: KindNamespace, Email: "user@example.com"},
			wantErr: true,
		},
		{
			name: "valid reverse proxy",
			order: Order{Kind: KindReverseProxy, Email: "user@example.com", Deployment: &Deployment{
				Size: 1, Domain: "app.example.com", Backends: []string{"http://10.0.0.1:8080"},
			}},
		},
		{
			name: "reverse proxy without backends",
			order: Order{Kind: KindReverseProxy, Email: "user@example.com", Deployment: &Deployment{
				Size: 1, Domain: "app.example.com",
			}},
			wantErr: true,
		},
		{
			name:  "valid extension",
			order: Order{Kind: KindExtension, Email: "user@example.com", Extension: &Extension{TransactionID: "tx1", Duration: 2}},
		},
		{
			name:    "extension with zero duration",
			order:   Order{Kind: KindExtension, Email: "user@example.com", Extension: &Extension{TransactionID: "tx1"}},
			wantErr: true,
		},
		{
			name:    "extension without details",
			order:   Order{Kind: KindExtension, Email: "user@example.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResourceKindIsDeployment(t *testing.T) {
	assert.True(t, KindVM.IsDeployment())
	assert.True(t, KindReverseProxy.IsDeployment())
	assert.False(t, KindExtension.IsDeployment())
	assert.False(t, ResourceKind("gpu").IsDeployment())
}

func TestReservationExpiry(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Reservation{CreationTimestamp: created, Lease: 7 * 24 * time.Hour}

	assert.Equal(t, created.Add(7*24*time.Hour), r.Expiry())
	assert.False(t, r.Expired(created.Add(7*24*time.Hour)))
	assert.True(t, r.Expired(created.Add(7*24*time.Hour+time.Second)))
}

func TestTransactionRefundAddress(t *testing.T) {
	assert.Equal(t, "addr1", Transaction{FromAddresses: []string{"addr1", "addr2"}}.RefundAddress())
	assert.Equal(t, "", Transaction{}.RefundAddress())
}

func TestReservationHasExtension(t *testing.T) {
	r := Reservation{Extensions: []string{"tx-2", "tx-5"}}
	assert.True(t, r.HasExtension("tx-5"))
	assert.False(t, r.HasExtension("tx-3"))
	assert.False(t, (&Reservation{}).HasExtension("tx-2"))
}
