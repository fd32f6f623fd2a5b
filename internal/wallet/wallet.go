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

// Package wallet talks to the wallet daemon holding the broker's funds and to
// the threebot identity registry it fronts.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/blnkfinance/gridbroker/internal/request"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/pkg/errors"
)

type Client struct {
	name string
	http *request.Client
}

func NewClient(baseURL, walletName string, timeout time.Duration) *Client {
	return &Client{name: walletName, http: request.NewClient(baseURL, timeout)}
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) walletPath(parts ...string) string {
	path := "/wallets/" + url.PathEscape(c.name)
	for _, p := range parts {
		path += "/" + url.PathEscape(p)
	}
	return path
}

type incomingTransaction struct {
	ID            string   `json:"id"`
	Amount        int64    `json:"amount"`
	FromAddresses []string `json:"from_addresses"`
	ToAddress     string   `json:"to_address"`
	Data          string   `json:"data"`
	Locked        bool     `json:"locked"`
	BlockHeight   uint64   `json:"block_height"`
	Confirmed     bool     `json:"confirmed"`
}

// ListIncomingTransactions returns incoming transactions at or above
// minHeight, plus unconfirmed ones, newest first.
func (c *Client) ListIncomingTransactions(ctx context.Context, minHeight uint64) ([]model.Transaction, error) {
	var incoming []incomingTransaction
	query := url.Values{"min_height": {strconv.FormatUint(minHeight, 10)}}
	_, err := c.http.Do(ctx, http.MethodGet, c.walletPath("transactions", "incoming"), query, nil, &incoming)
	if err != nil {
		return nil, errors.Wrap(err, "listing incoming transactions")
	}

	txs := make([]model.Transaction, 0, len(incoming))
	for _, in := range incoming {
		tx := model.Transaction{
			ID:            in.ID,
			Amount:        in.Amount,
			FromAddresses: in.FromAddresses,
			ToAddress:     in.ToAddress,
			Locked:        in.Locked,
			BlockHeight:   in.BlockHeight,
			Confirmed:     in.Confirmed,
		}
		if in.Data != "" {
			tx.Data = []byte(in.Data)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (c *Client) Addresses(ctx context.Context) ([]string, error) {
	var resp struct {
		Addresses []string `json:"addresses"`
	}
	_, err := c.http.Do(ctx, http.MethodGet, c.walletPath("addresses"), nil, nil, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "listing wallet addresses")
	}
	return resp.Addresses, nil
}

type sendRequest struct {
	Amount  int64  `json:"amount"`
	Address string `json:"address"`
}

// SendMoney pays amount to address and returns the id of the new transaction.
func (c *Client) SendMoney(ctx context.Context, amount int64, address string) (string, error) {
	var resp struct {
		TransactionID string `json:"transaction_id"`
	}
	_, err := c.http.Do(ctx, http.MethodPost, c.walletPath("send"), nil, sendRequest{Amount: amount, Address: address}, &resp)
	if err != nil {
		return "", errors.Wrapf(err, "sending %d to %s", amount, address)
	}
	return resp.TransactionID, nil
}

// PrivateKey returns the key of an address owned by the wallet, or nil when
// the wallet does not own it.
func (c *Client) PrivateKey(ctx context.Context, address string) (ed25519.PrivateKey, error) {
	var resp struct {
		PrivateKey string `json:"private_key"`
	}
	_, err := c.http.Do(ctx, http.MethodGet, c.walletPath("keys", address), nil, nil, &resp)
	if err != nil {
		if request.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "getting key of %s", address)
	}
	if resp.PrivateKey == "" {
		return nil, nil
	}

	raw, err := hex.DecodeString(resp.PrivateKey)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding key of %s", address)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("key of %s has unexpected length %d", address, len(raw))
	}
}

// ThreebotRecord looks up a threebot identity.
func (c *Client) ThreebotRecord(ctx context.Context, id string) (*model.ThreebotRecord, error) {
	record := &model.ThreebotRecord{}
	_, err := c.http.Do(ctx, http.MethodGet, "/threebots/"+url.PathEscape(id), nil, nil, record)
	if err != nil {
		return nil, errors.Wrapf(err, "getting threebot %s", id)
	}
	if record.ID == "" {
		record.ID = id
	}
	return record, nil
}
