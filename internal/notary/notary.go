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

// Package notary reads signed order records from the notary service.
package notary

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/internal/request"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/sirupsen/logrus"
)

type Client struct {
	http *request.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{http: request.NewClient(baseURL, timeout)}
}

// Get fetches the record stored under key. A missing, empty or unreadable
// record returns nil without error; only a notary that cannot be reached is
// an error.
func (c *Client) Get(ctx context.Context, key string) (*model.NotaryBlob, error) {
	blob := &model.NotaryBlob{}
	_, err := c.http.Do(ctx, http.MethodGet, "/get", url.Values{"key": {key}}, nil, blob)
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) || errors.Is(err, request.ErrDecode) {
			logrus.WithFields(logrus.Fields{"key": key}).WithError(err).Debug("no usable notary record")
			return nil, nil
		}
		return nil, brokererror.New(brokererror.ErrNotaryUnreachable, "failed to reach notary", err)
	}

	if blob.Content == "" {
		return nil, nil
	}
	return blob, nil
}
