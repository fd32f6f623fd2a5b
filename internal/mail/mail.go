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

// Package mail delivers rendered emails through the SendGrid v3 API.
package mail

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/blnkfinance/gridbroker/internal/request"
	"github.com/blnkfinance/gridbroker/model"
	pkgerrors "github.com/pkg/errors"
)

const DefaultBaseURL = "https://api.sendgrid.com"

// ErrNotConfigured is returned by Send when no API key is set.
var ErrNotConfigured = errors.New("no sendgrid api key configured")

type Client struct {
	apiKey string
	http   *request.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{apiKey: apiKey, http: request.NewClient(baseURL, timeout)}
	c.http.Header.Set("Authorization", "Bearer "+apiKey)
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type address struct {
	Email string `json:"email"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type message struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
	Categories       []string          `json:"categories,omitempty"`
	CustomArgs       map[string]string `json:"custom_args,omitempty"`
}

func toMessage(email model.Email) message {
	msg := message{
		Personalizations: []personalization{{To: []address{{Email: email.To}}}},
		From:             address{Email: email.From},
		Subject:          email.Subject,
		Content:          []content{{Type: "text/html", Value: email.HTML}},
	}
	if email.Category != "" {
		msg.Categories = []string{email.Category}
	}
	if email.TxID != "" {
		msg.CustomArgs = map[string]string{"tx_id": email.TxID}
	}
	return msg
}

func (c *Client) Send(ctx context.Context, email model.Email) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	_, err := c.http.Do(ctx, http.MethodPost, "/v3/mail/send", nil, toMessage(email), nil)
	if err != nil {
		return pkgerrors.Wrapf(err, "sending %q to %s", email.Subject, email.To)
	}
	return nil
}
