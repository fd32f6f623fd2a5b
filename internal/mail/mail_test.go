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

package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/blnkfinance/gridbroker/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	c := NewClient("", "SG.test-key", time.Second)
	httpmock.ActivateNonDefault(c.http.HTTP)
	defer httpmock.DeactivateAndReset()

	email := model.Email{
		From:     "broker@grid.tf",
		To:       gofakeit.Email(),
		Subject:  "Your virtual 0-OS is ready on the Threefold grid",
		HTML:     "<html></html>",
		Category: "vm",
		TxID:     "tx1",
	}

	var received message
	httpmock.RegisterResponder(http.MethodPost, DefaultBaseURL+"/v3/mail/send", func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer SG.test-key" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, ""), nil
		}
		if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
	})

	require.NoError(t, c.Send(context.Background(), email))
	assert.Equal(t, toMessage(email), received)
	assert.Equal(t, email.To, received.Personalizations[0].To[0].Email)
	assert.Equal(t, "text/html", received.Content[0].Type)
}

func TestSend_Rejected(t *testing.T) {
	c := NewClient("https://sendgrid.test", "SG.bad", time.Second)
	httpmock.ActivateNonDefault(c.http.HTTP)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "https://sendgrid.test/v3/mail/send",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"errors":[{"message":"The provided authorization grant is invalid"}]}`))

	err := c.Send(context.Background(), model.Email{To: "user@example.com", Subject: "hi"})
	assert.Error(t, err)
}

func TestSend_NotConfigured(t *testing.T) {
	c := NewClient("", "", time.Second)
	assert.False(t, c.Configured())
	assert.True(t, errors.Is(c.Send(context.Background(), model.Email{}), ErrNotConfigured))
}
