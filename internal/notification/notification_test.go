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

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhook = "https://hooks.slack.test/services/T000/B000/XXX"

func TestBuildMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := buildMessage("Refund failed", errors.New("wallet offline"), map[string]string{"tx_id": "tx1", "address": "addr1"}, at)

	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "Refund failed", msg.Blocks[0].Text.Text)
	require.Len(t, msg.Blocks[1].Fields, 3)
	assert.Equal(t, "*Error:*\nwallet offline", msg.Blocks[1].Fields[0].Text)
	assert.Equal(t, "*address:*\naddr1", msg.Blocks[1].Fields[1].Text)
	assert.Equal(t, "*tx_id:*\ntx1", msg.Blocks[1].Fields[2].Text)
	assert.True(t, strings.HasPrefix(msg.Blocks[2].Fields[0].Text, "*Time:*"))
}

func TestSend(t *testing.T) {
	a := NewAlerter(webhook, time.Second)
	httpmock.ActivateNonDefault(a.client)
	defer httpmock.DeactivateAndReset()

	var received slackMessage
	httpmock.RegisterResponder(http.MethodPost, webhook, func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, "invalid_payload"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	err := a.Send(context.Background(), "Refund failed", errors.New("wallet offline"), map[string]string{"tx_id": "tx1"})
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, "header", received.Blocks[0].Type)
}

func TestSend_WebhookRejects(t *testing.T) {
	a := NewAlerter(webhook, time.Second)
	httpmock.ActivateNonDefault(a.client)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, webhook, httpmock.NewStringResponder(http.StatusForbidden, "invalid_token"))

	err := a.Send(context.Background(), "Refund failed", errors.New("wallet offline"), nil)
	assert.Error(t, err)
}

func TestSend_NoWebhook(t *testing.T) {
	a := NewAlerter("", time.Second)
	assert.NoError(t, a.Send(context.Background(), "Refund failed", errors.New("wallet offline"), nil))

	var nilAlerter *Alerter
	assert.NoError(t, nilAlerter.Send(context.Background(), "Refund failed", errors.New("wallet offline"), nil))
}
