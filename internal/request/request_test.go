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

package request_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/blnkfinance/gridbroker/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJsonReq_Success(t *testing.T) {
	payload := map[string]string{"key": "value"}

	reqBuffer, err := request.ToJsonReq(payload)
	assert.NoError(t, err)

	expectedJSON, _ := json.Marshal(payload)
	assert.Equal(t, expectedJSON, reqBuffer.Bytes())
}

func TestToJsonReq_Fail(t *testing.T) {
	payload := map[string]interface{}{"key": make(chan int)}

	reqBuffer, err := request.ToJsonReq(payload)
	assert.Error(t, err)
	assert.Nil(t, reqBuffer)
}

func TestClientDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "/services", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("page"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tx1", body["name"])

		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := request.NewClient(server.URL+"/", time.Second)
	client.Header.Set("Authorization", "Bearer token")

	var response map[string]string
	resp, err := client.Do(context.Background(), http.MethodPost, "/services", url.Values{"page": {"7"}}, map[string]string{"name": "tx1"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", response["status"])
}

func TestClientDo_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such service"))
	}))
	defer server.Close()

	client := request.NewClient(server.URL, time.Second)
	_, err := client.Do(context.Background(), http.MethodGet, "/services/tx1/info", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, request.IsNotFound(err))

	var statusErr *request.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "no such service", statusErr.Body)
}

func TestClientDo_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := request.NewClient(server.URL, time.Second)
	var response map[string]string
	_, err := client.Do(context.Background(), http.MethodDelete, "/services/tx1", nil, nil, &response)
	assert.NoError(t, err)
	assert.Nil(t, response)
}

func TestClientDo_DecodeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{malformed json response`))
	}))
	defer server.Close()

	client := request.NewClient(server.URL, time.Second)
	var response map[string]string
	_, err := client.Do(context.Background(), http.MethodGet, "/", nil, nil, &response)
	assert.ErrorIs(t, err, request.ErrDecode)
	assert.False(t, request.IsNotFound(err))
}

func TestClientDo_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := request.NewClient(server.URL, 20*time.Millisecond)
	_, err := client.Do(context.Background(), http.MethodGet, "/", nil, nil, nil)
	assert.Error(t, err)
}
