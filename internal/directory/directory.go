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

// Package directory queries the capacity directory for nodes and their resources.
package directory

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/blnkfinance/gridbroker/internal/request"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/pkg/errors"
)

type Client struct {
	http *request.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{http: request.NewClient(baseURL, timeout)}
}

// GetNode returns the node with the given id, or nil when the directory does not know it.
func (c *Client) GetNode(ctx context.Context, nodeID string) (*model.NodeCapacity, error) {
	node := &model.NodeCapacity{}
	_, err := c.http.Do(ctx, http.MethodGet, "/api/nodes/"+url.PathEscape(nodeID), nil, nil, node)
	if err != nil {
		if request.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "getting node %s", nodeID)
	}
	if node.NodeID == "" {
		node.NodeID = nodeID
	}
	return node, nil
}

// ListFarmNodes returns every node registered under farm.
func (c *Client) ListFarmNodes(ctx context.Context, farm string) ([]model.NodeCapacity, error) {
	var nodes []model.NodeCapacity
	_, err := c.http.Do(ctx, http.MethodGet, "/api/nodes", url.Values{"farm": {farm}}, nil, &nodes)
	if err != nil {
		return nil, errors.Wrapf(err, "listing nodes of farm %s", farm)
	}
	return nodes, nil
}
