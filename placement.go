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

package gridbroker

import (
	"context"
	"sort"

	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/sirupsen/logrus"
)

// SelectNode picks the node with the most total capacity, breaking ties by
// the least used capacity and then by node id. The result does not depend on
// the order of nodes.
func SelectNode(nodes []model.NodeCapacity) (*model.NodeCapacity, error) {
	if len(nodes) == 0 {
		return nil, brokererror.Newf(brokererror.ErrProvisioningFailed, "no nodes available")
	}

	sorted := make([]model.NodeCapacity, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		return nodeLess(sorted[i], sorted[j])
	})

	selected := sorted[0]
	return &selected, nil
}

func nodeLess(a, b model.NodeCapacity) bool {
	switch {
	case a.Total.CRU != b.Total.CRU:
		return a.Total.CRU > b.Total.CRU
	case a.Total.MRU != b.Total.MRU:
		return a.Total.MRU > b.Total.MRU
	case a.Total.SRU != b.Total.SRU:
		return a.Total.SRU > b.Total.SRU
	case a.Used.CRU != b.Used.CRU:
		return a.Used.CRU < b.Used.CRU
	case a.Used.MRU != b.Used.MRU:
		return a.Used.MRU < b.Used.MRU
	case a.Used.SRU != b.Used.SRU:
		return a.Used.SRU < b.Used.SRU
	}
	return a.NodeID < b.NodeID
}

// placeNode resolves an order location to a node. The location is tried as
// a node id first, then as a farm name.
func (b *Broker) placeNode(ctx context.Context, location string) (*model.NodeCapacity, error) {
	ctx, span := tracer.Start(ctx, "PlaceNode")
	defer span.End()

	node, err := b.directory.GetNode(ctx, location)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrProvisioningFailed, "failed to query capacity directory", err)
	}
	if node != nil {
		return node, nil
	}

	nodes, err := b.directory.ListFarmNodes(ctx, location)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrProvisioningFailed, "failed to list farm nodes", err)
	}
	if len(nodes) == 0 {
		return nil, brokererror.Newf(brokererror.ErrProvisioningFailed, "no node or farm found for location %q", location)
	}

	node, err = SelectNode(nodes)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"farm": location, "node_id": node.NodeID, "candidates": len(nodes)}).Info("node selected")
	return node, nil
}
