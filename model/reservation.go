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

package model

import "time"

// CreatedService is a backend resource owned by a reservation.
type CreatedService struct {
	Backend ResourceKind `json:"backend"`
	Handle  string       `json:"handle"`
}

// Reservation records what was provisioned for a fulfilled order. Its ID is
// the id of the transaction that paid for it.
type Reservation struct {
	ID                string           `json:"reservation_id"`
	Kind              ResourceKind     `json:"type"`
	Size              int              `json:"size"`
	Location          string           `json:"location"`
	NodeID            string           `json:"node_id,omitempty"`
	Email             string           `json:"email"`
	ThreebotID        string           `json:"threebot_id"`
	Amount            int64            `json:"amount"`
	CreationTimestamp time.Time        `json:"creation_timestamp"`
	Lease             time.Duration    `json:"lease"`
	CreatedServices   []CreatedService `json:"created_services"`
	Extensions        []string         `json:"extensions"` // ids of applied extension transactions
	CleanupDone       bool             `json:"cleanup_done"`
	CleanedAt         *time.Time       `json:"cleaned_at,omitempty"`
}

func (r *Reservation) Expiry() time.Time {
	return r.CreationTimestamp.Add(r.Lease)
}

// HasExtension reports whether the extension paid by txID was already applied.
func (r *Reservation) HasExtension(txID string) bool {
	for _, id := range r.Extensions {
		if id == txID {
			return true
		}
	}
	return false
}

// Expired reports whether the lease has run out at now.
func (r *Reservation) Expired(now time.Time) bool {
	return now.Sub(r.CreationTimestamp) > r.Lease
}

// ResourceSpec is the backend description of what to create for a reservation.
// Only the fields of Kind are meaningful.
type ResourceSpec struct {
	Kind   ResourceKind `json:"kind"`
	Name   string       `json:"name"`
	NodeID string       `json:"node_id,omitempty"`

	// vm
	CPU             int    `json:"cpu,omitempty"`
	MemoryMiB       int    `json:"memory,omitempty"`
	DiskGiB         int    `json:"disk,omitempty"`
	DiskType        string `json:"disk_type,omitempty"`
	Image           string `json:"image,omitempty"`
	ZerotierNetwork string `json:"zerotier_network,omitempty"`

	// s3
	StorageGiB   int `json:"storage,omitempty"`
	DataShards   int `json:"data_shards,omitempty"`
	ParityShards int `json:"parity_shards,omitempty"`

	// namespace
	SizeGiB int    `json:"size,omitempty"`
	Mode    string `json:"mode,omitempty"`

	// reverse_proxy
	Domain     string   `json:"domain,omitempty"`
	Backends   []string `json:"backends,omitempty"`
	WebGateway string   `json:"web_gateway,omitempty"`
}

// ConnectionInfo is what the user needs to reach a provisioned resource.
type ConnectionInfo struct {
	Kind ResourceKind `json:"type"`

	ZosAddr  string `json:"zos_addr,omitempty"`
	RobotURL string `json:"robot_url,omitempty"`
	VNCAddr  string `json:"vnc_addr,omitempty"`

	URLs     []string `json:"urls,omitempty"`
	Domain   string   `json:"domain,omitempty"`
	Login    string   `json:"login,omitempty"`
	Password string   `json:"password,omitempty"`

	IP        string `json:"ip,omitempty"`
	Port      int    `json:"port,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// Resources is a CPU / memory / storage triple.
type Resources struct {
	CRU int64 `json:"cru"`
	MRU int64 `json:"mru"`
	SRU int64 `json:"sru"`
}

// NodeCapacity is the capacity directory's view of one node.
type NodeCapacity struct {
	NodeID string    `json:"node_id"`
	Farm   string    `json:"farm"`
	Total  Resources `json:"total_resources"`
	Used   Resources `json:"used_resources"`
}
