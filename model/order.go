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

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type ResourceKind string

const (
	KindVM           ResourceKind = "vm"
	KindS3           ResourceKind = "s3"
	KindNamespace    ResourceKind = "namespace"
	KindReverseProxy ResourceKind = "reverse_proxy"
	KindExtension    ResourceKind = "extension"
)

// IsDeployment reports whether the kind creates a new reservation.
func (k ResourceKind) IsDeployment() bool {
	switch k {
	case KindVM, KindS3, KindNamespace, KindReverseProxy:
		return true
	}
	return false
}

// Deployment holds the fields of an order that creates a new reservation.
type Deployment struct {
	Size     int      `json:"size"`
	Location string   `json:"location"` // node id or farm name
	Domain   string   `json:"domain,omitempty"`
	Backends []string `json:"backends,omitempty"`
}

// Extension holds the fields of an order that lengthens an existing reservation.
type Extension struct {
	TransactionID string `json:"transaction_id"`
	Duration      int    `json:"duration"` // in lease units
}

// Order is the decrypted and authenticated intent carried by a transaction.
// Exactly one of Deployment and Extension is set, depending on Kind.
type Order struct {
	TxID       string       `json:"tx_id"`
	Amount     int64        `json:"amount"`
	ThreebotID string       `json:"threebot_id"`
	Kind       ResourceKind `json:"type"`
	Email      string       `json:"email"`
	Deployment *Deployment  `json:"deployment,omitempty"`
	Extension  *Extension   `json:"extension,omitempty"`
}

// Size returns the deployment size, or 0 for extension orders.
func (o *Order) Size() int {
	if o.Deployment == nil {
		return 0
	}
	return o.Deployment.Size
}

func (o *Order) Validate() error {
	err := validation.ValidateStruct(o,
		validation.Field(&o.Kind, validation.Required, validation.In(KindVM, KindS3, KindNamespace, KindReverseProxy, KindExtension)),
		validation.Field(&o.Email, validation.Required, is.EmailFormat),
	)
	if err != nil {
		return err
	}

	if o.Kind == KindExtension {
		if o.Extension == nil {
			return errors.New("extension order without extension details")
		}
		return validation.ValidateStruct(o.Extension,
			validation.Field(&o.Extension.TransactionID, validation.Required),
			validation.Field(&o.Extension.Duration, validation.Required, validation.Min(1)),
		)
	}

	if o.Deployment == nil {
		return fmt.Errorf("%s order without deployment details", o.Kind)
	}
	d := o.Deployment
	err = validation.ValidateStruct(d,
		validation.Field(&d.Size, validation.Required, validation.Min(1)),
		validation.Field(&d.Location, validation.When(o.Kind != KindReverseProxy, validation.Required)),
		validation.Field(&d.Domain, validation.When(o.Kind == KindReverseProxy, validation.Required, is.Domain)),
		validation.Field(&d.Backends, validation.When(o.Kind == KindReverseProxy, validation.Required, validation.Each(is.URL))),
	)
	return err
}
