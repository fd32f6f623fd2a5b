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
	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
)

// TFTPrecision is the number of minor units in one token.
const TFTPrecision = 1000000000

// priceTable holds the price of one lease of each kind and size, in minor units.
var priceTable = map[model.ResourceKind]map[int]int64{
	model.KindVM: {
		1: 1 * TFTPrecision,
		2: 4 * TFTPrecision,
	},
	model.KindS3: {
		1: 10 * TFTPrecision,
		2: 40 * TFTPrecision,
	},
	model.KindNamespace: {
		1: TFTPrecision / 2,
		2: 2 * TFTPrecision,
	},
	model.KindReverseProxy: {
		1: TFTPrecision / 5,
	},
}

// RequiredAmount returns the price of a reservation of kind and size.
func RequiredAmount(kind model.ResourceKind, size int) (int64, error) {
	sizes, ok := priceTable[kind]
	if !ok {
		return 0, brokererror.Newf(brokererror.ErrUnknownKind, "unsupported reservation type %s", kind)
	}
	price, ok := sizes[size]
	if !ok {
		return 0, brokererror.Newf(brokererror.ErrUnknownKind, "unsupported reservation type %s size %d", kind, size)
	}
	return price, nil
}

// RequiredExtensionAmount is the price of lengthening a reservation by duration leases.
func RequiredExtensionAmount(kind model.ResourceKind, size, duration int) (int64, error) {
	price, err := RequiredAmount(kind, size)
	if err != nil {
		return 0, err
	}
	if duration < 1 {
		return 0, brokererror.Newf(brokererror.ErrBadEncoding, "extension duration must be at least 1, got %d", duration)
	}
	return price * int64(duration), nil
}

// ValidateOrder checks that a deployment order pays at least the price of
// what it asks for. Extension orders are priced when the reservation they
// extend is known.
func ValidateOrder(order *model.Order) error {
	if order.Kind == model.KindExtension {
		return nil
	}
	price, err := RequiredAmount(order.Kind, order.Size())
	if err != nil {
		return err
	}
	if order.Amount < price {
		return brokererror.Newf(brokererror.ErrPriceTooLow, "transaction amount is too low to deploy the workload. given: %d needed: %d", order.Amount, price)
	}
	return nil
}
