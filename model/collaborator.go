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

// NotaryBlob is the signed record stored at the notary under a transaction's data key.
type NotaryBlob struct {
	Content          string `json:"content"`           // base64 nonce || box
	ContentSignature string `json:"content_signature"` // base64 ed25519 signature over the decoded content
	ThreebotID       string `json:"threebot_id"`
}

// ThreebotRecord is the identity registry entry of an order's author.
type ThreebotRecord struct {
	ID         string    `json:"id"`
	PublicKey  string    `json:"public_key"` // algorithm:hex
	Expiration time.Time `json:"expiration"`
}

// Email is a rendered message ready for delivery.
type Email struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Category string `json:"category,omitempty"`
	TxID     string `json:"tx_id,omitempty"`
}
