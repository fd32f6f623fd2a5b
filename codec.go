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
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"filippo.io/edwards25519"
	"github.com/blnkfinance/gridbroker/internal/brokererror"
	"github.com/blnkfinance/gridbroker/model"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/nacl/box"
)

const (
	nonceSize      = 24
	threebotKeyTTL = 10 * time.Minute
)

var legacyKinds = map[byte]model.ResourceKind{
	1: model.KindVM,
	2: model.KindS3,
	3: model.KindNamespace,
	4: model.KindReverseProxy,
}

// orderPayload is the decrypted order as it travels on the wire.
type orderPayload struct {
	Type          string   `json:"type" msgpack:"type"`
	Size          int      `json:"size,omitempty" msgpack:"size,omitempty"`
	Location      string   `json:"location,omitempty" msgpack:"location,omitempty"`
	Email         string   `json:"email" msgpack:"email"`
	Domain        string   `json:"domain,omitempty" msgpack:"domain,omitempty"`
	Backends      []string `json:"backends,omitempty" msgpack:"backends,omitempty"`
	TransactionID string   `json:"transaction_id,omitempty" msgpack:"transaction_id,omitempty"`
	Duration      int      `json:"duration,omitempty" msgpack:"duration,omitempty"`
}

func (p orderPayload) toOrder() *model.Order {
	order := &model.Order{
		Kind:  model.ResourceKind(strings.ToLower(strings.TrimSpace(p.Type))),
		Email: strings.TrimSpace(p.Email),
	}
	if order.Kind == model.KindExtension {
		order.Extension = &model.Extension{TransactionID: p.TransactionID, Duration: p.Duration}
		return order
	}
	order.Deployment = &model.Deployment{
		Size:     p.Size,
		Location: p.Location,
		Domain:   p.Domain,
		Backends: p.Backends,
	}
	return order
}

func payloadFromOrder(order *model.Order) orderPayload {
	p := orderPayload{Type: string(order.Kind), Email: order.Email}
	if order.Deployment != nil {
		p.Size = order.Deployment.Size
		p.Location = order.Deployment.Location
		p.Domain = order.Deployment.Domain
		p.Backends = order.Deployment.Backends
	}
	if order.Extension != nil {
		p.TransactionID = order.Extension.TransactionID
		p.Duration = order.Extension.Duration
	}
	return p
}

// ResolveOrder turns the metadata of a transaction into a validated order.
// It returns nil without error when the transaction carries no order: no data
// key, no notary record, or a recipient address the wallet does not own.
// Every other failure is a BrokerError.
func (b *Broker) ResolveOrder(ctx context.Context, tx model.Transaction) (*model.Order, error) {
	ctx, span := tracer.Start(ctx, "ResolveOrder")
	defer span.End()

	log := logrus.WithField("tx_id", tx.ID)

	key := strings.TrimSpace(string(tx.Data))
	if key == "" {
		log.Info("no data key found in transaction")
		return nil, nil
	}

	notaryCtx, cancel := context.WithTimeout(ctx, b.config.Notary.TimeoutDuration())
	blob, err := b.notary.Get(notaryCtx, key)
	cancel()
	if err != nil {
		if brokererror.Is(err, brokererror.ErrNotaryUnreachable) {
			return nil, err
		}
		return nil, brokererror.New(brokererror.ErrNotaryUnreachable, "failed to fetch notary record", err)
	}
	if blob == nil {
		log.Info("no notary record found for transaction")
		return nil, nil
	}

	content, err := base64.StdEncoding.DecodeString(blob.Content)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrBadEncoding, "notary content is not base64", err)
	}
	signature, err := base64.StdEncoding.DecodeString(blob.ContentSignature)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrBadSignature, "notary signature is not base64", err)
	}

	authorKey, err := b.threebotKey(ctx, blob.ThreebotID)
	if err != nil {
		return nil, err
	}
	if len(signature) != ed25519.SignatureSize || !ed25519.Verify(authorKey, content, signature) {
		return nil, brokererror.Newf(brokererror.ErrBadSignature, "content signature of threebot %s does not verify", blob.ThreebotID)
	}

	recipientKey, err := b.wallet.PrivateKey(ctx, tx.ToAddress)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrInternal, "failed to get recipient key", err)
	}
	if recipientKey == nil {
		log.WithField("address", tx.ToAddress).Info("recipient address is not owned by the wallet")
		return nil, nil
	}

	plaintext, err := OpenOrder(content, authorKey, recipientKey)
	if err != nil {
		return nil, err
	}

	order, err := DecodeOrder(plaintext)
	if err != nil {
		return nil, err
	}
	order.TxID = tx.ID
	order.Amount = tx.Amount
	order.ThreebotID = blob.ThreebotID

	// unknown kinds are rejected later by ValidateOrder
	if order.Kind == model.KindExtension || order.Kind.IsDeployment() {
		if err := order.Validate(); err != nil {
			return nil, brokererror.New(brokererror.ErrBadEncoding, "invalid order", err)
		}
	}

	log.WithFields(logrus.Fields{"kind": order.Kind, "threebot_id": order.ThreebotID}).Info("order resolved")
	return order, nil
}

func (b *Broker) threebotRecord(ctx context.Context, id string) (*model.ThreebotRecord, error) {
	if b.keys == nil {
		return b.wallet.ThreebotRecord(ctx, id)
	}
	record := &model.ThreebotRecord{}
	err := b.keys.Once(ctx, "gridbroker:threebot:"+id, record, threebotKeyTTL, func() (interface{}, error) {
		return b.wallet.ThreebotRecord(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (b *Broker) threebotKey(ctx context.Context, id string) (ed25519.PublicKey, error) {
	record, err := b.threebotRecord(ctx, id)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrBadSignature, fmt.Sprintf("failed to get key of threebot %s", id), err)
	}
	return ParseThreebotKey(record.PublicKey)
}

// ParseThreebotKey parses an "ed25519:<hex>" identity key.
func ParseThreebotKey(value string) (ed25519.PublicKey, error) {
	algorithm, encoded, found := strings.Cut(value, ":")
	if !found || algorithm != "ed25519" {
		return nil, brokererror.Newf(brokererror.ErrBadSignature, "unsupported threebot key %q", value)
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, brokererror.New(brokererror.ErrBadSignature, "malformed threebot key", err)
	}
	return ed25519.PublicKey(raw), nil
}

// curve25519Private derives the X25519 private key of an ed25519 key.
func curve25519Private(key ed25519.PrivateKey) *[32]byte {
	h := sha512.Sum512(key.Seed())
	var out [32]byte
	copy(out[:], h[:32])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return &out
}

// curve25519Public converts an ed25519 public key to its Montgomery form.
func curve25519Public(key ed25519.PublicKey) (*[32]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(key)
	if err != nil {
		return nil, err
	}
	var out [32]byte
	copy(out[:], p.BytesMontgomery())
	return &out, nil
}

// OpenOrder decrypts a nonce || box payload sent by sender to recipient.
func OpenOrder(payload []byte, sender ed25519.PublicKey, recipient ed25519.PrivateKey) ([]byte, error) {
	if len(payload) < nonceSize+box.Overhead {
		return nil, brokererror.Newf(brokererror.ErrDecryptFailed, "payload of %d bytes is too short", len(payload))
	}
	if len(recipient) != ed25519.PrivateKeySize {
		return nil, brokererror.Newf(brokererror.ErrDecryptFailed, "recipient key has length %d", len(recipient))
	}
	peer, err := curve25519Public(sender)
	if err != nil {
		return nil, brokererror.New(brokererror.ErrDecryptFailed, "invalid sender key", err)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], payload[:nonceSize])
	plaintext, ok := box.Open(nil, payload[nonceSize:], &nonce, peer, curve25519Private(recipient))
	if !ok {
		return nil, brokererror.Newf(brokererror.ErrDecryptFailed, "failed to open order box")
	}
	return plaintext, nil
}

// SealOrder encrypts plaintext from sender to recipient as nonce || box.
func SealOrder(sender ed25519.PrivateKey, recipient ed25519.PublicKey, plaintext []byte) ([]byte, error) {
	peer, err := curve25519Public(recipient)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return box.Seal(nonce[:], plaintext, &nonce, peer, curve25519Private(sender)), nil
}

// DecodeOrder decodes a plaintext order. JSON objects and msgpack maps are
// recognised by their first byte; anything else is read as the legacy
// binary layout [type][size][len][location][len][email].
func DecodeOrder(plaintext []byte) (*model.Order, error) {
	if len(plaintext) == 0 {
		return nil, brokererror.Newf(brokererror.ErrBadEncoding, "empty order")
	}

	var p orderPayload
	first := plaintext[0]
	switch {
	case bytes.HasPrefix(bytes.TrimLeft(plaintext, " \t\r\n"), []byte("{")):
		if err := json.Unmarshal(plaintext, &p); err != nil {
			return nil, brokererror.New(brokererror.ErrBadEncoding, "invalid json order", err)
		}
	case first >= 0x80 && first <= 0x8f, first == 0xde, first == 0xdf:
		if err := msgpack.Unmarshal(plaintext, &p); err != nil {
			return nil, brokererror.New(brokererror.ErrBadEncoding, "invalid msgpack order", err)
		}
	default:
		legacy, err := decodeLegacyOrder(plaintext)
		if err != nil {
			return nil, err
		}
		p = legacy
	}

	if p.Type == "" {
		return nil, brokererror.Newf(brokererror.ErrBadEncoding, "order has no type")
	}
	return p.toOrder(), nil
}

func decodeLegacyOrder(data []byte) (orderPayload, error) {
	r := bytes.NewReader(data)
	readByte := func(field string) (byte, error) {
		v, err := r.ReadByte()
		if err != nil {
			return 0, brokererror.Newf(brokererror.ErrBadEncoding, "legacy order truncated at %s", field)
		}
		return v, nil
	}
	readString := func(field string) (string, error) {
		n, err := readByte(field + " length")
		if err != nil {
			return "", err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", brokererror.Newf(brokererror.ErrBadEncoding, "legacy order truncated at %s", field)
		}
		return string(buf), nil
	}

	code, err := readByte("type")
	if err != nil {
		return orderPayload{}, err
	}
	kind, ok := legacyKinds[code]
	if !ok {
		return orderPayload{}, brokererror.Newf(brokererror.ErrBadEncoding, "unknown legacy type code %d", code)
	}
	size, err := readByte("size")
	if err != nil {
		return orderPayload{}, err
	}
	location, err := readString("location")
	if err != nil {
		return orderPayload{}, err
	}
	email, err := readString("email")
	if err != nil {
		return orderPayload{}, err
	}
	if r.Len() != 0 {
		return orderPayload{}, brokererror.Newf(brokererror.ErrBadEncoding, "legacy order has %d trailing bytes", r.Len())
	}

	return orderPayload{Type: string(kind), Size: int(size), Location: location, Email: email}, nil
}

// EncodeOrder is the inverse of DecodeOrder for the JSON and msgpack formats.
func EncodeOrder(order *model.Order, format string) ([]byte, error) {
	p := payloadFromOrder(order)
	switch format {
	case "json":
		return json.Marshal(p)
	case "msgpack":
		return msgpack.Marshal(p)
	case "legacy":
		return encodeLegacyOrder(p)
	}
	return nil, fmt.Errorf("unknown order format %q", format)
}

func encodeLegacyOrder(p orderPayload) ([]byte, error) {
	var code byte
	for c, kind := range legacyKinds {
		if string(kind) == p.Type {
			code = c
		}
	}
	if code == 0 {
		return nil, fmt.Errorf("kind %q has no legacy encoding", p.Type)
	}
	if p.Size > 255 || len(p.Location) > 255 || len(p.Email) > 255 {
		return nil, fmt.Errorf("order does not fit the legacy encoding")
	}

	out := []byte{code, byte(p.Size), byte(len(p.Location))}
	out = append(out, p.Location...)
	out = append(out, byte(len(p.Email)))
	out = append(out, p.Email...)
	return out, nil
}
