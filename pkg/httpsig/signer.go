// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package httpsig

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/hyperledger-labs/orion-httpauth/pkg/crypto"
	"github.com/hyperledger-labs/orion-httpauth/pkg/delegation"
	"github.com/pkg/errors"
)

// DefaultComponents are covered when the caller does not choose.
var DefaultComponents = []string{ComponentMethod, ComponentPath, ComponentQuery}

// RequestSigner produces the signature headers for outgoing requests.
type RequestSigner struct {
	signer crypto.Signer
	label  string
	pubKey []byte
	chain  *delegation.Chain
}

// SignerOption customizes a RequestSigner.
type SignerOption func(*RequestSigner)

// WithLabel sets the signature label, sig1 by default.
func WithLabel(label string) SignerOption {
	return func(s *RequestSigner) {
		s.label = label
	}
}

// WithDelegationChain attaches a delegation chain issued to the signing key.
func WithDelegationChain(chain *delegation.Chain) SignerOption {
	return func(s *RequestSigner) {
		s.chain = chain
	}
}

// WithPublicKey overrides the encoding of the public key carried in the signature-key header,
// which is the DER SubjectPublicKeyInfo by default.
func WithPublicKey(pubKey []byte) SignerOption {
	return func(s *RequestSigner) {
		s.pubKey = pubKey
	}
}

func NewRequestSigner(signer crypto.Signer, opts ...SignerOption) (*RequestSigner, error) {
	s := &RequestSigner{signer: signer, label: "sig1"}
	for _, opt := range opts {
		opt(s)
	}

	if s.pubKey == nil {
		der, err := signer.PublicKeyDER()
		if err != nil {
			return nil, errors.Wrap(err, "error while encoding the signing key")
		}
		s.pubKey = der
	}
	probe := &scanner{in: s.label}
	if probe.key() != s.label || s.label == "" {
		return nil, errors.Errorf("invalid signature label [%s]", s.label)
	}
	return s, nil
}

// SessionKey returns the public key bytes carried in the signature-key header.
func (s *RequestSigner) SessionKey() []byte {
	return append([]byte(nil), s.pubKey...)
}

// Sign computes the signature, signature-input and signature-key headers covering the given
// components of r, in order.
func (s *RequestSigner) Sign(r Request, components []string) ([]HeaderField, error) {
	quoted := make([]string, len(components))
	for i, c := range components {
		quoted[i] = `"` + c + `"`
	}
	input := s.label + "=(" + strings.Join(quoted, " ") + ")"

	base, err := SignatureBase(r, components, input)
	if err != nil {
		return nil, err
	}
	sig, err := s.signer.Sign(base)
	if err != nil {
		return nil, errors.Wrap(err, "error while signing request")
	}

	doc, err := json.Marshal(&KeyHeader{PubKey: s.pubKey, DelegationChain: s.chain})
	if err != nil {
		return nil, errors.Wrap(err, "error while encoding signature key")
	}

	return []HeaderField{
		{Name: SignatureHeader, Value: s.byteSequence(sig)},
		{Name: SignatureInputHeader, Value: input},
		{Name: SignatureKeyHeader, Value: s.byteSequence(doc)},
	}, nil
}

func (s *RequestSigner) byteSequence(b []byte) string {
	return s.label + "=:" + base64.RawURLEncoding.EncodeToString(b) + ":"
}
