// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package delegation

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Blob is a byte string carried in JSON as unpadded URL-safe base64. Decoding also accepts a
// JSON array of byte values.
type Blob []byte

func (b Blob) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

func (b *Blob) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var values []int
		if err := json.Unmarshal(data, &values); err != nil {
			return errors.Wrap(err, "byte array is not a list of integers")
		}
		out := make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return errors.Errorf("byte array element %d is out of range: %d", i, v)
			}
			out[i] = byte(v)
		}
		*b = out
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "blob is neither a string nor a byte array")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return errors.Wrap(err, "blob is not unpadded URL-safe base64")
	}
	*b = decoded
	return nil
}

// Expiration is a point in time in nanoseconds since the Unix epoch, carried in JSON as a
// decimal string.
type Expiration uint64

func (e Expiration) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(e), 10))
}

func (e *Expiration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "expiration is not a string")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "expiration [%s] is not a decimal unsigned integer", s)
	}
	*e = Expiration(v)
	return nil
}

// Delegation authorizes a session key to sign on behalf of the chain's public key until the
// expiration, optionally restricted to a set of target canisters.
type Delegation struct {
	PubKey     Blob       `json:"pubKey"`
	Expiration Expiration `json:"expiration"`
	Targets    []Blob     `json:"targets,omitempty"`
}

// SignedDelegation is a delegation together with the canister signature over it.
type SignedDelegation struct {
	Delegation Delegation `json:"delegation"`
	Sig        Blob       `json:"sig"`
}

// Chain is a delegation chain rooted at a canister signature public key.
type Chain struct {
	PubKey      Blob               `json:"pubKey"`
	Delegations []SignedDelegation `json:"delegations"`
}
