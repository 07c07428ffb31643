// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package delegation

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// SignatureDomain separates delegation signatures from every other kind of signed message.
const SignatureDomain = "ic-request-auth-delegation"

// Hash computes the representation independent hash of the delegation: a map with the keys
// pubkey, expiration and, when present, targets.
func Hash(d *Delegation) [32]byte {
	type entry struct {
		key   string
		value [32]byte
	}

	entries := []entry{
		{key: "pubkey", value: sha256.Sum256(d.PubKey)},
		{key: "expiration", value: sha256.Sum256(leb128(uint64(d.Expiration)))},
	}
	if d.Targets != nil {
		var concat []byte
		for _, t := range d.Targets {
			h := sha256.Sum256(t)
			concat = append(concat, h[:]...)
		}
		entries = append(entries, entry{key: "targets", value: sha256.Sum256(concat)})
	}

	hashed := make([][]byte, 0, len(entries))
	for _, e := range entries {
		k := sha256.Sum256([]byte(e.key))
		pair := make([]byte, 0, 2*sha256.Size)
		pair = append(pair, k[:]...)
		pair = append(pair, e.value[:]...)
		hashed = append(hashed, pair)
	}
	sort.Slice(hashed, func(i, j int) bool {
		return bytes.Compare(hashed[i], hashed[j]) < 0
	})

	return sha256.Sum256(bytes.Join(hashed, nil))
}

// SignedMessage returns the bytes the issuing canister signs for the delegation.
func SignedMessage(d *Delegation) []byte {
	h := Hash(d)
	msg := make([]byte, 0, 1+len(SignatureDomain)+len(h))
	msg = append(msg, byte(len(SignatureDomain)))
	msg = append(msg, SignatureDomain...)
	return append(msg, h[:]...)
}

func leb128(v uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, v)
	return buf[:n]
}
