// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package certification

import (
	"bytes"

	"github.com/hyperledger-labs/orion-httpauth/pkg/principal"
	"github.com/hyperledger-labs/orion-httpauth/pkg/rootkey"
	"github.com/pkg/errors"
)

var (
	selfDescribingTag = []byte{0xd9, 0xd9, 0xf7}
	stateRootDomain   = domainSeparator("ic-state-root")
)

// Certificate is a BLS-signed hash tree, optionally signed by a subnet whose key is itself
// certified by the root.
type Certificate struct {
	Tree       HashTree    `cbor:"tree"`
	Signature  []byte      `cbor:"signature"`
	Delegation *Delegation `cbor:"delegation,omitempty"`
}

// Delegation hands the signing authority for a set of canisters from the root to a subnet.
type Delegation struct {
	SubnetID    []byte `cbor:"subnet_id"`
	Certificate []byte `cbor:"certificate"`
}

// ParseCertificate decodes a CBOR encoded certificate. A leading self-describing CBOR tag
// is accepted.
func ParseCertificate(b []byte) (*Certificate, error) {
	c := &Certificate{}
	if err := decMode.Unmarshal(bytes.TrimPrefix(b, selfDescribingTag), c); err != nil {
		return nil, errors.Wrap(err, "error while decoding certificate")
	}
	if len(c.Signature) == 0 {
		return nil, errors.New("certificate carries no signature")
	}
	return c, nil
}

// Verify checks the certificate signature against the root key. When the certificate was
// signed by a subnet, the subnet delegation is verified first and the subnet must be
// authorized to sign for canisterID.
func (c *Certificate) Verify(rootKey rootkey.RootKey, canisterID principal.Principal) error {
	key, err := c.signingKey(rootKey, canisterID)
	if err != nil {
		return err
	}

	root := c.Tree.Digest()
	msg := make([]byte, 0, len(stateRootDomain)+len(root))
	msg = append(msg, stateRootDomain...)
	msg = append(msg, root[:]...)

	return errors.WithMessage(VerifyBLS(c.Signature, key, msg), "invalid certificate signature")
}

// Lookup reads a value certified by this certificate.
func (c *Certificate) Lookup(path ...[]byte) ([]byte, LookupStatus) {
	return c.Tree.Lookup(path...)
}

func (c *Certificate) signingKey(rootKey rootkey.RootKey, canisterID principal.Principal) ([]byte, error) {
	if c.Delegation == nil {
		return rootKey, nil
	}

	inner, err := ParseCertificate(c.Delegation.Certificate)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid subnet delegation")
	}
	if inner.Delegation != nil {
		return nil, errors.New("subnet delegation certificate must not itself be delegated")
	}
	if err := inner.Verify(rootKey, canisterID); err != nil {
		return nil, errors.WithMessage(err, "invalid subnet delegation")
	}

	subnet := c.Delegation.SubnetID
	ranges, status := inner.Lookup([]byte("subnet"), subnet, []byte("canister_ranges"))
	if status != Found {
		return nil, errors.Errorf("canister ranges of subnet %x are %s in the delegation certificate", subnet, status)
	}
	if err := checkCanisterRanges(ranges, canisterID); err != nil {
		return nil, err
	}

	der, status := inner.Lookup([]byte("subnet"), subnet, []byte("public_key"))
	if status != Found {
		return nil, errors.Errorf("public key of subnet %x is %s in the delegation certificate", subnet, status)
	}
	key, err := rootkey.Extract(der)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid public key of subnet %x", subnet)
	}
	return key, nil
}

func checkCanisterRanges(encoded []byte, canisterID principal.Principal) error {
	var ranges [][2][]byte
	if err := decMode.Unmarshal(encoded, &ranges); err != nil {
		return errors.Wrap(err, "error while decoding canister ranges")
	}

	id := canisterID.Bytes()
	for _, r := range ranges {
		if bytes.Compare(r[0], id) <= 0 && bytes.Compare(id, r[1]) <= 0 {
			return nil
		}
	}
	return errors.Errorf("canister %s is not in the ranges the subnet is authorized for", canisterID)
}
