// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package rootkey

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Length is the length of a raw root public key, a compressed BLS12-381 G2 point.
const Length = 96

// derPrefix is the algorithm identifier (BLS12-381 G2 over the IC curve OIDs) and bit string
// header that precede the raw key in its DER envelope.
var derPrefix = []byte{
	0x30, 0x81, 0x82, 0x30, 0x1d, 0x06, 0x0d, 0x2b, 0x06, 0x01, 0x04, 0x01, 0x82, 0xdc, 0x7c,
	0x05, 0x03, 0x01, 0x02, 0x01, 0x06, 0x0c, 0x2b, 0x06, 0x01, 0x04, 0x01, 0x82, 0xdc, 0x7c,
	0x05, 0x03, 0x02, 0x01, 0x03, 0x61, 0x00,
}

// MainnetDER is the DER envelope of the mainnet root public key.
const MainnetDER = "308182301d060d2b0601040182dc7c0503010201060c2b0601040182dc7c05030201036100" +
	"814c0e6ec71fab583b08bd81373c255c3c371b2e84863c98a4f1e08b74235d14fb5d9c0cd546d9685f913a0c0b" +
	"2cc5341583bf4b4392e467db96d65b9bb4cb717112f8472e0d5a4d14505ffd7484b01291091c5f87b98883463f" +
	"98091a0baaae"

// RootKey is a raw root public key. Values are never mutated once extracted.
type RootKey []byte

// FormatErr is returned when a DER envelope does not wrap a root key.
type FormatErr struct {
	ErrMsg string
}

func (e *FormatErr) Error() string {
	return e.ErrMsg
}

// Extract validates the DER envelope and returns the raw key it wraps.
func Extract(der []byte) (RootKey, error) {
	if len(der) != len(derPrefix)+Length {
		return nil, &FormatErr{ErrMsg: fmt.Sprintf("invalid root public key length: expected %d bytes, got %d", len(derPrefix)+Length, len(der))}
	}
	if !bytes.Equal(der[:len(derPrefix)], derPrefix) {
		return nil, &FormatErr{ErrMsg: "invalid root public key: unexpected algorithm identifier"}
	}

	key := make(RootKey, Length)
	copy(key, der[len(derPrefix):])
	return key, nil
}

// Envelope wraps a raw key into its DER envelope. It is the inverse of Extract.
func Envelope(raw []byte) ([]byte, error) {
	if len(raw) != Length {
		return nil, &FormatErr{ErrMsg: fmt.Sprintf("invalid raw root public key length: expected %d bytes, got %d", Length, len(raw))}
	}
	der := make([]byte, 0, len(derPrefix)+Length)
	der = append(der, derPrefix...)
	return append(der, raw...), nil
}

// Store holds the active trust anchor. Readers never observe a partially replaced key.
type Store interface {
	// Get returns the active raw root key.
	Get() RootKey
	// Set validates the DER envelope and replaces the active key.
	Set(der []byte) error
}

type atomicStore struct {
	active atomic.Pointer[RootKey]
}

// NewStore creates a store whose active key is the mainnet root key.
func NewStore() Store {
	der, err := hex.DecodeString(MainnetDER)
	if err != nil {
		panic(err)
	}
	s, err := NewStoreFromDER(der)
	if err != nil {
		panic(err)
	}
	return s
}

// NewStoreFromDER creates a store whose active key is extracted from der.
func NewStoreFromDER(der []byte) (Store, error) {
	s := &atomicStore{}
	if err := s.Set(der); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *atomicStore) Get() RootKey {
	return *s.active.Load()
}

func (s *atomicStore) Set(der []byte) error {
	key, err := Extract(der)
	if err != nil {
		return err
	}
	s.active.Store(&key)
	return nil
}

// Load returns the DER envelope configured either as a hex string or as a path to a
// file holding the raw DER bytes. When both are empty it returns the mainnet envelope.
func Load(derHex, derFile string) ([]byte, error) {
	switch {
	case derHex != "" && derFile != "":
		return nil, errors.New("root key is configured both as hex and as a file, only one is allowed")
	case derHex != "":
		der, err := hex.DecodeString(strings.TrimSpace(derHex))
		if err != nil {
			return nil, errors.Wrap(err, "root key is not hex encoded")
		}
		return der, nil
	case derFile != "":
		der, err := os.ReadFile(derFile)
		if err != nil {
			return nil, errors.Wrapf(err, "error while reading root key file %s", derFile)
		}
		return der, nil
	default:
		return hex.DecodeString(MainnetDER)
	}
}
