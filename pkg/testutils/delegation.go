// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package testutils

import (
	"net/http"
	"testing"
	"time"

	"github.com/hyperledger-labs/orion-httpauth/pkg/crypto"
	"github.com/hyperledger-labs/orion-httpauth/pkg/delegation"
	"github.com/hyperledger-labs/orion-httpauth/pkg/httpsig"
	"github.com/hyperledger-labs/orion-httpauth/pkg/logger"
	"github.com/hyperledger-labs/orion-httpauth/pkg/principal"
	"github.com/hyperledger-labs/orion-httpauth/pkg/rootkey"
	"github.com/stretchr/testify/require"
)

// NewLogger creates a console logger at debug level for tests.
func NewLogger(t *testing.T, name string) *logger.SugarLogger {
	l, err := logger.New(&logger.Config{
		Level:         "debug",
		OutputPath:    []string{"stdout"},
		ErrOutputPath: []string{"stderr"},
		Encoding:      "console",
		Name:          name,
	})
	require.NoError(t, err)
	return l
}

// Issuer is a test trust setup: a root key and the default issuing canister signing under
// a certificate chained to it.
type Issuer struct {
	Root   *BLSKey
	Signer *CanisterSigner
}

// NewIssuer creates an issuer whose canister is the default delegation issuer. With subnet
// set, the canister's certificates are signed by a subnet key delegated from the root.
func NewIssuer(t *testing.T, seed []byte, subnet bool) *Issuer {
	root, err := GenerateBLSKey()
	require.NoError(t, err)

	s := &CanisterSigner{
		Root:       root,
		CanisterID: principal.MustFromText(delegation.DefaultIssuer),
		Seed:       seed,
	}
	if subnet {
		s.Subnet, err = GenerateBLSKey()
		require.NoError(t, err)
		s.SubnetID = []byte("test-subnet")
	}
	return &Issuer{Root: root, Signer: s}
}

// RootKeys returns a store holding the issuer's root key.
func (i *Issuer) RootKeys(t *testing.T) rootkey.Store {
	s, err := rootkey.NewStoreFromDER(i.Root.DER())
	require.NoError(t, err)
	return s
}

// Delegate issues a signed single-hop delegation chain to the session key.
func (i *Issuer) Delegate(t *testing.T, sessionKey []byte, expiration time.Time, targets ...delegation.Blob) *delegation.Chain {
	d := delegation.Delegation{
		PubKey:     sessionKey,
		Expiration: delegation.Expiration(expiration.UnixNano()),
		Targets:    targets,
	}
	sig, err := i.Signer.Sign(delegation.SignedMessage(&d))
	require.NoError(t, err)

	return &delegation.Chain{
		PubKey:      i.Signer.PublicKeyDER(),
		Delegations: []delegation.SignedDelegation{{Delegation: d, Sig: sig}},
	}
}

// Principal returns the identity delegated chains of this issuer resolve to.
func (i *Issuer) Principal() principal.Principal {
	return principal.SelfAuthenticating(i.Signer.PublicKeyDER())
}

// NewRequestSigner creates a signer with a fresh session key.
func NewRequestSigner(t *testing.T, opts ...httpsig.SignerOption) (*httpsig.RequestSigner, crypto.Signer) {
	key, _, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := crypto.NewSignerFromKey(key)
	require.NoError(t, err)

	rs, err := httpsig.NewRequestSigner(s, opts...)
	require.NoError(t, err)
	return rs, s
}

// SignHTTPRequest adds the signature headers covering components to req.
func SignHTTPRequest(t *testing.T, req *http.Request, s *httpsig.RequestSigner, components ...string) {
	if len(components) == 0 {
		components = httpsig.DefaultComponents
	}
	headers, err := s.Sign(httpsig.NewRequest(req), components)
	require.NoError(t, err)
	for _, h := range headers {
		req.Header.Set(h.Name, h.Value)
	}
}

// NewDelegatedSigner creates a request signer with a fresh session key carrying a delegation
// chain from the issuer.
func (i *Issuer) NewDelegatedSigner(t *testing.T, expiration time.Time) *httpsig.RequestSigner {
	direct, s := NewRequestSigner(t)
	chain := i.Delegate(t, direct.SessionKey(), expiration)

	rs, err := httpsig.NewRequestSigner(s, httpsig.WithDelegationChain(chain))
	require.NoError(t, err)
	return rs
}

// SignerPrincipal returns the identity direct signatures of s resolve to.
func SignerPrincipal(t *testing.T, s crypto.Signer) principal.Principal {
	der, err := s.PublicKeyDER()
	require.NoError(t, err)
	return principal.SelfAuthenticating(der)
}
