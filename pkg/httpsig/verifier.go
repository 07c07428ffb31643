// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package httpsig

import (
	"time"

	"github.com/hyperledger-labs/orion-httpauth/pkg/delegation"
	"github.com/hyperledger-labs/orion-httpauth/pkg/logger"
	"github.com/hyperledger-labs/orion-httpauth/pkg/principal"
	"github.com/hyperledger-labs/orion-httpauth/pkg/rootkey"
	"github.com/pkg/errors"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	Principal principal.Principal
	// Delegated is true when the principal was derived from a delegation chain rather than
	// from the key that signed the request.
	Delegated bool
}

// Config holds the dependencies of a Verifier.
type Config struct {
	RootKeys rootkey.Store
	// Issuer overrides the canister trusted to issue delegations.
	Issuer *principal.Principal
	// Now overrides the clock used to check delegation expiration.
	Now    func() time.Time
	Logger *logger.SugarLogger
}

// Verifier authenticates requests carrying HTTP message signatures.
type Verifier struct {
	rootKeys    rootkey.Store
	delegations *delegation.Validator
	logger      *logger.SugarLogger
}

func NewVerifier(c *Config) (*Verifier, error) {
	if c == nil {
		return nil, errors.New("verifier config is not set")
	}
	v, err := delegation.NewValidator(&delegation.Config{
		Issuer:   c.Issuer,
		RootKeys: c.RootKeys,
		Now:      c.Now,
		Logger:   c.Logger,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "error while creating delegation validator")
	}

	return &Verifier{
		rootKeys:    c.RootKeys,
		delegations: v,
		logger:      c.Logger,
	}, nil
}

// Verify authenticates the request. Every failure is an *Error.
func (v *Verifier) Verify(r Request) (*Identity, error) {
	sigValue, ok := LookupHeader(r, SignatureHeader)
	if !ok {
		return nil, newError(MissingSignatureHeader, "")
	}
	inputValue, ok := LookupHeader(r, SignatureInputHeader)
	if !ok {
		return nil, newError(MissingSignatureInputHeader, "")
	}
	keyValue, ok := LookupHeader(r, SignatureKeyHeader)
	if !ok {
		return nil, newError(MissingSignatureKeyHeader, "")
	}

	sig, err := ParseSignature(sigValue)
	if err != nil {
		return nil, err
	}
	input, err := ParseSignatureInput(inputValue)
	if err != nil {
		return nil, err
	}
	key, err := ParseSignatureKey(keyValue)
	if err != nil {
		return nil, err
	}

	payload, err := SignatureBase(r, input.Components, input.Raw)
	if err != nil {
		return nil, err
	}

	pub, err := ParsePublicKey(key.PubKey)
	if err != nil {
		return nil, err
	}
	if err := VerifyECDSA(payload, sig.Bytes, pub); err != nil {
		return nil, err
	}

	if key.DelegationChain != nil {
		p, err := v.delegations.Validate(key.DelegationChain, key.PubKey)
		if err != nil {
			return nil, fromValidationErr(err)
		}
		v.logger.Debugf("request %s %s is signed by a session key delegated to %s", r.Method(), r.Path(), p)
		return &Identity{Principal: p, Delegated: true}, nil
	}

	der, err := PublicKeyDER(pub)
	if err != nil {
		return nil, &Error{Kind: MalformedPublicKey, Cause: err}
	}
	p := principal.SelfAuthenticating(der)
	v.logger.Debugf("request %s %s is signed by %s", r.Method(), r.Path(), p)
	return &Identity{Principal: p}, nil
}

// SetRootKey replaces the root key delegations are verified against.
func (v *Verifier) SetRootKey(der []byte) error {
	if err := v.rootKeys.Set(der); err != nil {
		var formatErr *rootkey.FormatErr
		if errors.As(err, &formatErr) {
			return &Error{Kind: RootKeyFormat, Detail: formatErr.Error()}
		}
		return err
	}
	v.logger.Info("root key replaced")
	return nil
}

var reasonKinds = map[delegation.Reason]Kind{
	delegation.ChainLength:        DelegationChainLength,
	delegation.Malformed:          MalformedDelegation,
	delegation.IssuerMismatch:     DelegationIssuerMismatch,
	delegation.SessionKeyMismatch: DelegationSessionKeyMismatch,
	delegation.Expired:            DelegationExpired,
	delegation.SignatureInvalid:   DelegationSignatureInvalid,
}

func fromValidationErr(err error) error {
	var vErr *delegation.ValidationErr
	if !errors.As(err, &vErr) {
		return &Error{Kind: DelegationSignatureInvalid, Cause: err}
	}
	return &Error{Kind: reasonKinds[vErr.Reason], Detail: vErr.ErrMsg, Cause: vErr.Cause}
}
