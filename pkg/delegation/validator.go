// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package delegation

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hyperledger-labs/orion-httpauth/pkg/certification"
	"github.com/hyperledger-labs/orion-httpauth/pkg/logger"
	"github.com/hyperledger-labs/orion-httpauth/pkg/principal"
	"github.com/hyperledger-labs/orion-httpauth/pkg/rootkey"
	"github.com/pkg/errors"
)

// DefaultIssuer is the canister that issues delegations unless configured otherwise.
const DefaultIssuer = "rdmx6-jaaaa-aaaaa-aaadq-cai"

// Reason classifies why a delegation chain was rejected.
type Reason int

const (
	ChainLength Reason = iota
	Malformed
	IssuerMismatch
	SessionKeyMismatch
	Expired
	SignatureInvalid
)

func (r Reason) String() string {
	switch r {
	case ChainLength:
		return "ChainLength"
	case Malformed:
		return "Malformed"
	case IssuerMismatch:
		return "IssuerMismatch"
	case SessionKeyMismatch:
		return "SessionKeyMismatch"
	case Expired:
		return "Expired"
	case SignatureInvalid:
		return "SignatureInvalid"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// ValidationErr is returned for every rejected delegation chain.
type ValidationErr struct {
	Reason Reason
	ErrMsg string
	Cause  error
}

func (e *ValidationErr) Error() string {
	if e.Cause != nil {
		return e.ErrMsg + ": " + e.Cause.Error()
	}
	return e.ErrMsg
}

func (e *ValidationErr) Unwrap() error {
	return e.Cause
}

// Config holds the dependencies of a Validator.
type Config struct {
	// Issuer is the canister trusted to issue delegations. Defaults to DefaultIssuer.
	Issuer *principal.Principal
	// RootKeys supplies the root key certificates chain up to.
	RootKeys rootkey.Store
	// Now returns the current time. Defaults to time.Now.
	Now    func() time.Time
	Logger *logger.SugarLogger
}

// Validator checks single-hop delegation chains.
type Validator struct {
	issuer   principal.Principal
	rootKeys rootkey.Store
	now      func() time.Time
	logger   *logger.SugarLogger
}

func NewValidator(c *Config) (*Validator, error) {
	if c == nil || c.RootKeys == nil {
		return nil, errors.New("root key store is not set")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is not set")
	}

	v := &Validator{
		rootKeys: c.RootKeys,
		now:      c.Now,
		logger:   c.Logger,
	}
	if c.Issuer != nil {
		v.issuer = *c.Issuer
	} else {
		v.issuer = principal.MustFromText(DefaultIssuer)
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v, nil
}

// Issuer returns the canister trusted to issue delegations.
func (v *Validator) Issuer() principal.Principal {
	return v.issuer
}

// Validate checks the chain against the session key that signed the request and returns the
// principal the chain's public key identifies.
func (v *Validator) Validate(chain *Chain, sessionKey []byte) (principal.Principal, error) {
	if len(chain.Delegations) != 1 {
		return principal.Principal{}, &ValidationErr{
			Reason: ChainLength,
			ErrMsg: fmt.Sprintf("expected exactly one signed delegation, got %d", len(chain.Delegations)),
		}
	}
	signed := &chain.Delegations[0]

	canisterKey, err := certification.ParseCanisterSigPublicKey(chain.PubKey)
	if err != nil {
		return principal.Principal{}, &ValidationErr{
			Reason: Malformed,
			ErrMsg: "invalid public key in delegation chain",
			Cause:  err,
		}
	}
	if !canisterKey.CanisterID.Equal(v.issuer) {
		return principal.Principal{}, &ValidationErr{
			Reason: IssuerMismatch,
			ErrMsg: fmt.Sprintf("delegation's signing canister %s does not match the issuer %s", canisterKey.CanisterID, v.issuer),
		}
	}

	if !bytes.Equal(signed.Delegation.PubKey, sessionKey) {
		return principal.Principal{}, &ValidationErr{
			Reason: SessionKeyMismatch,
			ErrMsg: "delegation is not issued to the key that signed the request",
		}
	}

	now := v.now().UnixNano()
	if now > 0 && uint64(signed.Delegation.Expiration) < uint64(now) {
		return principal.Principal{}, &ValidationErr{
			Reason: Expired,
			ErrMsg: fmt.Sprintf("delegation expired at %d", signed.Delegation.Expiration),
		}
	}

	msg := SignedMessage(&signed.Delegation)
	if err := certification.VerifyCanisterSig(msg, signed.Sig, canisterKey, v.rootKeys.Get()); err != nil {
		v.logger.Debugf("canister signature of the delegation issued by %s is invalid: %s", canisterKey.CanisterID, err)
		return principal.Principal{}, &ValidationErr{
			Reason: SignatureInvalid,
			ErrMsg: "invalid canister signature",
			Cause:  err,
		}
	}

	return principal.SelfAuthenticating(chain.PubKey), nil
}
