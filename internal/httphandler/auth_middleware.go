// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package httphandler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/hyperledger-labs/orion-httpauth/internal/httputils"
	"github.com/hyperledger-labs/orion-httpauth/internal/utils"
	"github.com/hyperledger-labs/orion-httpauth/pkg/constants"
	"github.com/hyperledger-labs/orion-httpauth/pkg/httpsig"
	"github.com/hyperledger-labs/orion-httpauth/pkg/logger"
	"github.com/pkg/errors"
)

// RequestVerifier authenticates a request.
type RequestVerifier interface {
	Verify(r httpsig.Request) (*httpsig.Identity, error)
}

type identityKey struct{}

// IdentityFromContext returns the identity the auth middleware attached to the request.
func IdentityFromContext(ctx context.Context) (*httpsig.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*httpsig.Identity)
	return id, ok
}

// WithIdentity returns a copy of ctx carrying the identity.
func WithIdentity(ctx context.Context, id *httpsig.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// authMiddleware rejects requests whose signature does not verify and passes the rest on
// with the caller's identity in the request context
type authMiddleware struct {
	verifier RequestVerifier
	next     http.Handler
	metrics  *utils.AuthMetrics
	logger   *logger.SugarLogger
}

// NewAuthMiddleware wraps next so that it only sees authenticated requests. Preflight OPTIONS
// requests are passed through unauthenticated.
func NewAuthMiddleware(verifier RequestVerifier, next http.Handler, metrics *utils.AuthMetrics, logger *logger.SugarLogger) http.Handler {
	if metrics == nil {
		metrics = utils.NewAuthMetrics(nil)
	}
	return &authMiddleware{
		verifier: verifier,
		next:     next,
		metrics:  metrics,
		logger:   logger,
	}
}

func (a *authMiddleware) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	if request.Method == http.MethodOptions {
		a.next.ServeHTTP(response, request)
		return
	}

	requestID := uuid.New().String()
	response.Header().Set(constants.RequestIDHeader, requestID)

	timer := a.metrics.NewLatencyTimer("verify")
	id, err := a.verifier.Verify(httpsig.NewRequest(request))
	timer.Observe()

	if err != nil {
		result := "Internal"
		var authErr *httpsig.Error
		if errors.As(err, &authErr) {
			result = authErr.Kind.String()
		}
		a.metrics.IncrementResult(result, false)
		a.logger.Infof("request [%s] %s %s rejected: %s", requestID, request.Method, request.URL.Path, err)

		httputils.SendHTTPError(response, http.StatusUnauthorized, err.Error())
		return
	}

	a.metrics.IncrementResult(utils.AuthResultOK, id.Delegated)
	a.logger.Debugf("request [%s] %s %s authenticated as %s", requestID, request.Method, request.URL.Path, id.Principal)
	a.next.ServeHTTP(response, request.WithContext(WithIdentity(request.Context(), id)))
}
