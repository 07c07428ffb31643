// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/hyperledger-labs/orion-httpauth/config"
	"github.com/hyperledger-labs/orion-httpauth/internal/httphandler"
	"github.com/hyperledger-labs/orion-httpauth/internal/todo"
	"github.com/hyperledger-labs/orion-httpauth/internal/utils"
	"github.com/hyperledger-labs/orion-httpauth/pkg/constants"
	"github.com/hyperledger-labs/orion-httpauth/pkg/httpsig"
	"github.com/hyperledger-labs/orion-httpauth/pkg/logger"
	"github.com/hyperledger-labs/orion-httpauth/pkg/principal"
	"github.com/hyperledger-labs/orion-httpauth/pkg/rootkey"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xiang90/probing"
	"go.uber.org/multierr"
)

// AuthHTTPServer serves the todo API behind signature authentication
type AuthHTTPServer struct {
	verifier *httpsig.Verifier
	store    todo.Store
	handler  http.Handler
	listen   net.Listener
	server   *http.Server
	conf     *config.Configurations
	logger   *logger.SugarLogger
	stopOnce sync.Once
}

// New creates the server from its configuration and binds the listening address. Nothing is
// served until Start is called.
func New(conf *config.Configurations) (*AuthHTTPServer, error) {
	if conf == nil {
		return nil, errors.New("configuration is not set")
	}

	lg, err := newLogger(&conf.Logging)
	if err != nil {
		return nil, errors.WithMessage(err, "error while creating the logger")
	}

	verifier, err := newVerifier(&conf.Auth, lg)
	if err != nil {
		return nil, err
	}

	store, err := todo.New(&conf.Storage, lg)
	if err != nil {
		return nil, errors.WithMessage(err, "error while creating the todo store")
	}

	var reg *prometheus.Registry
	if conf.Server.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	router := mux.NewRouter()
	router.Handle(constants.GetHealth, probing.NewHandler())
	if reg != nil {
		router.Handle(constants.GetMetrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := httphandler.NewAuthMiddleware(
		verifier,
		httphandler.NewTodoRequestHandler(store, utils.NewTodoMetrics(registerer(reg)), lg),
		utils.NewAuthMetrics(registerer(reg)),
		lg,
	)
	router.PathPrefix(constants.APIPrefix + "/").Handler(api)

	if dir := conf.Server.StaticDir; dir != "" {
		router.PathPrefix(constants.StaticFiles).Handler(http.FileServer(http.Dir(dir)))
	}

	netConf := conf.Server.Network
	addr := fmt.Sprintf("%s:%d", netConf.Address, netConf.Port)
	listen, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, multierr.Append(
			errors.Wrap(err, "error while creating a tcp listener"),
			store.Close(),
		)
	}

	return &AuthHTTPServer{
		verifier: verifier,
		store:    store,
		handler:  router,
		listen:   listen,
		server:   &http.Server{Handler: router},
		conf:     conf,
		logger:   lg,
	}, nil
}

// registerer avoids handing a typed nil registry to the metrics constructors.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func newLogger(c *config.LoggingConf) (*logger.SugarLogger, error) {
	lc := &logger.Config{
		Level:         c.Level,
		OutputPath:    c.OutputPath,
		ErrOutputPath: c.ErrOutputPath,
		Encoding:      c.Encoding,
		Name:          "authd",
	}
	if c.Rotation.Enabled {
		lc.Rotation = &logger.RotationConfig{
			Filename:   c.Rotation.Filename,
			MaxSizeMB:  c.Rotation.MaxSizeMB,
			MaxBackups: c.Rotation.MaxBackups,
			MaxAgeDays: c.Rotation.MaxAgeDays,
			Compress:   c.Rotation.Compress,
		}
	}
	return logger.New(lc)
}

func newVerifier(c *config.AuthConf, lg *logger.SugarLogger) (*httpsig.Verifier, error) {
	der, err := rootkey.Load(c.RootKeyHex, c.RootKeyFile)
	if err != nil {
		return nil, err
	}
	rootKeys, err := rootkey.NewStoreFromDER(der)
	if err != nil {
		return nil, errors.WithMessage(err, "error while loading the root key")
	}

	vc := &httpsig.Config{
		RootKeys: rootKeys,
		Logger:   lg,
	}
	if c.Issuer != "" {
		issuer, err := principal.FromText(c.Issuer)
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid delegation issuer %s", c.Issuer)
		}
		vc.Issuer = &issuer
	}

	v, err := httpsig.NewVerifier(vc)
	if err != nil {
		return nil, errors.WithMessage(err, "error while creating the request verifier")
	}
	return v, nil
}

// Start serves requests in the background.
func (s *AuthHTTPServer) Start() error {
	s.logger.Infof("Starting the server on %s", s.listen.Addr().String())

	go func() {
		if err := s.server.Serve(s.listen); err != nil {
			if err == http.ErrServerClosed {
				s.logger.Info("server is closed")
				return
			}
			s.logger.Panicf("server stopped unexpectedly, %v", err)
		}
	}()

	return nil
}

// Addr returns the address the server listens on.
func (s *AuthHTTPServer) Addr() net.Addr {
	return s.listen.Addr()
}

// ServeHTTP routes the request without going through the listener.
func (s *AuthHTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// SetRootKey replaces the root key delegations are verified against.
func (s *AuthHTTPServer) SetRootKey(der []byte) error {
	return s.verifier.SetRootKey(der)
}

// Stop closes the listener and then the todo store. It is safe to call more than once.
func (s *AuthHTTPServer) Stop() error {
	if s == nil || s.listen == nil {
		return nil
	}

	var err error
	s.stopOnce.Do(func() {
		s.logger.Infof("Stopping the server listening on %s", s.listen.Addr().String())
		if closeErr := s.server.Close(); closeErr != nil {
			err = multierr.Append(err, errors.Wrap(closeErr, "error while closing the http server"))
		}
		// Close does not know about the listener when Start was never called
		if closeErr := s.listen.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = multierr.Append(err, errors.Wrap(closeErr, "error while closing the network listener"))
		}
		err = multierr.Append(err, s.store.Close())
		_ = s.logger.Sync()
	})
	return err
}
