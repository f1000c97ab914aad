// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package vomsgw holds the environment configuration shared by the gateway
// binaries.
package vomsgw

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/absmach/vomsgw/pkg/legacy"
	"github.com/caarlos0/env/v11"
)

var (
	errNoKey       = errors.New("SERVER_KEY is required with SERVER_CERT")
	errNoCert      = errors.New("SERVER_CERT is required with CLIENT_CA_CERTS")
	errInvalidCACs = errors.New("no certificates found in CLIENT_CA_CERTS")
)

// Config describes one gateway listener.
type Config struct {
	Host      string `env:"HOST"       envDefault:""`
	Port      string `env:"PORT"       envDefault:""`
	TargetURL string `env:"TARGET_URL" envDefault:"http://localhost:8080"`

	ServerCert    string `env:"SERVER_CERT"     envDefault:""`
	ServerKey     string `env:"SERVER_KEY"      envDefault:""`
	ClientCACerts string `env:"CLIENT_CA_CERTS" envDefault:""`

	BufferSize      int           `env:"BUFFER_SIZE"      envDefault:"16384"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT"     envDefault:"60s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"    envDefault:"60s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT"     envDefault:"300s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConnections  int           `env:"MAX_CONNECTIONS"  envDefault:"0"`

	MarkerHeaders string `env:"MARKER_HEADERS" envDefault:"X-Voms-Legacy=true"`
	ContextPrefix string `env:"CONTEXT_PREFIX" envDefault:"/voms"`
}

// NewConfig parses the configuration from the environment.
func NewConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Markers parses MARKER_HEADERS.
func (c Config) Markers() (*legacy.Markers, error) {
	m, err := legacy.ParseMarkers(c.MarkerHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid MARKER_HEADERS: %w", err)
	}
	return m, nil
}

// TLSConfig builds the listener TLS configuration. It returns nil without
// a server certificate, and requires verified client certificates when
// CLIENT_CA_CERTS is set.
func (c Config) TLSConfig() (*tls.Config, error) {
	switch {
	case c.ServerCert == "" && c.ClientCACerts != "":
		return nil, errNoCert
	case c.ServerCert == "":
		return nil, nil
	case c.ServerKey == "":
		return nil, errNoKey
	}

	cert, err := tls.LoadX509KeyPair(c.ServerCert, c.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if c.ClientCACerts == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(c.ClientCACerts)
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA certificates: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errInvalidCACs
	}
	tlsConfig.ClientCAs = pool
	tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert

	return tlsConfig, nil
}
