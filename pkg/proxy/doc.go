// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package proxy provides the gateway coordinator that wires together the
// connection server, the legacy translator and the REST backend.
//
// # Architecture
//
//	Application
//	     ↓
//	┌──────────────┐
//	│  HTTPProxy   │  (Coordinator)
//	└──────────────┘
//	     ↓
//	┌──────────────┐
//	│  tcp.Server  │  (Transport, classification)
//	└──────────────┘
//	     ↓
//	┌──────────────┐
//	│ ReverseProxy │  (Backend, optionally behind a circuit breaker)
//	└──────────────┘
//
// Legacy XML clients and plain HTTP clients share the listener. Both end up
// as requests to TargetURL; only the response framing differs.
//
// # Configuration
//
//	HTTPConfig:
//	  - Host, Port: Server listen address
//	  - TargetURL: REST backend
//	  - TLSConfig: Optional TLS
//	  - Markers, ContextPrefix, Translator: legacy translation
//	  - Breaker: Optional backend circuit breaker
//	  - Metrics: Optional Prometheus metrics
//
// A backend failure answers 502 Bad Gateway; an open circuit answers 503
// Service Unavailable.
//
// # Example
//
//	cfg := proxy.HTTPConfig{
//		Host:      "",
//		Port:      "15000",
//		TargetURL: "http://localhost:8080",
//	}
//
//	p, err := proxy.NewHTTP(cfg, &MyHandler{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := p.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package proxy
