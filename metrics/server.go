// Copyright (C) 2015  Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package metrics

import (
	"fmt"
	"net/http"
	_ "net/http/pprof" // Go documentation recommended usage

	"github.com/aristanetworks/intrusive/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents an embedded HTTP server exposing /metrics and
// /debug/pprof for a running process using this module's containers.
type Server interface {
	Run()
}

type server struct {
	serverName string
	gatherer   prometheus.Gatherer
	log        logger.Logger
}

// NewServer creates a Server that serves gatherer's metrics, plus
// pprof's standard debug endpoints, on serverName (e.g. "localhost:9102").
// Errors from the listener go to log rather than being returned, since
// Run is expected to be launched in its own goroutine.
func NewServer(serverName string, gatherer prometheus.Gatherer, log logger.Logger) Server {
	return &server{serverName: serverName, gatherer: gatherer, log: log}
}

func debugHandler(w http.ResponseWriter, r *http.Request) {
	indexTmpl := `<html>
	<head>
	<title>/debug</title>
	</head>
	<body>
	<p>/debug</p>
	<div><a href="/metrics">metrics</a></div>
	<div><a href="/debug/pprof">pprof</a></div>
	</body>
	</html>
	`
	fmt.Fprintf(w, indexTmpl)
}

// Run sets up the HTTP server and its handlers. It blocks until the
// server stops, reporting any error through the configured logger
// rather than returning it.
func (s *server) Run() {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug", debugHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	if err := http.ListenAndServe(s.serverName, mux); err != nil {
		s.log.Errorf("Could not start metrics server: %s", err)
	}
}
