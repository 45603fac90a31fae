// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package metrics exposes the live element count and memory footprint
// of the containers in this module as Prometheus gauges, the way
// monitor once exposed expvar counters for a running process.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Container is satisfied by every keyed container in this module
// (dynhash.Table, linhash.Table, trie.Trie, trieinplace.Trie): enough
// to report how big it currently is without the registry needing to
// know which one it's looking at.
type Container interface {
	Count() uint32
	MemoryUsage() uintptr
}

// Registry collects per-container gauges under a common namespace and
// registers them with a prometheus.Registerer.
type Registry struct {
	namespace string
	reg       prometheus.Registerer
}

// New creates a Registry that registers its gauges with reg, labeling
// every metric under namespace (e.g. the name of the service
// embedding this module).
func New(namespace string, reg prometheus.Registerer) *Registry {
	return &Registry{namespace: namespace, reg: reg}
}

// Track registers a pair of gauges for c, element count and memory
// usage, labeled with name. It returns an error if the gauges could
// not be registered (most commonly, name was already tracked).
func (r *Registry) Track(name string, c Container) error {
	countGauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   r.namespace,
			Subsystem:   "container",
			Name:        "elements",
			Help:        "Number of elements currently stored in the container.",
			ConstLabels: prometheus.Labels{"container": name},
		},
		func() float64 { return float64(c.Count()) },
	)
	if err := r.reg.Register(countGauge); err != nil {
		return err
	}
	memGauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   r.namespace,
			Subsystem:   "container",
			Name:        "memory_bytes",
			Help:        "Bytes of memory currently held by the container.",
			ConstLabels: prometheus.Labels{"container": name},
		},
		func() float64 { return float64(c.MemoryUsage()) },
	)
	return r.reg.Register(memGauge)
}
