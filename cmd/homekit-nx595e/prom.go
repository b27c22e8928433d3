package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var areaPriorityGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "area",
	Name:      "priority",
	Help:      "Area severity, 1 being the most urgent",
}, []string{"name"})

var armedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "area",
	Name:      "armed",
	Help:      "Whether the area is armed or partially armed",
}, []string{"name"})

var zonePriorityGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "zone",
	Name:      "priority",
	Help:      "Zone severity, 1 being the most urgent",
}, []string{"name"})

var openGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "zone",
	Name:      "open",
	Help:      "Whether the zone is in any state other than ready",
}, []string{"name"})

var bypassedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "zone",
	Name:      "bypassed",
	Help:      "",
}, []string{"name"})

var outputGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "output",
	Name:      "on",
	Help:      "",
}, []string{"name"})

var pollCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "client",
	Name:      "polls_total",
	Help:      "",
})

var pollErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "client",
	Name:      "poll_errors_total",
	Help:      "",
})

var commandCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "client",
	Name:      "commands_total",
	Help:      "",
}, []string{"command"})

var commandErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "homekit_nx595e",
	Subsystem: "client",
	Name:      "command_errors_total",
	Help:      "",
}, []string{"command"})
