package pdfcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maktab",
		Subsystem: "pdfcache",
		Name:      "downloads_total",
		Help:      "Lesson PDF downloads, by result.",
	}, []string{"result"})

	mountsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "maktab",
		Subsystem: "pdfcache",
		Name:      "mounts_total",
		Help:      "Cache lookups on lesson view, by outcome (hit or miss).",
	}, []string{"outcome"})
)
