package edits

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	editsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archsync_edits_pushed_total",
		Help: "Edits queued on the edit stack, by kind.",
	}, []string{"kind"})

	editsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archsync_edits_deduplicated_total",
		Help: "Edits dropped because an identical edit was already queued.",
	})

	editsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archsync_edits_flushed_total",
		Help: "Edits applied by a flush.",
	})

	flushFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archsync_flush_failures_total",
		Help: "Failed apply or save steps during a flush.",
	}, []string{"step"})
)
