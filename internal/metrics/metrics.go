// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "puzzlebot"

// Rule labels for revealed pieces.
const (
	RuleTurn    = "turn"
	RuleContent = "content"
	RuleDaily   = "daily"
)

// Metrics is safe for use on a nil receiver; every method is then a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	piecesRevealed  *prometheus.CounterVec
	puzzleCompleted prometheus.Counter
	writeConflicts  prometheus.Counter
	revealFailures  *prometheus.CounterVec
	messagesRelayed prometheus.Counter
	matchesCreated  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		piecesRevealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pieces_revealed_total",
			Help:      "Puzzle pieces revealed, by rule.",
		}, []string{"rule"}),
		puzzleCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puzzles_completed_total",
			Help:      "Conversations whose puzzle became fully revealed.",
		}),
		writeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puzzle_write_conflicts_total",
			Help:      "Optimistic puzzle writes rejected because of a concurrent commit.",
		}),
		revealFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reveal_failures_total",
			Help:      "Failed puzzle updates, by error kind.",
		}, []string{"kind"}),
		messagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Chat messages stored and delivered to the partner.",
		}),
		matchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "Daily matches created.",
		}),
	}
	reg.MustRegister(
		m.piecesRevealed,
		m.puzzleCompleted,
		m.writeConflicts,
		m.revealFailures,
		m.messagesRelayed,
		m.matchesCreated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) PieceRevealed(rule string) {
	if m == nil {
		return
	}
	m.piecesRevealed.WithLabelValues(rule).Inc()
}

func (m *Metrics) PuzzleCompleted() {
	if m == nil {
		return
	}
	m.puzzleCompleted.Inc()
}

func (m *Metrics) WriteConflict(string) {
	if m == nil {
		return
	}
	m.writeConflicts.Inc()
}

func (m *Metrics) RevealFailed(kind string) {
	if m == nil {
		return
	}
	m.revealFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) MessageRelayed() {
	if m == nil {
		return
	}
	m.messagesRelayed.Inc()
}

func (m *Metrics) MatchCreated() {
	if m == nil {
		return
	}
	m.matchesCreated.Inc()
}
