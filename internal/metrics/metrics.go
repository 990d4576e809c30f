package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed emails",
		},
	)

	EmailsNotSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_not_sent_total",
			Help: "Total emails never attempted because the run terminated early",
		},
	)

	CheckpointSaves = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkpoint_saves_total",
			Help: "Total checkpoint snapshots persisted",
		},
	)
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(EmailsNotSent)
	prometheus.MustRegister(CheckpointSaves)
}
