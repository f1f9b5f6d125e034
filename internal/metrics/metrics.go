package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relaychat_online_conns",
		Help: "Current live websocket connections.",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relaychat_online_users",
		Help: "Users with at least one live connection.",
	})

	PushOK = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaychat_push_ok_total",
		Help: "Total events queued to outbound connections.",
	})
	PushShed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaychat_push_shed_total",
		Help: "Total droppable events shed due to a full outbound queue.",
	})
	PushOverflow = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaychat_push_overflow_total",
		Help: "Total connections closed because a critical event could not be queued.",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaychat_messages_sent_total",
		Help: "Total messages persisted and fanned out.",
	})
	CatchUpRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaychat_catchup_runs_total",
		Help: "Total reconnect catch-up passes executed.",
	})

	CallsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relaychat_calls_started_total",
		Help: "Total call sessions created.",
	})
	CallsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relaychat_calls_ended_total",
		Help: "Total call sessions ended, by outcome.",
	}, []string{"outcome"})
)

func Register() {
	prometheus.MustRegister(
		OnlineConns, OnlineUsers,
		PushOK, PushShed, PushOverflow,
		MessagesSent, CatchUpRuns,
		CallsStarted, CallsEnded,
	)
}
