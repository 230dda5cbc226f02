package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RecordsDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrt2bmp_records_decoded_total",
			Help: "MRT records decoded, by record kind.",
		},
		[]string{"kind"},
	)

	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrt2bmp_decode_errors_total",
			Help: "Decode failures by stage.",
		},
		[]string{"stage"},
	)

	MessagesEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrt2bmp_messages_enqueued_total",
			Help: "BMP messages placed on the forwarding queue, by type.",
		},
		[]string{"type"},
	)

	BytesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mrt2bmp_bytes_written_total",
			Help: "Bytes written to the collector socket.",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mrt2bmp_queue_depth",
			Help: "Messages waiting on the forwarding queue.",
		},
	)

	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mrt2bmp_collector_reconnects_total",
			Help: "Collector session re-establishments after the first.",
		},
	)

	FilesStagedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrt2bmp_files_staged_total",
			Help: "Archive files downloaded and staged, by kind.",
		},
		[]string{"kind"},
	)

	FilesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrt2bmp_files_processed_total",
			Help: "Staged files fully replayed and retired, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	ContinuityViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mrt2bmp_continuity_violations_total",
			Help: "Update archives withheld or flagged for timestamp gaps.",
		},
	)

	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrt2bmp_fetch_errors_total",
			Help: "Mirror transport failures by operation.",
		},
		[]string{"op"},
	)

	PeersAnnounced = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mrt2bmp_peers_announced",
			Help: "Peers with a Peer Up emitted in the current session.",
		},
	)

	LastRecordTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mrt2bmp_last_record_timestamp_seconds",
			Help: "MRT timestamp of the most recently forwarded record.",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		RecordsDecodedTotal,
		DecodeErrorsTotal,
		MessagesEnqueuedTotal,
		BytesWrittenTotal,
		QueueDepth,
		ReconnectsTotal,
		FilesStagedTotal,
		FilesProcessedTotal,
		ContinuityViolationsTotal,
		FetchErrorsTotal,
		PeersAnnounced,
		LastRecordTimestamp,
	)
}
