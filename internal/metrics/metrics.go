package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Activity metrics
	MessagesTracked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildstats_messages_tracked_total",
			Help: "Total messages counted into daily buckets",
		},
		[]string{"guild"},
	)

	VoiceSessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildstats_voice_sessions_closed_total",
			Help: "Total voice sessions closed",
		},
		[]string{"guild"},
	)

	VoiceSecondsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildstats_voice_seconds_recorded_total",
			Help: "Total voice seconds credited to daily buckets",
		},
		[]string{"guild"},
	)

	// Query metrics
	ActivityQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildstats_activity_queries_total",
			Help: "Total activity range queries served",
		},
		[]string{"scope", "source"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesTracked,
		VoiceSessionsClosed,
		VoiceSecondsRecorded,
		ActivityQueries,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
