package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ridedispatch/internal/config"
	"ridedispatch/internal/dispatch"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/store"
	"ridedispatch/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Geo      geo.Provider
	Dispatch *dispatch.Service
	Pub      *webhooks.Publisher
	Broker   EventBroker
	cfg      config.Config
	log      zerolog.Logger
}

// NewServer wires the service graph. The broker is Redis-backed when a
// Redis URL is configured, in-process otherwise.
func NewServer(cfg config.Config, st store.Store, provider geo.Provider) *Server {
	log := logging.Component("api")
	var broker EventBroker
	if cfg.Redis.URL != "" {
		if rb, err := NewRedisBroker(cfg.Redis.URL); err == nil {
			broker = rb
		} else {
			log.Warn().Err(err).Msg("redis broker unavailable, using in-process broker")
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	pub := webhooks.NewPublisher(st)
	svc := dispatch.New(st, provider, cfg, pub, brokerSink{broker})
	return &Server{Store: st, Geo: provider, Dispatch: svc, Pub: pub, Broker: broker, cfg: cfg, log: log}
}

// brokerSink adapts the EventBroker to the dispatch event interface.
type brokerSink struct{ b EventBroker }

func (s brokerSink) Publish(topic, eventType string, data map[string]any) {
	s.b.Publish(topic, SSEEvent{Type: eventType, Data: data})
}

// NewWebhookWorker creates the background delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.cfg.Webhooks.MaxAttempts)
}

// Routes builds the full HTTP surface behind the middleware chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/optimize", s.OptimizeHandler)
	mux.HandleFunc("/v1/matrix", s.MatrixHandler)

	mux.HandleFunc("/v1/rides", s.RidesHandler)
	mux.HandleFunc("/v1/rides/", s.RideByIDHandler) // /assign, /validate, /events/stream

	mux.HandleFunc("/v1/drivers", s.DriversHandler)
	mux.HandleFunc("/v1/drivers/suggest", s.SuggestHandler)

	mux.HandleFunc("/v1/addresses/autocomplete", s.AutocompleteHandler)

	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

	mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	handler := s.rateLimit(mux)
	handler = s.instrument(handler)
	handler = s.logRequests(handler)
	return handler
}
