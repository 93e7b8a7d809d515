package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mosaicnetworks/relay/src/migration"
	"github.com/mosaicnetworks/relay/src/node"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Service exposes the state of a relay server over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering relay API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/migrations", s.makeHandler(s.GetMigrations))
	s.mux.HandleFunc("/tree", s.makeHandler(s.GetTree))
	s.mux.HandleFunc("/migrate", s.makeHandler(s.PostMigrate))
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving relay API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	returnJSON(w, http.StatusOK, s.node.GetStats())
}

// GetMigrations returns every live migration record of the server.
func (s *Service) GetMigrations(w http.ResponseWriter, r *http.Request) {
	returnJSON(w, http.StatusOK, s.node.GetMigrations())
}

// GetTree ...
func (s *Service) GetTree(w http.ResponseWriter, r *http.Request) {
	returnJSON(w, http.StatusOK, s.node.GetTree())
}

// PostMigrate starts the migration of a local client. It expects the client
// and destination query parameters.
func (s *Service) PostMigrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	client := r.URL.Query().Get("client")
	destination := r.URL.Query().Get("destination")
	if client == "" || destination == "" {
		http.Error(w, "client and destination are required", http.StatusBadRequest)
		return
	}

	m, err := s.node.StartMigration(client, destination)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"client":      client,
			"destination": destination,
		}).Error("Starting migration")

		http.Error(w, err.Error(), statusOf(err))
		return
	}

	returnJSON(w, http.StatusAccepted, m)
}

func statusOf(err error) int {
	switch {
	case migration.Is(err, migration.UnknownClient):
		return http.StatusNotFound
	case migration.Is(err, migration.ClientBusy),
		migration.Is(err, migration.BadState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func returnJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
