package service

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	cm "github.com/pythagoras-dev/pythagoras/src/common"
	"github.com/pythagoras-dev/pythagoras/src/portal"
	"github.com/pythagoras-dev/pythagoras/src/swarm"
)

// Stats is the response shape of the /stats endpoint.
type Stats struct {
	NodeSignature string `json:"node_signature"`
	Moniker       string `json:"moniker"`
	Values        int    `json:"values"`
	Results       int    `json:"results"`
	Requests      int    `json:"requests"`
	Workers       int    `json:"workers"`
}

// Service exposes a read-only HTTP API over a portal and its scheduler.
type Service struct {
	sync.Mutex

	bindAddress string
	portal      *portal.Portal
	scheduler   *swarm.Scheduler
	beacon      *swarm.Beacon
	nodeSig     string
	moniker     string
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, p *portal.Portal, scheduler *swarm.Scheduler, nodeSig string, moniker string, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		portal:      p,
		scheduler:   scheduler,
		beacon:      swarm.NewBeacon(p.Backend(), nodeSig),
		nodeSig:     nodeSig,
		moniker:     moniker,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of
// the http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Pythagoras API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/results/", s.makeHandler(s.GetResult))
	http.HandleFunc("/results", s.makeHandler(s.GetResults))
	http.HandleFunc("/requests", s.makeHandler(s.GetRequests))
	http.HandleFunc("/heartbeat", s.makeHandler(s.GetHeartbeat))
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

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when another server has already been started with the
// DefaultServerMux and the same address:port combination; the handlers are
// registered when the service is instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Pythagoras API")

	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	values, err := s.portal.Store().Count()
	if err != nil {
		s.respondError(w, err)
		return
	}

	results, err := s.portal.Results().Count()
	if err != nil {
		s.respondError(w, err)
		return
	}

	requests, err := s.portal.Requests().Count()
	if err != nil {
		s.respondError(w, err)
		return
	}

	stats := Stats{
		NodeSignature: s.nodeSig,
		Moniker:       s.moniker,
		Values:        values,
		Results:       results,
		Requests:      requests,
		Workers:       s.scheduler.Workers(),
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetResults lists the signature keys with recorded results.
func (s *Service) GetResults(w http.ResponseWriter, r *http.Request) {
	keys, err := s.portal.Results().Keys()
	if err != nil {
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(keys)
}

// GetResult returns the result address recorded for a signature key.
func (s *Service) GetResult(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/results/")

	addr, err := s.portal.Results().Lookup(key)
	if err != nil {
		if cm.Is(err, cm.NotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(addr)
}

// GetRequests lists the pending signature keys.
func (s *Service) GetRequests(w http.ResponseWriter, r *http.Request) {
	keys, err := s.portal.Requests().Keys()
	if err != nil {
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(keys)
}

// GetHeartbeat returns the principal's heartbeat record.
func (s *Service) GetHeartbeat(w http.ResponseWriter, r *http.Request) {
	hb, err := s.beacon.Read()
	if err != nil {
		if cm.Is(err, cm.NotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(hb)
}

func (s *Service) respondError(w http.ResponseWriter, err error) {
	s.logger.WithError(err).Error("Service request failed")

	http.Error(w, err.Error(), http.StatusInternalServerError)
}
