// Package service exposes a read-mostly HTTP view of a running node: its
// stats, the swarm registry, the live model and prometheus metrics. The only
// write is POST /feedback, which feeds interaction counts to the node's
// feedback source.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/feedback"
	"github.com/sporenet/sporenet/src/node"
	"github.com/sporenet/sporenet/src/version"
)

// Service ...
type Service struct {
	bindAddress string
	node        *node.Node
	counters    *feedback.Counters
	router      chi.Router
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, counters *feedback.Counters, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		counters:    counters,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering sporenet API handlers")

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors)

	r.Get("/stats", s.GetStats)
	r.Get("/info", s.GetInfo)
	r.Get("/nodes", s.GetNodes)
	r.Get("/members", s.GetMembers)
	r.Get("/snapshot", s.GetSnapshot)
	r.Post("/feedback", s.PostFeedback)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the router, for embedding in another server.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve listens on the bind address until ctx is done. It implements
// suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving sporenet API")

	srv := &http.Server{
		Addr:              s.bindAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.logger.WithError(err).Error("API server stopped")
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetInfo ...
func (s *Service) GetInfo(w http.ResponseWriter, r *http.Request) {
	id := s.node.Identity()
	writeJSON(w, map[string]string{
		"id":      id.ID,
		"name":    id.Name,
		"model":   id.ModelName,
		"link":    id.Link,
		"actor":   id.Actor(),
		"version": version.Version,
	})
}

// GetNodes lists the registered nodes of the swarm.
func (s *Service) GetNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.node.Nodes(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Listing nodes")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, nodes)
}

// GetMembers lists the models of the node's current group.
func (s *Service) GetMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.node.Members(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Listing members")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"group_id": s.node.GroupID(),
		"joined":   s.node.Joined(),
		"members":  members,
	})
}

// GetSnapshot returns the live model in its canonical encoding.
func (s *Service) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.node.LiveSnapshot()
	if snap == nil {
		http.Error(w, "no model yet", http.StatusNotFound)
		return
	}

	data, err := snap.Marshal()
	if err != nil {
		s.logger.WithError(err).Error("Marshalling snapshot")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// FeedbackRequest is the body of POST /feedback.
type FeedbackRequest struct {
	Replies    int `json:"replies"`
	Engagement int `json:"engagement"`
}

// PostFeedback adds interaction counts to the node's feedback source.
func (s *Service) PostFeedback(w http.ResponseWriter, r *http.Request) {
	if s.counters == nil {
		http.Error(w, "feedback counters not enabled", http.StatusNotImplemented)
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Replies < 0 || req.Engagement < 0 {
		http.Error(w, "counts must not be negative", http.StatusBadRequest)
		return
	}

	s.counters.AddReplies(req.Replies)
	s.counters.AddEngagement(req.Engagement)

	s.logger.WithFields(logrus.Fields{
		"replies":    req.Replies,
		"engagement": req.Engagement,
	}).Debug("Feedback counts")

	writeJSON(w, map[string]int{
		"replies":    s.counters.RepliesSent(),
		"engagement": s.counters.EngagementReceived(),
	})
}
