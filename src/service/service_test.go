package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/directory"
	"github.com/sporenet/sporenet/src/dummy"
	"github.com/sporenet/sporenet/src/feedback"
	"github.com/sporenet/sporenet/src/model"
	"github.com/sporenet/sporenet/src/net"
	"github.com/sporenet/sporenet/src/node"
	"github.com/sporenet/sporenet/src/spore"
)

func newTestService(t *testing.T) (*Service, *feedback.Counters) {
	logger := common.NewTestEntry(t, logrus.DebugLevel)

	trainer := dummy.NewTrainer(dummy.SyntheticRatings(4, 4, 16, 1), 2, 1, logger)
	counters := &feedback.Counters{}
	evaluator := feedback.NewEngagementEvaluator(counters, feedback.FixedFallback(0), 1, logger)
	spores := spore.NewManager(net.NewInmemTransport(), "spores", "status", 30, logger)
	dir := directory.NewInmemDirectory()

	n := node.NewNode(node.TestConfig(t), node.NewIdentity("7", "Cap Seer", "http://7", nil), spores, dir, trainer, evaluator)
	if err := n.Init(context.Background()); err != nil {
		t.Fatalf("err: %v", err)
	}

	return NewService("127.0.0.1:0", n, counters, logger), counters
}

func get(t *testing.T, s *Service, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetStats(t *testing.T) {
	s, _ := newTestService(t)

	rec := get(t, s, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("err: %v", err)
	}
	if stats["id"] != "7" || stats["state"] != "SEARCHING" || stats["joined"] != "false" {
		t.Fatalf("unexpected stats %v", stats)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("CORS header missing")
	}
}

func TestGetInfoAndNodes(t *testing.T) {
	s, _ := newTestService(t)

	var info map[string]string
	json.NewDecoder(get(t, s, "/info").Body).Decode(&info)
	if info["name"] != "Cap Seer" || info["model"] != "model-7" {
		t.Fatalf("unexpected info %v", info)
	}

	var nodes []directory.NodeInfo
	json.NewDecoder(get(t, s, "/nodes").Body).Decode(&nodes)
	if len(nodes) != 1 || nodes[0].ID != "7" {
		t.Fatalf("unexpected nodes %v", nodes)
	}

	var members map[string]interface{}
	json.NewDecoder(get(t, s, "/members").Body).Decode(&members)
	if list, ok := members["members"].([]interface{}); !ok || len(list) != 1 {
		t.Fatalf("unexpected members %v", members)
	}
}

func TestGetSnapshot(t *testing.T) {
	s, _ := newTestService(t)

	rec := get(t, s, "/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	snap, err := model.Unmarshal(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if snap.Name() != "model-7" || len(snap.Keys()) != 2 {
		t.Fatalf("unexpected snapshot %s %v", snap.Name(), snap.Keys())
	}
}

func TestPostFeedback(t *testing.T) {
	s, counters := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(`{"replies":2,"engagement":4}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if counters.RepliesSent() != 2 || counters.EngagementReceived() != 4 {
		t.Fatalf("counters not updated")
	}

	bad := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(`{"replies":-1}`))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative counts should be rejected, got %d", rec.Code)
	}

	rec = get(t, s, "/feedback")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /feedback should not be allowed, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	s, _ := newTestService(t)

	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "sporenet_") {
		t.Fatalf("metrics should expose sporenet collectors, got %d", rec.Code)
	}
}
