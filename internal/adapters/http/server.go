// Package httpadapter serves the read-only feed indexers and dashboards use:
// the committed event log plus snapshots of ledger objects.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"trustflow/internal/domain"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

type EventReader interface {
	Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error)
}

type SupplyReader interface {
	Snapshot(ctx context.Context) (domain.TokenSupply, error)
}

type ReputationReader interface {
	Get(ctx context.Context, user string) (domain.ReputationScore, error)
}

type RecommendationReader interface {
	Get(ctx context.Context, id string) (domain.Recommendation, error)
}

type GovernanceReader interface {
	Params(ctx context.Context) (domain.Params, error)
	Proposal(ctx context.Context, id uint64) (domain.Proposal, error)
}

type AccountReader interface {
	Get(ctx context.Context, owner string) (domain.Account, error)
}

// Deps are the read sides the feed exposes. Gatherer may be nil, in which
// case /metrics is not mounted.
type Deps struct {
	Events          EventReader
	Supply          SupplyReader
	Reputation      ReputationReader
	Recommendations RecommendationReader
	Governance      GovernanceReader
	Accounts        AccountReader
	Gatherer        prometheus.Gatherer
	Logger          zerolog.Logger
}

type Server struct {
	d   Deps
	log zerolog.Logger
}

func New(d Deps) *Server {
	return &Server{d: d, log: d.Logger.With().Str("component", "http").Logger()}
}

// Routes returns a chi.Router with every feed endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/events", s.getEvents)
		r.Get("/supply", s.getSupply)
		r.Get("/params", s.getParams)
		r.Get("/reputation/{user}", s.getReputation)
		r.Get("/recommendations/{id}", s.getRecommendation)
		r.Get("/proposals/{id}", s.getProposal)
		r.Get("/accounts/{user}", s.getAccount)
	})
	return r
}

type eventPage struct {
	Events []domain.Event `json:"events"`
	Next   uint64         `json:"next"`
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "after")
			return
		}
		after = n
	}
	limit := defaultEventPage
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit")
			return
		}
		limit = min(n, maxEventPage)
	}

	evs, err := s.d.Events.Events(r.Context(), after, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page := eventPage{Events: evs, Next: after}
	if page.Events == nil {
		page.Events = []domain.Event{}
	}
	if n := len(evs); n > 0 {
		page.Next = evs[n-1].Seq
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getSupply(w http.ResponseWriter, r *http.Request) {
	sup, err := s.d.Supply.Snapshot(r.Context())
	s.respond(w, r, sup, err)
}

func (s *Server) getParams(w http.ResponseWriter, r *http.Request) {
	p, err := s.d.Governance.Params(r.Context())
	s.respond(w, r, p, err)
}

func (s *Server) getReputation(w http.ResponseWriter, r *http.Request) {
	rs, err := s.d.Reputation.Get(r.Context(), chi.URLParam(r, "user"))
	s.respond(w, r, rs, err)
}

func (s *Server) getRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.d.Recommendations.Get(r.Context(), chi.URLParam(r, "id"))
	s.respond(w, r, rec, err)
}

func (s *Server) getProposal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "id")
		return
	}
	p, err := s.d.Governance.Proposal(r.Context(), id)
	s.respond(w, r, p, err)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.d.Accounts.Get(r.Context(), chi.URLParam(r, "user"))
	s.respond(w, r, acct, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		writeError(w, StatusFor(de.Kind), de.Code, de.Field)
		return
	}
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal", "")
}

// StatusFor maps a domain error kind to its HTTP status.
func StatusFor(k domain.Kind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindState, domain.KindResource:
		return http.StatusConflict
	case domain.KindTiming:
		return http.StatusTooEarly
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, errorBody{Code: code, Field: field})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
