package api

import (
	"net/http"

	"github.com/chatwire/chatwire/pkg/httputil"
	"github.com/chatwire/chatwire/pkg/webhook"
)

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.dispatcher.Stats())
}

func (s *Server) resetStats(w http.ResponseWriter, r *http.Request) {
	s.dispatcher.ResetStats()
	httputil.WriteSuccess(w, s.dispatcher.Stats())
}

func (s *Server) listDeliveries(w http.ResponseWriter, r *http.Request) {
	history := s.dispatcher.History()
	if history == nil {
		httputil.WriteSuccess(w, []*webhook.DeliveryRecord{})
		return
	}

	limit := httputil.ParseQueryInt(r, "limit", 50)
	httputil.WriteSuccess(w, history.Recent(limit))
}
