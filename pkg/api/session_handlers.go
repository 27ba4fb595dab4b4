package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/chatwire/chatwire/pkg/httputil"
	"github.com/chatwire/chatwire/pkg/session"
)

type createSessionRequest struct {
	ID            string   `json:"id"`
	WebhookURL    string   `json:"webhookUrl,omitempty"`
	WebhookEvents []string `json:"webhookEvents,omitempty"`
}

func (req *createSessionRequest) validate() error {
	if req.ID == "" {
		return errors.New("id is required")
	}
	if req.WebhookURL != "" {
		u, err := url.Parse(req.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhookUrl %q is not a valid http(s) URL", req.WebhookURL)
		}
	}
	for _, e := range req.WebhookEvents {
		if !session.ValidEventType(e) {
			return fmt.Errorf("unknown webhook event %q", e)
		}
	}
	return nil
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events := make([]session.EventType, 0, len(req.WebhookEvents))
	for _, e := range req.WebhookEvents {
		events = append(events, session.EventType(e))
	}

	created, err := s.registry.Create(session.CreateConfig{
		ID:            req.ID,
		WebhookURL:    req.WebhookURL,
		WebhookEvents: events,
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionExists) {
			httputil.WriteConflict(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, created)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, s.registry.List())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	found, err := s.registry.Get(id)
	if err != nil {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, found)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.registry.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) connectSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.registry.Connect(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		httputil.WriteErrorMessage(w, http.StatusBadGateway, err.Error())
		return
	}

	current, err := s.registry.Get(id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, current)
}

func (s *Server) disconnectSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.registry.Disconnect(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			httputil.WriteNotFoundError(w, err.Error())
			return
		}
		httputil.WriteErrorMessage(w, http.StatusBadGateway, err.Error())
		return
	}

	current, err := s.registry.Get(id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, current)
}
