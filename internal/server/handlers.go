package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"phq-companion/internal/interview"
	"phq-companion/internal/llm"
	"phq-companion/internal/questionnaire"
	"phq-companion/internal/relay"
)

const maxBodyBytes = 1 << 20

type llmResponse struct {
	Reply   string `json:"reply"`
	Guarded bool   `json:"guarded,omitempty"`
}

type llmErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Reply  string `json:"reply,omitempty"`
}

// handleLLM handles POST /api/llm
func (s *Server) handleLLM(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req relay.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.relay == nil {
		writeError(w, http.StatusInternalServerError, "relay is not configured")
		return
	}

	res, err := s.relay.Generate(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, llmResponse{Reply: res.Reply, Guarded: res.Guarded})
	case errors.Is(err, relay.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, relay.ErrMissingCredential):
		s.logger.Error("generation API credential is not configured")
		writeError(w, http.StatusInternalServerError, "server is missing the generation API credential")
	default:
		resp := llmErrorResponse{
			Error:  "upstream generation failed",
			Detail: err.Error(),
			Reply:  res.Reply,
		}
		var upErr *llm.UpstreamError
		if errors.As(err, &upErr) {
			resp.Status = upErr.Status
			resp.Body = upErr.Body
		}
		if resp.Reply == "" {
			resp.Reply = relay.FallbackReply
		}
		writeJSON(w, http.StatusBadGateway, resp)
	}
}

type healthResponse struct {
	OK     bool   `json:"ok"`
	Model  string `json:"model"`
	Static string `json:"static,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{OK: true, Static: s.opts.StaticDir}
	if s.relay != nil {
		resp.Model = s.relay.Model()
	}
	writeJSON(w, http.StatusOK, resp)
}

type questionnaireResponse struct {
	Intro     string                       `json:"intro"`
	Questions []questionnaire.Question     `json:"questions"`
	Options   []questionnaire.AnswerOption `json:"options"`
}

// handleQuestionnaire handles GET /api/questionnaire
func (s *Server) handleQuestionnaire(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, questionnaireResponse{
		Intro:     questionnaire.Intro,
		Questions: questionnaire.Questions(),
		Options:   questionnaire.Options(),
	})
}

// handleCreateSession handles POST /api/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, "sessions are not enabled")
		return
	}
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// handleGetSession handles GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleConsent handles POST /api/sessions/{id}/consent
func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := sess.Consent(context.WithoutCancel(r.Context())); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type answerRequest struct {
	Key string `json:"key"`
}

// handleAnswer handles POST /api/sessions/{id}/answers
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// the summary must finish even if the client goes away
	if err := sess.Answer(context.WithoutCancel(r.Context()), req.Key); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*interview.Session, bool) {
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, "sessions are not enabled")
		return nil, false
	}
	sess, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, questionnaire.ErrUnknownOption):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, interview.ErrFinished),
		errors.Is(err, interview.ErrBusy),
		errors.Is(err, interview.ErrWrongState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("session operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
