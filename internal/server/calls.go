package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/hostline-ai/hostline/internal/call"
	"github.com/hostline-ai/hostline/internal/dialogue"
	"github.com/hostline-ai/hostline/pkg/audio"
	"github.com/hostline-ai/hostline/pkg/provider/tts"
)

// startRequest is the body of POST /api/calls/start. All fields are
// optional; absent fields fall back to the configured defaults.
type startRequest struct {
	Voice        string `json:"voice"`
	UseRAG       *bool  `json:"use_rag"`
	SystemPrompt string `json:"system_prompt"`
}

type startResponse struct {
	CallID       string `json:"call_id"`
	Status       string `json:"status"`
	WebsocketURL string `json:"websocket_url"`
}

type callStatus struct {
	CallID          string  `json:"call_id"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// handleStart creates a call in the registry and hands the client the
// WebSocket URL to attach its audio channel to.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// An empty body is a valid "all defaults" request.
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := call.StartOptions{
		UseRAG:       s.defaultUseRAG,
		SystemPrompt: req.SystemPrompt,
	}
	if req.UseRAG != nil {
		opts.UseRAG = *req.UseRAG
	}

	voiceID := req.Voice
	if voiceID == "" {
		voiceID = s.defaultVoice
	}
	profile, err := s.voiceProfile(r, voiceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown voice: "+voiceID)
		return
	}
	opts.Voice = profile

	c := call.New(uuid.NewString(), opts)
	if err := s.registry.Register(c); err != nil {
		writeError(w, http.StatusInternalServerError, "call registration failed")
		return
	}
	s.logger.Info("call created", "call_id", c.ID, "voice", voiceID, "use_rag", opts.UseRAG)

	writeJSON(w, http.StatusOK, startResponse{
		CallID:       c.ID,
		Status:       "initialized",
		WebsocketURL: "/api/calls/" + c.ID + "/ws",
	})
}

// handleStatus reports the lifecycle state of one call.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, err := s.registry.Lookup(r.PathValue("call_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	writeJSON(w, http.StatusOK, statusOf(c))
}

// handleEnd requests a graceful end of one call. Idempotent; ending an
// already ended call is not an error.
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	c, err := s.registry.Lookup(r.PathValue("call_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	c.End()
	writeJSON(w, http.StatusOK, statusOf(c))
}

// handleActive lists all calls currently known to the registry.
func (s *Server) handleActive(w http.ResponseWriter, _ *http.Request) {
	calls := s.registry.List()
	statuses := make([]callStatus, 0, len(calls))
	for _, c := range calls {
		statuses = append(statuses, statusOf(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_calls": statuses,
		"count":        len(statuses),
	})
}

// handleConfig exposes the voices, personas, and audio format the service
// supports, so clients can populate pickers without hardcoding them.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	voices, err := s.voices(r)
	if err != nil {
		s.logger.Warn("voice listing failed", "error", err)
		voices = nil
	}
	ids := make([]string, 0, len(voices))
	for _, v := range voices {
		ids = append(ids, v.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voices":   ids,
		"personas": dialogue.PromptNames(),
		"audio": map[string]any{
			"sample_rate": audio.WireSampleRate,
			"channels":    audio.WireChannels,
			"format":      "pcm16",
		},
	})
}

func statusOf(c *call.Call) callStatus {
	return callStatus{
		CallID:          c.ID,
		Status:          c.State().String(),
		DurationSeconds: c.Duration().Seconds(),
	}
}

// voiceCache memoises the provider's voice list after the first successful
// fetch. Voice lists are static for the lifetime of the process.
type voiceCache struct {
	mu     sync.Mutex
	loaded bool
	list   []tts.VoiceProfile
}

func (s *Server) voices(r *http.Request) ([]tts.VoiceProfile, error) {
	s.voiceList.mu.Lock()
	defer s.voiceList.mu.Unlock()
	if !s.voiceList.loaded {
		list, err := s.tts.ListVoices(r.Context())
		if err != nil {
			return nil, err
		}
		s.voiceList.list = list
		s.voiceList.loaded = true
	}
	return s.voiceList.list, nil
}

func (s *Server) voiceProfile(r *http.Request, id string) (tts.VoiceProfile, error) {
	voices, err := s.voices(r)
	if err != nil {
		return tts.VoiceProfile{}, err
	}
	for _, v := range voices {
		if v.ID == id {
			return v, nil
		}
	}
	return tts.VoiceProfile{}, errors.New("server: unknown voice " + id)
}
