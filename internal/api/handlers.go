package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrWong99/voicecart/internal/observe"
	"github.com/MrWong99/voicecart/internal/recommend"
	"github.com/MrWong99/voicecart/internal/voice"
	"github.com/MrWong99/voicecart/internal/wishlist"
	"github.com/MrWong99/voicecart/pkg/provider/stt"
)

// maxIntentBytes caps the /update_wishlist body.
const maxIntentBytes = 64 << 10

type updateResponse struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// shopper tags the request context with the {username} path value.
func shopper(r *http.Request) (*http.Request, string) {
	username := r.PathValue("username")
	return r.WithContext(observe.WithUser(r.Context(), username)), username
}

func (s *Server) handleUpdateWishlist(w http.ResponseWriter, r *http.Request) {
	r, username := shopper(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIntentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	res, err := s.cfg.Reconciler.Apply(r.Context(), username, raw)
	if err != nil {
		if rej, ok := wishlist.AsRejection(err); ok {
			writeError(w, http.StatusBadRequest, rej.Message)
			return
		}
		writeFault(w, r, http.StatusInternalServerError, "Internal server error", err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{Message: res.Message, Data: res.Data})
}

func (s *Server) handleWishlist(w http.ResponseWriter, r *http.Request) {
	r, username := shopper(r)
	entries, err := s.cfg.Views.Wishlist(r.Context(), username)
	if err != nil {
		writeFault(w, r, http.StatusInternalServerError, "Failed to fetch wishlist", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wishlist": entries})
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	items, err := s.cfg.Views.ListStore(r.Context())
	if err != nil {
		writeFault(w, r, http.StatusInternalServerError, "Failed to fetch store items", err)
		return
	}
	resp := map[string]any{"store_items": items}
	if len(items) == 0 {
		observe.Logger(r.Context()).Warn("store is empty; seed the database")
		resp["note"] = "Store is empty. Please seed the database."
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Recommender == nil {
		writeError(w, http.StatusServiceUnavailable, "Recommendations are not configured")
		return
	}
	r, username := shopper(r)
	recs, err := s.cfg.Recommender.Recommend(r.Context(), username)
	switch {
	case errors.Is(err, recommend.ErrNoWishlist):
		writeJSON(w, http.StatusOK, map[string]any{"recommendations": []recommend.Recommendation{}, "note": "No wishlist found"})
	case errors.Is(err, recommend.ErrEmptyWishlist):
		writeJSON(w, http.StatusOK, map[string]any{"recommendations": []recommend.Recommendation{}, "note": "Wishlist empty"})
	case err != nil:
		writeFault(w, r, http.StatusInternalServerError, "Failed to generate recommendations", err)
	default:
		if recs == nil {
			recs = []recommend.Recommendation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
	}
}

type recogniseResponse struct {
	RecognizedText string         `json:"recognized_text"`
	LLMResponse    map[string]any `json:"llm_response"`
}

func (s *Server) handleRecognise(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Voice == nil {
		writeError(w, http.StatusServiceUnavailable, "Voice recognition is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeFault(w, r, http.StatusInternalServerError, "Voice recognition failed", err)
		return
	}

	res, err := s.cfg.Voice.Process(r.Context(), stt.Audio{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	var reqErr *voice.RequestError
	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, reqErr.Message)
	case err != nil:
		writeFault(w, r, http.StatusInternalServerError, "Voice recognition failed", err)
	default:
		writeJSON(w, http.StatusOK, recogniseResponse{RecognizedText: res.RecognizedText, LLMResponse: res.Intent})
	}
}
