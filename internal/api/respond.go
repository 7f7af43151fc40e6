package api

import (
	"encoding/json"
	"net/http"

	"github.com/MrWong99/voicecart/internal/observe"
)

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeFault logs err and answers with status and prefix plus the error text.
func writeFault(w http.ResponseWriter, r *http.Request, status int, prefix string, err error) {
	observe.Logger(r.Context()).Error(prefix, "err", err, "path", r.URL.Path)
	writeError(w, status, prefix+": "+err.Error())
}
