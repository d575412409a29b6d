package api

import (
	"encoding/json"
	"net/http"

	"github.com/thrasher-corp/candlereplay/internal/replaylog"
)

// writeJSON marshals v as the response body with status code, logging
// (but not failing the request further) if the client has already gone
// away by the time the write happens.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		replaylog.Warnf(replaylog.APISys, "writing json response: %v", err)
	}
}

// errorEnvelope is the JSON body every non-2xx API response carries.
type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	replaylog.Debugf(replaylog.APISys, "request failed with %d: %v", status, err)
	writeJSON(w, status, errorEnvelope{Status: "error", Message: err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
