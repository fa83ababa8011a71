package errors

import (
	"encoding/json"
	"net/http"
)

type errorEnvelope struct {
	Error *StandardError `json:"error"`
}

// WriteError renders err as {"error": {...}} with the status matching its code.
// Details and metadata are withheld for server-side failures.
func WriteError(w http.ResponseWriter, err error) {
	stdErr := AsStandard(err)
	status := HTTPStatus(stdErr.Code)

	body := *stdErr
	if status >= http.StatusInternalServerError {
		body.Details = ""
		body.Metadata = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: &body})
}
