package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/joseph-ayodele/ocr-enricher/internal/common"
)

// RespondWithJSON writes payload as a JSON response.
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// RespondWithError writes a standardized JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

type errorBody struct {
	Error  string                   `json:"error"`
	Fields []common.ValidationError `json:"fields,omitempty"`
}

// respondWithErr maps err onto a status code using the shared sentinels.
func respondWithErr(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var verrs common.ValidationErrors
	if errors.As(err, &verrs) {
		body.Fields = verrs
	}
	RespondWithJSON(w, common.HTTPStatus(err), body)
}
