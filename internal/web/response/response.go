// Package response renders JSON responses and errors for the HTTP API.
package response

import (
	"encoding/json"
	"net/http"
)

// ContentTypeJSON is the media type of every API response body
const ContentTypeJSON = "application/json; charset=utf-8"

// RenderJSON writes v as JSON with the given status. Encoding happens before
// the header is written so a failure never leaves a partial body.
func RenderJSON(w http.ResponseWriter, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		RenderInternalError(w)
		return err
	}
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_, err = w.Write(append(data, '\n'))
	return err
}
