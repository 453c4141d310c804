package contact

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Response is the root response for every api call
type Response struct {
	OK      bool   `json:"ok"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Service string `json:"service,omitempty"`
}

func errorResponse(c Code) Response {
	return Response{
		OK:      false,
		Code:    c,
		Message: c.Message(),
	}
}

// returnJSONError returns the error response for the given code
func returnJSONError(w http.ResponseWriter, r *http.Request, c Code) {
	returnJSON(w, r, c.Status(), errorResponse(c))
}

func returnJSON(w http.ResponseWriter, r *http.Request, status int, resp interface{}) {
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	err := encoder.Encode(resp)
	if err != nil {
		log.WithField("path", r.URL.Path).WithError(err).Error("returnJSON: failed to write response")
	}
}
