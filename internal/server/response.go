package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	warden "github.com/eugener/warden/internal"
)

// apiError is the JSON shape of every error response body.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Kind    string `json:"kind"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	return e
}

// errorResponseFor renders err's ProtoError kind alongside its message,
// giving clients the closed enumeration's name instead of only prose.
func errorResponseFor(err error) apiError {
	e := errorResponse(err.Error())
	if pe, ok := err.(*warden.ProtoError); ok {
		e.Error.Kind = pe.Kind.String()
	}
	return e
}

// errorStatus maps err to its protocol HTTP status. NeedRetry rides a 200
// (it is not a failure); any non-ProtoError is treated as BackendError.
func errorStatus(err error) int {
	pe, ok := err.(*warden.ProtoError)
	if !ok {
		return http.StatusInternalServerError
	}
	return pe.Kind.HTTPStatus()
}

var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		return
	}
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	w.Write(data)
}

var sealedCT = []string{"application/x-base64-sealed-json"}

func writeSealed(w http.ResponseWriter, status int, body string) {
	w.Header()["Content-Type"] = sealedCT
	w.WriteHeader(status)
	w.Write([]byte(body))
}
