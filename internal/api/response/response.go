package response

import (
	"encoding/json"
	"net/http"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// StatusBody is the acknowledgement shape for writes and the shape of every error.
type StatusBody struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

// JSON writes data as a bare JSON document with status 200.
func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

// Success acknowledges a write.
func Success(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, StatusBody{Status: statusSuccess, Message: message})
}

// Created acknowledges an insert and reports the new id.
func Created(w http.ResponseWriter, id int64, message string) {
	writeJSON(w, http.StatusOK, StatusBody{Status: statusSuccess, Message: message, ID: id})
}

func Error(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, StatusBody{Status: statusError, Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
