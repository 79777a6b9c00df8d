// Package oapi holds the request and response bodies described by
// openapi.yaml.
package oapi

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx JSON response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImageRequest is the body of the size and check operations.
type ImageRequest struct {
	ImageName string `json:"imageName"`
}

// ExportRequest is the body of the export operation. AutoPull defaults to
// true when omitted.
type ExportRequest struct {
	ImageName string `json:"imageName"`
	AutoPull  *bool  `json:"autoPull,omitempty"`
}

// WantsAutoPull resolves the AutoPull default.
func (r ExportRequest) WantsAutoPull() bool {
	return r.AutoPull == nil || *r.AutoPull
}

// SizeReport is returned by the size operation.
type SizeReport struct {
	Size        int64   `json:"size"`
	LocalExists bool    `json:"localExists"`
	HubSize     *int64  `json:"hubSize,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CheckReport is returned by the check operation.
type CheckReport struct {
	Exists bool `json:"exists"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResult struct {
	RepoName         string `json:"repoName"`
	ShortDescription string `json:"shortDescription,omitempty"`
	StarCount        int    `json:"starCount"`
	PullCount        int64  `json:"pullCount"`
	IsOfficial       bool   `json:"isOfficial"`
	IsAutomated      bool   `json:"isAutomated"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// PullEvent is one websocket frame of the pull progress stream.
type PullEvent struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Current int64  `json:"current,omitempty"`
	Total   int64  `json:"total,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an Error body with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Error{Code: code, Message: message})
}
