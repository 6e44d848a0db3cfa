package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "gridshift API",
		Version:     "v1",
		Description: "Carbon-aware job orchestrator: job intake, scheduling decisions, and explainability",
		Endpoints: []endpointInfo{
			{"/api/v1/jobs", []string{"GET", "POST"}, "Submit jobs and list them (status filter, pagination)"},
			{"/api/v1/jobs/{id}", []string{"GET"}, "Single job detail"},
			{"/api/v1/jobs/{id}/decision", []string{"GET"}, "Why a job got its mode: rule id, reason, carbon reading, deadline"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
