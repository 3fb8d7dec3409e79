package cds

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/forcing-downloader/internal/domain"
)

// Retrieve API payloads.

type executeRequest struct {
	Inputs domain.Params `json:"inputs"`
}

type jobStatus struct {
	JobID   string `json:"jobID"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (j jobStatus) reason() string {
	return strings.TrimSpace(j.Message)
}

type resultsResponse struct {
	Asset struct {
		Value assetValue `json:"value"`
	} `json:"asset"`
}

type assetValue struct {
	Href string `json:"href"`
	Type string `json:"type"`
	Size int64  `json:"file:size"`
}

// problem is the RFC 7807 style error body the API returns.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (p problem) String() string {
	switch {
	case p.Title != "" && p.Detail != "":
		return p.Title + ": " + p.Detail
	case p.Title != "":
		return p.Title
	default:
		return p.Detail
	}
}

// apiError is a non-2xx reply from the API.
type apiError struct {
	status  int
	body    string
	problem problem
}

func (e *apiError) Error() string {
	if msg := e.problem.String(); msg != "" {
		return fmt.Sprintf("cds API error: status %d: %s", e.status, msg)
	}
	return fmt.Sprintf("cds API error: status %d: %s", e.status, e.body)
}
