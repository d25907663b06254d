package model

import (
	"io"
	"time"
)

// UploadRequest is a single document handed over by the file intake boundary.
// It is consumed once by the dispatch service and never mutated.
type UploadRequest struct {
	CustomerID   string
	DocumentType string
	File         io.Reader
	FileName     string
	ContentType  string
	DeclaredSize int64
	Inputter     string
	Timestamp    time.Time
}

// Outcome classifies how far a dispatch got.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial"
	OutcomeFailure        Outcome = "error"
)

// DispatchResult is the request-scoped result of a document dispatch.
type DispatchResult struct {
	DocumentID      string
	ContentSystemID string
	Outcome         Outcome
	FailureReason   string
	// Cause is the downstream error behind a Failure or PartialFailure outcome.
	Cause error

	FileName     string
	Size         int64
	DocumentType string
	CustomerID   string
}

// ContentMetadata travels with the file bytes to the content store.
type ContentMetadata struct {
	DocumentID   string
	CustomerID   string
	DocumentType string
	FileName     string
	ContentType  string
	Size         int64
	Inputter     string
	Timestamp    time.Time
}

// Notification tells the core-banking system that a document was filed.
type Notification struct {
	DocumentID      string `json:"documentId"`
	CustomerID      string `json:"customerId"`
	DocumentType    string `json:"documentType"`
	ContentSystemID string `json:"contentSystemId,omitempty"`
}

// Ack is the core-banking acknowledgement of a Notification.
type Ack struct {
	StatusCode int
	Reference  string
}
