// Package consumer is the broker-facing ingress and egress of the service:
// it decodes upload-completed envelopes, runs each through the analysis
// pipeline under bounded concurrency, publishes typed outcomes, and
// acknowledges messages only after their outcome is durably published.
package consumer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/maliev/geometry-service/internal/analysis"
	"github.com/maliev/geometry-service/internal/logging"
)

// Message type URNs, MassTransit style.
const (
	typeFileAnalyzed       = "urn:message:Maliev.GeometryService.Api.Events:FileAnalyzedEvent"
	typeFileAnalysisFailed = "urn:message:Maliev.GeometryService.Api.Events:FileAnalysisFailedEvent"
)

// Envelope is the MassTransit-shaped wrapper used on both directions of
// the wire.
type Envelope struct {
	MessageID      string          `json:"messageId"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	ConversationID string          `json:"conversationId,omitempty"`
	MessageType    []string        `json:"messageType"`
	Message        json.RawMessage `json:"message"`
}

// UploadCompleted is the inbound payload from the upload service.
type UploadCompleted struct {
	UploadID      string    `json:"uploadId"`
	FileID        string    `json:"fileId"`
	ServiceID     string    `json:"serviceId"`
	FileName      string    `json:"fileName"`
	StorageBucket string    `json:"storageBucket"`
	StorageKey    string    `json:"storageKey"`
	StoragePath   string    `json:"storagePath"`
	ContentType   string    `json:"contentType"`
	FileSize      int64     `json:"fileSize"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

// fileAnalyzed is the outbound success payload.
type fileAnalyzed struct {
	FileID      string                   `json:"fileId"`
	Metrics     analysis.GeometryMetrics `json:"metrics"`
	ProcessedAt time.Time                `json:"processedAt"`
}

// fileAnalysisFailed is the outbound failure payload.
type fileAnalysisFailed struct {
	FileID    string `json:"fileId"`
	ErrorCode string `json:"errorCode"`
	Details   string `json:"details,omitempty"`
}

// JobFromEnvelope decodes and validates an inbound envelope into an
// analysis job. Validation failures mean the envelope can never succeed
// and must be acknowledged without running the pipeline.
func JobFromEnvelope(raw []byte, defaultBucket string) (*analysis.Job, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.MessageID == "" {
		return nil, fmt.Errorf("envelope missing messageId")
	}

	var msg UploadCompleted
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return nil, fmt.Errorf("decode upload message: %w", err)
	}

	fileID := msg.FileID
	if fileID == "" {
		fileID = msg.UploadID
	}
	if fileID == "" {
		return nil, fmt.Errorf("message missing fileId and uploadId")
	}

	key := msg.StorageKey
	if key == "" {
		key = msg.StoragePath
	}
	if key == "" {
		return nil, fmt.Errorf("message missing storageKey")
	}

	bucket := msg.StorageBucket
	if bucket == "" {
		bucket = defaultBucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("message missing storageBucket and no default configured")
	}

	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = logging.GenerateCorrelationID()
	}

	return &analysis.Job{
		FileID:        fileID,
		Bucket:        bucket,
		Key:           key,
		ContentType:   msg.ContentType,
		FileName:      msg.FileName,
		FileSize:      msg.FileSize,
		UploadedAt:    msg.UploadedAt,
		CorrelationID: correlationID,
	}, nil
}
