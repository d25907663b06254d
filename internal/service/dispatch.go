package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docintake/internal/content"
	"docintake/internal/metrics"
	"docintake/internal/model"
	"docintake/internal/notify"
)

const tracerName = "docintake/internal/service"

// DispatchService files uploaded documents with the content store and the core-banking system.
type DispatchService interface {
	// Submit validates req, assigns a document id and delivers the file to the content
	// store, then notifies core banking. Invalid input yields *model.ValidationError or
	// *model.PayloadTooLargeError before anything is sent. Otherwise a result is always
	// returned; its Outcome tells whether delivery failed, succeeded, or succeeded
	// without the banking notification.
	Submit(ctx context.Context, req model.UploadRequest) (*model.DispatchResult, error)
}

// DispatchConfig holds the intake limits enforced by Submit.
type DispatchConfig struct {
	MaxBytes int64
	// AllowedTypes restricts document types when non-empty.
	AllowedTypes []string
}

type dispatchService struct {
	content  content.Adapter
	notifier notify.Notifier
	ids      *IDGenerator
	maxBytes int64
	allowed  map[string]struct{}
	logger   *slog.Logger
	metrics  *metrics.Gateway
	tracer   trace.Tracer
	now      func() time.Time
}

// NewDispatchService constructs a DispatchService.
func NewDispatchService(adapter content.Adapter, notifier notify.Notifier, cfg DispatchConfig, logger *slog.Logger, m *metrics.Gateway) DispatchService {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[t] = struct{}{}
	}
	return &dispatchService{
		content:  adapter,
		notifier: notifier,
		ids:      NewIDGenerator(),
		maxBytes: cfg.MaxBytes,
		allowed:  allowed,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

func (s *dispatchService) Submit(ctx context.Context, req model.UploadRequest) (*model.DispatchResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	id := s.ids.Next()
	customerID := strings.TrimSpace(req.CustomerID)
	documentType := strings.TrimSpace(req.DocumentType)
	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.now().UTC()
	}

	ctx, span := s.tracer.Start(ctx, "dispatch.submit", trace.WithAttributes(
		attribute.String("document.id", id),
		attribute.String("document.type", documentType),
		attribute.Int64("document.size", req.DeclaredSize),
	))
	defer span.End()

	result := &model.DispatchResult{
		DocumentID:   id,
		FileName:     req.FileName,
		Size:         req.DeclaredSize,
		DocumentType: documentType,
		CustomerID:   customerID,
	}
	log := s.logger.With("document_id", id, "customer_id", customerID)

	contentID, err := s.store(ctx, req, model.ContentMetadata{
		DocumentID:   id,
		CustomerID:   customerID,
		DocumentType: documentType,
		FileName:     req.FileName,
		ContentType:  req.ContentType,
		Size:         req.DeclaredSize,
		Inputter:     req.Inputter,
		Timestamp:    ts,
	})
	if err != nil {
		result.Outcome = model.OutcomeFailure
		result.FailureReason = "content delivery failed: " + err.Error()
		result.Cause = err
		span.SetStatus(codes.Error, "content delivery failed")
		s.metrics.Dispatched(string(result.Outcome))
		log.Error("document dispatch failed", "error", err)
		return result, nil
	}
	result.ContentSystemID = contentID

	if _, err := s.notify(ctx, model.Notification{
		DocumentID:      id,
		CustomerID:      customerID,
		DocumentType:    documentType,
		ContentSystemID: contentID,
	}); err != nil {
		result.Outcome = model.OutcomePartialFailure
		result.FailureReason = "core banking notification failed: " + err.Error()
		result.Cause = err
		span.SetAttributes(attribute.Bool("dispatch.partial", true))
		s.metrics.Dispatched(string(result.Outcome))
		log.Warn("document stored without banking notification", "content_id", contentID, "error", err)
		return result, nil
	}

	result.Outcome = model.OutcomeSuccess
	s.metrics.Dispatched(string(result.Outcome))
	log.Info("document dispatched", "content_id", contentID)
	return result, nil
}

func (s *dispatchService) store(ctx context.Context, req model.UploadRequest, meta model.ContentMetadata) (string, error) {
	ctx, span := s.tracer.Start(ctx, "dispatch.content_store")
	defer span.End()

	id, err := s.content.Store(ctx, req.File, meta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return id, err
}

func (s *dispatchService) notify(ctx context.Context, n model.Notification) (model.Ack, error) {
	ctx, span := s.tracer.Start(ctx, "dispatch.banking_notify")
	defer span.End()

	ack, err := s.notifier.Notify(ctx, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ack, err
}

func (s *dispatchService) validate(req model.UploadRequest) error {
	if strings.TrimSpace(req.CustomerID) == "" {
		return &model.ValidationError{Field: "customerId", Message: "Customer ID is required"}
	}
	documentType := strings.TrimSpace(req.DocumentType)
	if documentType == "" {
		return &model.ValidationError{Field: "documentType", Message: "Document type is required"}
	}
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[documentType]; !ok {
			return &model.ValidationError{Field: "documentType", Message: "Unsupported document type"}
		}
	}
	if req.File == nil {
		return &model.ValidationError{Field: "file", Message: "No file uploaded"}
	}
	if s.maxBytes > 0 && req.DeclaredSize > s.maxBytes {
		return &model.PayloadTooLargeError{Size: req.DeclaredSize, Limit: s.maxBytes}
	}
	return nil
}
