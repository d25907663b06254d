package content

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"docintake/internal/model"
	"docintake/internal/storage"
)

// SystemName identifies the content store in DownstreamError values.
const SystemName = "content-store"

// Adapter delivers a document to the content-management system.
type Adapter interface {
	// Store uploads r with its metadata and returns the content-system identifier.
	// Failures are reported as *model.DownstreamError; nothing is retried.
	Store(ctx context.Context, r io.Reader, meta model.ContentMetadata) (string, error)
}

type objectStoreAdapter struct {
	store   storage.Storage
	timeout time.Duration
	logger  *slog.Logger
}

// NewObjectStoreAdapter returns an Adapter writing documents to object storage.
// A positive timeout bounds each upload.
func NewObjectStoreAdapter(store storage.Storage, timeout time.Duration, logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &objectStoreAdapter{store: store, timeout: timeout, logger: logger}
}

func (a *objectStoreAdapter) Store(ctx context.Context, r io.Reader, meta model.ContentMetadata) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	key := ObjectKey(meta)
	ct := meta.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	info, err := a.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        meta.Size,
		ContentType: ct,
		Metadata:    objectMetadata(meta),
	})
	if err != nil {
		return "", &model.DownstreamError{System: SystemName, Detail: "put object " + key, Err: err}
	}
	if info.Key == "" {
		info.Key = key
	}

	a.logger.Info("document stored",
		"document_id", meta.DocumentID,
		"key", info.Key,
		"size", info.Size,
		"etag", info.ETag,
	)
	return info.Key, nil
}

// ObjectKey places a document under its customer: documents/<customer>/<document id><ext>.
func ObjectKey(meta model.ContentMetadata) string {
	ext := strings.ToLower(filepath.Ext(meta.FileName))
	return path.Join("documents", keySegment(meta.CustomerID), meta.DocumentID+ext)
}

// keySegment escapes s into a single path segment. Dot-only ids are encoded so
// path cleaning cannot drop the segment or climb out of the prefix.
func keySegment(s string) string {
	seg := url.PathEscape(s)
	if strings.Trim(seg, ".") == "" {
		seg = strings.ReplaceAll(seg, ".", "%2E")
	}
	return seg
}

func objectMetadata(meta model.ContentMetadata) map[string]string {
	md := map[string]string{
		"document-id":       meta.DocumentID,
		"customer-id":       meta.CustomerID,
		"document-type":     meta.DocumentType,
		"original-filename": url.QueryEscape(meta.FileName),
	}
	if meta.Inputter != "" {
		md["inputter"] = url.QueryEscape(meta.Inputter)
	}
	if !meta.Timestamp.IsZero() {
		md["timestamp"] = meta.Timestamp.UTC().Format(time.RFC3339)
	}
	return md
}
