package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"docintake/internal/credential"
	"docintake/internal/model"
	"docintake/internal/upstream"
)

// SystemName identifies the core-banking system in DownstreamError values.
const SystemName = "core-banking"

const maxDetailBytes = 512

// Notifier tells the core-banking system that a document was filed.
type Notifier interface {
	// Notify sends n once. Failures are reported as *model.DownstreamError; nothing is retried.
	Notify(ctx context.Context, n model.Notification) (model.Ack, error)
}

type ackBody struct {
	Header struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"header"`
	ID string `json:"id"`
}

type bankingNotifier struct {
	dispatcher upstream.Dispatcher
	creds      credential.Source
	path       string
	logger     *slog.Logger
}

// NewBankingNotifier posts notifications to path on the banking API through dispatcher.
// When the API rejects the credential, it is invalidated in creds so the next call
// acquires a fresh one.
func NewBankingNotifier(dispatcher upstream.Dispatcher, creds credential.Source, path string, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &bankingNotifier{dispatcher: dispatcher, creds: creds, path: path, logger: logger}
}

func (b *bankingNotifier) Notify(ctx context.Context, n model.Notification) (model.Ack, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return model.Ack{}, &model.DownstreamError{System: SystemName, Detail: "encode notification", Err: err}
	}

	resp, err := b.dispatcher.Dispatch(ctx, upstream.ProxyRequest{
		Method:      http.MethodPost,
		SubPath:     b.path,
		Body:        payload,
		ContentType: "application/json",
	})
	if err != nil {
		return model.Ack{}, &model.DownstreamError{System: SystemName, Detail: "send notification", Err: err}
	}

	if !resp.OK() {
		if resp.StatusCode == http.StatusUnauthorized && b.creds != nil {
			b.creds.Invalidate(resp.IssuedWith)
		}
		return model.Ack{}, &model.DownstreamError{
			System: SystemName,
			Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(resp.Body)),
		}
	}

	ack := model.Ack{StatusCode: resp.StatusCode}
	var body ackBody
	if json.Unmarshal(resp.Body, &body) == nil {
		ack.Reference = body.Header.ID
		if ack.Reference == "" {
			ack.Reference = body.ID
		}
	}

	b.logger.Info("core banking notified",
		"document_id", n.DocumentID,
		"customer_id", n.CustomerID,
		"reference", ack.Reference,
	)
	return ack, nil
}

func truncate(b []byte) string {
	if len(b) > maxDetailBytes {
		return string(b[:maxDetailBytes]) + "..."
	}
	return string(b)
}
