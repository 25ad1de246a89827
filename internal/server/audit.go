package server

import (
	"context"

	"chatrelay/internal/chatbot"
	"chatrelay/internal/storage"
)

// AuditRecorder stores chatbot exchanges in the audit database.
type AuditRecorder struct {
	DB *storage.DB
}

// RecordExchange implements chatbot.Recorder.
func (a *AuditRecorder) RecordExchange(ctx context.Context, ex chatbot.Exchange) error {
	return a.DB.InsertExchange(ctx, &storage.Exchange{
		ID:        ex.ID,
		Sender:    ex.Sender,
		Input:     ex.Input,
		Reply:     ex.Reply,
		Outcome:   string(ex.Outcome),
		Model:     ex.Model,
		Latency:   ex.Latency,
		Error:     ex.Error,
		CreatedAt: ex.CreatedAt,
	})
}
