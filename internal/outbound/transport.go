package outbound

import "context"

// Attachment describes staged media accompanying a document/photo send.
type Attachment struct {
	FilePath string
	Filename string
	Caption  string
}

// Transport is the external delivery boundary: internal/transport/telegram
// is the concrete, outbound-only implementation.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, att Attachment) error
	SendPhoto(ctx context.Context, chatID int64, att Attachment) error
}
