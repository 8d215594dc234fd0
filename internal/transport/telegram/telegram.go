// Package telegram implements the outbound-only Telegram sender used by
// internal/outbound's drain loop. Unlike the teacher's channel/telegram
// package, it never polls updates or routes commands — it is a pure
// Transport implementation.
package telegram

import (
	"context"
	"fmt"
	"os"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/marcomuellner/otto/internal/outbound"
)

var _ outbound.Transport = (*Sender)(nil)

var parseMode = models.ParseModeMarkdown

// Sender is the concrete outbound.Transport backed by a bot token.
type Sender struct {
	bot *bot.Bot
}

func NewSender(token string) (*Sender, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Sender{bot: b}, nil
}

// SendMessage sends text with markdown parsing, falling back to plain text
// on a parse failure, matching the teacher's SendMessage fallback shape.
func (s *Sender) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: parseMode,
	})
	if err != nil {
		_, err = s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
	}
	return err
}

func (s *Sender) SendDocument(ctx context.Context, chatID int64, att outbound.Attachment) error {
	f, err := os.Open(att.FilePath)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	filename := att.Filename
	if filename == "" {
		filename = "document"
	}

	_, err = s.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filename, Data: f},
		Caption:  att.Caption,
	})
	if err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}

func (s *Sender) SendPhoto(ctx context.Context, chatID int64, att outbound.Attachment) error {
	f, err := os.Open(att.FilePath)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	filename := att.Filename
	if filename == "" {
		filename = "photo.jpg"
	}

	_, err = s.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: filename, Data: f},
		Caption: att.Caption,
	})
	if err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}
