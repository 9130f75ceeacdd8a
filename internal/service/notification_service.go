package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/events"
)

// NotificationService mirrors lifecycle events to an optional external
// webhook. Delivery is best effort: failures are logged and never feed back
// into the lifecycle.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	client     *http.Client
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// RegisterHandlers subscribes to every lifecycle event type.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketOpened,
		events.EventTicketClaimed,
		events.EventCloseInitiated,
		events.EventRatingRecorded,
		events.EventTicketClosed,
		events.EventTranscriptArchived,
	} {
		n.dispatcher.Subscribe(eventType, n.deliver)
	}
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}

	n.logger.Debug("event mirrored to webhook",
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID))
	return nil
}
