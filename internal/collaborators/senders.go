package collaborators

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RealZimboGuy/leadflow/internal/domain"
	"github.com/RealZimboGuy/leadflow/internal/engine"
	"github.com/RealZimboGuy/leadflow/internal/util"
)

// Registry maps channel names to senders.
type Registry struct {
	mu      sync.RWMutex
	senders map[string]engine.Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: map[string]engine.Sender{}}
}

func (r *Registry) Register(channel string, s engine.Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channel] = s
}

func (r *Registry) Lookup(channel string) (engine.Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[channel]
	return s, ok
}

func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}

// LogSender only logs the message. Used for channels without a provider in
// development setups.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, m *domain.OutboxMessage) (string, error) {
	id := uuid.NewString()
	slog.InfoContext(ctx, "Message delivered to log", "message_id", m.ID, "channel", m.Channel, "to", m.To, "provider_message_id", id)
	return id, nil
}

// WebhookRequest is the body posted to the delivery webhook.
type WebhookRequest struct {
	MessageID int64           `json:"messageId"`
	TenantID  string          `json:"tenantId"`
	RunID     int64           `json:"runId"`
	Channel   string          `json:"channel"`
	To        string          `json:"to"`
	Payload   json.RawMessage `json:"payload"`
}

type webhookResponse struct {
	MessageID string `json:"messageId"`
}

// WebhookSender hands messages to an external delivery service over HTTP.
// The service answers with the provider's message id.
type WebhookSender struct {
	URL        string
	HTTPClient *http.Client
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{URL: url, HTTPClient: &http.Client{Timeout: 15 * time.Second}}
}

func (s *WebhookSender) Send(ctx context.Context, m *domain.OutboxMessage) (string, error) {
	payload := json.RawMessage(m.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	req := WebhookRequest{MessageID: m.ID, TenantID: m.TenantID, RunID: m.RunID, Channel: m.Channel, To: m.To, Payload: payload}
	resp, err := util.PostJSON[webhookResponse](ctx, s.HTTPClient, s.URL, map[string]string{"Idempotency-Key": idempotencyKey(m)}, req)
	if err != nil {
		return "", err
	}
	if resp.MessageID == "" {
		return "", errors.New("webhook response has no messageId")
	}
	return resp.MessageID, nil
}

// a message is unique per step, so the step id identifies redeliveries
func idempotencyKey(m *domain.OutboxMessage) string {
	return "leadflow-step-" + strconv.FormatInt(m.StepID, 10)
}
