package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
	"github.com/BTreeMap/SleepAdvisor/internal/twiliowhatsapp"
	twilioClient "github.com/twilio/twilio-go/client"
)

// emptyTwiML acknowledges a webhook without sending an automatic reply.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioService implements Service using the Twilio API.
// Inbound messages arrive through TwilioWebhookHandler.
type TwilioService struct {
	*eventSink
	client    twiliowhatsapp.Sender
	validator *twilioClient.RequestValidator
	publicURL string
}

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithSignatureValidation rejects webhook calls whose X-Twilio-Signature does not
// match publicURL signed with authToken.
func WithSignatureValidation(authToken, publicURL string) TwilioOption {
	return func(s *TwilioService) {
		v := twilioClient.NewRequestValidator(authToken)
		s.validator = &v
		s.publicURL = publicURL
	}
}

// NewTwilioService creates a new TwilioService with the given sender.
func NewTwilioService(client twiliowhatsapp.Sender, opts ...TwilioOption) *TwilioService {
	service := &TwilioService{
		eventSink: newEventSink(),
		client:    client,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// ValidateAndCanonicalizeRecipient strips the whatsapp: prefix and non-digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(strings.TrimPrefix(recipient, twiliowhatsapp.WhatsAppPrefix))
}

// Start is a no-op; inbound traffic is pushed by the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the events channel.
func (s *TwilioService) Stop() error {
	s.close()
	slog.Info("TwilioService stopped")
	return nil
}

// SendMessage sends a message via Twilio and returns the message SID as handle.
func (s *TwilioService) SendMessage(ctx context.Context, to, body string) (models.MessageHandle, error) {
	if s.isStopped() {
		return "", ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return "", err
	}
	sid, err := s.client.SendMessage(ctx, canonicalTo, body)
	if err != nil {
		return "", err
	}
	return models.MessageHandle(sid), nil
}

// SendChoices sends body followed by numbered options.
func (s *TwilioService) SendChoices(ctx context.Context, to, body string, choices []models.Choice) (models.MessageHandle, error) {
	return s.SendMessage(ctx, to, FormatChoices(body, choices))
}

// DeleteMessage is a no-op: Twilio cannot retract a delivered WhatsApp message.
func (s *TwilioService) DeleteMessage(ctx context.Context, to string, handle models.MessageHandle) error {
	slog.Debug("TwilioService DeleteMessage ignored (unsupported)", "to", to, "sid", handle)
	return nil
}

// AnswerCallback sends text as a regular message when non-empty.
func (s *TwilioService) AnswerCallback(ctx context.Context, to, callbackID, text string) error {
	if text == "" {
		return nil
	}
	_, err := s.SendMessage(ctx, to, text)
	return err
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits them as events.
// A ButtonPayload turns the message into a choice event.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !s.validator.Validate(s.publicURL, params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("Twilio webhook signature mismatch", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	payload := r.FormValue("ButtonPayload")
	sid := r.FormValue("MessageSid")

	if from == "" || (body == "" && payload == "") {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	userID, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid sender: %v", err), http.StatusBadRequest)
		return
	}

	event := models.Event{
		Kind:      models.EventText,
		UserID:    userID,
		MessageID: sid,
		Text:      body,
		Time:      time.Now().Unix(),
	}
	if payload != "" {
		event.Kind = models.EventChoice
		event.Data = payload
		event.CallbackID = sid
	}
	slog.Debug("Inbound WhatsApp message from Twilio", "user_id", userID, "kind", event.Kind)

	if !s.emit(event) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, emptyTwiML)
}
