// Package notify renders the document shown in the authorization popup. The
// document posts the flow outcome to the window that opened it and closes.
// Delivery is fire-and-forget: a closed or navigated opener drops the message.
package notify

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/widgetboard/widget-auth/internal/log"
	"github.com/widgetboard/widget-auth/internal/provider"
)

//go:embed templates/popup.html
var popupTemplateHTML string

var popupTemplate = template.Must(template.New("popup").Parse(popupTemplateHTML))

// FailureCloseDelay leaves the failure reason readable before the popup closes.
const FailureCloseDelay = 3 * time.Second

// Message is the payload posted to the opener.
type Message struct {
	Type         string `json:"type"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Error        string `json:"error,omitempty"`
	WidgetID     string `json:"widgetId,omitempty"`
}

type popupData struct {
	Title            string
	Reason           string
	Failed           bool
	Message          Message
	TargetOrigin     string
	CloseAfterMillis int64
}

// Notifier writes popup documents addressed to a single opener origin.
type Notifier struct {
	openerOrigin string
}

// New creates a Notifier that only ever posts to openerOrigin, which must be a
// bare scheme://host[:port] origin.
func New(openerOrigin string) (*Notifier, error) {
	origin, err := NormalizeOrigin(openerOrigin)
	if err != nil {
		return nil, err
	}
	return &Notifier{openerOrigin: origin}, nil
}

// NormalizeOrigin reduces raw to scheme://host[:port]. Paths are rejected rather
// than dropped so a misconfigured origin is noticed.
func NormalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing origin %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q must be absolute", raw)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("origin %q must not carry a path, query or fragment", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// OpenerOrigin returns the only origin messages are posted to.
func (n *Notifier) OpenerOrigin() string {
	return n.openerOrigin
}

// Success delivers the refresh credential of a completed grant and closes the popup immediately.
func (n *Notifier) Success(w http.ResponseWriter, cfg provider.Config, widgetID, refreshToken string) {
	n.render(w, http.StatusOK, popupData{
		Title: fmt.Sprintf("%s connected", cfg.DisplayName),
		Message: Message{
			Type:         cfg.MessageType(),
			RefreshToken: refreshToken,
			WidgetID:     widgetID,
		},
	})
}

// Failure renders reason, tells the opener the flow ended and closes after FailureCloseDelay.
func (n *Notifier) Failure(w http.ResponseWriter, status int, cfg provider.Config, widgetID, reason string) {
	n.render(w, status, popupData{
		Title:  "Authentication Failed",
		Reason: reason,
		Failed: true,
		Message: Message{
			Type:     cfg.ErrorMessageType(),
			Error:    reason,
			WidgetID: widgetID,
		},
		CloseAfterMillis: FailureCloseDelay.Milliseconds(),
	})
}

func (n *Notifier) render(w http.ResponseWriter, status int, data popupData) {
	data.TargetOrigin = n.openerOrigin

	var buf bytes.Buffer
	if err := popupTemplate.Execute(&buf, data); err != nil {
		log.LogErrorWithFields("notify", "Failed to render popup", map[string]any{
			"type":  data.Message.Type,
			"error": err.Error(),
		})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())

	log.LogTraceWithFields("notify", "Rendered popup", map[string]any{
		"type":   data.Message.Type,
		"status": status,
	})
}
