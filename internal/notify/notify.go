// Package notify posts task-completion events to an optional webhook,
// swallowing delivery failures with a warning per §6 "Notification
// hook".
package notify

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

// payload is the JSON body posted to the notify URL.
type payload struct {
	Token          string `json:"token"`
	Message        string `json:"message"`
	AttachmentName string `json:"attachment_name,omitempty"`
	AttachmentData string `json:"attachment_data,omitempty"`
}

// Notifier posts messages to a `notify: <URL>/<token>` destination.
type Notifier struct {
	url    string
	token  string
	client *retryablehttp.Client
	logger hclog.Logger
}

// New parses a `notify` config value of the form "<URL>/<token>" and
// returns a Notifier, or nil if spec is empty.
func New(spec string, logger hclog.Logger) *Notifier {
	if spec == "" {
		return nil
	}
	idx := strings.LastIndex(spec, "/")
	url, token := spec, ""
	if idx >= 0 {
		url, token = spec[:idx], spec[idx+1:]
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil

	return &Notifier{url: url, token: token, client: client, logger: logger.Named("notify")}
}

// Notify posts a plain message.
func (n *Notifier) Notify(message string) {
	n.send(payload{Token: n.token, Message: message})
}

// NotifyWithAttachment posts a message with a base64-encoded
// attachment.
func (n *Notifier) NotifyWithAttachment(message, attachmentName string, attachment []byte) {
	n.send(payload{
		Token:          n.token,
		Message:        message,
		AttachmentName: attachmentName,
		AttachmentData: base64.StdEncoding.EncodeToString(attachment),
	})
}

func (n *Notifier) send(p payload) {
	if n == nil {
		return
	}
	body, err := json.Marshal(p)
	if err != nil {
		n.logger.Warn("failed to encode notification payload", "error", err)
		return
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("failed to build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.client
	client.HTTPClient.Timeout = 10 * time.Second

	resp, err := client.Do(req)
	if err != nil {
		n.logger.Warn("notification delivery failed", "url", n.url, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("notification endpoint rejected payload", "url", n.url, "status", resp.StatusCode)
	}
}
