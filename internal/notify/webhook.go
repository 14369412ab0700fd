// Package notify 在收到新的联系留言时向外部 webhook 推送通知。
// webhook 地址只从配置读取。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/granito/portfolio/internal/db"
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Webhook 以 JSON POST 的方式发送通知。
type Webhook struct {
	url  string
	http httpDoer
}

type webhookPayload struct {
	Event     string    `json:"event"`
	Text      string    `json:"text"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWebhook 创建 webhook 通知器；url 为空时返回 nil。
func NewWebhook(url string, timeout time.Duration) *Webhook {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, http: &http.Client{Timeout: timeout}}
}

// SetHTTPClient 替换底层 HTTP 客户端。
func (w *Webhook) SetHTTPClient(client httpDoer) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	w.http = client
}

// NotifyContact 发送一条新留言通知。
func (w *Webhook) NotifyContact(ctx context.Context, message db.ContactMessage) error {
	payload := webhookPayload{
		Event:     "contact.created",
		Text:      fmt.Sprintf("New message from %s <%s>: %s", message.Name, message.Email, message.Subject),
		Name:      message.Name,
		Email:     message.Email,
		Subject:   message.Subject,
		Message:   message.Message,
		Timestamp: message.Timestamp,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
