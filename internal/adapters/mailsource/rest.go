package mailsource

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/core"
)

// restMessage is the mailbox API wire representation of one message.
type restMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type restMessagesResponse struct {
	Messages []restMessage `json:"messages"`
}

type restErrorResponse struct {
	Error string `json:"error"`
}

// RESTMailSource fetches messages from a mailbox HTTP API. Each call
// authenticates with the account's credential as a bearer token and
// pages from the supplied cursor.
type RESTMailSource struct {
	client   *resty.Client
	logger   *zap.Logger
	pageSize int
}

// NewRESTMailSource creates a mail source against the given API base URL.
func NewRESTMailSource(baseURL string, timeout time.Duration, pageSize int, logger *zap.Logger) *RESTMailSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	if pageSize <= 0 {
		pageSize = 100
	}

	return &RESTMailSource{
		client:   client,
		logger:   logger,
		pageSize: pageSize,
	}
}

// Fetch returns messages for the account newer than cursor, oldest
// first. Connectivity and authentication failures are wrapped as
// transport errors so callers can back off rather than fail the account.
func (s *RESTMailSource) Fetch(ctx context.Context, account *core.AccountConfig, cursor string) ([]*core.InboundMessage, error) {
	var result restMessagesResponse
	var apiErr restErrorResponse

	req := s.client.R().
		SetContext(ctx).
		SetAuthToken(account.CredentialSecret).
		SetQueryParam("mailbox", account.Email).
		SetQueryParam("limit", fmt.Sprintf("%d", s.pageSize)).
		SetResult(&result).
		SetError(&apiErr)
	if cursor != "" {
		req.SetQueryParam("after", cursor)
	}

	resp, err := req.Get("/v1/messages")
	if err != nil {
		return nil, core.NewTransportError("fetch messages", err)
	}
	if resp.IsError() {
		err := fmt.Errorf("mailbox API returned %d: %s", resp.StatusCode(), apiErr.Error)
		if resp.StatusCode() >= 500 || resp.StatusCode() == 401 || resp.StatusCode() == 429 {
			return nil, core.NewTransportError("fetch messages", err)
		}
		return nil, err
	}

	messages := make([]*core.InboundMessage, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, &core.InboundMessage{
			NativeID:     m.ID,
			Sender:       m.Sender,
			RawTimestamp: m.Timestamp,
			Subject:      m.Subject,
			Text:         m.Body,
		})
	}

	s.logger.Debug("Fetched messages from mailbox API",
		zap.String("account", account.Email),
		zap.String("cursor", cursor),
		zap.Int("count", len(messages)))

	return messages, nil
}
