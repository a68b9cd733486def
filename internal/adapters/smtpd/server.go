package smtpd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/core"
)

// Server is an SMTP listener that ingests delivered mail directly,
// bypassing the polling loop. Each accepted message is matched to a
// monitored account by recipient address and fed through the same
// classification path as polled mail.
type Server struct {
	ingest     *core.IngestionService
	configs    core.ConfigStore
	logger     *zap.Logger
	listenAddr string
	domain     string
	maxBytes   int64
	server     *smtp.Server
}

// NewServer creates an SMTP ingestion server.
func NewServer(
	ingest *core.IngestionService,
	configs core.ConfigStore,
	logger *zap.Logger,
	listenAddr string,
	domain string,
	maxBytes int64,
) *Server {
	return &Server{
		ingest:     ingest,
		configs:    configs,
		logger:     logger,
		listenAddr: listenAddr,
		domain:     domain,
		maxBytes:   maxBytes,
	}
}

// Start starts the SMTP server
func (s *Server) Start() error {
	s.server = smtp.NewServer(&smtpBackend{srv: s})

	s.server.Addr = s.listenAddr
	s.server.Domain = s.domain
	s.server.ReadTimeout = 30 * time.Second
	s.server.WriteTimeout = 30 * time.Second
	s.server.MaxMessageBytes = s.maxBytes
	s.server.MaxRecipients = 50
	s.server.AllowInsecureAuth = true

	s.logger.Info("SMTP ingestion listener starting", zap.String("address", s.listenAddr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				s.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// accountForRecipient matches a recipient address to a monitored
// account. Matching is case-insensitive on the mailbox address.
func (s *Server) accountForRecipient(ctx context.Context, recipient string) (*core.AccountConfig, error) {
	configs, err := s.configs.ListActiveConfigs(ctx)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if strings.EqualFold(cfg.Email, recipient) {
			return cfg, nil
		}
	}
	return nil, core.ErrNotConfigured
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	srv *Server
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		srv:        b.srv,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	srv        *Server
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed for ingestion)
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data handles the email data
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.srv.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.srv.logger.Error("Failed to parse email message", zap.Error(err))
		return fmt.Errorf("550 Malformed message: %v", err)
	}

	textContent, err := extractTextFromMessage(msg)
	if err != nil {
		s.srv.logger.Error("Failed to extract text content", zap.Error(err))
		return err
	}

	subject := msg.Header.Get("Subject")
	if decoded, err := decodeEncodedHeader(subject); err == nil {
		subject = decoded
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ingestedAny := false
	for _, recipient := range s.recipients {
		account, err := s.srv.accountForRecipient(ctx, recipient)
		if err != nil {
			s.srv.logger.Debug("No monitored account for recipient",
				zap.String("recipient", recipient))
			continue
		}

		inbound := &core.InboundMessage{
			NativeID:     msg.Header.Get("Message-Id"),
			Sender:       s.sender,
			RawTimestamp: msg.Header.Get("Date"),
			Subject:      subject,
			Text:         textContent,
		}

		if _, _, err := s.srv.ingest.Ingest(ctx, account, inbound); err != nil {
			s.srv.logger.Error("Failed to ingest delivered message",
				zap.String("recipient", recipient),
				zap.Error(err))
			// Temporary failure so the upstream MTA retries delivery
			return fmt.Errorf("451 Ingestion failed, try again later")
		}
		ingestedAny = true
	}

	if !ingestedAny {
		return fmt.Errorf("550 No monitored mailbox among recipients")
	}

	s.srv.logger.Info("Ingested delivered message",
		zap.String("from", s.sender),
		zap.Int("recipients", len(s.recipients)))

	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
