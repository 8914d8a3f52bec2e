// Package filter is the SMTP ingestion frontend. It sits between the MTA and
// the delivery port, scans each message, stamps the verdict headers, and
// either forwards or rejects.
package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

// SMTPFilter implements an MTA content filter over the scan service
type SMTPFilter struct {
	service       *core.ScanService
	logger        *zap.Logger
	listenAddr    string
	server        *smtp.Server
	blockHighRisk bool
	statusHeader  string
	scoreHeader   string
	reasonHeader  string
	upstreamAddr  string
	upstreamPort  int
	upstreamOn    bool
	subjectPrefix string
	modifySubject bool
	defaultPlan   string
	defaultLocale string
}

// NewSMTPFilter creates a new SMTP content filter
func NewSMTPFilter(
	service *core.ScanService,
	logger *zap.Logger,
	listenAddr string,
	blockHighRisk bool,
	statusHeader string,
	scoreHeader string,
	reasonHeader string,
	upstreamAddr string,
	upstreamPort int,
	upstreamOn bool,
	subjectPrefix string,
	modifySubject bool,
	defaultPlan string,
	defaultLocale string,
) *SMTPFilter {
	if subjectPrefix == "" && modifySubject {
		subjectPrefix = "[**PHISH**] "
	}

	return &SMTPFilter{
		service:       service,
		logger:        logger,
		listenAddr:    listenAddr,
		blockHighRisk: blockHighRisk,
		statusHeader:  statusHeader,
		scoreHeader:   scoreHeader,
		reasonHeader:  reasonHeader,
		upstreamAddr:  upstreamAddr,
		upstreamPort:  upstreamPort,
		upstreamOn:    upstreamOn,
		subjectPrefix: subjectPrefix,
		modifySubject: modifySubject,
		defaultPlan:   defaultPlan,
		defaultLocale: defaultLocale,
	}
}

// Start starts the SMTP filter service
func (f *SMTPFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("SMTP filter starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				f.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP filter service
func (f *SMTPFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// sendUpstream relays the stamped message to the delivery port
func (f *SMTPFilter) sendUpstream(sender string, recipients []string, emailData []byte) error {
	upstreamAddr := fmt.Sprintf("%s:%d", f.upstreamAddr, f.upstreamPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", upstreamAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect upstream: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return nil
}

// userForRecipients builds the scan principal from the first recipient. The
// SMTP path has no account database, so plan and locale come from config.
func (f *SMTPFilter) userForRecipients(recipients []string) core.UserContext {
	email := ""
	if len(recipients) > 0 {
		email = recipients[0]
	}
	return core.UserContext{
		UserID: email,
		Email:  email,
		Plan:   f.defaultPlan,
		Locale: f.defaultLocale,
	}
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *SMTPFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		filter:     b.filter,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *SMTPFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed for the filter)
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

// Data scans the message, stamps verdict headers, and relays or rejects
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.filter.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	msg, err := parseMessage(parsed, s.sender, s.recipients)
	if err != nil {
		s.filter.logger.Error("Failed to extract message content", zap.Error(err))
		return err
	}

	senderDomain := "unknown"
	if parts := strings.Split(msg.From, "@"); len(parts) == 2 {
		senderDomain = parts[1]
	}

	user := s.filter.userForRecipients(s.recipients)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, scanErr := s.filter.service.Scan(ctx, msg, user)
	if scanErr != nil {
		s.filter.logger.Error("Failed to scan email",
			zap.Error(scanErr),
			zap.String("sender", msg.From),
			zap.String("sender_domain", senderDomain))

		// Deliver unscanned rather than bounce on an internal failure
		result = &core.FusedResult{
			MessageID: msg.ID,
			Score:     0.0,
			Tier:      core.TierSafe,
			Reasons:   []string{fmt.Sprintf("Error during scan: %v", scanErr)},
			ScannedAt: time.Now().UTC(),
		}
	} else {
		if err := s.filter.service.RecordOutcome(ctx, msg, result, user); err != nil {
			s.filter.logger.Warn("Failed to record scan outcome",
				zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	if result.Quarantine && s.filter.blockHighRisk && scanErr == nil {
		s.filter.logger.Info("Rejecting high-risk email",
			zap.String("from", msg.From),
			zap.String("sender_domain", senderDomain),
			zap.Float64("score", result.Score),
			zap.Strings("reasons", result.Reasons))
		return fmt.Errorf("550 Rejected as phishing (score: %.2f)", result.Score)
	}

	var modified bytes.Buffer
	fmt.Fprintf(&modified, "%s: %s\r\n", s.filter.statusHeader, result.Tier)
	fmt.Fprintf(&modified, "%s: %.2f\r\n", s.filter.scoreHeader, result.Score)
	fmt.Fprintf(&modified, "%s: %s\r\n", s.filter.reasonHeader, strings.Join(result.Reasons, "; "))
	if scanErr != nil {
		fmt.Fprintf(&modified, "X-Phish-Scan-Error: %s\r\n", scanErr.Error())
	}

	prefixSubject := result.Tier == core.TierHigh && s.filter.modifySubject && s.filter.subjectPrefix != ""
	for key, values := range parsed.Header {
		if prefixSubject && strings.EqualFold(key, "Subject") {
			continue
		}
		for _, value := range values {
			fmt.Fprintf(&modified, "%s: %s\r\n", key, value)
		}
	}
	if prefixSubject {
		subject := decodeEncodedHeader(parsed.Header.Get("Subject"))
		if !strings.HasPrefix(subject, s.filter.subjectPrefix) {
			subject = s.filter.subjectPrefix + subject
		}
		fmt.Fprintf(&modified, "Subject: %s\r\n", subject)
	}
	fmt.Fprintf(&modified, "\r\n")

	// Preserve the original body bytes so MIME parts and attachments survive
	bodyStartIndex := bytes.Index(rawData, []byte("\r\n\r\n"))
	switch {
	case bodyStartIndex != -1:
		modified.Write(rawData[bodyStartIndex+4:])
	default:
		if idx := bytes.Index(rawData, []byte("\n\n")); idx != -1 {
			modified.Write(rawData[idx+2:])
		} else {
			bodyBytes, err := io.ReadAll(parsed.Body)
			if err != nil {
				s.filter.logger.Error("Failed to read message body", zap.Error(err))
				return err
			}
			modified.Write(bodyBytes)
		}
	}

	if s.filter.upstreamOn {
		if err := s.filter.sendUpstream(s.sender, s.recipients, modified.Bytes()); err != nil {
			s.filter.logger.Error("Failed to relay email upstream",
				zap.Error(err),
				zap.String("sender", msg.From))
			return err
		}
	} else {
		s.filter.logger.Warn("Upstream relay disabled, message accepted without delivery")
	}

	s.filter.logger.Info("Processed email",
		zap.String("from", msg.From),
		zap.String("sender_domain", senderDomain),
		zap.String("tier", string(result.Tier)),
		zap.Float64("score", result.Score),
		zap.Bool("quarantine", result.Quarantine))

	return nil
}

// Logout handles SMTP logout (not needed for the filter)
func (s *smtpSession) Logout() error {
	return nil
}
