package delivery

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"ecs_event_collector/internal/config"
	"ecs_event_collector/internal/models"
)

// startTestSMTPServer accepts a single session and hands the DATA section
// to the returned channel.
func startTestSMTPServer(t *testing.T) (host string, port int, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 localhost Test SMTP Service Ready\r\n")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				fmt.Fprintf(conn, "250-localhost Hello\r\n250 OK\r\n")
			case strings.HasPrefix(line, "DATA"):
				fmt.Fprintf(conn, "354 End data with <CR><LF>.<CR><LF>\r\n")
				var sb strings.Builder
				for {
					dline, derr := r.ReadString('\n')
					if derr != nil || strings.TrimSpace(dline) == "." {
						break
					}
					sb.WriteString(dline)
				}
				out <- sb.String()
				fmt.Fprintf(conn, "250 OK: queued as 12345\r\n")
			case strings.HasPrefix(line, "QUIT"):
				fmt.Fprintf(conn, "221 Bye\r\n")
				return
			default:
				fmt.Fprintf(conn, "250 OK\r\n")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, out
}

func TestMailer_DeliverSendsAttachment(t *testing.T) {
	t.Parallel()

	host, port, data := startTestSMTPServer(t)
	m := NewMailer(config.MailConfig{
		To:      []string{"audit@example.com", "ops@example.com"},
		Host:    host,
		Port:    port,
		From:    "collector@example.com",
		Subject: "ECS audit events",
	}, nil)

	payload := models.EventPayload{Body: []byte("<auditevents/>"), Format: models.FormatXML}
	if err := m.Deliver(context.Background(), payload, testWindow, models.FormatHTML); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	var msg string
	select {
	case msg = <-data:
	case <-time.After(5 * time.Second):
		t.Fatal("SMTP server received no message")
	}

	for _, want := range []string{
		"Subject: ECS audit events 2024-03-01T00:00:00Z - 2024-03-02T00:00:00Z",
		"To: audit@example.com, ops@example.com",
		`filename="ecs-events-20240301T000000Z-20240302T000000Z.xml"`,
		"application/xml",
		base64.StdEncoding.EncodeToString(payload.Body),
		"HTML rendering is not available",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message does not contain %q\n%s", want, msg)
		}
	}
}

func TestMailer_DeliverUnreachableServer(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	m := NewMailer(config.MailConfig{To: []string{"a@example.com"}, Host: "127.0.0.1", Port: port, From: "c@example.com"}, nil)
	err = m.Deliver(context.Background(), models.EventPayload{Body: []byte("{}"), Format: models.FormatJSON}, testWindow, models.FormatJSON)

	var derr *Error
	if !errors.As(err, &derr) || derr.Channel != ChannelMail {
		t.Fatalf("expected mail *Error, got %v", err)
	}
}

func TestMailer_DeliverCancelled(t *testing.T) {
	t.Parallel()

	m := NewMailer(config.MailConfig{To: []string{"a@example.com"}, Host: "127.0.0.1", Port: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Deliver(ctx, models.EventPayload{}, testWindow, models.FormatJSON)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMailBody_FlagsTruncation(t *testing.T) {
	t.Parallel()

	body := mailBody(models.EventPayload{Body: []byte("{}"), Format: models.FormatJSON, Truncated: true}, testWindow, models.FormatJSON)
	if !strings.Contains(body, "incomplete") {
		t.Errorf("truncation not mentioned: %q", body)
	}
	if strings.Contains(body, "HTML") {
		t.Errorf("JSON report must not mention HTML: %q", body)
	}
}
