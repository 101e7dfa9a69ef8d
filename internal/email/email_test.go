package email

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"paperboy/internal/config"
	"paperboy/internal/core"
	"strconv"
	"strings"
	"testing"
	"time"
)

func sampleDigest() *core.Digest {
	return &core.Digest{
		ID:          "run-1",
		GeneratedAt: time.Date(2026, 2, 3, 14, 0, 0, 0, time.UTC),
		Summary:     "Today's highlights: positional encodings and grokking.",
		Papers: []core.DigestEntry{
			{
				ArxivID:    "2502.00001",
				Title:      "Length Generalization in Transformers",
				URL:        "https://arxiv.org/abs/2502.00001",
				Authors:    "A. Author, B. Author",
				Summary:    "Para one.\n\nPara two.",
				Relevance:  "Directly about positional encodings.",
				KeyInsight: "Scratchpad format matters more than architecture.",
				Score:      8.5,
			},
			{
				ArxivID:    "2502.00002",
				Title:      "Grokking Beyond Algorithmic Tasks",
				URL:        "https://arxiv.org/abs/2502.00002",
				Authors:    "C. Author",
				Summary:    "One paragraph.",
				Relevance:  "Matches the grokking interest.",
				KeyInsight: "Delayed generalization appears in NLP tasks too.",
				Score:      7.9,
			},
		},
		Stats: core.RunStats{Candidates: 132, Scored: 132, Shortlisted: 28, Analyzed: 26, Selected: 2},
	}
}

func TestRenderHTMLEmail(t *testing.T) {
	html, err := RenderHTMLEmail(sampleDigest())
	if err != nil {
		t.Fatalf("RenderHTMLEmail failed: %v", err)
	}

	for _, want := range []string{
		"<!DOCTYPE html>",
		"February 3, 2026",
		"Today&#39;s highlights: positional encodings and grokking.",
		`<a href="https://arxiv.org/abs/2502.00001">Length Generalization in Transformers</a>`,
		"A. Author, B. Author",
		"relevance 8.5/10",
		"<p>Para one.</p>",
		"<p>Para two.</p>",
		"<strong>Why it matters:</strong> Directly about positional encodings.",
		"<strong>Key insight:</strong> Scratchpad format matters more than architecture.",
		"132 candidates reviewed, 26 analyzed in depth, 2 selected.",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Email HTML missing %q", want)
		}
	}
}

func TestRenderHTMLEmail_EscapesMarkup(t *testing.T) {
	digest := sampleDigest()
	digest.Papers = digest.Papers[:1]
	digest.Papers[0].Title = "Attention <b>& Memory</b>"

	html, err := RenderHTMLEmail(digest)
	if err != nil {
		t.Fatalf("RenderHTMLEmail failed: %v", err)
	}

	if strings.Contains(html, "<b>& Memory</b>") {
		t.Error("Paper title should be HTML-escaped")
	}
	if !strings.Contains(html, "Attention &lt;b&gt;&amp; Memory&lt;/b&gt;") {
		t.Error("Escaped title should appear in the output")
	}
}

func TestSubject(t *testing.T) {
	digest := sampleDigest()

	if got := Subject(digest); got != "arXiv Digest 2026-02-03 (2 papers)" {
		t.Errorf("Unexpected subject: %q", got)
	}

	digest.Papers = digest.Papers[:1]
	if got := Subject(digest); got != "arXiv Digest 2026-02-03 (1 paper)" {
		t.Errorf("Unexpected singular subject: %q", got)
	}
}

func TestSplitParagraphs(t *testing.T) {
	got := splitParagraphs("First.\n\n  Second line one.\nSecond line two.  \n\n\n\nThird.")

	want := []string{"First.", "Second line one.\nSecond line two.", "Third."}
	if len(got) != len(want) {
		t.Fatalf("Expected %d paragraphs, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Paragraph %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestBuildMessage(t *testing.T) {
	cfg := config.Email{
		FromAddress: "digest@example.com",
		FromName:    "Paperboy",
		ToAddress:   "reader@example.com",
	}

	raw := buildMessage(cfg, "Test digest", "<p>hello</p>", "hello")

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Message should parse: %v", err)
	}

	if got := msg.Header.Get("Subject"); got != "Test digest" {
		t.Errorf("Expected subject 'Test digest', got %q", got)
	}
	if got := msg.Header.Get("From"); got != "Paperboy <digest@example.com>" {
		t.Errorf("Expected named sender, got %q", got)
	}
	if got := msg.Header.Get("To"); got != "reader@example.com" {
		t.Errorf("Expected recipient, got %q", got)
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("Content-Type should parse: %v", err)
	}
	if mediaType != "multipart/alternative" {
		t.Fatalf("Expected multipart/alternative, got %s", mediaType)
	}

	reader := multipart.NewReader(msg.Body, params["boundary"])

	text, err := reader.NextPart()
	if err != nil {
		t.Fatalf("Expected a text part: %v", err)
	}
	if got := text.Header.Get("Content-Type"); got != "text/plain; charset=UTF-8" {
		t.Errorf("Expected text/plain first part, got %q", got)
	}
	textBody, _ := io.ReadAll(text)
	if !strings.Contains(string(textBody), "hello") {
		t.Error("Text part should carry the plain body")
	}

	html, err := reader.NextPart()
	if err != nil {
		t.Fatalf("Expected an html part: %v", err)
	}
	if got := html.Header.Get("Content-Type"); got != "text/html; charset=UTF-8" {
		t.Errorf("Expected text/html second part, got %q", got)
	}
	htmlBody, _ := io.ReadAll(html)
	if !strings.Contains(string(htmlBody), "<p>hello</p>") {
		t.Error("HTML part should carry the rendered body")
	}
}

// smtpSession records what a scripted SMTP server saw during one delivery.
type smtpSession struct {
	commands []string
	data     string
}

// fakeSMTPServer runs a minimal single-connection SMTP conversation. The
// returned channel closes once the client quits.
func fakeSMTPServer(t *testing.T) (string, *smtpSession, chan struct{}) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	session := &smtpSession{}
	done := make(chan struct{})

	go func() {
		defer close(done)

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 fake ESMTP\r\n")

		inData := false
		var data strings.Builder
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")

			if inData {
				if line == "." {
					inData = false
					session.data = data.String()
					fmt.Fprintf(conn, "250 ok\r\n")
					continue
				}
				data.WriteString(line)
				data.WriteString("\n")
				continue
			}

			session.commands = append(session.commands, line)
			switch {
			case strings.HasPrefix(line, "EHLO"):
				fmt.Fprintf(conn, "250-fake\r\n250 AUTH PLAIN\r\n")
			case strings.HasPrefix(line, "AUTH"):
				fmt.Fprintf(conn, "235 ok\r\n")
			case strings.HasPrefix(line, "MAIL"), strings.HasPrefix(line, "RCPT"):
				fmt.Fprintf(conn, "250 ok\r\n")
			case line == "DATA":
				inData = true
				fmt.Fprintf(conn, "354 send\r\n")
			case line == "QUIT":
				fmt.Fprintf(conn, "221 bye\r\n")
				return
			default:
				fmt.Fprintf(conn, "250 ok\r\n")
			}
		}
	}()

	return ln.Addr().String(), session, done
}

func TestSend(t *testing.T) {
	addr, session, done := fakeSMTPServer(t)

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("Failed to split server address: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	cfg := config.Email{
		SMTP: config.SMTPConfig{
			Host:     host,
			Port:     port,
			Username: "user",
			Password: "secret",
		},
		FromAddress: "digest@example.com",
		FromName:    "Paperboy",
		ToAddress:   "reader@example.com",
	}

	err = Send(context.Background(), cfg, "Test digest", "<p>hello</p>", "hello")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SMTP conversation did not finish")
	}

	var sawAuth, sawMail, sawRcpt bool
	for _, cmd := range session.commands {
		switch {
		case strings.HasPrefix(cmd, "AUTH PLAIN"):
			sawAuth = true
		case cmd == "MAIL FROM:<digest@example.com>":
			sawMail = true
		case cmd == "RCPT TO:<reader@example.com>":
			sawRcpt = true
		}
	}
	if !sawAuth {
		t.Error("Expected an AUTH PLAIN command")
	}
	if !sawMail {
		t.Errorf("Expected MAIL FROM command, got %v", session.commands)
	}
	if !sawRcpt {
		t.Errorf("Expected RCPT TO command, got %v", session.commands)
	}

	if !strings.Contains(session.data, "Subject: Test digest") {
		t.Error("Delivered message should carry the subject")
	}
	if !strings.Contains(session.data, "multipart/alternative") {
		t.Error("Delivered message should be multipart/alternative")
	}
}

func TestSend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := config.Email{
		SMTP:        config.SMTPConfig{Host: "127.0.0.1", Port: 2525},
		FromAddress: "digest@example.com",
		ToAddress:   "reader@example.com",
	}

	if err := Send(ctx, cfg, "subject", "<p>h</p>", "h"); err == nil {
		t.Error("Expected error when the context is already cancelled")
	}
}
