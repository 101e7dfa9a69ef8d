package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"paperboy/internal/config"
	"paperboy/internal/core"
	"strings"
	"time"
)

// emailCSS is the inline stylesheet for the digest email. Kept to a single
// responsive column so it survives mobile clients.
const emailCSS = `
<style type="text/css">
  body, table, td, p, a {
    -webkit-text-size-adjust: 100%;
    -ms-text-size-adjust: 100%;
  }
  body {
    margin: 0 !important;
    padding: 0 !important;
    background-color: #f8fafc;
    font-family: system-ui, -apple-system, 'Segoe UI', Roboto, sans-serif;
    color: #1e293b;
    line-height: 1.6;
  }
  .container {
    max-width: 640px;
    margin: 0 auto;
    background-color: #ffffff;
    border: 1px solid #e2e8f0;
    border-radius: 8px;
    overflow: hidden;
  }
  .header {
    background-color: #7c2d12;
    color: #ffffff;
    padding: 24px;
    text-align: center;
  }
  .header h1 {
    margin: 0;
    font-size: 24px;
    font-weight: 600;
  }
  .header .date {
    margin: 8px 0 0 0;
    font-size: 14px;
    opacity: 0.9;
  }
  .content {
    padding: 24px;
  }
  p {
    margin: 0 0 16px 0;
    font-size: 15px;
  }
  a {
    color: #b91c1c;
    text-decoration: none;
  }
  a:hover {
    text-decoration: underline;
  }
  .paper-card {
    background-color: #f8fafc;
    border: 1px solid #e2e8f0;
    border-radius: 6px;
    padding: 20px;
    margin: 16px 0;
  }
  .paper-title {
    font-size: 18px;
    font-weight: 600;
    margin: 0 0 8px 0;
  }
  .paper-meta {
    font-size: 13px;
    color: #64748b;
    margin: 0 0 12px 0;
  }
  .key-insight {
    background-color: #fef3c7;
    border-left: 4px solid #f59e0b;
    border-radius: 4px;
    padding: 12px;
    margin: 12px 0 0 0;
    font-size: 14px;
  }
  .footer {
    background-color: #f1f5f9;
    padding: 20px 24px;
    text-align: center;
    font-size: 13px;
    color: #64748b;
    border-top: 1px solid #e2e8f0;
  }
  @media only screen and (max-width: 640px) {
    .container {
      margin: 0 !important;
      border-radius: 0 !important;
      border-left: none !important;
      border-right: none !important;
    }
    .content {
      padding: 16px !important;
    }
    .header {
      padding: 16px !important;
    }
    .paper-card {
      padding: 16px !important;
    }
  }
</style>
`

const emailTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>arXiv Digest - {{.Date}}</title>
    {{.CSS}}
</head>
<body>
    <table role="presentation" cellspacing="0" cellpadding="0" border="0" width="100%">
        <tr>
            <td align="center">
                <div class="container">
                    <div class="header">
                        <h1>arXiv Digest</h1>
                        <p class="date">{{.Date}}</p>
                    </div>

                    <div class="content">
                        {{if .Overview}}
                        <p>{{.Overview}}</p>
                        {{end}}

                        {{range .Papers}}
                        <div class="paper-card">
                            <h3 class="paper-title"><a href="{{.URL}}">{{.Title}}</a></h3>
                            <p class="paper-meta">{{.ArxivID}}{{if .Authors}} &middot; {{.Authors}}{{end}} &middot; relevance {{.Score}}/10</p>
                            {{range .Paragraphs}}
                            <p>{{.}}</p>
                            {{end}}
                            {{if .Relevance}}
                            <p><strong>Why it matters:</strong> {{.Relevance}}</p>
                            {{end}}
                            {{if .KeyInsight}}
                            <div class="key-insight"><strong>Key insight:</strong> {{.KeyInsight}}</div>
                            {{end}}
                        </div>
                        {{end}}
                    </div>

                    <div class="footer">
                        <p>{{.Stats}}</p>
                        <p>Generated by Paperboy.</p>
                    </div>
                </div>
            </td>
        </tr>
    </table>
</body>
</html>`

type emailPaper struct {
	Title      string
	URL        string
	ArxivID    string
	Authors    string
	Score      string
	Paragraphs []string
	Relevance  string
	KeyInsight string
}

type emailView struct {
	Date     string
	Overview string
	Papers   []emailPaper
	Stats    string
	CSS      template.HTML
}

// RenderHTMLEmail renders the digest as a standalone HTML email body.
func RenderHTMLEmail(digest *core.Digest) (string, error) {
	view := emailView{
		Date:     digest.GeneratedAt.Format("January 2, 2006"),
		Overview: digest.Summary,
		CSS:      template.HTML(emailCSS),
	}

	for _, paper := range digest.Papers {
		view.Papers = append(view.Papers, emailPaper{
			Title:      paper.Title,
			URL:        paper.URL,
			ArxivID:    paper.ArxivID,
			Authors:    paper.Authors,
			Score:      fmt.Sprintf("%.1f", paper.Score),
			Paragraphs: splitParagraphs(paper.Summary),
			Relevance:  paper.Relevance,
			KeyInsight: paper.KeyInsight,
		})
	}

	stats := digest.Stats
	view.Stats = fmt.Sprintf("%d candidates reviewed, %d analyzed in depth, %d selected.",
		stats.Candidates, stats.Analyzed, stats.Selected)

	tmpl, err := template.New("email").Parse(emailTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}

	return buf.String(), nil
}

// Subject builds the delivery subject line for a digest.
func Subject(digest *core.Digest) string {
	noun := "papers"
	if len(digest.Papers) == 1 {
		noun = "paper"
	}
	return fmt.Sprintf("arXiv Digest %s (%d %s)",
		digest.GeneratedAt.Format("2006-01-02"), len(digest.Papers), noun)
}

// splitParagraphs breaks blank-line separated text into paragraphs.
func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			paragraphs = append(paragraphs, block)
		}
	}
	return paragraphs
}

// Send delivers the digest over SMTP. The connection upgrades to TLS when
// the server advertises STARTTLS, and authenticates only when a username
// is configured.
func Send(ctx context.Context, cfg config.Email, subject, htmlBody, textBody string) error {
	addr := fmt.Sprintf("%s:%d", cfg.SMTP.Host, cfg.SMTP.Port)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.SMTP.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: cfg.SMTP.Host}); err != nil {
			return fmt.Errorf("failed to negotiate starttls: %w", err)
		}
	}

	if cfg.SMTP.Username != "" {
		auth := smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(cfg.FromAddress); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(cfg.ToAddress); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}
	if _, err := w.Write(buildMessage(cfg, subject, htmlBody, textBody)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles a multipart/alternative message with the markdown
// text first and the HTML rendering last, so capable clients prefer HTML.
func buildMessage(cfg config.Email, subject, htmlBody, textBody string) []byte {
	var buf bytes.Buffer
	alt := multipart.NewWriter(&buf)

	from := cfg.FromAddress
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
	}

	fmt.Fprintf(&buf, "From: %s\n", from)
	fmt.Fprintf(&buf, "To: %s\n", cfg.ToAddress)
	fmt.Fprintf(&buf, "Subject: %s\n", subject)
	fmt.Fprintf(&buf, "Date: %s\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\n", alt.Boundary())
	fmt.Fprintf(&buf, "\n")

	textPart, _ := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	fmt.Fprintln(textPart, textBody)

	htmlPart, _ := alt.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	fmt.Fprintln(htmlPart, htmlBody)

	_ = alt.Close()
	return buf.Bytes()
}
