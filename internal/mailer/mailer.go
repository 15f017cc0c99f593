// Package mailer delivers rendered reports to employees over Mailjet
// and sends the admin a run summary.
package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	mailjet "github.com/mailjet/mailjet-apiv3-go/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beaverzip/appraise/internal/feedback"
	"github.com/beaverzip/appraise/internal/pipeline"
	"github.com/beaverzip/appraise/internal/retry"
)

// DefaultSendConcurrency bounds parallel Mailjet calls.
const DefaultSendConcurrency = 4

// Sender is the Mailjet send surface. Satisfied by *mailjet.Client.
type Sender interface {
	SendMailV31(data *mailjet.MessagesV31, options ...mailjet.RequestOptions) (*mailjet.ResultsV31, error)
}

// Report summarizes one dispatch round.
type Report struct {
	Sent     int
	Skipped  []string         // employees with no artifact or no address
	Failures map[string]error // employees whose send failed after retries
}

// Dispatcher sends report emails.
type Dispatcher struct {
	sender      Sender
	fromEmail   string
	fromName    string
	concurrency int
	policy      retry.Policy
	logger      *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSendConcurrency bounds parallel sends.
func WithSendConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithRetryPolicy overrides the send retry schedule.
func WithRetryPolicy(p retry.Policy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher builds a dispatcher sending from the given address.
func NewDispatcher(sender Sender, fromEmail, fromName string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:      sender,
		fromEmail:   fromEmail,
		fromName:    fromName,
		concurrency: DefaultSendConcurrency,
		policy:      retry.Default,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch emails each employee their report as a PDF attachment.
// Employees without a generated artifact or without an email address
// are skipped, never failed; a send that keeps erroring after retries
// is recorded against that employee only.
func (d *Dispatcher) Dispatch(ctx context.Context, records []feedback.EmployeeRecord, summary pipeline.Summary) Report {
	byID := make(map[string]feedback.EmployeeRecord, len(records))
	for _, rec := range records {
		byID[rec.EmployeeID] = rec
	}

	rep := Report{Failures: make(map[string]error)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	delivered := make(map[string]bool, len(summary.Artifacts))
	for _, art := range summary.Artifacts {
		art := art
		rec, ok := byID[art.EmployeeID]
		if !ok || rec.Email == "" {
			d.logger.Warn("no address for report recipient",
				zap.String("employee", art.EmployeeID))
			rep.Skipped = append(rep.Skipped, art.EmployeeID)
			continue
		}
		delivered[art.EmployeeID] = true

		g.Go(func() error {
			err := d.sendReport(ctx, rec, art.Path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failures[rec.EmployeeID] = err
			} else {
				rep.Sent++
			}
			return nil
		})
	}

	// Employees whose render failed have nothing to attach.
	for _, rec := range records {
		if !delivered[rec.EmployeeID] && !skippedContains(rep.Skipped, rec.EmployeeID) {
			rep.Skipped = append(rep.Skipped, rec.EmployeeID)
		}
	}
	sort.Strings(rep.Skipped)

	g.Wait()
	return rep
}

func skippedContains(skipped []string, id string) bool {
	for _, s := range skipped {
		if s == id {
			return true
		}
	}
	return false
}

// sendReport emails one employee their attached report.
func (d *Dispatcher) sendReport(ctx context.Context, rec feedback.EmployeeRecord, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading report %s: %w", path, err)
	}

	msg := mailjet.InfoMessagesV31{
		From: &mailjet.RecipientV31{Email: d.fromEmail, Name: d.fromName},
		To: &mailjet.RecipientsV31{
			{Email: rec.Email, Name: rec.Name},
		},
		Subject: fmt.Sprintf("Your performance appraisal report, %s", rec.Name),
		TextPart: fmt.Sprintf(
			"Hello %s,\n\nYour performance appraisal report is attached.\n\nThis report covers your peer-review scores and recommended reading.\n",
			rec.Name),
		Attachments: &mailjet.AttachmentsV31{
			{
				ContentType:   "application/pdf",
				Filename:      rec.EmployeeID + ".pdf",
				Base64Content: base64.StdEncoding.EncodeToString(raw),
			},
		},
	}

	return d.send(ctx, &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{msg}})
}

// SendAdminSummary mails the run outcome to the admin address.
func (d *Dispatcher) SendAdminSummary(ctx context.Context, adminEmail string, summary pipeline.Summary, rep Report) error {
	var body strings.Builder
	fmt.Fprintf(&body, "Appraisal batch %s finished in %s.\n\n", summary.RunID, summary.Elapsed.Round(0))
	fmt.Fprintf(&body, "Reports generated: %d of %d\n", summary.Succeeded, summary.Total)
	fmt.Fprintf(&body, "Emails sent: %d\n", rep.Sent)

	if len(summary.Failures) > 0 {
		body.WriteString("\nReport generation failures:\n")
		for _, id := range sortedKeys(summary.Failures) {
			fmt.Fprintf(&body, "  %s: %v\n", id, summary.Failures[id])
		}
	}
	if len(rep.Failures) > 0 {
		body.WriteString("\nDelivery failures:\n")
		for _, id := range sortedKeys(rep.Failures) {
			fmt.Fprintf(&body, "  %s: %v\n", id, rep.Failures[id])
		}
	}
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(&body, "\nSkipped (no report or no address): %s\n", strings.Join(rep.Skipped, ", "))
	}

	msg := mailjet.InfoMessagesV31{
		From:     &mailjet.RecipientV31{Email: d.fromEmail, Name: d.fromName},
		To:       &mailjet.RecipientsV31{{Email: adminEmail}},
		Subject:  fmt.Sprintf("Appraisal run %s: %d/%d reports delivered", summary.RunID, rep.Sent, summary.Total),
		TextPart: body.String(),
	}

	return d.send(ctx, &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{msg}})
}

// send submits one message batch with retries. Mailjet throttling and
// transient transport failures look the same from the v3.1 client, so
// every send error is retried up to the policy's attempt cap.
func (d *Dispatcher) send(ctx context.Context, messages *mailjet.MessagesV31) error {
	return d.policy.Do(ctx, func(ctx context.Context) error {
		_, err := d.sender.SendMailV31(messages)
		return err
	}, func(error) bool { return true })
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
