package orchestrators

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/crypto/bcrypt"

	"restart/internal/adapters/email"
	"restart/internal/adapters/export"
	"restart/internal/domain/audit"
	exportdomain "restart/internal/domain/export"
	"restart/internal/domain/hours"
	"restart/internal/domain/kiosk"
)

// PinHashCost is the bcrypt cost used for kiosk PINs.
const PinHashCost = 10

// --- Close month ---

// CloseMonthInput carries input for locking a calendar month.
type CloseMonthInput struct {
	ActorID    string
	Month      hours.MonthClose
	Recipients []string
	Subject    string
}

// CloseMonthDeps holds dependencies for CloseMonth.
type CloseMonthDeps struct {
	AdminDeps
	Email   email.Sender
	From    string
	ReplyTo string
}

// CloseMonthResult reports the locked month and its approved hours.
type CloseMonthResult struct {
	Label      string
	Rows       []hours.ReportRow
	TotalHours float64
	Emailed    bool
}

// ExecuteCloseMonth locks a month and mails the per-instructor summary.
// PRE: Month is valid
// POST: the month is locked on the backend; a failed summary report or email
// is logged and reported through Emailed, never returned
func ExecuteCloseMonth(ctx context.Context, input CloseMonthInput, deps CloseMonthDeps) (CloseMonthResult, error) {
	if err := input.Month.Validate(); err != nil {
		return CloseMonthResult{}, err
	}
	if err := deps.Backend.CloseMonth(ctx, input.Month); err != nil {
		return CloseMonthResult{}, err
	}
	res := CloseMonthResult{Label: input.Month.Label()}
	deps.record(ctx, audit.NewEvent(deps.now(), audit.CategoryAdmin, audit.ActionCloseMonth).
		WithActor(input.ActorID).
		WithSeverity(audit.SeverityCritical).
		WithResource("period", fmt.Sprintf("%04d-%02d", input.Month.Year, input.Month.Month)))

	r := input.Month.Range()
	rows, err := deps.Backend.ReportRange(ctx, r.Start, r.End, "")
	if err != nil {
		slog.Warn("admin_event", "event", "close_month_report_failed", "error", err)
		return res, nil
	}
	res.Rows = hours.CollapseByInstructor(rows)
	res.TotalHours = hours.TotalHours(res.Rows)

	if deps.Email == nil || len(input.Recipients) == 0 {
		return res, nil
	}
	html, err := renderMonthSummary(res)
	if err != nil {
		slog.Error("internal_error", "op", "render_month_summary", "error", err)
		return res, nil
	}
	subject := input.Subject
	if subject == "" {
		subject = "Ore " + res.Label
	}
	msg := email.Message{
		To:      input.Recipients,
		From:    deps.From,
		ReplyTo: deps.ReplyTo,
		Subject: subject,
		HTML:    html,
		Tags:    map[string]string{"kind": "month_close", "period": fmt.Sprintf("%04d-%02d", input.Month.Year, input.Month.Month)},
	}
	var csv bytes.Buffer
	if err := export.WriteCSV(&csv, exportdomain.ReportTable(res.Rows)); err != nil {
		slog.Error("internal_error", "op", "render_month_csv", "error", err)
	} else {
		msg.Attachments = []email.Attachment{{
			Filename: fmt.Sprintf("ore_%04d_%02d.csv", input.Month.Year, input.Month.Month),
			Content:  csv.Bytes(),
		}}
	}
	if _, err := deps.Email.Send(ctx, msg); err != nil {
		slog.Error("admin_event", "event", "close_month_email_failed", "error", err)
		return res, nil
	}
	res.Emailed = true
	return res, nil
}

var summaryMarkdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// renderMonthSummary renders the summary as a markdown table, then HTML.
func renderMonthSummary(res CloseMonthResult) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "## Ore approvate: %s\n\n", res.Label)
	md.WriteString("| Istruttore | Ore |\n|---|---:|\n")
	for _, row := range res.Rows {
		name := strings.ReplaceAll(row.Instructor, "|", "/")
		fmt.Fprintf(&md, "| %s | %.2f |\n", name, row.TotalHours)
	}
	fmt.Fprintf(&md, "| **Totale** | **%.2f** |\n", res.TotalHours)

	var buf bytes.Buffer
	if err := summaryMarkdown.Convert([]byte(md.String()), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// --- Unlock period ---

// UnlockPeriodInput carries input for reopening a span of days.
type UnlockPeriodInput struct {
	ActorID string
	Period  hours.Unlock
}

// ExecuteUnlockPeriod reopens locked days.
// PRE: Period.End is not before Period.Start
func ExecuteUnlockPeriod(ctx context.Context, input UnlockPeriodInput, deps AdminDeps) error {
	if err := input.Period.Validate(); err != nil {
		return err
	}
	if err := deps.Backend.UnlockPeriod(ctx, input.Period); err != nil {
		return err
	}
	deps.record(ctx, audit.NewEvent(deps.now(), audit.CategoryAdmin, audit.ActionUnlockPeriod).
		WithActor(input.ActorID).
		WithSeverity(audit.SeverityCritical).
		WithResource("period", input.Period.Start+".."+input.Period.End))
	return nil
}

// --- Set PIN ---

// SetPinInput carries input for provisioning an instructor's kiosk PIN.
type SetPinInput struct {
	ActorID    string
	IdentityID string
	Pin        string
}

// ExecuteSetPin hashes a PIN and stores the hash for the identity.
// PRE: Pin is 4 to 6 digits after trimming
// POST: only the bcrypt hash leaves this function
func ExecuteSetPin(ctx context.Context, input SetPinInput, deps AdminDeps) error {
	id := strings.TrimSpace(input.IdentityID)
	if id == "" {
		return hours.ErrEmptyID
	}
	pin := strings.TrimSpace(input.Pin)
	if err := kiosk.ValidatePinFormat(pin); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), PinHashCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := deps.Backend.SetPinHash(ctx, id, string(hash)); err != nil {
		return err
	}
	deps.record(ctx, audit.NewEvent(deps.now(), audit.CategoryAdmin, audit.ActionSetPin).
		WithActor(input.ActorID).
		WithSeverity(audit.SeverityWarning).
		WithResource("profile", id))
	return nil
}
