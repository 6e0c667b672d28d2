package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/suma-triage/internal/app/access"
	"github.com/PabloGalante/suma-triage/internal/app/emergency"
	"github.com/PabloGalante/suma-triage/internal/app/report"
	"github.com/PabloGalante/suma-triage/internal/app/session"
	"github.com/PabloGalante/suma-triage/internal/domain"
)

const chatHelp = `Commands:
  /new        start a new case
  /report     save the current case as a PDF
  /emergency  call the local emergency number
  /help       show this help
  /quit       leave (the case is kept and reopened next time)`

func newChatCmd(opts *rootOptions) *cobra.Command {
	var reportDir string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the current case, or a new one, in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			dev := emergency.NewWriterDevice(out)
			r := &repl{
				ctrl:      a.controller,
				emergency: a.emergencyService(dev, dev, dev),
				in:        bufio.NewScanner(cmd.InOrStdin()),
				out:       out,
				reportDir: reportDir,
				now:       time.Now,
			}
			return r.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&reportDir, "report-dir", ".", "directory where /report writes PDFs")
	return cmd
}

// repl is the terminal front end over a session.Controller.
type repl struct {
	ctrl      *session.Controller
	emergency *emergency.Service
	in        *bufio.Scanner
	out       io.Writer
	reportDir string
	now       func() time.Time
	shown     domain.CaseID
}

var errQuit = errors.New("quit")

func (r *repl) run(ctx context.Context) error {
	snap, err := r.ctrl.Boot(ctx)
	if err != nil && snap.Phase != session.PhaseIntake {
		return err
	}

	switch snap.Phase {
	case session.PhaseActivation:
		if snap.Access.Expired {
			fmt.Fprintln(r.out, access.RenewalMessage)
		}
		return fmt.Errorf("device not activated: run `suma activate CODE` first")
	case session.PhaseRoleSelection:
		return fmt.Errorf("no role selected: run `suma role <%s>` first", roleChoices())
	}

	printBanner(r.out, snap.Access)
	if snap.Error != "" {
		fmt.Fprintln(r.out, snap.Error)
	}
	fmt.Fprintln(r.out, "Type /help for commands.")

	for {
		if snap.Phase == session.PhaseIntake {
			snap, err = r.intake(ctx)
		} else {
			snap, err = r.chatTurn(ctx, snap)
		}
		if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && (errors.Is(err, domain.ErrExpiredAccess) || errors.Is(err, domain.ErrNotActivated)) {
			return err
		}
	}
}

// intake asks for the patient data one field at a time and submits it.
func (r *repl) intake(ctx context.Context) (session.Snapshot, error) {
	fmt.Fprintln(r.out, "\nNew case. Leave optional fields blank.")

	fields := []struct {
		label string
		set   func(*domain.PatientData, string)
	}{
		{"Age", (*domain.PatientData).SetAge},
		{"Sex", (*domain.PatientData).SetSex},
		{"Background (optional)", (*domain.PatientData).SetBackground},
		{"Medications (optional)", (*domain.PatientData).SetMedications},
		{"Symptoms", (*domain.PatientData).SetSymptoms},
	}
	for _, f := range fields {
		line, err := r.prompt(f.label + ": ")
		if err != nil {
			return r.ctrl.Snapshot(), err
		}
		if _, err := r.ctrl.UpdateIntake(func(p *domain.PatientData) { f.set(p, line) }); err != nil {
			return r.ctrl.Snapshot(), err
		}
	}

	for {
		fmt.Fprintln(r.out, "Asking the assistant...")
		snap, err := r.ctrl.Submit(ctx)
		if err == nil {
			r.printLast(snap)
			return snap, nil
		}
		r.printError(snap, err)
		if errors.Is(err, domain.ErrValidation) || snap.Phase != session.PhaseIntake {
			return snap, err
		}

		line, perr := r.prompt("Press Enter to retry or type /edit to change the data: ")
		if perr != nil {
			return snap, perr
		}
		if line == "/edit" {
			return snap, err
		}
	}
}

func (r *repl) chatTurn(ctx context.Context, snap session.Snapshot) (session.Snapshot, error) {
	if snap.Case != nil && snap.Phase == session.PhaseActive && len(snap.Case.Chat) > 0 && r.isFreshResume(snap) {
		r.printTranscript(snap.Case)
	}

	line, err := r.prompt("> ")
	if err != nil {
		return snap, err
	}

	switch line {
	case "":
		return snap, nil
	case "/quit", "/exit":
		return snap, errQuit
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
		return snap, nil
	case "/new":
		return r.ctrl.NewCase(ctx)
	case "/report":
		r.saveReport(snap.Case)
		return snap, nil
	case "/emergency":
		r.triggerEmergency(ctx)
		return snap, nil
	}

	next, err := r.ctrl.Send(ctx, line)
	if err != nil {
		r.printError(next, err)
		return next, err
	}
	r.printLast(next)
	if next.Warning != "" {
		fmt.Fprintln(r.out, "(!) "+next.Warning)
	}
	return next, nil
}

// isFreshResume reports whether the transcript has not been shown yet in this run.
func (r *repl) isFreshResume(snap session.Snapshot) bool {
	if snap.Case.HasID() && r.shown != snap.Case.ID {
		r.shown = snap.Case.ID
		return true
	}
	return false
}

func (r *repl) prompt(label string) (string, error) {
	fmt.Fprint(r.out, label)
	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(r.in.Text()), nil
}

func (r *repl) printTranscript(c *domain.Case) {
	fmt.Fprintf(r.out, "\nCase #%d: %s (%s)\n", c.ID, c.Title, c.StartTime.Local().Format("2006-01-02 15:04"))
	for _, m := range c.Chat {
		r.printMessage(m)
	}
}

func (r *repl) printLast(snap session.Snapshot) {
	if snap.Case == nil || len(snap.Case.Chat) == 0 {
		return
	}
	if snap.Case.HasID() {
		r.shown = snap.Case.ID
	}
	r.printMessage(snap.Case.Chat[len(snap.Case.Chat)-1])
}

func (r *repl) printMessage(m domain.Message) {
	who := "You"
	if m.Sender == domain.SenderAI {
		who = "Suma"
	}
	fmt.Fprintf(r.out, "\n%s: %s\n", who, m.Text)
}

func (r *repl) printError(snap session.Snapshot, err error) {
	msg := snap.Error
	if msg == "" {
		msg = err.Error()
	}
	fmt.Fprintln(r.out, "Error: "+msg)
	if snap.Phase == session.PhaseActive && snap.Case != nil {
		r.printLast(snap)
	}
}

func (r *repl) saveReport(c *domain.Case) {
	if c == nil {
		fmt.Fprintln(r.out, "There is no case to export yet.")
		return
	}
	now := r.now()
	path := filepath.Join(r.reportDir, report.FileName(now))
	if err := writeReport(path, c, now); err != nil {
		fmt.Fprintln(r.out, "Error: could not create the report: "+err.Error())
		return
	}
	fmt.Fprintln(r.out, "Report saved to "+path)
}

func (r *repl) triggerEmergency(ctx context.Context) {
	d, err := r.emergency.Trigger(ctx)
	if err != nil {
		fmt.Fprintln(r.out, "Error: could not start the call: "+err.Error())
		return
	}
	<-d.Done
}

func writeReport(path string, c *domain.Case, now time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.Render(f, c, now); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
