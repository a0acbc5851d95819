package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/thatjpcsguy/portlease/internal/allocator"
	"github.com/thatjpcsguy/portlease/internal/reconcile"
	"github.com/thatjpcsguy/portlease/internal/registry"
	"github.com/thatjpcsguy/portlease/internal/service"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
}

// render writes v as JSON or YAML, or calls text for the human format
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

func presenceLabel(p reconcile.Presence) string {
	switch p {
	case reconcile.Bound:
		return green(string(p))
	case reconcile.NotBound:
		return yellow(string(p))
	default:
		return red(string(p))
	}
}

func until(now, t time.Time) string {
	d := t.Sub(now).Round(time.Second)
	if d <= 0 {
		return red("expired")
	}
	return "in " + d.String()
}

func describeProcess(p *reconcile.Process) string {
	if p == nil {
		return "-"
	}
	if p.Name != "" {
		return fmt.Sprintf("%s (pid %d, %s)", p.Name, p.PID, p.Protocol)
	}
	return fmt.Sprintf("pid %d (%s)", p.PID, p.Protocol)
}

func printListing(w io.Writer, now time.Time, l service.Listing) {
	if l.Count == 0 {
		_, _ = fmt.Fprintln(w, "No registered ports")
		return
	}

	_, _ = fmt.Fprintln(w, "Registered Ports")
	_, _ = fmt.Fprintln(w, "================")
	if !l.ScanAvailable {
		_, _ = fmt.Fprintln(w, yellow("OS scan unavailable, presence unknown"))
	}
	_, _ = fmt.Fprintln(w)

	for _, r := range l.Registrations {
		_, _ = fmt.Fprintf(w, "%s (%s)\n", bold(r.Port), presenceLabel(r.OSPresence))
		_, _ = fmt.Fprintf(w, "  Agent:    %s\n", r.Agent)
		_, _ = fmt.Fprintf(w, "  Reason:   %s\n", r.Reason)
		_, _ = fmt.Fprintf(w, "  Since:    %s\n", r.RegisteredAt.Local().Format("2006-01-02 15:04:05"))
		_, _ = fmt.Fprintf(w, "  Expires:  %s\n", until(now, r.ExpiresAt))
		if r.Process != nil {
			_, _ = fmt.Fprintf(w, "  Process:  %s\n", describeProcess(r.Process))
		}
		_, _ = fmt.Fprintln(w)
	}
}

func printSystem(w io.Writer, l service.SystemListing) {
	if l.Count == 0 {
		_, _ = fmt.Fprintln(w, "No listening ports")
		return
	}

	_, _ = fmt.Fprintf(w, "%-7s %-5s %-8s %-8s %-20s %s\n", "PORT", "PROTO", "STATE", "PID", "PROCESS", "REGISTERED BY")
	for _, b := range l.Ports {
		name := b.ProcessName
		if name == "" {
			name = "-"
		}
		owner := "-"
		if b.Registration != nil {
			owner = green(b.Registration.Agent)
		}
		_, _ = fmt.Fprintf(w, "%-7d %-5s %-8s %-8d %-20s %s\n", b.Port, b.Protocol, b.State, b.PID, name, owner)
	}
}

func printCheck(w io.Writer, res reconcile.CheckResult) {
	status := green("available")
	if !res.Available {
		status = red("unavailable")
	}
	_, _ = fmt.Fprintf(w, "Port %d is %s\n", res.Port, status)
	_, _ = fmt.Fprintf(w, "  OS:       %s\n", presenceLabel(res.OSPresence))
	if res.RegisteredBy != nil {
		_, _ = fmt.Fprintf(w, "  Agent:    %s\n", res.RegisteredBy.Agent)
		_, _ = fmt.Fprintf(w, "  Reason:   %s\n", res.RegisteredBy.Reason)
	}
	if res.Process != nil {
		_, _ = fmt.Fprintf(w, "  Process:  %s\n", describeProcess(res.Process))
	}
	_, _ = fmt.Fprintln(w, res.Recommendation)
}

func printRegistration(w io.Writer, verb string, now time.Time, r registry.Registration) {
	_, _ = fmt.Fprintf(w, "%s port %s for %s\n", verb, bold(r.Port), r.Agent)
	_, _ = fmt.Fprintf(w, "  Reason:   %s\n", r.Reason)
	_, _ = fmt.Fprintf(w, "  Expires:  %s (%s)\n", r.ExpiresAt.Local().Format("2006-01-02 15:04:05"), until(now, r.ExpiresAt))
}

// printSuggestion keeps stdout to the bare port number so it can be captured by scripts
func printSuggestion(w, errw io.Writer, s allocator.Suggestion) {
	_, _ = fmt.Fprintln(w, s.Port)
	if !s.OSChecked {
		_, _ = fmt.Fprintln(errw, yellow("warning: OS scan unavailable, only registrations were checked"))
	}
}
