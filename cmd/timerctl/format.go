package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	apiconnect "github.com/osa030/routinetimer/internal/api/connect"
)

// formatClock renders d as m:ss or h:mm:ss, rounding partial seconds up so a
// countdown shows 0:00 only when it is done.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64((d + time.Second - 1) / time.Second)
	h, m, s := secs/3600, secs/60%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// formatStatusLine renders a one-line status summary.
func formatStatusLine(s apiconnect.Status) string {
	if s.StepCount == 0 {
		return s.State + " (nothing loaded)"
	}
	return fmt.Sprintf("%-8s %d/%d %-20s %s / %s  [%s]",
		s.State, s.Index+1, s.StepCount, s.Label,
		formatClock(ms(s.RemainingMs)), formatClock(ms(s.TotalMs)), s.Title)
}

func printStatusDetail(out io.Writer, s apiconnect.Status) {
	fmt.Fprintln(out, formatStatusLine(s))
	if s.StepCount == 0 {
		return
	}
	fmt.Fprintf(out, "Source: %s", s.Source)
	if s.RoutineID != "" {
		fmt.Fprintf(out, " (%s)", s.RoutineID)
	}
	if s.Shuffled {
		fmt.Fprint(out, ", shuffled")
	}
	fmt.Fprintf(out, "\nProgress: %.0f%%  Sessions completed: %d\n", s.Progress*100, s.SessionsCompleted)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, st := range s.Steps {
		marker := " "
		if i == s.Index {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %d\t%s\t%s\n", marker, i+1, st.Label, formatClock(ms(st.DurationMs)))
	}
	w.Flush()
}

func printRoutineList(out io.Writer, list []apiconnect.RoutineSummary) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No routines.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tITEMS\tTOTAL")
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.ID, r.Title, r.ItemCount, formatClock(ms(r.TotalMs)))
	}
	w.Flush()
}

func printRoutine(out io.Writer, r apiconnect.Routine) {
	fmt.Fprintf(out, "%s (%s)\n", r.Title, r.ID)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, it := range r.Items {
		fmt.Fprintf(w, "  %d\t%s\t%d %s\n", i+1, it.Activity, it.Amount, it.Unit)
	}
	w.Flush()
}

func printPreferences(out io.Writer, p apiconnect.Preferences) {
	fmt.Fprintf(out, "vibration_enabled: %t\n", p.VibrationEnabled)
	fmt.Fprintf(out, "sound_enabled: %t\n", p.SoundEnabled)
	fmt.Fprintf(out, "pre_start_delay_seconds: %d\n", p.PreStartDelaySeconds)
	fmt.Fprintf(out, "theme: %s\n", p.Theme)
}
