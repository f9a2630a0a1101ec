package main

import (
	"fmt"
	"io"

	"focustimer/internal/effects"
	"focustimer/internal/model"
	"focustimer/internal/timer"
)

var modeLabels = map[model.SessionMode]string{
	model.ModeFocus:      "Focus",
	model.ModeShortBreak: "Short break",
	model.ModeLongBreak:  "Long break",
}

func printView(out io.Writer, view timer.View) {
	status := "paused"
	if view.IsRunning {
		status = "running"
	}
	fmt.Fprintf(out, "%s  %s  %s\n", modeLabels[view.Mode], formatSeconds(view.RemainingSeconds), status)
	fmt.Fprintf(out, "  completed: %d/%d", view.CompletedSessions, view.Config.SessionsBeforeLongBreak)
	if view.ActiveSubjectID != nil {
		fmt.Fprintf(out, "  subject: %s", *view.ActiveSubjectID)
	}
	fmt.Fprintln(out)
}

func printLine(out io.Writer, view timer.View) {
	marker := "||"
	if view.IsRunning {
		marker = ">"
	}
	fmt.Fprintf(out, "\r%-12s %s %s   ", modeLabels[view.Mode], formatSeconds(view.RemainingSeconds), marker)
}

func printEffect(out io.Writer, effect effects.Effect) {
	switch effect.Kind {
	case effects.KindMessage, effects.KindWarning:
		fmt.Fprintf(out, "%s: %s\n", effect.Title, effect.Body)
	case effects.KindCue:
		fmt.Fprint(out, "\a")
	}
}

func printConfig(out io.Writer, cfg model.SessionConfig) {
	fmt.Fprintf(out, "focus:        %s\n", formatSeconds(cfg.FocusSeconds))
	fmt.Fprintf(out, "short break:  %s\n", formatSeconds(cfg.ShortBreakSeconds))
	fmt.Fprintf(out, "long break:   %s\n", formatSeconds(cfg.LongBreakSeconds))
	fmt.Fprintf(out, "long break every %d sessions\n", cfg.SessionsBeforeLongBreak)
	fmt.Fprintf(out, "auto-start break: %t, focus: %t\n", cfg.AutoStartBreak, cfg.AutoStartFocus)
}

func formatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
