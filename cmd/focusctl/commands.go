package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"focustimer/internal/model"
	"focustimer/internal/timer"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the timer state and recent focus sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			printView(s.out, s.engine.View())

			limit, _ := cmd.Flags().GetInt("history")
			if limit <= 0 {
				return nil
			}
			records, err := s.store.Sessions(limit)
			if err != nil {
				return err
			}
			if len(records) > 0 {
				fmt.Fprintln(s.out, "\nRecent focus sessions:")
			}
			for _, record := range records {
				subject := "-"
				if record.SubjectID != nil {
					subject = *record.SubjectID
				}
				fmt.Fprintf(s.out, "  %s  %s  %s\n",
					record.CompletedAt.Local().Format("2006-01-02 15:04"),
					formatSeconds(record.DurationSeconds),
					subject,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntP("history", "n", 5, "Number of recent sessions to list")
	return cmd
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start or resume the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			var subjectID *string
			if cmd.Flags().Changed("subject") {
				subject, _ := cmd.Flags().GetString("subject")
				subjectID = &subject
			}
			view, err := s.engine.Start(ctx, 0, subjectID)
			if err != nil {
				return err
			}
			printView(s.out, view)
			return nil
		},
	}
	cmd.Flags().StringP("subject", "s", "", "Attribute focus time to this subject")
	return cmd
}

func controlCmd(use, short string, op func(*session, context.Context) (timer.View, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			view, err := op(s, ctx)
			if err != nil {
				return err
			}
			printView(s.out, view)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change session lengths and auto-start",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}
			view := s.engine.View()
			if patch != (model.ConfigPatch{}) {
				view, err = s.engine.UpdateConfig(ctx, 0, patch)
				if err != nil {
					return err
				}
			}
			printConfig(s.out, view.Config)
			return nil
		},
	}
	cmd.Flags().Duration("focus", 0, "Focus session length, e.g. 25m")
	cmd.Flags().Duration("short-break", 0, "Short break length")
	cmd.Flags().Duration("long-break", 0, "Long break length")
	cmd.Flags().Int("sessions", 0, "Focus sessions before a long break")
	cmd.Flags().Bool("auto-break", false, "Start breaks automatically")
	cmd.Flags().Bool("auto-focus", false, "Start focus sessions automatically after a break")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the timer in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.close()

			go timer.RunDriver(ctx, s.engine, time.Second)

			refresh := time.NewTicker(time.Second)
			defer refresh.Stop()
			printLine(s.out, s.engine.View())
			for {
				select {
				case <-ctx.Done():
					fmt.Fprintln(s.out)
					return nil
				case effect, ok := <-s.effects:
					if !ok {
						return nil
					}
					fmt.Fprintln(s.out)
					printEffect(s.out, effect)
				case <-refresh.C:
					printLine(s.out, s.engine.View())
				}
			}
		},
	}
}

func patchFromFlags(cmd *cobra.Command) (model.ConfigPatch, error) {
	var patch model.ConfigPatch
	flags := cmd.Flags()

	seconds := func(name string) (*int, error) {
		if !flags.Changed(name) {
			return nil, nil
		}
		value, err := flags.GetDuration(name)
		if err != nil {
			return nil, err
		}
		if value%time.Second != 0 {
			return nil, fmt.Errorf("--%s must be a whole number of seconds", name)
		}
		n := int(value / time.Second)
		return &n, nil
	}

	var err error
	if patch.FocusSeconds, err = seconds("focus"); err != nil {
		return patch, err
	}
	if patch.ShortBreakSeconds, err = seconds("short-break"); err != nil {
		return patch, err
	}
	if patch.LongBreakSeconds, err = seconds("long-break"); err != nil {
		return patch, err
	}
	if flags.Changed("sessions") {
		n, _ := flags.GetInt("sessions")
		patch.SessionsBeforeLongBreak = &n
	}
	if flags.Changed("auto-break") {
		b, _ := flags.GetBool("auto-break")
		patch.AutoStartBreak = &b
	}
	if flags.Changed("auto-focus") {
		b, _ := flags.GetBool("auto-focus")
		patch.AutoStartFocus = &b
	}
	return patch, nil
}
