package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [code|id]",
	Short: "Show attendance events",
	Long: `Show attendance events, newest first.

With a subject, prints its latest events (--limit, default 50, max 500).
With --today, prints all events of the current local day. With --from and
--to (YYYY-MM-DD, local time zone, --to inclusive), prints the events of that
range, optionally for one subject.

Examples:
  face-attendance history EMP-001 --limit 10
  face-attendance history --today
  face-attendance history --from 2026-03-01 --to 2026-03-31 EMP-001`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", database.DefaultHistoryLimit, "Maximum number of events for a subject")
	historyCmd.Flags().Bool("today", false, "Show today's events of all subjects")
	historyCmd.Flags().String("from", "", "First day of the range (YYYY-MM-DD)")
	historyCmd.Flags().String("to", "", "Last day of the range (YYYY-MM-DD)")
}

// EventOutput is the JSON form of an event in CLI output
type EventOutput struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	Code       string    `json:"code,omitempty"`
	Name       string    `json:"name,omitempty"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Distance   float64   `json:"distance"`
}

// dayRange converts inclusive local dates into a [start, end) range.
func dayRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, errors.New("--from and --to must be used together")
	}
	start, err := time.ParseInLocation(time.DateOnly, from, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
	}
	last, err := time.ParseInLocation(time.DateOnly, to, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
	}
	return start, last.AddDate(0, 0, 1), nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	today := mustGetBool(cmd, "today")
	from, to := mustGetString(cmd, "from"), mustGetString(cmd, "to")

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := a.cfg.Attendance.Location()
	if err != nil {
		return err
	}

	subjectID := ""
	if len(args) == 1 {
		subject, err := a.resolveSubject(ctx, args[0])
		if err != nil {
			return err
		}
		subjectID = subject.ID
	}

	var events []database.Event
	switch {
	case today && subjectID != "":
		start, end := attendance.DayBounds(time.Now(), loc)
		events, err = a.engine.EventsInRange(ctx, start, end, subjectID)
	case today:
		events, err = a.engine.Today(ctx, loc)
	case from != "" || to != "":
		start, end, rerr := dayRange(from, to, loc)
		if rerr != nil {
			return rerr
		}
		events, err = a.engine.EventsInRange(ctx, start, end, subjectID)
	case subjectID != "":
		events, err = a.engine.HistoryFor(ctx, subjectID, mustGetInt(cmd, "limit"))
	default:
		return fmt.Errorf("%w: a subject, --today or --from/--to is required", attendance.ErrInvalidQuery)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		out := make([]EventOutput, len(events))
		for i, ev := range events {
			out[i] = EventOutput{
				ID:         ev.ID,
				SubjectID:  ev.SubjectID,
				Code:       ev.SubjectCode,
				Name:       ev.SubjectName,
				Kind:       ev.Kind.String(),
				OccurredAt: ev.OccurredAt,
				Distance:   ev.Distance,
			}
		}
		return outputJSON(out)
	}

	if len(events) == 0 {
		fmt.Println("No events")
		return nil
	}
	for _, ev := range events {
		fmt.Printf("%s  %-9s  %-12s %s\n", ev.OccurredAt.In(loc).Format(time.DateTime), ev.Kind, ev.SubjectCode, ev.SubjectName)
	}
	return nil
}
