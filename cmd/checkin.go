package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/spf13/cobra"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin [image]",
	Short: "Identify a face and record attendance",
	Long: `Identify the face in an image (or a --vector) against the active
enrollments and record an arrival or departure for the matched subject,
exactly as a check-in terminal would.

Examples:
  face-attendance checkin snapshot.jpg
  face-attendance checkin --vector "0.12,-0.03,..." --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckin,
}

func init() {
	rootCmd.AddCommand(checkinCmd)

	checkinCmd.Flags().String("vector", "", "Comma-separated probe vector instead of an image")
}

// CheckinOutput is the JSON form of a check-in outcome
type CheckinOutput struct {
	Status     string    `json:"status"`
	Success    bool      `json:"success"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Distance   float64   `json:"distance,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitzero"`
	EventID    string    `json:"event_id,omitempty"`
}

func checkinOutput(o attendance.Outcome) CheckinOutput {
	out := CheckinOutput{Status: o.Status.String(), Success: o.Success()}
	if !o.Success() {
		return out
	}
	out.SubjectID = o.SubjectID
	out.Kind = o.Kind.String()
	out.Distance = o.Distance
	out.OccurredAt = o.OccurredAt
	if o.Event != nil {
		out.Subject = o.Event.SubjectName
		out.EventID = o.Event.ID
	}
	return out
}

func runCheckin(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	vector, image, err := probeInput(cmd, args)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var outcome attendance.Outcome
	if image != nil {
		outcome, err = a.engine.ProcessImage(ctx, image)
	} else {
		outcome, err = a.engine.Process(ctx, vector)
	}
	if err != nil {
		return err
	}

	out := checkinOutput(outcome)
	if jsonOutput {
		return outputJSON(out)
	}

	switch outcome.Status {
	case attendance.StatusNoFaceDetected:
		fmt.Println("No face detected")
	case attendance.StatusNotRecognized:
		fmt.Println("Face not recognized")
	case attendance.StatusSuppressed:
		fmt.Printf("%s already recorded (%s at %s), distance %.4f\n",
			out.Subject, out.Kind, formatLocal(a, out.OccurredAt), out.Distance)
	case attendance.StatusRecorded:
		fmt.Printf("Recorded %s for %s at %s, distance %.4f\n",
			out.Kind, out.Subject, formatLocal(a, out.OccurredAt), out.Distance)
	}
	return nil
}

func formatLocal(a *app, t time.Time) string {
	loc, err := a.cfg.Attendance.Location()
	if err != nil {
		loc = time.Local
	}
	return t.In(loc).Format(time.DateTime)
}
