package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects [query]",
	Short: "List active subjects",
	Long: `List active subjects, optionally filtered by a query matched against
the code and the name (case and diacritics insensitive).

Examples:
  face-attendance subjects
  face-attendance subjects novak --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSubjects,
}

func init() {
	rootCmd.AddCommand(subjectsCmd)
}

// SubjectOutput is the JSON form of a subject in CLI output
type SubjectOutput struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	FullName  string    `json:"full_name"`
	Active    bool      `json:"active"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func subjectOutput(e database.Enrollment) SubjectOutput {
	return SubjectOutput{
		ID:        e.ID,
		Code:      e.Code,
		FullName:  e.FullName,
		Active:    e.Active,
		Dimension: e.Vector.Dim(),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func runSubjects(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	subjects, err := a.subjects.ListActive(ctx, query)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := make([]SubjectOutput, len(subjects))
		for i := range subjects {
			out[i] = subjectOutput(subjects[i])
		}
		return outputJSON(out)
	}

	if len(subjects) == 0 {
		fmt.Println("No subjects found")
		return nil
	}
	fmt.Printf("%-12s %-36s %-30s %s\n", "CODE", "ID", "NAME", "STATUS")
	for _, s := range subjects {
		printSubject(s)
	}
	fmt.Printf("\n%d subject(s)\n", len(subjects))
	return nil
}
