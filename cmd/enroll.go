package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <code> <full name> [image]",
	Short: "Enroll a subject or replace its reference vector",
	Long: `Enroll a subject under its external code. Enrolling an existing code
replaces the reference vector, updates the name and reactivates the subject.

The vector is extracted from the image by the embedding provider (EMBEDDING_URL),
or given directly with --vector.

Examples:
  face-attendance enroll EMP-001 "Ana María Díaz" ana.jpg
  face-attendance enroll EMP-002 "Bo Li" --vector "0.12,-0.03,..."`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runEnroll,
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <code|id>",
	Short: "Deactivate a subject so it is no longer recognized",
	Long: `Deactivate a subject. Its attendance history and reference vector are
kept; enrolling the same code again reactivates it.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeactivate,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(deactivateCmd)

	enrollCmd.Flags().String("vector", "", "Comma-separated reference vector instead of an image")
}

func printSubject(e database.Enrollment) {
	status := "active"
	if !e.Active {
		status = "inactive"
	}
	fmt.Printf("%-12s %-36s %-30s %s\n", e.Code, e.ID, e.FullName, status)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	vector, image, err := probeInput(cmd, args[2:])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	saved, err := a.subjects.Enroll(ctx, enrollment.Request{
		Code:     args[0],
		FullName: strings.TrimSpace(args[1]),
		Vector:   vector,
		Image:    image,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(subjectOutput(saved))
	}
	fmt.Printf("Enrolled %s (%s)\n", saved.FullName, saved.Code)
	printSubject(saved)
	return nil
}

func runDeactivate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	subject, err := a.resolveSubject(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.subjects.Deactivate(ctx, subject.ID); err != nil {
		return err
	}
	fmt.Printf("Deactivated %s (%s)\n", subject.FullName, subject.Code)
	return nil
}
