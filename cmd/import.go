package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Bulk-enroll subjects from a CSV file",
	Long: `Bulk-enroll subjects from a CSV file with the columns

  code,full_name,image

where image is a photo path relative to the CSV file. A header row whose
first column is "code" is skipped. Existing codes are re-enrolled.

Examples:
  face-attendance import staff.csv
  face-attendance import staff.csv --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Int("concurrency", constants.DefaultImportConcurrency, "Number of parallel workers")
}

type importRow struct {
	line     int
	code     string
	fullName string
	image    string
}

// ImportResult summarizes a bulk enrollment
type ImportResult struct {
	Enrolled int      `json:"enrolled"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
	Duration string   `json:"duration"`
}

// readImportRows parses the CSV and resolves image paths against baseDir.
func readImportRows(r io.Reader, baseDir string) ([]importRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	var rows []importRow
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "code") {
			continue
		}
		image := strings.TrimSpace(record[2])
		if image != "" && !filepath.IsAbs(image) {
			image = filepath.Join(baseDir, image)
		}
		rows = append(rows, importRow{
			line:     line,
			code:     strings.TrimSpace(record[0]),
			fullName: strings.TrimSpace(record[1]),
			image:    image,
		})
	}
	return rows, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	concurrency := max(mustGetInt(cmd, "concurrency"), 1)
	ctx := context.Background()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open CSV: %w", err)
	}
	rows, err := readImportRows(f, filepath.Dir(args[0]))
	f.Close()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("Nothing to import")
		return nil
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(rows),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("subjects"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	start := time.Now()
	var enrolled int64
	var mu sync.Mutex
	var failures []string
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, row := range rows {
		wg.Add(1)
		sem <- struct{}{}
		go func(row importRow) {
			defer wg.Done()
			defer func() { <-sem }()
			if bar != nil {
				defer bar.Add(1)
			}

			if err := importOne(ctx, a, row); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("line %d (%s): %v", row.line, row.code, err))
				mu.Unlock()
				return
			}
			atomic.AddInt64(&enrolled, 1)
		}(row)
	}
	wg.Wait()

	result := ImportResult{
		Enrolled: int(enrolled),
		Failed:   len(failures),
		Errors:   failures,
		Duration: formatDuration(time.Since(start)),
	}
	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("\nEnrolled %d subject(s), %d failed in %s\n", result.Enrolled, result.Failed, result.Duration)
	for _, e := range failures {
		fmt.Printf("  %s\n", e)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d row(s) failed", result.Failed)
	}
	return nil
}

func importOne(ctx context.Context, a *app, row importRow) error {
	if row.image == "" {
		return errors.New("image path is empty")
	}
	image, err := os.ReadFile(row.image)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	_, err = a.subjects.Enroll(ctx, enrollment.Request{
		Code:     row.code,
		FullName: row.fullName,
		Image:    image,
	})
	return err
}

// formatDuration formats a duration as a human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
