package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/spf13/cobra"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// parseVector parses a comma-separated list of floats such as "0.12,-0.4,1".
func parseVector(s string) (biometric.Vector, error) {
	parts := strings.Split(s, ",")
	v := make(biometric.Vector, 0, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %d %q: %w", i, p, err)
		}
		v = append(v, float32(f))
	}
	return v, nil
}

// probeInput reads the probe of commands that take either an image path
// argument or a --vector flag.
func probeInput(cmd *cobra.Command, args []string) (biometric.Vector, []byte, error) {
	if s := mustGetString(cmd, "vector"); s != "" {
		v, err := parseVector(s)
		return v, nil, err
	}
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("an image path or --vector is required")
	}
	image, err := os.ReadFile(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read image: %w", err)
	}
	return nil, image, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
