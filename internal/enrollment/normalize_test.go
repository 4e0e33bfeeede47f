package enrollment

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"José Núñez", "jose nunez"},
		{"Jiří  Novák", "jiri novak"},
		{"Anne-Marie", "anne marie"},
		{"  Plain  ", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeName(tt.input); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFirstName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"María José García", "María"},
		{"  Bo  ", "Bo"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FirstName(tt.input); got != tt.want {
			t.Errorf("FirstName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
