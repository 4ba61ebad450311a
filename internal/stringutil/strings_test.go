package stringutil

import "testing"

func TestIsNumeric(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		want  bool
	}{
		{"42", true},
		{"2024", true},
		{"٣", true},
		{"", false},
		{"12a", false},
		{"1 2", false},
		{"-1", false},
		{"Машинное обучение", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := IsNumeric(tt.input); got != tt.want {
				t.Errorf("IsNumeric(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestContainsAny(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		s    string
		subs []string
		want bool
	}{
		{"match", "глубокое обучение", []string{"нейрон", "обучение"}, true},
		{"no match", "история искусства", []string{"данные", "модель"}, false},
		{"no substrings", "что угодно", nil, false},
		{"case sensitive", "Python", []string{"python"}, false},
		{"empty substring", "abc", []string{""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ContainsAny(tt.s, tt.subs...); got != tt.want {
				t.Errorf("ContainsAny(%q, %q) = %v, want %v", tt.s, tt.subs, got, tt.want)
			}
		})
	}
}
