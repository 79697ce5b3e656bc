package tools

import (
	"strings"
	"testing"
)

func TestCalculatorBasicArithmetic(t *testing.T) {
	cases := []struct {
		expression string
		want       string
	}{
		{"2+2", "4"},
		{"2 + 2 * 3", "8"},
		{"(2 + 2) * 3", "12"},
		{"10 / 4", "2.5"},
		{"-5 + 3", "-2"},
		{"2 * (3 + (4 - 1))", "12"},
	}

	for _, tc := range cases {
		got, err := executeCalculator(map[string]any{"expression": tc.expression})
		if err != nil {
			t.Fatalf("executeCalculator(%q) returned error: %v", tc.expression, err)
		}
		if got != tc.want {
			t.Errorf("executeCalculator(%q) = %q, want %q", tc.expression, got, tc.want)
		}
	}
}

func TestCalculatorRejectsInvalidCharacters(t *testing.T) {
	got, err := executeCalculator(map[string]any{"expression": "2+2; import os"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "Error: Invalid characters") {
		t.Errorf("expected invalid-characters error, got %q", got)
	}
}

func TestCalculatorMissingExpression(t *testing.T) {
	got, err := executeCalculator(map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Error: Expression is None" {
		t.Errorf("expected explicit missing-expression error, got %q", got)
	}
}

func TestCalculatorDivisionByZero(t *testing.T) {
	got, err := executeCalculator(map[string]any{"expression": "1/0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "Error:") {
		t.Errorf("expected error result, got %q", got)
	}
}

func TestCalculatorAcceptsQueryFallback(t *testing.T) {
	got, err := executeCalculator(map[string]any{"query": "7*6"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "42" {
		t.Errorf("expected 42, got %q", got)
	}
}
