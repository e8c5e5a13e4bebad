package cel

import (
	"context"
	"strings"
	"testing"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	return e
}

func TestEvaluate(t *testing.T) {
	e := newTestEvaluator(t)

	tests := []struct {
		name    string
		expr    string
		payload map[string]any
		want    any
	}{
		{
			name:    "payload field access",
			expr:    `payload.url == "https://example.com"`,
			payload: map[string]any{"url": "https://example.com"},
			want:    true,
		},
		{
			name: "event and phase variables",
			expr: `event == "tools/call" && phase == "request"`,
			want: true,
		},
		{
			name:    "map result",
			expr:    `{"text": string(payload.text) + "!"}`,
			payload: map[string]any{"text": "hi"},
			want:    nil, // compared structurally below
		},
		{
			name: "nil payload treated as empty",
			expr: `size(payload) == 0`,
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prg, err := e.Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := e.Evaluate(context.Background(), prg, tt.payload, "tools/call", "request")
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if tt.want != nil && got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
			if tt.name == "map result" {
				m, ok := got.(map[string]any)
				if !ok || m["text"] != "hi!" {
					t.Errorf("Evaluate() = %#v, want map with text %q", got, "hi!")
				}
			}
		})
	}
}

func TestCompileCachesPrograms(t *testing.T) {
	e := newTestEvaluator(t)

	first, err := e.Compile(`payload.x == 1.0`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	second, err := e.Compile(`payload.x == 1.0`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(e.programs) != 1 {
		t.Errorf("program cache size = %d, want 1", len(e.programs))
	}
	_ = first
	_ = second
}

func TestCompileRejectsInvalidExpression(t *testing.T) {
	e := newTestEvaluator(t)
	if _, err := e.Compile(`payload.`); err == nil {
		t.Error("Compile(invalid) expected error")
	}
}

func TestValidateExpression(t *testing.T) {
	e := newTestEvaluator(t)

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"valid", `payload.url == "x"`, false},
		{"empty", "", true},
		{"too long", `"` + strings.Repeat("a", maxExpressionLength) + `"`, true},
		{"too deeply nested", strings.Repeat("(", maxNestingDepth+1) + "1" + strings.Repeat(")", maxNestingDepth+1), true},
		{"syntax error", `payload..url`, true},
		{"unknown variable", `undeclared_var == 1`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.ValidateExpression(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateExpression(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestEvaluateRespectsContext(t *testing.T) {
	e := newTestEvaluator(t)
	prg, err := e.Compile(`payload.items.all(a, payload.items.all(b, a + b >= 0))`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	items := make([]any, 500)
	for i := range items {
		items[i] = float64(i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Evaluate(ctx, prg, map[string]any{"items": items}, "tools/call", "request"); err == nil {
		t.Error("Evaluate(cancelled ctx) expected error")
	}
}
