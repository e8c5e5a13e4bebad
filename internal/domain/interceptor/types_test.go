package interceptor

import (
	"testing"
)

func TestKindValid(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindValidation, true},
		{KindMutation, true},
		{KindObservability, true},
		{Kind("audit"), false},
		{Kind(""), false},
	}
	for _, tt := range tests {
		if got := tt.kind.Valid(); got != tt.want {
			t.Errorf("Kind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestPhaseValid(t *testing.T) {
	if !PhaseRequest.Valid() || !PhaseResponse.Valid() {
		t.Error("request and response phases must be valid")
	}
	if Phase("both").Valid() {
		t.Error("unknown phase must not be valid")
	}
}

func TestDescriptorAppliesTo(t *testing.T) {
	tests := []struct {
		name  string
		desc  Descriptor
		event string
		phase Phase
		want  bool
	}{
		{
			name:  "empty restrictions match everything",
			desc:  Descriptor{ID: "a"},
			event: "tools/call",
			phase: PhaseRequest,
			want:  true,
		},
		{
			name:  "matching event and phase",
			desc:  Descriptor{ID: "a", ApplicableEvents: []string{"tools/call"}, ApplicablePhases: []Phase{PhaseRequest}},
			event: "tools/call",
			phase: PhaseRequest,
			want:  true,
		},
		{
			name:  "event mismatch",
			desc:  Descriptor{ID: "a", ApplicableEvents: []string{"tools/call"}},
			event: "resources/read",
			phase: PhaseRequest,
			want:  false,
		},
		{
			name:  "phase mismatch",
			desc:  Descriptor{ID: "a", ApplicablePhases: []Phase{PhaseResponse}},
			event: "tools/call",
			phase: PhaseRequest,
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.AppliesTo(tt.event, tt.phase); got != tt.want {
				t.Errorf("AppliesTo(%q, %q) = %v, want %v", tt.event, tt.phase, got, tt.want)
			}
		})
	}
}

func TestLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Descriptor
		want bool
	}{
		{
			name: "lower priority runs earlier",
			a:    Descriptor{ID: "z", Priority: 1},
			b:    Descriptor{ID: "a", Priority: 2},
			want: true,
		},
		{
			name: "priority tie breaks by id ascending",
			a:    Descriptor{ID: "a", Priority: 5},
			b:    Descriptor{ID: "b", Priority: 5},
			want: true,
		},
		{
			name: "equal descriptors are not less",
			a:    Descriptor{ID: "a", Priority: 5},
			b:    Descriptor{ID: "a", Priority: 5},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Less(&tt.a, &tt.b); got != tt.want {
				t.Errorf("Less() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescriptorCloneIsDeep(t *testing.T) {
	orig := &Descriptor{
		ID:               "a",
		ApplicableEvents: []string{"tools/call"},
		ApplicablePhases: []Phase{PhaseRequest},
	}
	c := orig.clone()
	c.ApplicableEvents[0] = "mutated"
	c.ApplicablePhases[0] = PhaseResponse

	if orig.ApplicableEvents[0] != "tools/call" {
		t.Error("clone shares the events slice with the original")
	}
	if orig.ApplicablePhases[0] != PhaseRequest {
		t.Error("clone shares the phases slice with the original")
	}
}
