package dispatch

import "testing"

func TestCapabilityMatches(t *testing.T) {
	tests := []struct {
		name       string
		capability string
		taskType   string
		want       bool
	}{
		{"exact token", "grading", "grading", true},
		{"token within compound type", "grading", "essay-grading", true},
		{"plural prefix", "pattern-recognition", "analyze-behavior-patterns", true},
		{"prefix both directions", "patterns", "pattern-summary", true},
		{"short token must be exact", "id", "video-analysis", false},
		{"short token exact still matches", "id", "id-lookup", true},
		{"no shared tokens", "grading", "schedule-review", false},
		{"underscore delimiters", "behavior_analysis", "analyze-behavior-patterns", true},
		{"case insensitive", "Pattern-Recognition", "ANALYZE-behavior-patterns", true},
		{"empty capability", "", "grading", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := capabilityMatches(tt.capability, tt.taskType)
			if got != tt.want {
				t.Errorf("capabilityMatches(%q, %q) = %v, want %v",
					tt.capability, tt.taskType, got, tt.want)
			}
		})
	}
}

func TestAgentMatches(t *testing.T) {
	caps := []string{"pattern-recognition", "data-analysis"}

	if !agentMatches(caps, "analyze-behavior-patterns") {
		t.Error("Expected capability set to cover analyze-behavior-patterns")
	}
	if agentMatches(caps, "essay-grading") {
		t.Error("Expected no coverage for essay-grading")
	}
	if agentMatches(nil, "anything") {
		t.Error("Empty capability set matched")
	}
}
