package stream

import "testing"

func TestItemText(t *testing.T) {
	tests := []struct {
		name string
		item string
		want string
	}{
		{"plain text field", `{"text":"hello"}`, "hello"},
		{"output_text field", `{"output_text":"hello"}`, "hello"},
		{"content field", `{"content":"hello"}`, "hello"},
		{"payload object", `{"payload":{"text":"hello"}}`, "hello"},
		{"text parts array", `{"content":[{"text":"hel"},{"text":"lo"}]}`, "hello"},
		{"mixed array entries", `{"content":["hel",{"text":"lo"},{"kind":"image"}]}`, "hello"},
		{"priority order", `{"text":"first","content":"second"}`, "first"},
		{"empty text falls through", `{"text":"","output_text":"fallback"}`, "fallback"},
		{"nested object text", `{"text":{"content":"inner"}}`, "inner"},
		{"no text anywhere", `{"id":"item_1","type":"command"}`, ""},
		{"not an object", `"bare string"`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ItemText([]byte(tt.item)); got != tt.want {
				t.Errorf("ItemText(%s) = %q, want %q", tt.item, got, tt.want)
			}
		})
	}
}

func TestItemDelta(t *testing.T) {
	tests := []struct {
		item string
		want string
	}{
		{`{"delta":"abc"}`, "abc"},
		{`{"payload":{"delta":"abc"}}`, "abc"},
		{`{"delta":{"text":"abc"}}`, "abc"},
		{`{"text":"abc"}`, ""},
	}
	for _, tt := range tests {
		if got := ItemDelta([]byte(tt.item)); got != tt.want {
			t.Errorf("ItemDelta(%s) = %q, want %q", tt.item, got, tt.want)
		}
	}
}

func TestComputeTextUpdate_SuffixDeltas(t *testing.T) {
	first := ComputeTextUpdate("", []byte(`{"text":"Hello"}`))
	if first.NextText != "Hello" || first.Delta != "Hello" {
		t.Fatalf("first update = %+v", first)
	}
	second := ComputeTextUpdate(first.NextText, []byte(`{"text":"Hello world"}`))
	if second.NextText != "Hello world" || second.Delta != " world" {
		t.Fatalf("second update = %+v", second)
	}
}

func TestComputeTextUpdate_NonMonotonicFullReplacement(t *testing.T) {
	first := ComputeTextUpdate("", []byte(`{"text":"Hello world"}`))
	if first.Delta != "Hello world" {
		t.Fatalf("first delta = %q", first.Delta)
	}
	second := ComputeTextUpdate(first.NextText, []byte(`{"text":"Goodbye"}`))
	if second.NextText != "Goodbye" || second.Delta != "Goodbye" {
		t.Fatalf("non-monotonic update must replace wholesale, got %+v", second)
	}
}

func TestComputeTextUpdate_UnchangedTextEmitsNothing(t *testing.T) {
	update := ComputeTextUpdate("Hello", []byte(`{"text":"Hello"}`))
	if update.NextText != "Hello" || update.Delta != "" {
		t.Fatalf("unchanged text must yield an empty delta, got %+v", update)
	}
}

func TestComputeTextUpdate_ExplicitDelta(t *testing.T) {
	update := ComputeTextUpdate("Hel", []byte(`{"delta":"lo"}`))
	if update.NextText != "Hello" || update.Delta != "lo" {
		t.Fatalf("explicit delta must append, got %+v", update)
	}

	// A delta the tracked text already ends with is a duplicate.
	update = ComputeTextUpdate("Hello", []byte(`{"delta":"lo"}`))
	if update.NextText != "Hello" || update.Delta != "" {
		t.Fatalf("duplicate delta must be suppressed, got %+v", update)
	}
}

func TestComputeTextUpdate_NoTextNoDelta(t *testing.T) {
	update := ComputeTextUpdate("kept", []byte(`{"id":"item_1"}`))
	if update.NextText != "kept" || update.Delta != "" {
		t.Fatalf("contentless update must keep prior text, got %+v", update)
	}
}

func TestClassifyItemTypes(t *testing.T) {
	tests := []struct {
		itemType  string
		reasoning bool
		agent     bool
	}{
		{"reasoning", true, false},
		{"response.reasoning_summary", true, false},
		{"item/reasoning", true, false},
		{"agent_message", false, true},
		{"assistant_message", false, true},
		{"message", false, true},
		{"text", false, true},
		{"output_text", false, true},
		{"response.output_text", false, true},
		{"item/agent/update", false, true},
		{"  Agent_Message  ", false, true},
		{"command_execution", false, false},
		{"file_change", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.itemType, func(t *testing.T) {
			if got := isReasoningItemType(tt.itemType); got != tt.reasoning {
				t.Errorf("isReasoningItemType(%q) = %v, want %v", tt.itemType, got, tt.reasoning)
			}
			if got := isAgentMessageItemType(tt.itemType); got != tt.agent {
				t.Errorf("isAgentMessageItemType(%q) = %v, want %v", tt.itemType, got, tt.agent)
			}
			wantStreamed := tt.reasoning || tt.agent
			if got := isStreamedTextItemType(tt.itemType); got != wantStreamed {
				t.Errorf("isStreamedTextItemType(%q) = %v, want %v", tt.itemType, got, wantStreamed)
			}
		})
	}
}
