package correlation

import "testing"

func TestMatchers(t *testing.T) {
	env := envelope(t, "candle-generated", "42", map[string]any{
		"active_id": 76,
		"size":      60,
		"close":     1.0842,
		"phase":     "T",
		"meta":      map[string]any{"source": "live", "seq": 7},
	})

	tests := []struct {
		name    string
		matcher Matcher
		want    bool
	}{
		{"any", MatchAny(), true},
		{"int field", FieldEquals("active_id", 76), true},
		{"int64 field", FieldEquals("active_id", int64(76)), true},
		{"float equal to int", FieldEquals("active_id", 76.0), true},
		{"int mismatch", FieldEquals("active_id", 1), false},
		{"float field", FieldEquals("close", 1.0842), true},
		{"string field", FieldEquals("phase", "T"), true},
		{"string vs number", FieldEquals("active_id", "76"), false},
		{"nested field", FieldEquals("meta.source", "live"), true},
		{"nested number", FieldEquals("meta.seq", 7), true},
		{"missing field", FieldEquals("missing", 1), false},
		{"path through scalar", FieldEquals("phase.x", 1), false},
		{"unencodable want", FieldEquals("active_id", func() {}), false},
		{"correlation id", CorrelationID("42"), true},
		{"other correlation id", CorrelationID("43"), false},
		{"all empty", All(), true},
		{"all match", All(FieldEquals("active_id", 76), FieldEquals("size", 60)), true},
		{"all one miss", All(FieldEquals("active_id", 76), FieldEquals("size", 300)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.matcher.Match(env); got != tt.want {
				t.Errorf("%s.Match() = %v, want %v", tt.matcher, got, tt.want)
			}
		})
	}
}

func TestMatcher_String(t *testing.T) {
	m := All(FieldEquals("active_id", 76), CorrelationID("r1"), MatchAny())
	want := "all(active_id=76,request_id=r1,any)"
	if got := m.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFieldEquals_EmptyPayload(t *testing.T) {
	env := Envelope{Kind: "heartbeat"}
	if FieldEquals("active_id", 76).Match(env) {
		t.Error("Match on empty payload = true, want false")
	}
}
