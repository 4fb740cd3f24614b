package diagnosis

import (
	"encoding/json"
	"testing"
)

func TestUrgency_Raise(t *testing.T) {
	tests := []struct {
		from, to, want Urgency
	}{
		{UrgencyRoutine, UrgencyPriority, UrgencyPriority},
		{UrgencyPriority, UrgencyRoutine, UrgencyPriority},
		{UrgencyUrgent, UrgencyPriority, UrgencyUrgent},
		{UrgencyRoutine, UrgencyRoutine, UrgencyRoutine},
		{UrgencyPriority, UrgencyUrgent, UrgencyUrgent},
	}
	for _, tt := range tests {
		if got := tt.from.Raise(tt.to); got != tt.want {
			t.Errorf("%s.Raise(%s): expected %s, got %s", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestUrgency_Ordering(t *testing.T) {
	if !(UrgencyRoutine < UrgencyPriority && UrgencyPriority < UrgencyUrgent) {
		t.Error("expected routine < priority < urgent")
	}
}

func TestUrgency_Text(t *testing.T) {
	for _, name := range []string{"routine", "priority", "urgent"} {
		u, err := ParseUrgency(name)
		if err != nil {
			t.Fatalf("ParseUrgency(%q): %v", name, err)
		}
		if u.String() != name {
			t.Errorf("expected %s, got %s", name, u)
		}
	}
	if _, err := ParseUrgency("emergency"); err == nil {
		t.Error("expected error for unknown urgency")
	}
	if Urgency(7).String() != "Urgency(7)" {
		t.Errorf("unexpected string for invalid value: %s", Urgency(7))
	}
}

func TestUrgency_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Urgency{"level": UrgencyPriority})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"level":"priority"}` {
		t.Errorf("unexpected json %s", data)
	}

	var out struct {
		Level Urgency `json:"level"`
	}
	if err := json.Unmarshal([]byte(`{"level":"urgent"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Level != UrgencyUrgent {
		t.Errorf("expected urgent, got %s", out.Level)
	}
	if err := json.Unmarshal([]byte(`{"level":"later"}`), &out); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := json.Marshal(struct{ U Urgency }{Urgency(-1)}); err == nil {
		t.Error("expected error marshalling invalid urgency")
	}
}

func TestRankedSet(t *testing.T) {
	s := newRankedSet()
	s.add("Pneumonie", UrgencyRoutine)
	s.add("  ", UrgencyUrgent)
	s.add("Embolie pulmonaire", UrgencyRoutine)
	s.add("PNEUMONIE", UrgencyUrgent)
	s.add("Asthme", UrgencyPriority)

	if got := s.all(); !equalStrings(got, []string{"Pneumonie", "Embolie pulmonaire", "Asthme"}) {
		t.Errorf("unexpected entries %v", got)
	}
	if s.ranks[0] != UrgencyUrgent {
		t.Errorf("expected duplicate to raise rank, got %s", s.ranks[0])
	}
	if got := s.top(2); !equalStrings(got, []string{"Pneumonie", "Asthme"}) {
		t.Errorf("expected highest ranks in insertion order, got %v", got)
	}
	if got := s.top(10); len(got) != 3 {
		t.Errorf("expected all entries, got %v", got)
	}
}

func TestOrderedSet(t *testing.T) {
	s := newOrderedSet()
	s.add("CRP, VS", "ECG", "crp, vs ", "", "ECG")
	if got := s.values(); !equalStrings(got, []string{"CRP, VS", "ECG"}) {
		t.Errorf("unexpected values %v", got)
	}
}
