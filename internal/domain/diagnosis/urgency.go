package diagnosis

import "fmt"

// Urgency is ordered: a higher value is more urgent.
type Urgency int

const (
	UrgencyRoutine Urgency = iota
	UrgencyPriority
	UrgencyUrgent
)

var urgencyNames = [...]string{"routine", "priority", "urgent"}

func (u Urgency) String() string {
	if u < UrgencyRoutine || u > UrgencyUrgent {
		return fmt.Sprintf("Urgency(%d)", int(u))
	}
	return urgencyNames[u]
}

// Raise returns the more urgent of u and to. Urgency never goes down.
func (u Urgency) Raise(to Urgency) Urgency {
	if to > u {
		return to
	}
	return u
}

func ParseUrgency(s string) (Urgency, error) {
	for i, name := range urgencyNames {
		if s == name {
			return Urgency(i), nil
		}
	}
	return UrgencyRoutine, fmt.Errorf("invalid urgency %q", s)
}

func (u Urgency) MarshalText() ([]byte, error) {
	if u < UrgencyRoutine || u > UrgencyUrgent {
		return nil, fmt.Errorf("invalid urgency %d", int(u))
	}
	return []byte(u.String()), nil
}

func (u *Urgency) UnmarshalText(b []byte) error {
	v, err := ParseUrgency(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}
