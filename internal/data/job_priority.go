package data

import "fmt"

// JobPriority orders the queue FIFOs. Higher values drain first.
type JobPriority int

const (
	LowJobPriority      JobPriority = 0
	MediumJobPriority   JobPriority = 1
	HighJobPriority     JobPriority = 2
	CriticalJobPriority JobPriority = 3
)

func (p JobPriority) Validate() error {
	switch p {
	case LowJobPriority, MediumJobPriority, HighJobPriority, CriticalJobPriority:
		return nil
	default:
		return fmt.Errorf("invalid job priority: %d", p)
	}
}

func (p JobPriority) String() string {
	switch p {
	case LowJobPriority:
		return "low"
	case MediumJobPriority:
		return "medium"
	case HighJobPriority:
		return "high"
	case CriticalJobPriority:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// JobPriorities returns all priorities ordered from highest to lowest.
func JobPriorities() []JobPriority {
	return []JobPriority{CriticalJobPriority, HighJobPriority, MediumJobPriority, LowJobPriority}
}
