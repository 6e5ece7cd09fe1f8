package visit

type Status string

const (
	StatusNew        Status = "new"
	StatusContacted  Status = "contacted"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusLost       Status = "lost"
)

// transitionMap lists the statuses reachable through a plain status update.
// Moving to assigned is reserved for the assignment engine.
var transitionMap = map[Status][]Status{
	StatusNew:        {StatusContacted, StatusLost},
	StatusContacted:  {StatusLost},
	StatusAssigned:   {StatusInProgress, StatusLost},
	StatusInProgress: {StatusCompleted, StatusLost},
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	switch s {
	case StatusNew, StatusContacted, StatusAssigned, StatusInProgress, StatusCompleted, StatusLost:
		return s, true
	}
	return "", false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusLost
}

// IsPendingStatus reports whether s is a waiting-for-consultant status.
func (s Status) IsPendingStatus() bool {
	return s == StatusNew || s == StatusContacted
}

// IsActiveStatus reports whether s counts toward a consultant's load.
func (s Status) IsActiveStatus() bool {
	return s == StatusAssigned || s == StatusInProgress
}

// ValidTransition reports whether a status update may move a visit from -> to.
func ValidTransition(from, to Status) bool {
	allowed, ok := transitionMap[from]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}
