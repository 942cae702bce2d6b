package domain

// Caller identifies who asks for a lifecycle transition. The system caller is
// the expiry path; it carries implicit authority but runs through the same
// transition code as the host.
type Caller struct {
	ParticipantID string
	system        bool
}

func HostCaller(participantID string) Caller {
	return Caller{ParticipantID: participantID}
}

func SystemCaller() Caller {
	return Caller{system: true}
}

func (c Caller) IsSystem() bool { return c.system }

// Actor is the audit name of the caller.
func (c Caller) Actor() string {
	if c.system {
		return "system"
	}
	return c.ParticipantID
}
