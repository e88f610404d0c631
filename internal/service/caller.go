package service

import "fmt"

type Capability int

const (
	CapabilityPublic Capability = iota
	CapabilityAdmin
)

func (c Capability) String() string {
	if c == CapabilityAdmin {
		return "admin"
	}

	return "public"
}

// Caller carries the authenticated capability of the request into every operation.
type Caller struct {
	Subject    string
	Capability Capability
}

func PublicCaller() Caller {
	return Caller{Capability: CapabilityPublic}
}

func AdminCaller(subject string) Caller {
	return Caller{Subject: subject, Capability: CapabilityAdmin}
}

func (c Caller) IsAdmin() bool {
	return c.Capability == CapabilityAdmin
}

func (c Caller) requireAdmin(op string) error {
	if !c.IsAdmin() {
		return fmt.Errorf("%w: %s requires the admin capability", ErrPermissionDenied, op)
	}

	return nil
}
