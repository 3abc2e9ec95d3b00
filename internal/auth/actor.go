// Package auth models the verified caller identity handed over by the
// upstream identity collaborator. The core never checks credentials itself;
// it only consumes an Actor that was validated once at the HTTP boundary.
package auth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
)

var ErrUnknownRole = errors.New("unknown role")

// Actor is a capability token: a closed (role, id) pair. Downstream services
// branch on the role via IsTherapist/IsPatient instead of re-parsing strings.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func NewActor(id uuid.UUID, role Role) (Actor, error) {
	switch role {
	case RoleTherapist, RolePatient:
		return Actor{ID: id, Role: role}, nil
	default:
		return Actor{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

func Therapist(id uuid.UUID) Actor { return Actor{ID: id, Role: RoleTherapist} }
func Patient(id uuid.UUID) Actor   { return Actor{ID: id, Role: RolePatient} }

func (a Actor) IsTherapist() bool { return a.Role == RoleTherapist }
func (a Actor) IsPatient() bool   { return a.Role == RolePatient }
