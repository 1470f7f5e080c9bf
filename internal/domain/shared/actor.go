package shared

import (
	"github.com/google/uuid"
)

// ActorKind describes who performs a mutation
type ActorKind string

const (
	ActorUser    ActorKind = "USER"
	ActorService ActorKind = "SERVICE"
	ActorSystem  ActorKind = "SYSTEM"
)

// Actor is the identity a mutation is attributed to. It is passed explicitly
// through every core call and never read from ambient state.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Kind ActorKind `json:"kind"`
}

// NewUserActor creates a user actor
func NewUserActor(id uuid.UUID) Actor {
	return Actor{ID: id, Kind: ActorUser}
}

// SystemActorID is the fixed identity used by background jobs such as the batch poster
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-00000000beef")

// SystemActor returns the actor used by the batch scheduler
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Kind: ActorSystem}
}

// IsAnonymous reports whether the actor carries no identity
func (a Actor) IsAnonymous() bool {
	return a.ID == uuid.Nil
}
