package core

// Identity is the resolved caller identity for one pipeline invocation. It is
// a closed sum: either Anonymous (no credential, or a credential that did not
// resolve) or Resolved with the owning paramedic's ID. The pipeline branches
// on it explicitly instead of threading a nullable pointer through the stack.
type Identity interface {
	identity()
}

type Anonymous struct{}

type Resolved struct {
	OwnerID int64
}

func (Anonymous) identity() {}
func (Resolved) identity()  {}

// ownerID flattens an Identity into the nullable owner column shape the store
// expects.
func ownerID(id Identity) *int64 {
	if r, ok := id.(Resolved); ok {
		return &r.OwnerID
	}
	return nil
}
