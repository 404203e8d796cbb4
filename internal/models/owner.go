package models

// Owner is the donor of an item: either a registered user or a guest who
// only left a name and an email address.
type Owner interface {
	isOwner()
}

type RegisteredOwner struct {
	UserID string
}

type GuestOwner struct {
	Name  string
	Email string
}

func (RegisteredOwner) isOwner() {}
func (GuestOwner) isOwner()      {}
