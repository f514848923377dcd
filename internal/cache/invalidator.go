package cache

// Invalidator is the query-cache collaborator the router pokes when server
// pushes make locally cached views stale. The core never owns those views.
type Invalidator interface {
	InvalidateRoomList()
	InvalidateRoomMessages(roomID int64)
	InvalidateContacts()
	InvalidateRoomParticipants(roomID int64)
	// InvalidateProfileImage is broadcast even when imageURL is nil, so
	// consumers can drop a removed image.
	InvalidateProfileImage(roomID int64, imageURL *string)
}

// NopInvalidator discards every invalidation.
type NopInvalidator struct{}

func (NopInvalidator) InvalidateRoomList()                   {}
func (NopInvalidator) InvalidateRoomMessages(int64)          {}
func (NopInvalidator) InvalidateContacts()                   {}
func (NopInvalidator) InvalidateRoomParticipants(int64)      {}
func (NopInvalidator) InvalidateProfileImage(int64, *string) {}

