package models

// NotificationCategory scopes counter operations; "mark all read" affects
// exactly one category.
type NotificationCategory string

const (
	CategoryMessages       NotificationCategory = "messages"
	CategoryFriendRequests NotificationCategory = "friend_requests"
	CategoryGeneric        NotificationCategory = "generic"
)

// NotificationCounters is the process-wide badge aggregate. Each counter is
// independently sourced and never goes negative.
type NotificationCounters struct {
	UnreadMessages        int `json:"unreadMessages"`
	PendingFriendRequests int `json:"pendingFriendRequests"`
	GenericNotifications  int `json:"genericNotifications"`
}

// Badge returns the displayed badge value: the sum of the three counters.
func (c NotificationCounters) Badge() int {
	return c.UnreadMessages + c.PendingFriendRequests + c.GenericNotifications
}
