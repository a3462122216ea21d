package core

type (
	// PushMessage is a single device notification.
	PushMessage struct {
		Token string
		Title string
		Body  string
		Data  map[string]string
	}

	// PushService is any service that can deliver device notifications.
	// Delivery is best effort: it happens after the triggering write has
	// committed and failures must never surface to the writer.
	PushService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*PushMessage)
	}
)
