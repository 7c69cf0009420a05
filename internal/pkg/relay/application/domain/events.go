package relay

// Event names the application tier dispatches through the relay. The relay
// forwards any event string verbatim; these constants exist so producers and
// client code agree on spelling.
const (
	EventMessageNew          = "message.new"
	EventMessageUpdated      = "message.updated"
	EventMessageDeleted      = "message.deleted"
	EventReactionAdded       = "reaction.added"
	EventReactionRemoved     = "reaction.removed"
	EventStatusDelivered     = "status.delivered"
	EventStatusRead          = "status.read"
	EventConversationUpdated = "conversation.updated"
	EventCallStarted         = "call.started"
	EventCallEnded           = "call.ended"
	EventCallSignal          = "call.signal"
)
