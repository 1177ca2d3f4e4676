package apperr

var (
	ErrEmptyText          = BadRequest("message text cannot be empty")
	ErrInvalidUserID      = BadRequest("invalid user id")
	ErrSelfConversation   = BadRequest("cannot start a conversation with yourself")
	ErrNotParticipant     = Forbidden("not a participant of this conversation")
	ErrOriginationDenied  = Forbidden("role is not allowed to start conversations")
	ErrInvalidToken       = Unauthenticated("invalid or expired token")
	ErrAccountRestricted  = Unauthenticated("account is suspended or banned")
	ErrUnknownAccount     = Unauthenticated("unknown account")
	ErrConversationAbsent = NotFound("conversation not found")
	ErrStalePresence      = New(CodeStalePresence, "presence handle is not live")
)

func ErrNotPersisted(cause error) error {
	return Transient("message could not be persisted", cause)
}

func ErrStorage(cause error) error {
	return Transient("storage unavailable", cause)
}
