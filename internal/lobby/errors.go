package lobby

// Kind classifies a lobby error for the HTTP layer and for retry policy:
// validation and authorization failures are terminal for the request,
// state conflicts may succeed on retry after the caller corrects state.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

// Error is a structured lobby failure: a kind plus a stable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrGameNotFound  = &Error{KindNotFound, "game not found"}
	ErrLobbyNotFound = &Error{KindNotFound, "lobby not found"}

	ErrAlreadyInLobby   = &Error{KindConflict, "user is already in a lobby"}
	ErrLobbyFull        = &Error{KindConflict, "lobby is full"}
	ErrLobbyStarted     = &Error{KindConflict, "lobby has already started"}
	ErrAlreadyStarted   = &Error{KindConflict, "lobby has already started"}
	ErrNotEnoughPlayers = &Error{KindConflict, "not enough players to start"}
	ErrPlayersNotReady  = &Error{KindConflict, "not all players are ready"}

	ErrNotHost    = &Error{KindForbidden, "only the host can do that"}
	ErrNotAMember = &Error{KindForbidden, "user is not a member of this lobby"}

	ErrWrongPassword  = &Error{KindValidation, "wrong lobby password"}
	ErrCannotKickHost = &Error{KindValidation, "host cannot kick themselves"}
	ErrEmptyMessage   = &Error{KindValidation, "message is empty"}
	ErrMessageTooLong = &Error{KindValidation, "message is too long"}

	ErrCodeSpaceExhausted = &Error{KindInternal, "could not generate a unique lobby code"}
)
