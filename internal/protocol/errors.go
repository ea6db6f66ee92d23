package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrUnauthorized    = "E_UNAUTHORIZED"

	// Host calls.
	ErrUnknownMethod = "E_UNKNOWN_METHOD"
	ErrBadParams     = "E_BAD_PARAMS"
	ErrNotFound      = "E_NOT_FOUND"
	ErrTimeout       = "E_TIMEOUT"
	ErrBusy          = "E_BUSY"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrUnauthorized:    {},
	ErrUnknownMethod:   {},
	ErrBadParams:       {},
	ErrNotFound:        {},
	ErrTimeout:         {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
