package core

// context keys populated by x/dispatch's IdentifyUser middleware.
const (
	RequesterUserCtxKey      = "rta-requesterUser"
	RequesterUIDCtxKey       = "rta-requesterUID"
	RequesterPublicKeyCtxKey = "rta-requesterPublicKey"
)

const (
	RequesterUIDHeader = "rta-uid"
)
