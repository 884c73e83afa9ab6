package middlewares

const (
	CtxRequestID   = "request_id"
	ctxCurrentUser = "session.currentUser"
)
