package api

const (
	MsgInvalidRequest        = "Invalid request. Please try again."
	MsgLoginWrongCredentials = "Invalid email or password."
	MsgVerificationFailed    = "Verification failed. Please try again later."
	MsgLoginSessionExpired   = "Login session expired. Please log in again."
	MsgNotAuthenticated      = "Authentication required."
	MsgForbidden             = "Request not allowed."
	MsgNotFound              = "Not found."
	MsgTooManyRequests       = "Too many requests. Please try again later."
	MsgInternalError         = "Internal server error."
)
