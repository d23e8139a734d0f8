package api

import (
	"time"

	"github.com/khanghh/rootgate/params"
)

type APIResponse struct {
	APIVersion string        `json:"apiVersion"`
	Data       any           `json:"data,omitempty"`
	Error      *APIErrorInfo `json:"error,omitempty"`
}

type APIErrorInfo struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds
}

func NewErrorResponse(code int, message string) *APIResponse {
	return &APIResponse{
		APIVersion: params.APIVersion,
		Error: &APIErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

func NewDataResponse(data any) *APIResponse {
	return &APIResponse{
		APIVersion: params.APIVersion,
		Data:       data,
	}
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type otpRequest struct {
	Email          string `json:"email" form:"email"`
	Code           string `json:"code" form:"code"`
	ChallengeToken string `json:"challengeToken" form:"challengeToken"`
}

type LoginResponse struct {
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SessionResponse struct {
	State      string     `json:"state"`
	Identity   string     `json:"identity"`
	Variant    string     `json:"variant"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Deprecated bool       `json:"deprecated,omitempty"`
}
