package model

// AuthState is the step the session controller is in.
type AuthState string

const (
	AuthUnauthenticated AuthState = "unauthenticated"
	AuthRegistering     AuthState = "registering"
	AuthSigningIn       AuthState = "signing_in"
	AuthAuthenticated   AuthState = "authenticated"
	AuthFailed          AuthState = "failed"
)

// SessionSnapshot is the single record written to the session store.
type SessionSnapshot struct {
	IsAuthenticated bool     `json:"isAuthenticated"`
	Account         *Account `json:"stellarAccount" validate:"required"`
	CredentialID    string   `json:"passkeyId,omitempty"`
}

// SessionStatus is what the controller reports to callers.
type SessionStatus struct {
	State           AuthState `json:"state"`
	Account         *Account  `json:"account,omitempty"`
	CredentialID    string    `json:"credential_id,omitempty"`
	DeviceSupported bool      `json:"device_supported"`
	Warning         string    `json:"warning,omitempty"`
	Error           string    `json:"error,omitempty"`
	AccessToken     string    `json:"access_token,omitempty"`
}

// Authenticated reports whether the status carries a full session.
func (s SessionStatus) Authenticated() bool {
	return s.State == AuthAuthenticated && s.Account != nil
}
