package realtime

// CredentialError means the backend did not hand out an ephemeral token.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string { return "realtime: credential fetch failed: " + e.Err.Error() }
func (e *CredentialError) Unwrap() error { return e.Err }

// MediaError means local audio capture or playback could not be set up.
type MediaError struct {
	Err error
}

func (e *MediaError) Error() string { return "realtime: media setup failed: " + e.Err.Error() }
func (e *MediaError) Unwrap() error { return e.Err }

// SignalingError means the SDP exchange with the backend failed.
type SignalingError struct {
	Err error
}

func (e *SignalingError) Error() string { return "realtime: sdp exchange failed: " + e.Err.Error() }
func (e *SignalingError) Unwrap() error { return e.Err }
