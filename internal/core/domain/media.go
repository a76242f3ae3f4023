package domain

// SessionDescription is the capability-neutral form of an SDP offer or
// answer exchanged over the relay.
type SessionDescription struct {
	Type string `json:"type"` // "offer" or "answer"
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the trickle-ICE candidate shape produced by the
// peer-connection capability.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
}
