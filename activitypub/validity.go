package activitypub

// SignatureValidity is the outcome of checking an HTTP request signature.
type SignatureValidity int

const (
	Invalid SignatureValidity = iota
	Valid
	ValidNoDigest
	Absent
	Outdated
)

// IsSecure is true only for a verified signature that also covered the body digest.
func (v SignatureValidity) IsSecure() bool {
	return v == Valid
}

func (v SignatureValidity) String() string {
	switch v {
	case Valid:
		return "valid"
	case ValidNoDigest:
		return "valid_no_digest"
	case Absent:
		return "absent"
	case Outdated:
		return "outdated"
	default:
		return "invalid"
	}
}
