package replay

import "errors"

// Decode failure taxonomy. ErrNoBattleStats is informational: in lenient mode
// the decoder still returns a DecodedReplay for incomplete battles.
var (
	ErrMalformedHeader    = errors.New("replay: malformed header")
	ErrDecryptFailure     = errors.New("replay: packet stream decrypt failed")
	ErrUnsupportedVersion = errors.New("replay: unsupported client version")
	ErrTruncatedStream    = errors.New("replay: truncated packet stream")
	ErrNoBattleStats      = errors.New("replay: no battle stats packet")
)

// FailureKind classifies a decode error for the failure marker row.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedHeader):
		return "MalformedHeader"
	case errors.Is(err, ErrDecryptFailure):
		return "DecryptFailure"
	case errors.Is(err, ErrUnsupportedVersion):
		return "UnsupportedVersion"
	case errors.Is(err, ErrTruncatedStream):
		return "TruncatedStream"
	case errors.Is(err, ErrNoBattleStats):
		return "NoBattleStats"
	default:
		return "DecodeFailed"
	}
}
