package identity

import (
	"errors"
	"strings"

	"github.com/aviate-labs/agent-go/principal"
)

// MaxPrincipalLength is the maximum number of raw bytes in a principal.
const MaxPrincipalLength = 29

const groupLength = 5

var (
	ErrEmptyPrincipal    = errors.New("empty principal text")
	ErrPrincipalTooLong  = errors.New("principal longer than 29 bytes")
	ErrPrincipalChecksum = errors.New("principal checksum mismatch")
	ErrPrincipalFormat   = errors.New("principal text is not in canonical form")
)

// Anonymous is the well-known sentinel identity ("2vxsx-fae").
var Anonymous = Identity(principal.AnonymousID.Encode())

// EncodePrincipal renders raw principal bytes in the textual form used by the ledger:
// base32(crc32be(raw) || raw), lower case, grouped by five characters with dashes.
func EncodePrincipal(raw []byte) Identity {
	return Identity(principal.Principal{Raw: raw}.Encode())
}

// DecodePrincipal strictly parses the textual form: the input must already be canonical.
func DecodePrincipal(text string) ([]byte, error) {
	raw, err := decodeLoose(text)
	if err != nil {
		return nil, err
	}

	if string(EncodePrincipal(raw)) != text {
		return nil, ErrPrincipalFormat
	}

	return raw, nil
}

// decodeLoose ignores letter case and dash placement but still verifies the checksum.
func decodeLoose(text string) ([]byte, error) {
	compact := strings.ToLower(strings.ReplaceAll(text, "-", ""))
	if compact == "" {
		return nil, ErrEmptyPrincipal
	}

	p, err := principal.Decode(strings.ToUpper(group(compact)))
	if err != nil {
		return nil, errors.New("invalid principal encoding: " + err.Error())
	}
	if len(p.Raw) > MaxPrincipalLength {
		return nil, ErrPrincipalTooLong
	}

	// the checksum is part of the text, so a mismatch re-encodes differently
	if strings.ReplaceAll(p.Encode(), "-", "") != compact {
		return nil, ErrPrincipalChecksum
	}

	return p.Raw, nil
}

func group(compact string) string {
	var b strings.Builder
	for i := 0; i < len(compact); i += groupLength {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + groupLength
		if end > len(compact) {
			end = len(compact)
		}
		b.WriteString(compact[i:end])
	}
	return b.String()
}

// IsPrincipal reports whether text is a canonical principal.
func IsPrincipal(text string) bool {
	_, err := DecodePrincipal(text)
	return err == nil
}
