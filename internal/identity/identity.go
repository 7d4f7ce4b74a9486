package identity

import "agreement-notary/internal/hashing"

// Identity is a normalized principal string, the canonical party identifier on the ledger.
type Identity string

func (id Identity) String() string {
	return string(id)
}

func (id Identity) IsAnonymous() bool {
	return id == Anonymous
}

// Bytes returns the raw principal bytes.
func (id Identity) Bytes() ([]byte, error) {
	return DecodePrincipal(string(id))
}

// SignatureHash is the consent attestation recorded when id signs: hex(sha256(principal bytes)).
func SignatureHash(id Identity) string {
	raw, err := id.Bytes()
	if err != nil {
		raw = []byte(id)
	}
	return hashing.CalculateSHA256(raw)
}

// DisplayShort shortens an identity for display, e.g. "l27js-ew...2e-roe".
func DisplayShort(id Identity) string {
	text := string(id)
	if len(text) <= 12 {
		return text
	}
	return text[:8] + "..." + text[len(text)-4:]
}

// Strings converts identities to their textual form.
func Strings(ids []Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
