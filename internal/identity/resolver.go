package identity

import (
	"crypto/sha256"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var accountAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Resolution is the outcome of resolving an externally supplied address.
type Resolution struct {
	Identity Identity
	// Verified is false when the input could not be understood and Identity is Anonymous.
	Verified bool
	Source   Source
}

type Source string

const (
	SourcePrincipal  Source = "principal"
	SourceAccount    Source = "account"
	SourcePermissive Source = "permissive"
	SourceUnverified Source = "unverified"
)

// Resolver maps EVM account addresses and principal texts onto principals.
// It holds no state besides the logger; resolution is a pure function of the input.
type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) Resolver {
	return Resolver{logger: logger}
}

// Resolve never fails: unrecognized input falls back to the anonymous identity,
// which is logged because it collapses distinct parties onto one identity.
func (r Resolver) Resolve(input string) Resolution {
	if IsPrincipal(input) {
		return Resolution{Identity: Identity(input), Verified: true, Source: SourcePrincipal}
	}

	if IsAccountAddress(input) {
		return Resolution{Identity: FromAccountAddress(input), Verified: true, Source: SourceAccount}
	}

	if raw, err := decodeLoose(strings.TrimSpace(input)); err == nil {
		return Resolution{Identity: EncodePrincipal(raw), Verified: true, Source: SourcePermissive}
	}

	r.logger.Warn("unrecognized address resolved to the anonymous identity, distinct parties may collapse",
		zap.String("input", input))

	return Resolution{Identity: Anonymous, Verified: false, Source: SourceUnverified}
}

// ResolveAll resolves every input; the second result lists inputs that were not verified.
func (r Resolver) ResolveAll(inputs []string) ([]Identity, []string) {
	ids := make([]Identity, len(inputs))
	var unverified []string
	for i, input := range inputs {
		res := r.Resolve(input)
		ids[i] = res.Identity
		if !res.Verified {
			unverified = append(unverified, input)
		}
	}
	return ids, unverified
}

func IsAccountAddress(input string) bool {
	return accountAddressPattern.MatchString(input)
}

// FromAccountAddress derives a principal from a 20-byte account address:
// the first 29 bytes of sha256 over the lower-cased hex without the 0x prefix.
func FromAccountAddress(address string) Identity {
	clean := strings.TrimPrefix(strings.ToLower(address), "0x")
	digest := sha256.Sum256([]byte(clean))
	return EncodePrincipal(digest[:MaxPrincipalLength])
}
