package resolver

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

const maxDomainLength = 253

// lookup mapping without the strict LDH rule, so names like _sip._udp.example.com pass.
var idnaProfile = idna.New(idna.MapForLookup(), idna.Transitional(false), idna.StrictDomainName(false))

// NormalizeDomain returns the key form of a domain: ascii (punycode), lower
// case and without the trailing dot.
func NormalizeDomain(domain string) (string, error) {
	d := strings.TrimSuffix(domain, ".")
	if len(d) == 0 {
		return "", fmt.Errorf("%w: empty domain", ErrInvalidDomain)
	}

	if isASCII(d) {
		d = strings.ToLower(d)
	} else {
		a, err := idnaProfile.ToASCII(d)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidDomain, err)
		}
		d = a
	}

	if len(d) > maxDomainLength {
		return "", fmt.Errorf("%w: domain too long", ErrInvalidDomain)
	}
	for _, label := range strings.Split(d, ".") {
		if len(label) == 0 || len(label) > 63 {
			return "", fmt.Errorf("%w: bad label length in %q", ErrInvalidDomain, d)
		}
	}
	return d, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
