package dnsutils

import (
	"net/netip"
	"strconv"

	"github.com/miekg/dns"

	"github.com/pmkol/resolver-x/pkg/resolver"
)

// QtypeOf returns the query type that resolves addresses of family f.
func QtypeOf(f resolver.Family) uint16 {
	if f == resolver.FamilyV6 {
		return dns.TypeAAAA
	}
	return dns.TypeA
}

// NewQuery builds a recursive query for domain, which must be in its
// normalized form (no trailing dot).
func NewQuery(domain string, f resolver.Family) *dns.Msg {
	return FillQuery(new(dns.Msg), domain, f)
}

// FillQuery turns q into a recursive query for domain and returns it.
func FillQuery(q *dns.Msg, domain string, f resolver.Family) *dns.Msg {
	q.SetQuestion(dns.Fqdn(domain), QtypeOf(f))
	q.RecursionDesired = true
	return q
}

// ExtractAddrs returns the addresses of qtype in the answer section and the
// smallest ttl among them. CNAME chains are followed implicitly: every A/AAAA
// in the answer is taken.
func ExtractAddrs(m *dns.Msg, qtype uint16) (addrs []netip.Addr, minTTL uint32) {
	minTTL = ^uint32(0)
	for _, rr := range m.Answer {
		var ip netip.Addr
		var ok bool
		switch v := rr.(type) {
		case *dns.A:
			if qtype != dns.TypeA {
				continue
			}
			ip, ok = netip.AddrFromSlice(v.A.To4())
		case *dns.AAAA:
			if qtype != dns.TypeAAAA {
				continue
			}
			ip, ok = netip.AddrFromSlice(v.AAAA.To16())
		default:
			continue
		}
		if !ok {
			continue
		}
		addrs = append(addrs, ip)
		if ttl := rr.Header().Ttl; ttl < minTTL {
			minTTL = ttl
		}
	}
	if len(addrs) == 0 {
		return nil, 0
	}
	return addrs, minTTL
}

// RcodeKind maps a failure rcode to the kind carried by a record.
func RcodeKind(rcode int) resolver.ErrorKind {
	switch rcode {
	case dns.RcodeNameError:
		return resolver.KindNotFound
	case dns.RcodeServerFailure:
		return resolver.KindServerFailure
	case dns.RcodeRefused:
		return resolver.KindRefused
	case dns.RcodeFormatError:
		return resolver.KindFormatError
	case dns.RcodeNotImplemented:
		return resolver.KindNotImplemented
	default:
		return resolver.KindBadResponse
	}
}

// ToRecord converts an upstream response for (domain, f) into a record.
func ToRecord(domain string, f resolver.Family, m *dns.Msg, p *resolver.TTLPolicy) *resolver.Record {
	if m.Rcode != dns.RcodeSuccess {
		return p.Failed(domain, &resolver.ResolveError{Kind: RcodeKind(m.Rcode), Msg: RcodeToString(m.Rcode)})
	}
	if m.Truncated {
		return p.Failed(domain, &resolver.ResolveError{Kind: resolver.KindBadResponse, Msg: "truncated response"})
	}
	addrs, ttl := ExtractAddrs(m, QtypeOf(f))
	if len(addrs) == 0 {
		return p.Failed(domain, &resolver.ResolveError{Kind: resolver.KindNoData})
	}
	return p.Resolved(domain, ttl, addrs)
}

// --- TTL Management ---

// GetMinimalTTL returns the smallest TTL in the message, skipping OPT records.
func GetMinimalTTL(m *dns.Msg) uint32 {
	minTTL := ^uint32(0)
	hasRecord := false
	for _, section := range [...][]dns.RR{m.Answer, m.Ns, m.Extra} {
		for _, rr := range section {
			hdr := rr.Header()
			if hdr.Rrtype != dns.TypeOPT {
				hasRecord = true
				if hdr.Ttl < minTTL {
					minTTL = hdr.Ttl
				}
			}
		}
	}
	if !hasRecord {
		return 0
	}
	return minTTL
}

// --- Helpers ---

func RcodeToString(rcode int) string {
	if s, ok := dns.RcodeToString[rcode]; ok {
		return s
	}
	return strconv.Itoa(rcode)
}

func QtypeToString(u uint16) string {
	if s, ok := dns.TypeToString[u]; ok {
		return s
	}
	return strconv.Itoa(int(u))
}

// GenEmptyReply creates a skeletal response with a fake SOA.
func GenEmptyReply(q *dns.Msg, rcode int) *dns.Msg {
	r := new(dns.Msg)
	r.SetRcode(q, rcode)
	r.RecursionAvailable = true

	name := "."
	if len(q.Question) > 0 {
		name = q.Question[0].Name
	}

	r.Ns = []dns.RR{FakeSOA(name)}
	return r
}

// FakeSOA returns a static SOA record.
func FakeSOA(name string) *dns.SOA {
	return &dns.SOA{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypeSOA,
			Class:  dns.ClassINET,
			Ttl:    300,
		},
		Ns:      "fake-ns.resolver-x.invalid.",
		Mbox:    "fake-mbox.resolver-x.invalid.",
		Serial:  2021110400,
		Refresh: 1800,
		Retry:   900,
		Expire:  604800,
		Minttl:  86400,
	}
}
