package shared_cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/pmkol/resolver-x/pkg/resolver"
)

const codecVersion = 1

var errShortValue = errors.New("value is too short")

// encodeRecord packs the parts of r that are not implied by the key or the
// stored expiration:
//
//	version(1) kind(1) grace(4, seconds after expire) count(2) [len(1) addr]...
func encodeRecord(r *resolver.Record) []byte {
	addrs := r.Addrs()
	b := make([]byte, 8, 8+len(addrs)*17)
	b[0] = codecVersion
	if rErr := r.ResolveErr(); rErr != nil {
		b[1] = byte(rErr.Kind)
	}
	expire, _ := r.Expire()
	if vanish, ok := r.Vanish(); ok {
		binary.BigEndian.PutUint32(b[2:6], uint32(vanish.Sub(expire)/time.Second))
	}
	binary.BigEndian.PutUint16(b[6:8], uint16(len(addrs)))
	for _, ip := range addrs {
		s := ip.AsSlice()
		b = append(b, byte(len(s)))
		b = append(b, s...)
	}
	return b
}

func decodeRecord(domain string, b []byte, expire time.Time) (*resolver.Record, error) {
	if len(b) < 8 {
		return nil, errShortValue
	}
	if b[0] != codecVersion {
		return nil, fmt.Errorf("unknown codec version %d", b[0])
	}
	var rErr *resolver.ResolveError
	if b[1] != 0 {
		rErr = &resolver.ResolveError{Kind: resolver.ErrorKind(b[1])}
	}
	var vanish time.Time
	if grace := binary.BigEndian.Uint32(b[2:6]); grace > 0 {
		vanish = expire.Add(time.Duration(grace) * time.Second)
	}

	n := int(binary.BigEndian.Uint16(b[6:8]))
	addrs := make([]netip.Addr, 0, n)
	off := 8
	for i := 0; i < n; i++ {
		if off >= len(b) {
			return nil, errShortValue
		}
		l := int(b[off])
		off++
		if off+l > len(b) {
			return nil, errShortValue
		}
		ip, ok := netip.AddrFromSlice(b[off : off+l])
		if !ok {
			return nil, fmt.Errorf("invalid address of %d bytes", l)
		}
		addrs = append(addrs, ip)
		off += l
	}
	if rErr != nil {
		addrs = nil
	}
	return resolver.NewRecord(domain, addrs, rErr, expire, vanish), nil
}
