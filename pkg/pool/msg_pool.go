package pool

import (
	"sync"

	"github.com/miekg/dns"
)

var msgPool = sync.Pool{
	New: func() any {
		return new(dns.Msg)
	},
}

// GetMsg returns a zero *dns.Msg. The caller should ReleaseMsg it once the
// exchange that uses it is over.
func GetMsg() *dns.Msg {
	return msgPool.Get().(*dns.Msg)
}

// ReleaseMsg zeroes m and puts it back. m must not be used afterwards.
func ReleaseMsg(m *dns.Msg) {
	*m = dns.Msg{}
	msgPool.Put(m)
}
