package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

type admission int

const (
	admitted admission = iota
	rejectedRate
	rejectedLive
)

// sessionGate decides whether a remote may open another session. It bounds
// upgrade attempts per remote in fixed windows and, independently, the number
// of sessions a remote holds open at once. A non-positive bound disables that
// check.
type sessionGate struct {
	mu        sync.Mutex
	rateLimit int
	window    time.Duration
	maxLive   int
	perRemote map[string]*remoteSessions
}

type remoteSessions struct {
	windowStart time.Time
	attempts    int
	live        int
}

func newSessionGate(rateLimit int, window time.Duration, maxLive int) *sessionGate {
	if window <= 0 {
		window = time.Minute
	}
	return &sessionGate{
		rateLimit: rateLimit,
		window:    window,
		maxLive:   maxLive,
		perRemote: map[string]*remoteSessions{},
	}
}

// admit counts an upgrade attempt from remote. When it returns admitted, the
// caller owns a live slot and must hand it back with release.
func (gate *sessionGate) admit(remote string, now time.Time) admission {
	gate.mu.Lock()
	defer gate.mu.Unlock()

	entry := gate.entry(remote)
	if entry.windowStart.IsZero() || now.Sub(entry.windowStart) >= gate.window {
		entry.windowStart = now
		entry.attempts = 0
	}
	entry.attempts++

	if gate.rateLimit > 0 && entry.attempts > gate.rateLimit {
		return rejectedRate
	}
	if gate.maxLive > 0 && entry.live >= gate.maxLive {
		return rejectedLive
	}

	entry.live++
	gate.evictIdle(now)
	return admitted
}

func (gate *sessionGate) release(remote string) {
	gate.mu.Lock()
	defer gate.mu.Unlock()

	entry, ok := gate.perRemote[gateKey(remote)]
	if !ok || entry.live == 0 {
		return
	}
	entry.live--
}

// live reports how many sessions remote currently holds.
func (gate *sessionGate) live(remote string) int {
	gate.mu.Lock()
	defer gate.mu.Unlock()

	if entry, ok := gate.perRemote[gateKey(remote)]; ok {
		return entry.live
	}
	return 0
}

func (gate *sessionGate) entry(remote string) *remoteSessions {
	key := gateKey(remote)
	entry, ok := gate.perRemote[key]
	if !ok {
		entry = &remoteSessions{}
		gate.perRemote[key] = entry
	}
	return entry
}

// evictIdle drops remotes with no live session whose window has long passed.
func (gate *sessionGate) evictIdle(now time.Time) {
	if len(gate.perRemote) < 256 {
		return
	}
	for key, entry := range gate.perRemote {
		if entry.live == 0 && now.Sub(entry.windowStart) > 2*gate.window {
			delete(gate.perRemote, key)
		}
	}
}

func gateKey(remote string) string {
	if remote == "" {
		return "unknown"
	}
	return remote
}

// sessionRemote names the client behind an upgrade request. Behind a trusted
// proxy the rightmost X-Forwarded-For hop is used, since that is the one the
// proxy itself appended; hops that are not IP addresses are ignored.
func sessionRemote(request *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		hops := strings.Split(request.Header.Get("X-Forwarded-For"), ",")
		for index := len(hops) - 1; index >= 0; index-- {
			if addr, err := netip.ParseAddr(strings.TrimSpace(hops[index])); err == nil {
				return addr.Unmap().String()
			}
		}
	}

	if addrPort, err := netip.ParseAddrPort(request.RemoteAddr); err == nil {
		return addrPort.Addr().Unmap().String()
	}
	if host, _, err := net.SplitHostPort(request.RemoteAddr); err == nil && host != "" {
		return host
	}
	return request.RemoteAddr
}
