package security

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// IPRateLimiter hands out one token bucket per client address.
type IPRateLimiter struct {
	ips map[string]*visitor
	mu  sync.Mutex
	r   rate.Limit
	b   int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*visitor),
		r:   r,
		b:   b,
	}
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, exists := i.ips[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.ips[ip] = v
	}
	v.seen = time.Now()
	return v.limiter
}

func (i *IPRateLimiter) Allow(ip string) bool {
	return i.GetLimiter(ip).Allow()
}

// Prune forgets clients idle for longer than idle.
func (i *IPRateLimiter) Prune(idle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	n := 0
	for ip, v := range i.ips {
		if time.Since(v.seen) > idle {
			delete(i.ips, ip)
			n++
		}
	}
	return n
}

// NonceStore issues single-use login nonces, one live nonce per address.
type NonceStore struct {
	nonces map[string]issued
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
}

type issued struct {
	value   string
	created time.Time
}

func NewNonceStore(ttl time.Duration) *NonceStore {
	return &NonceStore{
		nonces: make(map[string]issued),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *NonceStore) Issue(address string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, n := range m.nonces {
		if now.Sub(n.created) > m.ttl {
			delete(m.nonces, k)
		}
	}
	nonce := uuid.NewString()
	m.nonces[strings.ToLower(address)] = issued{value: nonce, created: now}
	return nonce
}

// Consume checks nonce against the one issued to address and burns it.
func (m *NonceStore) Consume(address, nonce string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(address)
	n, exists := m.nonces[key]
	if !exists {
		return false
	}
	delete(m.nonces, key)
	if m.now().Sub(n.created) > m.ttl {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(n.value), []byte(nonce)) == 1
}
