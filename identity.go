package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// IdentityGenerator builds throwaway credentials
type IdentityGenerator struct {
	prefix   string
	domain   string
	password string
	now      func() time.Time
	rand     *rand.Rand
}

// NewIdentityGenerator creates a generator from the identity settings
func NewIdentityGenerator(settings IdentitySettings) *IdentityGenerator {
	g := &IdentityGenerator{
		prefix:   settings.Prefix,
		domain:   settings.Domain,
		password: settings.Password,
		now:      time.Now,
		rand:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	if g.prefix == "" {
		g.prefix = "user"
	}
	if g.domain == "" {
		g.domain = "gmail.com"
	}
	return g
}

// Next returns a fresh identity: prefix, the last six digits of the unix
// millisecond clock and three random base36 characters. The password is the
// email unless a fixed one is configured.
func (g *IdentityGenerator) Next() Identity {
	millis := strconv.FormatInt(g.now().UnixMilli(), 10)
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}

	suffix := make([]byte, 3)
	for i := range suffix {
		suffix[i] = base36Alphabet[g.rand.IntN(len(base36Alphabet))]
	}

	email := fmt.Sprintf("%s%s%s@%s", g.prefix, millis, suffix, g.domain)
	password := g.password
	if password == "" {
		password = email
	}
	return Identity{Email: email, Password: password}
}
