package main

import (
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedGenerator(settings IdentitySettings) *IdentityGenerator {
	g := NewIdentityGenerator(settings)
	g.now = func() time.Time { return time.UnixMilli(1700000123456) }
	g.rand = rand.New(rand.NewPCG(1, 2))
	return g
}

func TestIdentityGeneratorFormat(t *testing.T) {
	g := fixedGenerator(IdentitySettings{Prefix: "bibigpt", Domain: "gmail.com"})

	id := g.Next()
	assert.Regexp(t, regexp.MustCompile(`^bibigpt123456[0-9a-z]{3}@gmail\.com$`), id.Email)
	assert.Equal(t, id.Email, id.Password, "password defaults to the email")
}

func TestIdentityGeneratorDefaults(t *testing.T) {
	g := fixedGenerator(IdentitySettings{})

	id := g.Next()
	assert.Regexp(t, `^user123456[0-9a-z]{3}@gmail\.com$`, id.Email)
}

func TestIdentityGeneratorFixedPassword(t *testing.T) {
	g := fixedGenerator(IdentitySettings{Prefix: "p", Domain: "example.org", Password: "hunter22"})

	id := g.Next()
	assert.Regexp(t, `^p123456[0-9a-z]{3}@example\.org$`, id.Email)
	assert.Equal(t, "hunter22", id.Password)
}

func TestIdentityGeneratorRotates(t *testing.T) {
	g := fixedGenerator(IdentitySettings{Prefix: "bibigpt"})

	first, second := g.Next(), g.Next()
	assert.NotEqual(t, first.Email, second.Email)
}
