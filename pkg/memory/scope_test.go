package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memd/pkg/memory"
)

var _ = Describe("Scope", func() {
	It("produces the same canonical key regardless of map iteration order", func() {
		a := memory.NewScope(map[string]string{"user": "u1", "project": "p1"})
		b := memory.NewScope(map[string]string{"project": "p1", "user": "u1"})

		Expect(a.Key()).To(Equal(b.Key()))
		Expect(a.Equal(b)).To(BeTrue())
	})

	It("sorts keys lexicographically in the canonical form", func() {
		s := memory.NewScope(map[string]string{"user": "u1", "agent": "a9"})
		Expect(s.Key()).To(Equal("agent=a9;user=u1"))
	})

	It("escapes separator characters in keys and values", func() {
		s := memory.NewScope(map[string]string{"k=1": "a;b"})
		Expect(s.Key()).To(Equal("k%3D1=a%3Bb"))
	})

	It("round-trips through Map", func() {
		s := memory.NewScope(map[string]string{"user": "u1", "project": "p1"})
		Expect(memory.NewScope(s.Map()).Key()).To(Equal(s.Key()))
	})

	It("distinguishes different scopes", func() {
		a := memory.NewScope(map[string]string{"user": "u1"})
		b := memory.NewScope(map[string]string{"user": "u2"})
		Expect(a.Equal(b)).To(BeFalse())
	})

	It("returns values by key", func() {
		s := memory.NewScope(map[string]string{"user": "u1"})
		v, ok := s.Get("user")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("u1"))

		_, ok = s.Get("missing")
		Expect(ok).To(BeFalse())
	})
})
