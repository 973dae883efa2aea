package engine

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("fact normalization", func() {
	It("ignores case, whitespace, and trailing punctuation", func() {
		Expect(equivalentFacts("Lives in  Boston.", "lives in boston")).To(BeTrue())
		Expect(equivalentFacts("lives in Boston", "lives in Seattle")).To(BeFalse())
	})

	It("detects strict extension", func() {
		Expect(extendsFact("lives in Boston near the harbor", "lives in Boston")).To(BeTrue())
		Expect(extendsFact("lives in Boston", "lives in Boston")).To(BeFalse())
		Expect(extendsFact("lives in Boston", "lives in Boston near the harbor")).To(BeFalse())
	})
})
