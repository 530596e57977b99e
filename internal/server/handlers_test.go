package server

import (
	"github.com/nabbar/golib/internal/proto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("accessToString", func() {
	It("renders owner and public bits either side of the slash", func() {
		a := proto.AccessOwnerRead | proto.AccessOwnerWrite | proto.AccessPublicRead
		Expect(accessToString(a)).To(Equal("RW/r"))
	})

	It("appends L for a locked entry", func() {
		a := proto.AccessOwnerRead | proto.AccessLocked
		Expect(accessToString(a)).To(Equal("R/L"))
	})

	It("renders a bare slash for no access bits", func() {
		Expect(accessToString(0)).To(Equal("/"))
	})
})

var _ = Describe("pad", func() {
	It("right-pads a short string to width", func() {
		Expect(pad("abc", 6)).To(Equal("abc   "))
	})

	It("truncates a string longer than width", func() {
		Expect(pad("abcdefgh", 4)).To(Equal("abcd"))
	})

	It("leaves an exact-width string untouched", func() {
		Expect(pad("abcd", 4)).To(Equal("abcd"))
	})
})

var _ = Describe("hex8 and hex6", func() {
	It("zero-pads to the requested width, uppercase", func() {
		Expect(hex8(0xBEEF)).To(Equal("0000BEEF"))
		Expect(hex6(0xA)).To(Equal("00000A"))
	})
})
