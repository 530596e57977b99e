package server

import (
	"os"
	"path/filepath"

	"github.com/nabbar/golib/internal/handle"
	"github.com/nabbar/golib/internal/proto"
	"github.com/nabbar/golib/internal/session"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Server path helpers", func() {
	var (
		root string
		srv  *Server
		sess *session.Session
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(root, "users", "alice"), 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(root, "users", "alice", "owned.txt"), []byte("x"), 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(root, "users", "alice", "public.txt"), []byte("x"), 0666)).To(Succeed())

		srv = New(Config{Root: root, DiscName: "TESTDISC", DefaultLib: "$.Library"})

		sess = &session.Session{Handles: handle.New(true)}
		urdH, h := sess.Handles.Alloc(handle.KindDir)
		h.Path = filepath.Join(root, "users", "alice")
		sess.URD = urdH
	})

	Describe("isOwner", func() {
		It("reports true for a path under the session's URD", func() {
			full := filepath.Join(root, "users", "alice", "owned.txt")
			Expect(srv.isOwner(sess, full)).To(BeTrue())
		})

		It("reports false for a path outside the URD", func() {
			outside := filepath.Join(root, "users", "bob", "file.txt")
			Expect(srv.isOwner(sess, outside)).To(BeFalse())
		})
	})

	Describe("canWrite", func() {
		It("allows the owner to write their own owner-writable file", func() {
			full := filepath.Join(root, "users", "alice", "owned.txt")
			fi, err := os.Lstat(full)
			Expect(err).ToNot(HaveOccurred())
			Expect(srv.canWrite(sess, full, fi)).To(BeTrue())
		})

		It("falls back to the public-write bit for a non-owned file", func() {
			full := filepath.Join(root, "users", "alice", "public.txt")
			outsideSess := &session.Session{Handles: handle.New(true)}
			h2, hd := outsideSess.Handles.Alloc(handle.KindDir)
			hd.Path = filepath.Join(root, "users", "elsewhere")
			outsideSess.URD = h2

			fi, err := os.Lstat(full)
			Expect(err).ToNot(HaveOccurred())
			Expect(srv.canWrite(outsideSess, full, fi)).To(BeTrue())
		})

		It("always allows a System-privileged session regardless of mode bits", func() {
			full := filepath.Join(root, "users", "alice", "owned.txt")
			Expect(os.Chmod(full, 0400)).To(Succeed())
			fi, err := os.Lstat(full)
			Expect(err).ToNot(HaveOccurred())

			syst := &session.Session{Priv: proto.PrivSyst, Handles: handle.New(true)}
			Expect(srv.canWrite(syst, full, fi)).To(BeTrue())
		})
	})

	Describe("canCreateIn", func() {
		It("reports false for a nonexistent directory", func() {
			Expect(srv.canCreateIn(sess, filepath.Join(root, "nope"))).To(BeFalse())
		})

		It("reports true when the owner can write the directory", func() {
			Expect(srv.canCreateIn(sess, filepath.Join(root, "users", "alice"))).To(BeTrue())
		})
	})

	Describe("loginSession", func() {
		It("opens URD, CSD and LIB all rooted under the given urd", func() {
			srv.loginSession(sess, "users/alice")

			urdPath := sess.Handles.Get(sess.URD).Path
			csdPath := sess.Handles.Get(sess.CSD).Path
			libPath := sess.Handles.Get(sess.LIB).Path

			Expect(urdPath).To(Equal(filepath.Join(root, "users", "alice")))
			Expect(csdPath).To(Equal(urdPath))
			Expect(libPath).To(Equal(filepath.Join(root, "$.Library")))
		})
	})
})
