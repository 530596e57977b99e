package lifecycle_test

import (
	"context"
	"errors"
	"sync"

	"github.com/nabbar/golib/internal/lifecycle"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeComponent struct {
	name     string
	startErr error
	starts   *[]string
	stops    *[]string
	mu       *sync.Mutex
}

func newFakeComponent(name string, startErr error, starts, stops *[]string, mu *sync.Mutex) *fakeComponent {
	return &fakeComponent{name: name, startErr: startErr, starts: starts, stops: stops, mu: mu}
}

func (c *fakeComponent) Name() string { return c.name }

func (c *fakeComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.starts = append(*c.starts, c.name)
	return c.startErr
}

func (c *fakeComponent) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.stops = append(*c.stops, c.name)
}

var _ = Describe("Manager", func() {
	var (
		mu     sync.Mutex
		starts []string
		stops  []string
	)

	BeforeEach(func() {
		starts = nil
		stops = nil
	})

	It("starts components in registration order", func() {
		mgr := lifecycle.New()
		mgr.Register(newFakeComponent("a", nil, &starts, &stops, &mu))
		mgr.Register(newFakeComponent("b", nil, &starts, &stops, &mu))
		mgr.Register(newFakeComponent("c", nil, &starts, &stops, &mu))

		err := mgr.Start(context.Background())
		Expect(err).To(BeNil())
		Expect(starts).To(Equal([]string{"a", "b", "c"}))
	})

	It("stops started components in reverse order", func() {
		mgr := lifecycle.New()
		mgr.Register(newFakeComponent("a", nil, &starts, &stops, &mu))
		mgr.Register(newFakeComponent("b", nil, &starts, &stops, &mu))
		mgr.Register(newFakeComponent("c", nil, &starts, &stops, &mu))

		Expect(mgr.Start(context.Background())).To(BeNil())
		mgr.Stop()
		Expect(stops).To(Equal([]string{"c", "b", "a"}))
	})

	It("rolls back already-started components when one fails", func() {
		mgr := lifecycle.New()
		boom := errors.New("boom")
		mgr.Register(newFakeComponent("a", nil, &starts, &stops, &mu))
		mgr.Register(newFakeComponent("b", boom, &starts, &stops, &mu))
		mgr.Register(newFakeComponent("c", nil, &starts, &stops, &mu))

		err := mgr.Start(context.Background())
		Expect(err).ToNot(BeNil())
		Expect(starts).To(Equal([]string{"a", "b"}))
		Expect(stops).To(Equal([]string{"a"}))
	})

	It("tolerates Stop with nothing started", func() {
		mgr := lifecycle.New()
		mgr.Register(newFakeComponent("a", nil, &starts, &stops, &mu))
		mgr.Stop()
		Expect(stops).To(BeEmpty())
	})
})

var _ = Describe("WaitNotify", func() {
	It("returns once the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			lifecycle.WaitNotify(ctx)
			close(done)
		}()
		cancel()
		Eventually(done).Should(BeClosed())
	})
})
