package lock_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memd/pkg/lock"
)

var _ = Describe("LocalManager", func() {
	var (
		now time.Time
		mu  sync.Mutex
		m   *lock.LocalManager
	)

	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	BeforeEach(func() {
		now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		m = lock.NewLocalManagerWithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		})
	})

	It("returns Busy immediately when the scope is held", func() {
		_, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		_, err = m.Acquire("user=u1", time.Minute)
		Expect(err).To(MatchError(lock.ErrBusy))
	})

	It("keeps distinct scopes independent", func() {
		_, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		_, err = m.Acquire("user=u2", time.Minute)
		Expect(err).NotTo(HaveOccurred())
	})

	It("lets the next acquirer take over after expiry", func() {
		first, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		advance(2 * time.Minute)

		second, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Token).To(BeNumerically(">", first.Token))
	})

	It("invalidates the lost lease after a takeover", func() {
		first, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		advance(2 * time.Minute)
		_, err = m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		// The original worker wakes up and must not commit.
		Expect(m.Validate(first)).To(MatchError(lock.ErrStale))
		Expect(m.Renew(first, time.Minute)).To(MatchError(lock.ErrStale))
	})

	It("reports expiry on a lapsed but untaken lease", func() {
		lease, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		advance(2 * time.Minute)

		Expect(m.Validate(lease)).To(MatchError(lock.ErrExpired))
	})

	It("extends the lease on renew", func() {
		lease, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		advance(30 * time.Second)
		Expect(m.Renew(lease, time.Minute)).To(Succeed())

		advance(45 * time.Second)
		Expect(m.Validate(lease)).To(Succeed())
	})

	It("frees the scope on release", func() {
		lease, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		m.Release(lease)

		next, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(next.Token).To(BeNumerically(">", lease.Token))
	})

	It("fences a released lease out of validation", func() {
		lease, err := m.Acquire("user=u1", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		m.Release(lease)
		Expect(m.Validate(lease)).NotTo(Succeed())
	})

	It("serializes concurrent acquirers of one scope", func() {
		const workers = 16
		var wg sync.WaitGroup
		var heldAt int32
		var maxHeld int32
		var countMu sync.Mutex

		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lease, err := m.Acquire("user=u1", time.Minute)
				if err != nil {
					return
				}
				countMu.Lock()
				heldAt++
				if heldAt > maxHeld {
					maxHeld = heldAt
				}
				countMu.Unlock()

				countMu.Lock()
				heldAt--
				countMu.Unlock()
				m.Release(lease)
			}()
		}
		wg.Wait()

		Expect(maxHeld).To(BeNumerically("<=", 1))
	})
})
