//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/api"
	"github.com/eliteGoblin/focusd/timebank/internal/classify"
	"github.com/eliteGoblin/focusd/timebank/internal/daemon"
	"github.com/eliteGoblin/focusd/timebank/internal/domain"
	"github.com/eliteGoblin/focusd/timebank/internal/infra"
	"github.com/eliteGoblin/focusd/timebank/internal/ledger"
	"github.com/eliteGoblin/focusd/timebank/internal/policy"
	"github.com/eliteGoblin/focusd/timebank/internal/usecase"
	"github.com/eliteGoblin/focusd/timebank/test/fixtures"
)

// harness wires the real encrypted store under a scripted observer and clock.
type harness struct {
	dataDir  string
	key      []byte
	store    *infra.EncryptedStore
	ledger   *ledger.LedgerImpl
	reset    *policy.ResetPolicy
	clock    *fixtures.FakeClock
	observer *fixtures.ScriptedObserver
	alerts   *fixtures.RecordingAlerts
	monitor  *daemon.Monitor
}

func newHarness(dataDir string, key []byte, clock *fixtures.FakeClock) *harness {
	store, err := infra.NewEncryptedStore(dataDir, key)
	Expect(err).NotTo(HaveOccurred())

	logger := zap.NewNop()
	l := ledger.NewLedger(store, logger)
	alerts := &fixtures.RecordingAlerts{}
	observer := fixtures.NewScriptedObserver()
	gate := usecase.NewEnforcementGate(30*time.Second, alerts, logger)
	accountant := usecase.NewAccountant(
		usecase.DefaultAccountingConfig(),
		classify.NewGateway(store, logger),
		l, store, gate, alerts, logger,
	)
	reset := policy.NewResetPolicy(policy.DefaultResetConfig(), l, store, clock, logger)
	m := daemon.NewMonitor(
		daemon.MonitorConfig{TickInterval: 100 * time.Millisecond, SelfAppID: "timebank"},
		observer, accountant, reset, clock, logger,
	)

	return &harness{
		dataDir:  dataDir,
		key:      key,
		store:    store,
		ledger:   l,
		reset:    reset,
		clock:    clock,
		observer: observer,
		alerts:   alerts,
		monitor:  m,
	}
}

func (h *harness) tick(d time.Duration) {
	h.clock.Advance(d)
	h.monitor.Tick(context.Background())
}

func (h *harness) balance() int64 {
	b, err := h.ledger.Read(context.Background())
	Expect(err).NotTo(HaveOccurred())
	return b
}

func (h *harness) classify(appID string, category domain.Category) {
	Expect(h.store.Upsert(context.Background(), domain.Classification{
		AppID:    appID,
		Category: category,
	})).To(Succeed())
}

var _ = Describe("Time Bank", func() {
	var (
		ctx context.Context
		h   *harness
	)

	BeforeEach(func() {
		ctx = context.Background()
		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())

		clock := fixtures.NewFakeClock(time.Date(2025, 1, 15, 9, 0, 0, 0, time.Local))
		h = newHarness(GinkgoT().TempDir(), key, clock)

		h.classify("code", domain.CategoryPositive)
		h.classify("game", domain.CategoryNegative)
		h.classify("mail", domain.CategoryUnclassified)
	})

	AfterEach(func() {
		_ = h.store.Close()
	})

	Describe("Daily reset", func() {
		It("grants the daily balance once per day", func() {
			Expect(h.ledger.SetAbsolute(ctx, 500)).To(Succeed())

			h.monitor.Start(ctx)
			Expect(h.balance()).To(Equal(int64(60)))

			Expect(h.ledger.Credit(ctx, 40)).To(Succeed())
			h.monitor.Start(ctx)
			Expect(h.balance()).To(Equal(int64(100)), "second start on the same day keeps the balance")

			h.clock.Advance(24 * time.Hour)
			h.monitor.Start(ctx)
			Expect(h.balance()).To(Equal(int64(60)))
		})
	})

	Describe("Accounting", func() {
		BeforeEach(func() {
			h.monitor.Start(ctx)
		})

		Context("on a positive app", func() {
			It("credits elapsed time times the exchange ratio", func() {
				Expect(h.ledger.SetAbsolute(ctx, 50)).To(Succeed())
				Expect(h.store.SetFloat(ctx, domain.KeyExchangeRatio, 1.5)).To(Succeed())
				h.observer.SetApp("code")

				h.tick(0)
				for i := 0; i < 10; i++ {
					h.tick(time.Second)
				}

				Expect(h.balance()).To(Equal(int64(65)))
				Expect(h.monitor.State()).To(Equal(domain.StateTracking))
			})
		})

		Context("on an unclassified or unknown app", func() {
			It("leaves the balance alone", func() {
				for _, app := range []string{"mail", "never-seen"} {
					h.observer.SetApp(app)
					h.tick(0)
					h.tick(5 * time.Second)
				}
				Expect(h.balance()).To(Equal(int64(60)))
				Expect(h.alerts.Blocks()).To(BeEmpty())
			})
		})

		Context("on a negative app", func() {
			It("debits dwell time and reminds the user", func() {
				h.observer.SetApp("game")
				h.tick(0)
				for i := 0; i < 10; i++ {
					h.tick(time.Second)
				}

				Expect(h.balance()).To(Equal(int64(50)))
				Expect(h.alerts.Reminders()).NotTo(BeEmpty())
				Expect(h.alerts.Blocks()).To(BeEmpty())
			})

			It("blocks when the balance runs out and honours the cooldown", func() {
				Expect(h.ledger.SetAbsolute(ctx, 2)).To(Succeed())
				h.observer.SetApp("game")
				h.tick(0)

				h.tick(time.Second)
				h.tick(time.Second)
				Expect(h.balance()).To(Equal(int64(0)))

				h.tick(time.Second)
				Expect(h.alerts.Blocks()).To(HaveLen(1))

				h.tick(10 * time.Second)
				Expect(h.alerts.Blocks()).To(HaveLen(1), "within cooldown")

				h.tick(25 * time.Second)
				Expect(h.alerts.Blocks()).To(HaveLen(2))
				Expect(h.balance()).To(BeNumerically(">=", 0))
			})

			It("blocks on switching into it with an empty balance", func() {
				Expect(h.ledger.SetAbsolute(ctx, 0)).To(Succeed())
				h.observer.SetApp("game")
				h.tick(0)

				Expect(h.alerts.Blocks()).To(ConsistOf(fixtures.BlockEvent{AppID: "game", AppName: "game"}))
			})
		})

		Context("when the display is off", func() {
			It("pauses accounting", func() {
				h.observer.SetApp("code")
				h.tick(0)

				h.observer.SetInteractive(false)
				h.tick(time.Minute)
				Expect(h.monitor.State()).To(Equal(domain.StateScreenOff))

				h.observer.SetInteractive(true)
				h.tick(0)
				h.tick(0)
				h.tick(2 * time.Second)
				Expect(h.balance()).To(Equal(int64(62)))
			})
		})
	})

	Describe("Manual clear", func() {
		It("is throttled to once per week and keeps classifications", func() {
			Expect(h.reset.Clear(ctx)).To(Succeed())
			Expect(h.balance()).To(Equal(int64(300)))

			h.clock.Advance(7*24*time.Hour - time.Second)
			Expect(h.reset.Clear(ctx)).To(MatchError(domain.ErrClearThrottled))

			h.clock.Advance(time.Second)
			Expect(h.reset.Clear(ctx)).To(Succeed())

			list, err := h.store.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(3))
		})
	})

	Describe("Ledger on the encrypted store", func() {
		It("never goes negative under concurrent debits", func() {
			Expect(h.ledger.SetAbsolute(ctx, 100)).To(Succeed())

			var (
				wg sync.WaitGroup
				mu sync.Mutex
				ok int
			)
			for i := 0; i < 30; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					debited, err := h.ledger.Debit(ctx, 7)
					Expect(err).NotTo(HaveOccurred())
					if debited {
						mu.Lock()
						ok++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Expect(ok).To(Equal(14))
			Expect(h.balance()).To(Equal(int64(2)))
		})

		It("survives a restart", func() {
			Expect(h.ledger.SetAbsolute(ctx, 1234)).To(Succeed())
			Expect(h.store.Close()).To(Succeed())

			h = newHarness(h.dataDir, h.key, h.clock)
			Expect(h.balance()).To(Equal(int64(1234)))

			c, err := h.store.Get(ctx, "game")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Category).To(Equal(domain.CategoryNegative))
		})
	})

	Describe("Classification file", func() {
		It("loads and hot reloads into the store", func() {
			path := filepath.Join(h.dataDir, "apps.yaml")
			Expect(os.WriteFile(path, []byte(`classifications:
  - app: steam
    name: Steam
    category: negative
`), 0600)).To(Succeed())

			fileSync := classify.NewFileSync(path, h.store, zap.NewNop())
			defer fileSync.Close()

			applied, err := fileSync.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(Equal(1))
			Expect(fileSync.Watch()).To(Succeed())

			Expect(os.WriteFile(path, []byte(`classifications:
  - app: steam
    category: positive
`), 0600)).To(Succeed())

			Eventually(func() domain.Category {
				c, err := h.store.Get(ctx, "steam")
				if err != nil {
					return domain.CategoryNone
				}
				return c.Category
			}, 3*time.Second, 50*time.Millisecond).Should(Equal(domain.CategoryPositive))
		})
	})

	Describe("HTTP API", func() {
		It("serves balance and clear over the encrypted store", func() {
			srv := httptest.NewServer(api.NewServer(h.ledger, h.reset, nil, zap.NewNop()).Handler())
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/v1/balance/credit", "application/json", strings.NewReader(`{"seconds": 45}`))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(h.balance()).To(Equal(int64(45)))

			resp, err = http.Post(srv.URL+"/v1/clear", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, err = http.Post(srv.URL+"/v1/clear", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
		})
	})
})
