package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/metrics"
)

const (
	// DefaultPollInterval is how often the worker looks for due campaigns.
	DefaultPollInterval = 30 * time.Second

	// DefaultMetricsInterval is how often active campaign counters are
	// recomputed.
	DefaultMetricsInterval = time.Minute

	// dispatchLockTTL bounds how long one worker may hold a campaign.
	dispatchLockTTL = 10 * time.Minute

	// DefaultCompletionGrace keeps recently completed campaigns in the
	// metrics refresh set, since engagement events arrive after sending.
	DefaultCompletionGrace = 48 * time.Hour

	// duePageSize caps how many campaigns one poll cycle picks up.
	duePageSize = 10
)

// CampaignWorker polls for due campaigns, dispatches them into the send
// ledger, promotes finished ones to sent, and keeps metrics fresh. Multiple
// instances can run at once; a per-campaign distributed lock keeps any
// campaign from being dispatched twice.
type CampaignWorker struct {
	db          *sql.DB
	redisClient *redis.Client // optional; nil falls back to PG advisory locks
	campaigns   *campaign.Service
	metricsSvc  *metrics.Service
	repo        *postgres.CampaignRepo

	workerID        string
	pollInterval    time.Duration
	metricsInterval time.Duration
	graceWindow     time.Duration

	// Stats
	dispatched   int64
	completed    int64
	sendsQueued  int64
	workerErrors int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewCampaignWorker creates a campaign worker.
func NewCampaignWorker(db *sql.DB, campaigns *campaign.Service, metricsSvc *metrics.Service, repo *postgres.CampaignRepo) *CampaignWorker {
	hostname, _ := os.Hostname()
	return &CampaignWorker{
		db:              db,
		campaigns:       campaigns,
		metricsSvc:      metricsSvc,
		repo:            repo,
		workerID:        fmt.Sprintf("worker-%s-%d", hostname, time.Now().UnixNano()%10000),
		pollInterval:    DefaultPollInterval,
		metricsInterval: DefaultMetricsInterval,
		graceWindow:     DefaultCompletionGrace,
	}
}

// SetRedisClient sets the Redis client for distributed locking. If unset,
// the worker falls back to PostgreSQL advisory locks.
func (w *CampaignWorker) SetRedisClient(client *redis.Client) {
	w.redisClient = client
}

// SetPollInterval overrides the dispatch poll interval.
func (w *CampaignWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// SetMetricsInterval overrides how often the completion and metrics loop
// runs.
func (w *CampaignWorker) SetMetricsInterval(d time.Duration) {
	if d > 0 {
		w.metricsInterval = d
	}
}

// SetCompletionGrace overrides how long completed campaigns stay in the
// metrics refresh set.
func (w *CampaignWorker) SetCompletionGrace(d time.Duration) {
	if d > 0 {
		w.graceWindow = d
	}
}

// Start begins the worker loops.
func (w *CampaignWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Printf("[CampaignWorker] %s starting, poll interval %v", w.workerID, w.pollInterval)

	w.wg.Add(1)
	go w.dispatchLoop()

	w.wg.Add(1)
	go w.completionLoop()

	return nil
}

// Stop gracefully stops the worker and waits for in-flight work.
func (w *CampaignWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	log.Printf("[CampaignWorker] %s stopping...", w.workerID)
	w.cancel()
	w.wg.Wait()
	log.Printf("[CampaignWorker] %s stopped. Dispatched: %d campaigns, %d sends, completed: %d",
		w.workerID, atomic.LoadInt64(&w.dispatched), atomic.LoadInt64(&w.sendsQueued),
		atomic.LoadInt64(&w.completed))
}

func (w *CampaignWorker) dispatchLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processDueCampaigns()
		}
	}
}

func (w *CampaignWorker) completionLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.checkCompletions()
			w.refreshMetrics()
		}
	}
}

// processDueCampaigns dispatches every scheduled campaign whose time has
// arrived, one at a time under a per-campaign lock.
func (w *CampaignWorker) processDueCampaigns() {
	ctx, cancel := context.WithTimeout(w.ctx, 2*time.Minute)
	defer cancel()

	due, err := w.repo.ListDue(ctx, time.Now(), duePageSize)
	if err != nil {
		log.Printf("[CampaignWorker] Error listing due campaigns: %v", err)
		atomic.AddInt64(&w.workerErrors, 1)
		return
	}

	for _, c := range due {
		w.dispatchOne(ctx, c)
	}
}

func (w *CampaignWorker) dispatchOne(ctx context.Context, c domain.Campaign) {
	lock := distlock.NewLock(w.redisClient, w.db,
		distlock.CampaignKey(c.ID), dispatchLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[CampaignWorker] Error acquiring lock for campaign %s: %v", c.ID, err)
		return
	}
	if !acquired {
		// Another worker has it.
		return
	}
	defer lock.Release(ctx)

	n, err := w.campaigns.Dispatch(ctx, c.RestaurantID, c.ID, w.workerID)
	if err == campaign.ErrInvalidTransition {
		// Cancelled or grabbed between the poll and the lock.
		return
	}
	if err != nil {
		log.Printf("[CampaignWorker] Error dispatching campaign %s: %v", c.ID, err)
		atomic.AddInt64(&w.workerErrors, 1)
		return
	}

	atomic.AddInt64(&w.dispatched, 1)
	atomic.AddInt64(&w.sendsQueued, int64(n))
	log.Printf("[CampaignWorker] Campaign %s (%s) dispatched: %d sends", c.Name, c.ID, n)
}

// checkCompletions promotes sending campaigns whose ledger has fully
// settled.
func (w *CampaignWorker) checkCompletions() {
	ctx, cancel := context.WithTimeout(w.ctx, time.Minute)
	defer cancel()

	sending, err := w.repo.ListSending(ctx, duePageSize*10)
	if err != nil {
		log.Printf("[CampaignWorker] Error listing sending campaigns: %v", err)
		return
	}

	for _, c := range sending {
		done, err := w.campaigns.CheckCompletion(ctx, c.RestaurantID, c.ID)
		if err != nil {
			log.Printf("[CampaignWorker] Error checking completion for %s: %v", c.ID, err)
			continue
		}
		if done {
			atomic.AddInt64(&w.completed, 1)
			log.Printf("[CampaignWorker] Campaign %s (%s) completed", c.Name, c.ID)
		}
	}
}

func (w *CampaignWorker) refreshMetrics() {
	ctx, cancel := context.WithTimeout(w.ctx, time.Minute)
	defer cancel()

	n, err := w.metricsSvc.RecomputeActive(ctx, w.graceWindow, 500)
	if err != nil {
		log.Printf("[CampaignWorker] Error refreshing metrics: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[CampaignWorker] Refreshed metrics for %d campaigns", n)
	}
}
