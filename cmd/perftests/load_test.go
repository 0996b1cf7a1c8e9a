package perftests

import (
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	bidding "lot-auction/internal/biddingService"
	"lot-auction/internal/metrics"
	repository "lot-auction/internal/repository"
)

// LoadScenario defines configurable benchmark parameters
type LoadScenario struct {
	Name            string
	NumUsers        int
	NumLots         int
	ReadRatio       int
	MaxBidIncrement int
	Burst           bool // if true, no delay between ops
}

// OperationMetrics collects latencies safely
type OperationMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(d time.Duration) {
	om.mu.Lock()
	om.latencies = append(om.latencies, d)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (min, max, avg, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.latencies...)
	om.mu.Unlock()
	if len(latencies) == 0 {
		return
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	min = latencies[0]
	max = latencies[len(latencies)-1]

	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	avg = total / time.Duration(len(latencies))
	p95 = latencies[int(0.95*float64(len(latencies)))]
	p99 = latencies[int(0.99*float64(len(latencies)))]
	return
}

// setupRepo creates repository and bidding service with lots and subscribed users
func setupRepo(numLots, numUsers int) (*repository.MemoryRepo, *bidding.BiddingService) {
	repo := repository.NewMemoryRepo()
	svc := bidding.NewBiddingService(repo)
	for i := 0; i < numLots; i++ {
		_ = repo.AddLot(benchLot(int64(i + 1)))
	}
	subscribe(repo, numUsers)
	return repo, svc
}

// Benchmark_Load_AuctionSystem runs multiple scenarios
func Benchmark_Load_AuctionSystem(b *testing.B) {
	scenarios := []LoadScenario{
		{"Low-Contention-WriteHeavy", 200, 200, 0, 50, false},
		{"High-Contention-WriteHeavy", 500, 10, 0, 20, false},
		{"Mixed-Workload", 300, 50, 7, 30, false},
		{"ReadHeavy", 200, 50, 9, 20, false},
		{"Edge-Case-SingleLot", 100, 1, 5, 10, false},
		{"Peak-Burst", 500, 50, 0, 20, true},
	}

	for _, s := range scenarios {
		b.Run(s.Name, func(b *testing.B) {
			runParallelScenario(b, s)
		})
	}
}

func runParallelScenario(b *testing.B, s LoadScenario) {
	b.ReportAllocs()

	_, svc := setupRepo(s.NumLots, s.NumUsers)

	var totalOps, successfulBids, failedBids, totalReads int64
	lotSuccess := make([]int64, s.NumLots)
	lotTop := make([]int64, s.NumLots)
	for i := range lotTop {
		lotTop[i] = 50
	}
	latency := &OperationMetrics{}
	var outcomeMu sync.Mutex
	outcomes := make(map[string]int64)

	start := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			lotIndex := rnd.Intn(s.NumLots)
			lotID := int64(lotIndex + 1)

			opStart := time.Now()
			if rnd.Intn(10) < s.ReadRatio {
				if _, err := svc.GetLot(lotID); err != nil {
					b.Logf("ignored read error: %v", err)
				}
				atomic.AddInt64(&totalReads, 1)
			} else {
				amount := atomic.AddInt64(&lotTop[lotIndex], int64(1+rnd.Intn(s.MaxBidIncrement)))
				userID := int64(rnd.Intn(s.NumUsers) + 1)
				_, err := svc.PlaceBid(lotID, userID, decimal.NewFromInt(amount))
				outcomeMu.Lock()
				outcomes[metrics.Outcome(err)]++
				outcomeMu.Unlock()
				if err != nil {
					atomic.AddInt64(&failedBids, 1)
				} else {
					atomic.AddInt64(&successfulBids, 1)
					atomic.AddInt64(&lotSuccess[lotIndex], 1)
				}
			}

			latency.Record(time.Since(opStart))
			atomic.AddInt64(&totalOps, 1)

			if !s.Burst {
				time.Sleep(time.Millisecond)
			}
		}
	})

	elapsed := time.Since(start)
	throughput := float64(totalOps) / elapsed.Seconds()
	min, max, avg, p95, p99 := latency.Stats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b.Logf(
		"Scenario: %s | Lots: %d | Total Ops: %d | Success Bids: %d | Failed Bids: %d | Reads: %d | Elapsed: %s | Throughput: %.2f ops/sec | Latency(us) min: %.2f avg: %.2f max: %.2f p95: %.2f p99: %.2f | Memory Alloc: %.2f MB",
		s.Name, s.NumLots, totalOps, successfulBids, failedBids, totalReads, elapsed,
		throughput,
		float64(min.Microseconds()), float64(avg.Microseconds()), float64(max.Microseconds()),
		float64(p95.Microseconds()), float64(p99.Microseconds()),
		float64(mem.Alloc)/1024/1024,
	)

	outcomeNames := make([]string, 0, len(outcomes))
	for name := range outcomes {
		outcomeNames = append(outcomeNames, name)
	}
	sort.Strings(outcomeNames)
	for _, name := range outcomeNames {
		b.Logf("Bid outcome %s: %d", name, outcomes[name])
	}

	for i, v := range lotSuccess {
		if v > 0 {
			b.Logf("Lot %d successful bids: %d", i+1, v)
		}
	}
}
