package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-wwlock/v1/metrics"
	"github.com/mirkobrombin/go-wwlock/v1/wwlock"
)

var (
	workers    = flag.Int("c", 50, "Concurrent workers")
	lockCount  = flag.Int("l", 8, "Shared locks")
	iterations = flag.Int("n", 10000, "Acquisitions per worker")
	subsetMax  = flag.Int("s", 4, "Max locks per acquisition")
)

func main() {
	flag.Parse()

	reg := metrics.NewRegistry()
	class := wwlock.NewClass("bench", wwlock.WithMetrics(reg))
	locks := make([]*wwlock.Mutex, *lockCount)
	for i := range locks {
		locks[i] = class.NewMutex("")
	}

	var ops, backoffs int64
	start := time.Now()

	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < *workers; w++ {
		seed := int64(w)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < *iterations; i++ {
				perm := rng.Perm(*lockCount)
				n := 1 + rng.Intn(*subsetMax)
				subset := make([]*wwlock.Mutex, 0, n)
				for _, idx := range perm[:n] {
					subset = append(subset, locks[idx])
				}

				a := class.NewCtx()
				retries := 0
				for {
					var err error
					for _, m := range subset {
						if err = m.Lock(a); err != nil {
							break
						}
					}
					if err == wwlock.ErrDeadlock {
						retries++
						a.Backoff()
						continue
					}
					if err != nil {
						return err
					}
					break
				}
				a.DropAll()
				a.Finish()
				atomic.AddInt64(&ops, 1)
				atomic.AddInt64(&backoffs, int64(retries))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	elapsed := time.Since(start)

	fmt.Printf("| %-10s | %-10s | %-10s | %-10s |\n", "Ops", "Ops/sec", "Backoffs", "Elapsed")
	fmt.Println("|:---|:---|:---|:---|")
	fmt.Printf("| %-10d | %-10.0f | %-10d | %-10s |\n",
		ops, float64(ops)/elapsed.Seconds(), backoffs, elapsed.Round(time.Millisecond))
}
