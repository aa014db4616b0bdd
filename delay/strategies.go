package delay

import (
	"bufio"
	"context"
	"crypto/sha256"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	cpuYieldEvery = 1000
	cpuYield      = time.Millisecond

	memoryBlockLen = 100_000
	memoryWindow   = 10
	memoryPause    = 100 * time.Millisecond

	ioLinesPerFile = 1000
	ioMaxLiveFiles = 5
	ioPause        = 50 * time.Millisecond

	networkWorkers        = 3
	networkBatch          = 3
	networkCollectAfter   = 6
	networkCollect        = 3
	networkTaskMin        = 100 * time.Millisecond
	networkTaskMax        = 300 * time.Millisecond
	networkCollectTimeout = 500 * time.Millisecond
	networkPause          = 200 * time.Millisecond
	networkDrainBudget    = 2 * time.Second
)

// The most accurate strategy: one blocking wait, no resource pressure.
func (engine *Engine) sleepDelay(_ context.Context, target time.Duration) error {
	time.Sleep(target)
	return nil
}

// Hashes pseudo-random input in a tight loop until the deadline, yielding
// briefly every cpuYieldEvery iterations so the host is not fully starved.
func (engine *Engine) cpuDelay(_ context.Context, target time.Duration) error {
	deadline := time.Now().Add(target)
	counter := 0
	for time.Now().Before(deadline) {
		data := fmt.Sprintf("delay-simulation-%d-%f", counter, rand.Float64())
		sha256.Sum256([]byte(data))
		counter++
		if counter%cpuYieldEvery == 0 {
			time.Sleep(cpuYield)
		}
	}
	return nil
}

// Allocates sizeable float64 buffers and keeps a sliding window of the most
// recent memoryWindow of them, so the pressure is sustained but bounded.
func (engine *Engine) memoryDelay(_ context.Context, target time.Duration) error {
	deadline := time.Now().Add(target)
	blocks := make([][]float64, 0, memoryWindow+1)
	defer func() {
		blocks = nil
	}()

	for time.Now().Before(deadline) {
		block := make([]float64, memoryBlockLen)
		for i := range block {
			block[i] = rand.Float64()
		}
		blocks = append(blocks, block)
		if len(blocks) > memoryWindow {
			blocks = blocks[1:]
		}
		time.Sleep(memoryPause)
	}
	return nil
}

// Churns the filesystem: write a uniquely named temp file, read it back,
// keep at most ioMaxLiveFiles on disk at a time. Every file is removed
// before returning, on the error path too.
func (engine *Engine) ioDelay(_ context.Context, target time.Duration) error {
	deadline := time.Now().Add(target)
	var live []string
	defer func() {
		for _, path := range live {
			_ = os.Remove(path)
		}
	}()

	for time.Now().Before(deadline) {
		path := filepath.Join(engine.tempDir, fmt.Sprintf("delay_sim_%s.txt", uuid.NewString()[:8]))
		if err := writeChurnFile(path); err != nil {
			return fmt.Errorf("writing churn file: %w", err)
		}
		live = append(live, path)

		if _, err := os.ReadFile(path); err != nil {
			return fmt.Errorf("reading churn file back: %w", errors.WithStack(err))
		}

		time.Sleep(ioPause)

		if len(live) > ioMaxLiveFiles {
			_ = os.Remove(live[0])
			live = live[1:]
		}
	}
	return nil
}

func writeChurnFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	writer := bufio.NewWriter(file)
	for i := 0; i < ioLinesPerFile; i++ {
		fmt.Fprintf(writer, "Line %d: %f\n", i, rand.Float64())
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(file.Close())
}

// Simulates concurrent remote calls with a small fixed worker pool: submit
// batches of short randomly-delayed tasks, collect a few results with a
// timeout once enough are in flight (stragglers are abandoned), and tear the
// pool down with a bounded drain on every exit path.
func (engine *Engine) networkDelay(_ context.Context, target time.Duration) error {
	deadline := time.Now().Add(target)

	tasks := make(chan struct{}, networkCollectAfter*2)
	results := make(chan string, 64)
	var wg sync.WaitGroup
	for i := 0; i < networkWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range tasks {
				time.Sleep(networkTaskMin + rand.N(networkTaskMax-networkTaskMin))
				results <- fmt.Sprintf("response-%f", rand.Float64())
			}
		}()
	}

	inFlight := 0
	for time.Now().Before(deadline) {
		for i := 0; i < networkBatch; i++ {
			select {
			case tasks <- struct{}{}:
				inFlight++
			default:
				// queue full, skip this submission
			}
		}

		if inFlight >= networkCollectAfter {
			for i := 0; i < networkCollect; i++ {
				select {
				case <-results:
					inFlight--
				case <-time.After(networkCollectTimeout):
					// straggler, abandon it
				}
			}
		}

		time.Sleep(networkPause)
	}

	close(tasks)
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(networkDrainBudget):
		return errors.New("worker pool did not drain within budget")
	}
	return nil
}

// The composite, least accurate strategy: a quarter of the target each on
// sleep, cpu, memory and io in that order.
func (engine *Engine) mixedDelay(ctx context.Context, target time.Duration) error {
	portion := target / 4
	if err := engine.sleepDelay(ctx, portion); err != nil {
		return err
	}
	if err := engine.cpuDelay(ctx, portion); err != nil {
		return err
	}
	if err := engine.memoryDelay(ctx, portion); err != nil {
		return err
	}
	return engine.ioDelay(ctx, portion)
}
