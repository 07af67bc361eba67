// Package hasher provides a worker pool for hashing image files. Dedup
// passes over large datasets are I/O bound, so files are digested
// concurrently and ordering decisions happen on the collected results.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"nekoscraper/pkg/logger"
)

// Job is a single file to digest
type Job struct {
	Path string
}

// Result is the outcome of hashing one file
type Result struct {
	Path     string
	Digest   string
	Err      error
	Duration time.Duration
}

// Pool manages concurrent hash workers
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      logger.Logger
}

// NewPool creates a hash worker pool
func NewPool(numWorkers int, log logger.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		logger:      log,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.DebugWithFields("starting hash pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop signals no more jobs, waits for workers to drain the queue and
// closes the result channel.
func (p *Pool) Stop() {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.resultQueue)
	p.cancel()
}

// Submit queues a file for hashing
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("hash pool is shutting down")
	}
}

// Results returns the channel of completed digests
func (p *Pool) Results() <-chan Result {
	return p.resultQueue
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.DebugWithFields("hash worker started", map[string]interface{}{
		"worker_id": id,
	})

	for job := range p.jobQueue {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		result := p.hash(job)

		select {
		case p.resultQueue <- result:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) hash(job Job) Result {
	start := time.Now()
	result := Result{Path: job.Path}

	file, err := os.Open(job.Path)
	if err != nil {
		result.Err = fmt.Errorf("failed to open file for hashing: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		result.Err = fmt.Errorf("failed to hash file: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Digest = hex.EncodeToString(h.Sum(nil))
	result.Duration = time.Since(start)
	return result
}
