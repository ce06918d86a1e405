// Command sse_load hammers the dashboard status stream with many
// concurrent SSE subscribers and reports delivery counters. With -resume
// every subscriber drops its connection once mid-test and reconnects with
// Last-Event-ID, which exercises journal replay on the server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

func main() {
	var (
		targetURL    string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
		testResume   bool
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/status/stream", "status stream URL")
	flag.IntVar(&connections, "conns", 1000, "number of concurrent subscribers")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "ramp-up duration (spread connection starts across this window)")
	flag.BoolVar(&testResume, "resume", false, "drop and resume each stream once with Last-Event-ID")
	flag.Parse()

	if connections <= 0 {
		log.Fatalf("invalid conns: %d", connections)
	}

	if rampUp == 0 && connections > 100 {
		// default ramp-up: 1 second per 500 connections
		rampUp = time.Duration(connections/500) * time.Second
		if rampUp < 1*time.Second {
			rampUp = 1 * time.Second
		}
		log.Printf("No ramp-up specified for high connection count. Using default ramp-up: %s", rampUp)
	}

	log.Printf("starting status stream load: url=%s conns=%d duration=%s ramp=%s resume=%v",
		targetURL, connections, testDuration, rampUp, testResume)

	transport := &http.Transport{
		MaxConnsPerHost:     connections + 100,
		MaxIdleConns:        connections + 100,
		MaxIdleConnsPerHost: connections + 100,
		DisableCompression:  true,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   0, // streaming
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("caught signal: %s, shutting down...", sig)
		case <-ctx.Done():
			return
		}

		cancel()
	}()

	if testDuration > 0 {
		go func() {
			timer := time.NewTimer(testDuration)
			defer timer.Stop()
			select {
			case <-timer.C:
				log.Printf("duration reached, stopping...")
				cancel()
			case <-ctx.Done():
				return
			}
		}()
	}

	var (
		connected    int64
		connectErrs  int64
		streamErrs   int64
		statusEvents int64
		noDataEvents int64
		resumes      int64
		maxGen       uint64
	)

	var wg sync.WaitGroup

	start := time.Now()

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	for i := 0; i < connections; i++ {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			var lastEventID string
			resumed := false

			for ctx.Err() == nil {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
				if err != nil {
					atomic.AddInt64(&connectErrs, 1)
					return
				}
				req.Header.Set("Accept", "text/event-stream")
				if lastEventID != "" {
					req.Header.Set("Last-Event-ID", lastEventID)
				}

				resp, err := client.Do(req)
				if err != nil {
					atomic.AddInt64(&connectErrs, 1)
					return
				}
				if resp.StatusCode != http.StatusOK {
					atomic.AddInt64(&connectErrs, 1)
					_ = resp.Body.Close()
					return
				}

				atomic.AddInt64(&connected, 1)

				var dropAt time.Time
				if testResume && !resumed && testDuration > 0 {
					dropAt = time.Now().Add(testDuration / 2)
				}

				reader := bufio.NewReader(resp.Body)
				var event string

				for {
					if ctx.Err() != nil {
						_ = resp.Body.Close()
						return
					}

					if !dropAt.IsZero() && time.Now().After(dropAt) {
						// simulate a dropped client, the outer loop
						// reconnects with Last-Event-ID set
						_ = resp.Body.Close()
						resumed = true
						atomic.AddInt64(&resumes, 1)
						break
					}

					line, err := reader.ReadString('\n')
					if err != nil {
						_ = resp.Body.Close()
						if ctx.Err() == nil {
							atomic.AddInt64(&streamErrs, 1)
						}
						return
					}

					line = strings.TrimRight(line, "\r\n")
					switch {
					case strings.HasPrefix(line, "id:"):
						lastEventID = strings.TrimSpace(line[len("id:"):])
						if gen, perr := strconv.ParseUint(lastEventID, 10, 64); perr == nil {
							updateMax(&maxGen, gen)
						}
					case strings.HasPrefix(line, "event:"):
						event = strings.TrimSpace(line[len("event:"):])
					case strings.HasPrefix(line, "data:"):
						switch event {
						case "status":
							atomic.AddInt64(&statusEvents, 1)
						case "no_data":
							atomic.AddInt64(&noDataEvents, 1)
						}
					case line == "":
						event = ""
					}
				}
			}
		}()
	}

	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("status: connected=%d connect_errs=%d stream_errs=%d status=%d no_data=%d resumes=%d max_generation=%d elapsed=%s",
					atomic.LoadInt64(&connected),
					atomic.LoadInt64(&connectErrs),
					atomic.LoadInt64(&streamErrs),
					atomic.LoadInt64(&statusEvents),
					atomic.LoadInt64(&noDataEvents),
					atomic.LoadInt64(&resumes),
					atomic.LoadUint64(&maxGen),
					time.Since(start).Truncate(time.Second),
				)
			}
		}
	}()

	wg.Wait()
	cancel()

	elapsed := time.Since(start)
	if elapsed == 0 {
		elapsed = time.Millisecond
	}
	perSec := float64(atomic.LoadInt64(&statusEvents)) / elapsed.Seconds()

	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d status=%d no_data=%d resumes=%d max_generation=%d elapsed=%s status_events/s=%.2f\n",
		atomic.LoadInt64(&connected),
		atomic.LoadInt64(&connectErrs),
		atomic.LoadInt64(&streamErrs),
		atomic.LoadInt64(&statusEvents),
		atomic.LoadInt64(&noDataEvents),
		atomic.LoadInt64(&resumes),
		atomic.LoadUint64(&maxGen),
		elapsed.Truncate(time.Millisecond),
		perSec,
	)
}

func updateMax(target *uint64, v uint64) {
	for {
		cur := atomic.LoadUint64(target)
		if v <= cur || atomic.CompareAndSwapUint64(target, cur, v) {
			return
		}
	}
}
