// Command streamload opens many subscribers on the valuation stream and reports delivery counts.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
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

	"go.uber.org/zap"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	valuations  atomic.Int64
	lastIndex   atomic.Uint64
}

func main() {
	var (
		targetURL   string
		connections int
		duration    time.Duration
		rampUp      time.Duration
		lastEventID uint64
	)

	flag.StringVar(&targetURL, "url", "http://localhost:5000/api/valuations/stream", "valuation stream URL")
	flag.IntVar(&connections, "conns", 100, "number of concurrent subscribers")
	flag.DurationVar(&duration, "dur", time.Minute, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", time.Second, "spread subscriber starts across this window")
	flag.Uint64Var(&lastEventID, "last-event-id", 0, "resume every subscriber after this journal index")
	flag.Parse()

	l, _ := zap.NewDevelopment()
	defer l.Sync()

	if connections <= 0 {
		l.Fatal("invalid conns", zap.Int("conns", connections))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	client := &http.Client{Transport: &http.Transport{
		MaxConnsPerHost:     connections + 10,
		MaxIdleConnsPerHost: connections + 10,
		DisableCompression:  true,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
	}}

	l.Info("starting stream load", zap.String("url", targetURL), zap.Int("conns", connections),
		zap.Duration("duration", duration), zap.Duration("ramp", rampUp))

	var (
		c        counters
		wg       sync.WaitGroup
		start    = time.Now()
		interval = rampUp / time.Duration(connections)
	)

	go report(ctx, l, &c, start)

	for i := range connections {
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
			subscribe(ctx, client, targetURL, lastEventID, &c)
		}()
	}

	wg.Wait()

	elapsed := max(time.Since(start), time.Millisecond)
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d valuations=%d last_index=%d elapsed=%s valuations/s=%.2f\n",
		c.connected.Load(), c.connectErrs.Load(), c.streamErrs.Load(), c.valuations.Load(), c.lastIndex.Load(),
		elapsed.Truncate(time.Millisecond), float64(c.valuations.Load())/elapsed.Seconds())
}

func subscribe(ctx context.Context, client *http.Client, url string, lastEventID uint64, c *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastEventID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(lastEventID, 10))
	}

	resp, err := client.Do(req)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connectErrs.Add(1)
		return
	}

	c.connected.Add(1)
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				c.streamErrs.Add(1)
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "event: valuation":
			c.valuations.Add(1)
		case strings.HasPrefix(line, "id: "):
			if idx, err := strconv.ParseUint(strings.TrimPrefix(line, "id: "), 10, 64); err == nil {
				for {
					cur := c.lastIndex.Load()
					if idx <= cur || c.lastIndex.CompareAndSwap(cur, idx) {
						break
					}
				}
			}
		}
	}
}

func report(ctx context.Context, l *zap.Logger, c *counters, start time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Info("status",
				zap.Int64("connected", c.connected.Load()),
				zap.Int64("connect_errs", c.connectErrs.Load()),
				zap.Int64("stream_errs", c.streamErrs.Load()),
				zap.Int64("valuations", c.valuations.Load()),
				zap.Uint64("last_index", c.lastIndex.Load()),
				zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
		}
	}
}
