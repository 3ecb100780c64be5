// Package loadtest measures broadcast fan-out latency against a running
// livedoc server.
//
// A run connects a set of subscribers and one writer, then publishes a
// sequence of updates. Each round records, per subscriber, the time from
// the writer's push until that subscriber sees the new content.
package loadtest

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/steveyegge/livedoc/internal/client"
	"github.com/steveyegge/livedoc/internal/protocol"
)

// Options configures a run.
type Options struct {
	// BaseURL of the server, e.g. http://localhost:8000
	BaseURL string

	// Password used by the writer
	Password string

	// Subscribers is the number of read-only connections (default: 10)
	Subscribers int

	// Updates is the number of rounds (default: 10)
	Updates int

	// PayloadBytes pads each update to roughly this size (default: 1 KiB)
	PayloadBytes int

	// RoundTimeout bounds how long subscribers wait for one update (default: 5s)
	RoundTimeout time.Duration
}

// LatencyStats captures delivery latency across all subscribers and rounds.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration // Median
	P95        time.Duration
	P99        time.Duration
	Deliveries int
	Missed     int
	Durations  []time.Duration
}

func (o *Options) applyDefaults() {
	if o.Subscribers <= 0 {
		o.Subscribers = 10
	}
	if o.Updates <= 0 {
		o.Updates = 10
	}
	if o.PayloadBytes <= 0 {
		o.PayloadBytes = 1024
	}
	if o.RoundTimeout <= 0 {
		o.RoundTimeout = 5 * time.Second
	}
}

// Run connects the subscribers and writer, publishes Updates rounds, and
// returns the aggregated latency. Every connection is closed on return.
func Run(ctx context.Context, opts Options) (*LatencyStats, error) {
	opts.applyDefaults()

	subs := make([]*client.Client, 0, opts.Subscribers)
	defer func() {
		for _, c := range subs {
			_ = c.Close()
		}
	}()

	for i := 0; i < opts.Subscribers; i++ {
		c, err := client.Dial(ctx, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("subscriber %d: %w", i, err)
		}
		subs = append(subs, c)

		// Drain the join snapshot so rounds only see broadcasts.
		if _, err := c.NextContent(ctx); err != nil {
			return nil, fmt.Errorf("subscriber %d initial content: %w", i, err)
		}
	}

	writer, err := client.Dial(ctx, opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	defer writer.Close()

	reply, err := writer.Authorize(ctx, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	if reply.Auth != protocol.AuthOK {
		return nil, fmt.Errorf("%w: %s", client.ErrRejected, cmp.Or(reply.Error, "password incorrect"))
	}

	var all []time.Duration
	missed := 0

	for round := 0; round < opts.Updates; round++ {
		if len(subs) == 0 {
			break
		}
		content := payload(round, opts.PayloadBytes)

		durations, lost, err := runRound(ctx, writer, subs, opts, content)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}
		all = append(all, durations...)
		missed += len(lost)
		subs = without(subs, lost)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("no deliveries completed")
	}

	stats := computeLatencyStats(all)
	stats.Missed = missed
	return stats, nil
}

type delivery struct {
	conn    *client.Client
	latency time.Duration
	err     error
}

// runRound publishes content once. Subscribers that fail to see it in time
// are returned as lost; a cancelled read closes the socket, so they cannot
// take part in later rounds.
func runRound(ctx context.Context, writer *client.Client, subs []*client.Client, opts Options, content string) ([]time.Duration, []*client.Client, error) {
	roundCtx, cancel := context.WithTimeout(ctx, opts.RoundTimeout)
	defer cancel()

	start := time.Now()
	p := pool.NewWithResults[delivery]()

	for _, c := range subs {
		p.Go(func() delivery {
			d, err := awaitContent(roundCtx, c, content, start)
			return delivery{conn: c, latency: d, err: err}
		})
	}

	if err := writer.Push(ctx, opts.Password, content); err != nil {
		cancel()
		p.Wait()
		return nil, nil, fmt.Errorf("push failed: %w", err)
	}
	// The writer gets its own echo; read it so its outbox never backs up.
	if _, err := awaitContent(roundCtx, writer, content, start); err != nil {
		cancel()
		p.Wait()
		return nil, nil, fmt.Errorf("writer echo: %w", err)
	}

	var durations []time.Duration
	var lost []*client.Client
	for _, d := range p.Wait() {
		if d.err != nil {
			lost = append(lost, d.conn)
			continue
		}
		durations = append(durations, d.latency)
	}
	return durations, lost, nil
}

func without(subs, lost []*client.Client) []*client.Client {
	if len(lost) == 0 {
		return subs
	}
	gone := make(map[*client.Client]bool, len(lost))
	for _, c := range lost {
		gone[c] = true
		_ = c.Close()
	}
	kept := subs[:0]
	for _, c := range subs {
		if !gone[c] {
			kept = append(kept, c)
		}
	}
	return kept
}

func awaitContent(ctx context.Context, c *client.Client, want string, start time.Time) (time.Duration, error) {
	for {
		got, err := c.NextContent(ctx)
		if err != nil {
			return 0, err
		}
		if got == want {
			return time.Since(start), nil
		}
	}
}

func payload(round, size int) string {
	head := fmt.Sprintf("loadtest round %d\n", round)
	if len(head) >= size {
		return head
	}
	buf := make([]byte, size-len(head))
	for i := range buf {
		buf[i] = 'a' + byte(i%26)
	}
	return head + string(buf)
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(durations)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Deliveries: len(durations),
		Durations:  sorted,
	}
}

// PrintStats writes a latency summary to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Broadcast Latency:\n")
	fmt.Fprintf(w, "  Deliveries:    %d\n", s.Deliveries)
	fmt.Fprintf(w, "  Missed:        %d\n", s.Missed)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
