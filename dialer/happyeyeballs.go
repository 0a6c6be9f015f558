package dialer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/corvid-labs/wireclient/wireerr"
)

// happyEyeballsStagger is the delay between successive connection attempts
// (RFC 8305 recommends 150-250ms; 250ms matches the reference browser).
const happyEyeballsStagger = 250 * time.Millisecond

// happyEyeballsOverallTimeout bounds the whole race, not any single attempt.
const happyEyeballsOverallTimeout = 4 * time.Minute

type eyeballResult struct {
	conn net.Conn
	ip   net.IP
	err  error
}

// raceDial attempts addrs in order, starting one every stagger interval,
// and returns the first connection to succeed. Every other in-flight or
// not-yet-started attempt is abandoned once a winner is found: in-flight
// dials are canceled via ctx, not-yet-started ones never get a goroutine.
//
// dial is injected so callers can layer proxy or direct TCP semantics
// without this function knowing which.
func raceDial(ctx context.Context, addrs []net.IP, dial func(ctx context.Context, ip net.IP) (net.Conn, error)) (net.Conn, net.IP, error) {
	if len(addrs) == 0 {
		return nil, nil, wireerr.Sentinel(wireerr.KindNameNotResolved)
	}

	ctx, cancel := context.WithTimeout(ctx, happyEyeballsOverallTimeout)
	defer cancel()

	results := make(chan eyeballResult, len(addrs))
	var wg sync.WaitGroup

	ticker := time.NewTicker(happyEyeballsStagger)
	defer ticker.Stop()

	launched := 0
	launch := func(ip net.IP) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := dial(ctx, ip)
			select {
			case results <- eyeballResult{conn: conn, ip: ip, err: err}:
			case <-ctx.Done():
				if conn != nil {
					_ = conn.Close()
				}
			}
		}()
	}

	launch(addrs[launched])
	launched++

	go func() {
		wg.Wait()
		close(results)
	}()

	var lastErr error
	collected := 0
	for {
		select {
		case res, ok := <-results:
			if !ok {
				if lastErr == nil {
					lastErr = wireerr.Sentinel(wireerr.KindConnectionTimedOut)
				}
				return nil, nil, lastErr
			}
			collected++
			if res.err == nil {
				cancel()
				go drainLosers(results, res.conn)
				return res.conn, res.ip, nil
			}
			lastErr = res.err
			if collected == len(addrs) {
				return nil, nil, lastErr
			}
		case <-ticker.C:
			if launched < len(addrs) {
				launch(addrs[launched])
				launched++
			}
		case <-ctx.Done():
			return nil, nil, wireerr.Sentinel(wireerr.KindConnectionTimedOut)
		}
	}
}

// drainLosers closes any connection a losing attempt manages to establish
// after the race already has a winner, and keeps reading results until the
// channel closes so no goroutine leaks waiting to send.
func drainLosers(results <-chan eyeballResult, winner net.Conn) {
	for res := range results {
		if res.conn != nil && res.conn != winner {
			_ = res.conn.Close()
		}
	}
}
