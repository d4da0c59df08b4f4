// cacheorbust-loadgen is a tiny, dependency-free TCP load generator for the
// cacheorbust memcached-text-protocol service. It reuses one TCP connection
// per worker and supports concurrency so demo scripts run fast without
// relying on external tools.
//
// Modes:
//   - single: send N get requests for a single key
//   - zipf:   approximate 80/20 skew (hot/cold) without PRNG: send hot key
//     4/5 of the time
//
// Usage examples:
//
//	cacheorbust-loadgen -addr=127.0.0.1:6080 -mode=single -key=alice -url=http://origin/a -n=5000 -c=16
//	cacheorbust-loadgen -addr=127.0.0.1:6080 -mode=zipf -hot_key=hot-1 -cold_keys=50 -url=http://origin/a -n=8000 -c=16
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type modeType string

const (
	modeSingle modeType = "single"
	modeZipf   modeType = "zipf"
)

func main() {
	var (
		addrF   = flag.String("addr", "127.0.0.1:6080", "cacheorbust TCP address")
		urlF    = flag.String("url", "http://127.0.0.1:9999/p", "origin URL passed in every get command")
		modeS   = flag.String("mode", string(modeSingle), "Mode: single|zipf")
		key     = flag.String("key", "alice-key", "Key for single mode")
		hotKey  = flag.String("hot_key", "hot-1", "Hot key for zipf mode")
		coldN   = flag.Int("cold_keys", 50, "Number of cold keys to round-robin in zipf mode")
		ttl     = flag.Int("ttl", 60, "TTL argument sent with each get command")
		n       = flag.Int("n", 5000, "Total requests to send")
		conc    = flag.Int("c", 8, "Number of concurrent workers")
		hotEvry = flag.Int("hot_every", 5, "Zipf-like skew period (all but 1 of each period go to hot; minimum 2)")
		timeout = flag.Duration("timeout", 20*time.Second, "Overall timeout for the loadgen run")
	)
	flag.Parse()

	mode := modeType(strings.ToLower(*modeS))
	if mode != modeSingle && mode != modeZipf {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want single|zipf)\n", *modeS)
		os.Exit(2)
	}
	if *n <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}
	if mode == modeZipf {
		if *coldN <= 0 {
			fmt.Fprintln(os.Stderr, "-cold_keys must be > 0 in zipf mode")
			os.Exit(2)
		}
		if *hotEvry < 2 {
			*hotEvry = 2
		}
	}

	deadline := time.Now().Add(*timeout)
	start := time.Now()
	var done int64
	var failed int64

	worker := func(id, count int) {
		defer atomic.AddInt64(&done, int64(count))
		conn, err := net.Dial("tcp", *addrF)
		if err != nil {
			atomic.AddInt64(&failed, int64(count))
			fmt.Fprintf(os.Stderr, "worker %d: dial: %v\n", id, err)
			return
		}
		defer conn.Close()
		rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

		for i := 0; i < count; i++ {
			if time.Now().After(deadline) {
				return
			}
			var k string
			if mode == modeSingle {
				k = *key
			} else if ((i + id) % *hotEvry) != 0 {
				k = *hotKey
			} else {
				idx := ((i + id) / *hotEvry % *coldN) + 1
				k = fmt.Sprintf("cold-%d", idx)
			}

			line := fmt.Sprintf("get %s %s %d\r\n", k, *urlF, *ttl)
			if _, err := rw.WriteString(line); err != nil || rw.Flush() != nil {
				atomic.AddInt64(&failed, 1)
				return
			}
			if err := drainResponse(rw); err != nil {
				atomic.AddInt64(&failed, 1)
				return
			}
		}
	}

	per := *n / *conc
	rem := *n - per*(*conc)
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, cnt int) {
			defer wg.Done()
			worker(id, cnt)
		}(w, count)
	}
	wg.Wait()

	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	ops := float64(*n) / elapsed.Seconds()
	fmt.Printf("LoadGen: mode=%s n=%d c=%d failed=%d go=%d duration=%s throughput=%.0f req/s\n",
		mode, *n, *conc, atomic.LoadInt64(&failed), runtime.GOMAXPROCS(0), elapsed.Truncate(time.Millisecond), ops)
}

// drainResponse reads either a "VALUE ... END\r\n" or a bare "END\r\n"
// response off rw, discarding the body — the load generator only measures
// throughput, not cache correctness.
func drainResponse(rw *bufio.ReadWriter) error {
	line, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	if strings.HasPrefix(line, "END") {
		return nil
	}
	if strings.HasPrefix(line, "VALUE") {
		// Two more lines follow: the body, then END.
		if _, err := rw.ReadString('\n'); err != nil {
			return err
		}
		if _, err := rw.ReadString('\n'); err != nil {
			return err
		}
		return nil
	}
	return nil
}
