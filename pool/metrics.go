package pool

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/core/log"
)

const (
	metricsInterval  = 15 * time.Second
	clockTicksPerSec = 100 // standard Linux USER_HZ; good enough for a coarse gauge
)

var errShortProcFile = errors.New("unexpected /proc file format")

// runMetricsCollector is a background service: on every tick it snapshots
// every live process's pid, reads its OS-level CPU time and resident set
// size from /proc concurrently (bounded by errgroup.SetLimit), then writes
// the readings back under the lock.
func (p *Pool) runMetricsCollector(ctx context.Context) {
	defer p.bgWG.Done()
	logger := log.WithFunc("pool.runMetricsCollector")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.runMetricsPass(ctx); err != nil {
				logger.Warnf(ctx, "metrics pass: %v", err)
			}
		}
	}
}

type pidSnapshot struct {
	groupName string
	gupid     string
	pid       int
}

type metricsReading struct {
	gupid         string
	rssBytes      int64
	cpuTimeMicros int64
}

func (p *Pool) runMetricsPass(ctx context.Context) error {
	p.mu.Lock()
	var snapshot []pidSnapshot
	for name, g := range p.groups {
		for _, proc := range g.AllProcesses() {
			snapshot = append(snapshot, pidSnapshot{groupName: name, gupid: proc.Gupid, pid: proc.Pid})
		}
	}
	p.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	readings := make([]metricsReading, len(snapshot))
	eg, egctx := errgroup.WithContext(ctx)
	limit := runtime.NumCPU()
	if limit < 1 {
		limit = 1
	}
	eg.SetLimit(limit)

	dead := make([]bool, len(snapshot))
	for i, snap := range snapshot {
		i, snap := i, snap
		eg.Go(func() error {
			if egctx.Err() != nil {
				return egctx.Err()
			}
			rss, cpu, err := readProcMetrics(snap.pid)
			if err != nil {
				if os.IsNotExist(err) {
					dead[i] = true
				}
				// A process that exited between the snapshot and the read is not
				// an error worth aborting the whole pass over.
				return nil
			}
			readings[i] = metricsReading{gupid: snap.gupid, rssBytes: rss, cpuTimeMicros: cpu}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	p.mu.Lock()
	for i, r := range readings {
		if r.gupid == "" {
			continue
		}
		g, ok := p.groups[snapshot[i].groupName]
		if !ok {
			continue
		}
		if proc := g.FindProcess(r.gupid); proc != nil {
			proc.UpdateMetrics(r.rssBytes, r.cpuTimeMicros)
		}
	}
	for i, isDead := range dead {
		if !isDead {
			continue
		}
		snap := snapshot[i]
		g, ok := p.groups[snap.groupName]
		if !ok {
			continue
		}
		// FindProcess keys on the stable gupid, not the pid, so a process that
		// was legitimately detached and replaced between the snapshot and this
		// merge is simply not found here and left alone.
		proc := g.FindProcess(snap.gupid)
		if proc == nil || proc.Pid != snap.pid {
			continue
		}
		if g.DetachProcess(snap.gupid) != nil {
			p.queueDetach(proc)
		}
	}
	cbs := p.takeCallbacks()
	p.mu.Unlock()
	p.runCallbacks(cbs)
	return nil
}

// readProcMetrics reads resident set size and cumulative CPU time for pid
// from /proc. Linux-only; callers on other platforms get a non-nil error
// and simply skip that pid's reading for this pass.
func readProcMetrics(pid int) (rssBytes int64, cpuTimeMicros int64, err error) {
	statmData, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/statm")
	if err != nil {
		return 0, 0, err
	}
	statmFields := strings.Fields(string(statmData))
	if len(statmFields) < 2 {
		return 0, 0, errShortProcFile
	}
	residentPages, err := strconv.ParseInt(statmFields[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	rssBytes = residentPages * int64(os.Getpagesize())

	statData, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, 0, err
	}
	// comm (field 2) is parenthesised and may itself contain spaces/parens;
	// everything after the last ')' is space-delimited from field 3 onward.
	s := string(statData)
	closeParen := strings.LastIndex(s, ")")
	if closeParen < 0 {
		return 0, 0, errShortProcFile
	}
	rest := strings.Fields(s[closeParen+1:])
	// rest[0] is field 3 (state); utime is field 14 -> rest[11], stime is field 15 -> rest[12].
	if len(rest) < 13 {
		return 0, 0, errShortProcFile
	}
	utime, err := strconv.ParseInt(rest[11], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	stime, err := strconv.ParseInt(rest[12], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	cpuTimeMicros = (utime + stime) * (1_000_000 / clockTicksPerSec)
	return rssBytes, cpuTimeMicros, nil
}
