// Package act drives a synthetic flash-certification workload against raw
// block devices: a rate-paced stream of small random direct reads fanned
// out across worker queues, plus per-device constant-rate large-block read
// and write streams, with per-operation latency histograms reported in
// real time.
package act

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/behrlich/go-act/internal/clock"
	"github.com/behrlich/go-act/internal/config"
	"github.com/behrlich/go-act/internal/device"
	"github.com/behrlich/go-act/internal/queue"
)

// RunContext carries everything the run's goroutines share: the device
// table, the request queues, the histogram set, and the shutdown state.
type RunContext struct {
	cfg *config.Config

	devices []*device.Device
	queues  []*queue.Queue

	largeBlockBytes     int64
	largeBlockOpsPerSec int64
	maxReadBytes        int64

	largeBlockReads  *Histogram
	largeBlockWrites *Histogram
	rawReads         *Histogram
	reads            *Histogram
	devRawReads      []*Histogram

	running    atomic.Bool
	stop       chan struct{}
	stopOnce   sync.Once
	reqsQueued atomic.Int32
	startUs    int64
	overload   atomic.Pointer[device.Error]

	wg  sync.WaitGroup
	out io.Writer
}

// New configures the kernel I/O scheduler for each device, then opens and
// probes the devices and builds the run state. Any failure here aborts
// before a single worker starts.
func New(cfg *config.Config) (*RunContext, error) {
	for _, name := range cfg.DeviceNames {
		device.ConfigureScheduler(name, string(cfg.SchedulerMode))
	}
	return newRunContext(cfg, device.Options{
		LargeBlockBytes: cfg.LargeBlockBytes(),
		RecordBytes:     int64(cfg.RecordBytes),
		DisableODSync:   cfg.DisableODSync,
	})
}

func newRunContext(cfg *config.Config, opts device.Options) (*RunContext, error) {
	rc := &RunContext{
		cfg:             cfg,
		largeBlockBytes: cfg.LargeBlockBytes(),
		stop:            make(chan struct{}),
		out:             os.Stdout,
	}

	for i, name := range cfg.DeviceNames {
		d, err := device.Open(name, i, opts)
		if err != nil {
			rc.closeDevices()
			return nil, err
		}
		rc.devices = append(rc.devices, d)
		if d.ReadBytes > rc.maxReadBytes {
			rc.maxReadBytes = d.ReadBytes
		}
	}

	// Large-block streams run only when record writes are configured; a
	// pure-read benchmark models an idle device with no write-back or
	// defragmentation pressure.
	if cfg.WriteReqsPerSec != 0 {
		rc.largeBlockOpsPerSec = deriveLargeBlockRate(
			cfg.WriteReqsPerSec, cfg.ReplicationFactor, cfg.DefragLWMPct,
			rc.largeBlockBytes, rc.maxReadBytes)
	}

	micro := cfg.MicrosecondHistograms
	rc.largeBlockReads = NewHistogram(micro)
	rc.largeBlockWrites = NewHistogram(micro)
	rc.rawReads = NewHistogram(micro)
	rc.reads = NewHistogram(micro)
	rc.devRawReads = make([]*Histogram, len(rc.devices))
	for i := range rc.devRawReads {
		rc.devRawReads[i] = NewHistogram(micro)
	}

	// The generator stops at the overload threshold, so a queue never
	// holds more than MaxReqsQueued undispatched requests and Push never
	// blocks.
	for i := uint32(0); i < cfg.NumQueues; i++ {
		rc.queues = append(rc.queues, queue.New(int(cfg.MaxReqsQueued)+1))
	}
	return rc, nil
}

// deriveLargeBlockRate sizes the combined large-block read and write
// streams from the record write rate. Every record write eventually costs
// a large-block write-back, and defragmentation at low-water-mark L
// re-reads and re-writes blocks that are only (100-L)% empty, inflating
// the stream by 100/(100-L).
func deriveLargeBlockRate(writeReqsPerSec, replicationFactor, defragLWMPct uint32,
	largeBlockBytes, recordBytes int64) int64 {

	recordsPerBlock := largeBlockBytes / recordBytes
	if recordsPerBlock < 1 {
		recordsPerBlock = 1
	}
	rate := int64(writeReqsPerSec) * int64(replicationFactor) * 100 /
		(int64(100-defragLWMPct) * recordsPerBlock)
	if rate < 1 {
		rate = 1
	}
	return rate
}

// Run executes the configured workload until the duration elapses, a
// device falls behind, or a termination signal arrives. The histogram
// stream goes to standard output.
func (rc *RunContext) Run() error {
	rc.echoConfig()
	rc.running.Store(true)
	rc.startUs = clock.Microseconds()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Infof("received %s, shutting down", sig)
			rc.stopRun()
		case <-rc.stop:
		}
	}()

	if rc.largeBlockOpsPerSec != 0 {
		for _, d := range rc.devices {
			rc.wg.Add(2)
			go rc.runLargeBlockLoop(d, device.KindRead)
			go rc.runLargeBlockLoop(d, device.KindWrite)
		}
	}

	for _, q := range rc.queues {
		for t := uint32(0); t < rc.cfg.ThreadsPerQueue; t++ {
			rc.wg.Add(1)
			go rc.runWorker(q)
		}
	}

	rc.wg.Add(1)
	go rc.runGenerator()

	rc.supervise()
	rc.shutdown()
	return nil
}

// echoConfig prints the effective configuration ahead of the first report
// block.
func (rc *RunContext) echoConfig() {
	cfg := rc.cfg
	fmt.Fprintf(rc.out, "device-names: %s\n", strings.Join(cfg.DeviceNames, ","))
	fmt.Fprintf(rc.out, "num-devices: %d\n", len(rc.devices))
	fmt.Fprintf(rc.out, "test-duration-sec: %d\n", cfg.TestDurationSec)
	fmt.Fprintf(rc.out, "read-reqs-per-sec: %d\n", cfg.ReadReqsPerSec)
	fmt.Fprintf(rc.out, "write-reqs-per-sec: %d\n", cfg.WriteReqsPerSec)
	fmt.Fprintf(rc.out, "record-bytes: %d\n", cfg.RecordBytes)
	fmt.Fprintf(rc.out, "large-block-op-kbytes: %d\n", cfg.LargeBlockOpKBytes)
	if rc.largeBlockOpsPerSec != 0 {
		fmt.Fprintf(rc.out, "large-block-ops-per-sec: %d\n", rc.largeBlockOpsPerSec)
	}
	fmt.Fprintf(rc.out, "num-queues: %d\n", cfg.NumQueues)
	fmt.Fprintf(rc.out, "threads-per-queue: %d\n", cfg.ThreadsPerQueue)
	fmt.Fprintf(rc.out, "report-interval-sec: %d\n", cfg.ReportIntervalSec)
	fmt.Fprintf(rc.out, "microsecond-histograms: %t\n", cfg.MicrosecondHistograms)
	fmt.Fprintf(rc.out, "max-reqs-queued: %d\n", cfg.MaxReqsQueued)
	fmt.Fprintf(rc.out, "max-lag-sec: %d\n", cfg.MaxLagSec)
	fmt.Fprintf(rc.out, "scheduler-mode: %s\n", cfg.SchedulerMode)
	fmt.Fprintln(rc.out)
}

// flagOverload records the diagnostic for the overload that stopped the
// run, logs it, and clears running. Only the first overload is kept.
func (rc *RunContext) flagOverload(e *device.Error) {
	rc.overload.CompareAndSwap(nil, e)
	log.Errorf("%v, drive(s) can't keep up", e)
	rc.stopRun()
}

// OverloadErr returns the overload diagnostic that stopped the run, or
// nil if no overload occurred.
func (rc *RunContext) OverloadErr() error {
	if e := rc.overload.Load(); e != nil {
		return e
	}
	return nil
}

// supervise sleeps to each reporting tick and prints the histogram set,
// returning when the duration elapses or the run stops early.
func (rc *RunContext) supervise() {
	intervalUs := int64(rc.cfg.ReportIntervalSec) * 1_000_000
	durationUs := int64(rc.cfg.TestDurationSec) * 1_000_000

	for n := int64(1); ; n++ {
		targetUs := n * intervalUs
		if !rc.sleepUntil(rc.startUs + targetUs) {
			return
		}
		rc.report((clock.Microseconds() - rc.startUs) / 1_000_000)
		if targetUs >= durationUs {
			return
		}
	}
}

func (rc *RunContext) report(elapsedSec int64) {
	fmt.Fprintf(rc.out, "After %d sec:\n", elapsedSec)
	fmt.Fprintf(rc.out, "reqs queued: %d\n", rc.reqsQueued.Load())
	if rc.largeBlockOpsPerSec != 0 {
		rc.largeBlockReads.Dump(rc.out, "LARGE BLOCK READS")
		rc.largeBlockWrites.Dump(rc.out, "LARGE BLOCK WRITES")
	}
	rc.rawReads.Dump(rc.out, "RAW READS")
	for i, d := range rc.devices {
		rc.devRawReads[i].Dump(rc.out, fmt.Sprintf("%18s", d.Name))
	}
	rc.reads.Dump(rc.out, "READS")
	fmt.Fprintln(rc.out)
}

// stopRun clears running and wakes every sleeper and blocked pop. Safe to
// call from any goroutine, any number of times.
func (rc *RunContext) stopRun() {
	rc.stopOnce.Do(func() {
		rc.running.Store(false)
		close(rc.stop)
	})
}

// sleepUntil sleeps to the target monotonic microsecond timestamp,
// returning false if the run stopped first.
func (rc *RunContext) sleepUntil(targetUs int64) bool {
	deltaUs := targetUs - clock.Microseconds()
	if deltaUs <= 0 {
		return rc.running.Load()
	}
	select {
	case <-time.After(time.Duration(deltaUs) * time.Microsecond):
		return rc.running.Load()
	case <-rc.stop:
		return false
	}
}

// shutdown joins every goroutine, frees the requests the workers never
// dispatched, and closes the descriptor pools.
func (rc *RunContext) shutdown() {
	rc.stopRun()
	rc.wg.Wait()
	for _, q := range rc.queues {
		for q.TryPop() != nil {
			rc.reqsQueued.Add(-1)
		}
	}
	rc.closeDevices()
}

func (rc *RunContext) closeDevices() {
	for _, d := range rc.devices {
		d.ClosePool()
	}
}
