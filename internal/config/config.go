// Package config reads the workload configuration file: one `key: value`
// setting per line, case-insensitive keys, `#` starting a comment line.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SchedulerMode selects the kernel I/O scheduler written to sysfs.
type SchedulerMode string

const (
	SchedulerNoop     SchedulerMode = "noop"
	SchedulerCFQ      SchedulerMode = "cfq"
	SchedulerDeadline SchedulerMode = "deadline"
)

// Config holds every recognized setting. Keys marked reserved in the file
// format are parsed and validated but not consumed by the workload core.
type Config struct {
	DeviceNames           []string
	TestDurationSec       uint32
	ReadReqsPerSec        uint32
	WriteReqsPerSec       uint32
	NumQueues             uint32
	ThreadsPerQueue       uint32
	ReportIntervalSec     uint32
	MicrosecondHistograms bool
	RecordBytes           uint32
	RecordBytesRangeMax   uint32 // reserved
	LargeBlockOpKBytes    uint32
	ReplicationFactor     uint32
	UpdatePct             uint32 // reserved
	DefragLWMPct          uint32
	DisableODSync         bool
	CommitToDevice        bool   // reserved
	CommitMinBytes        uint32 // reserved
	TombRaider            bool   // reserved
	TombRaiderSleepUsec   uint32 // reserved
	MaxReqsQueued         uint32
	MaxLagSec             int32
	SchedulerMode         SchedulerMode
}

// Default returns a Config with every optional setting at its default.
// The required settings (device-names, test-duration-sec, read-reqs-per-sec,
// write-reqs-per-sec) are left zero and checked by validate against the set
// of keys actually seen.
func Default() *Config {
	return &Config{
		NumQueues:          uint32(runtime.NumCPU()),
		ThreadsPerQueue:    4,
		ReportIntervalSec:  1,
		RecordBytes:        1536,
		LargeBlockOpKBytes: 128,
		ReplicationFactor:  1,
		DefragLWMPct:       50,
		MaxReqsQueued:      100000,
		MaxLagSec:          10,
		SchedulerMode:      SchedulerNoop,
	}
}

// LargeBlockBytes returns the large-block operation size in bytes.
func (c *Config) LargeBlockBytes() int64 {
	return int64(c.LargeBlockOpKBytes) * 1024
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening config file")
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and validates a configuration from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, errors.Errorf("line %d: expected `key: value`, got %q", lineNum, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if err := cfg.set(key, value); err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		seen[key] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	if err := cfg.validate(seen); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "device-names":
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				c.DeviceNames = append(c.DeviceNames, name)
			}
		}
	case "test-duration-sec":
		c.TestDurationSec, err = parseUint32(value)
	case "read-reqs-per-sec":
		c.ReadReqsPerSec, err = parseUint32(value)
	case "write-reqs-per-sec":
		c.WriteReqsPerSec, err = parseUint32(value)
	case "num-queues":
		c.NumQueues, err = parseUint32(value)
	case "threads-per-queue":
		c.ThreadsPerQueue, err = parseUint32(value)
	case "report-interval-sec":
		c.ReportIntervalSec, err = parseUint32(value)
	case "microsecond-histograms":
		c.MicrosecondHistograms, err = parseBool(value)
	case "record-bytes":
		c.RecordBytes, err = parseUint32(value)
	case "record-bytes-range-max":
		c.RecordBytesRangeMax, err = parseUint32(value)
	case "large-block-op-kbytes":
		c.LargeBlockOpKBytes, err = parseUint32(value)
	case "replication-factor":
		c.ReplicationFactor, err = parseUint32(value)
	case "update-pct":
		c.UpdatePct, err = parseUint32(value)
	case "defrag-lwm-pct":
		c.DefragLWMPct, err = parseUint32(value)
	case "disable-odsync":
		c.DisableODSync, err = parseBool(value)
	case "commit-to-device":
		c.CommitToDevice, err = parseBool(value)
	case "commit-min-bytes":
		c.CommitMinBytes, err = parseUint32(value)
	case "tomb-raider":
		c.TombRaider, err = parseBool(value)
	case "tomb-raider-sleep-usec":
		c.TombRaiderSleepUsec, err = parseUint32(value)
	case "max-reqs-queued":
		c.MaxReqsQueued, err = parseUint32(value)
	case "max-lag-sec":
		var v int64
		v, err = strconv.ParseInt(value, 10, 32)
		c.MaxLagSec = int32(v)
	case "scheduler-mode":
		mode := SchedulerMode(strings.ToLower(value))
		switch mode {
		case SchedulerNoop, SchedulerCFQ, SchedulerDeadline:
			c.SchedulerMode = mode
		default:
			return errors.Errorf("scheduler-mode must be one of noop, cfq, deadline; got %q", value)
		}
	default:
		return errors.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return errors.Wrapf(err, "setting %q", key)
	}
	return nil
}

func (c *Config) validate(seen map[string]bool) error {
	for _, key := range []string{
		"device-names", "test-duration-sec", "read-reqs-per-sec", "write-reqs-per-sec",
	} {
		if !seen[key] {
			return errors.Errorf("required setting %q is missing", key)
		}
	}
	if len(c.DeviceNames) == 0 {
		return errors.New("device-names is empty")
	}
	if c.TestDurationSec == 0 {
		return errors.New("test-duration-sec must be > 0")
	}
	if c.NumQueues == 0 {
		return errors.New("num-queues must be > 0")
	}
	if c.ThreadsPerQueue == 0 {
		return errors.New("threads-per-queue must be > 0")
	}
	if c.ReportIntervalSec == 0 {
		return errors.New("report-interval-sec must be > 0")
	}
	if c.RecordBytes == 0 {
		return errors.New("record-bytes must be > 0")
	}
	if c.LargeBlockOpKBytes == 0 {
		return errors.New("large-block-op-kbytes must be > 0")
	}
	if c.ReplicationFactor == 0 {
		return errors.New("replication-factor must be > 0")
	}
	if c.DefragLWMPct >= 100 {
		return errors.New("defrag-lwm-pct must be < 100")
	}
	if c.MaxReqsQueued == 0 {
		return errors.New("max-reqs-queued must be > 0")
	}
	if c.MaxLagSec <= 0 {
		return errors.New("max-lag-sec must be > 0")
	}
	return nil
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
