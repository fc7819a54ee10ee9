package device

import (
	"path"

	log "github.com/sirupsen/logrus"
	"github.com/ungerik/go-sysfs"
)

// ConfigureScheduler writes mode to /sys/block/<dev>/queue/scheduler for
// the device at devPath. Best effort: nested devices, non-Linux platforms,
// and permission errors are logged and ignored.
func ConfigureScheduler(devPath, mode string) {
	name := path.Base(devPath)
	attr := sysfs.Block.Object(name).SubObject("queue").Attribute("scheduler")
	if !attr.Exists() {
		log.Warnf("couldn't find scheduler attribute for %s", devPath)
		return
	}
	if err := attr.Write(mode); err != nil {
		log.Warnf("couldn't set scheduler mode %s for %s: %v", mode, devPath, err)
		return
	}
	log.Debugf("%s: scheduler mode set to %s", devPath, mode)
}
