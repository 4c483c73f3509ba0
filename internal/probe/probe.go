// Package probe enumerates attached USB devices and drives them into
// bootloader mode: application-mode adapters and Black Magic Probes both
// need a trigger-and-replug dance before a dfu.Client can talk to them.
// It depends on internal/transport (for enumeration and raw device
// access), internal/dfu (for the mode-switch commands), and
// internal/identity (to hand back a fully identified adapter).
package probe

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stlink-tool/stlink-tool/internal/dfu"
	"github.com/stlink-tool/stlink-tool/internal/dfuerr"
	"github.com/stlink-tool/stlink-tool/internal/identity"
	"github.com/stlink-tool/stlink-tool/internal/transport"
)

const (
	vendorST = 0x0483

	pidV2Bootloader = 0x3748
	pidV3Bootloader = 0x374D
	pidV21          = 0x374B
	pidV21MSD       = 0x3752
	pidV3           = 0x374F

	vendorOpenMoko    = 0x1D50
	pidBMPApplication = 0x6018
	bmpInterface      = 4

	// applicationSwitchReady is the exact value stlink_dfu_mode's probe
	// call must return before the trigger call is trusted to work.
	applicationSwitchReady = 0x8000

	appModeSwitchDelay = 3 * time.Second
	bmpSwitchDelay     = 2 * time.Second
)

// maxRescans bounds the detach/switch/replug cycle. The reference tool
// loops on this forever (goto rescan); a bounded host-side tool fails
// with dfuerr.NotFound instead of hanging when nothing ever answers.
const maxRescans = 6

// Result is a claimed, identified bootloader-mode adapter ready for
// flash and configuration operations. Device is exposed so callers can
// Close it once they're done.
type Result struct {
	Device transport.Device
	Client *dfu.Client
	Info   identity.AdapterInfo
}

// Find enumerates attached USB devices, switching application-mode
// ST-Link adapters and Black Magic Probes into bootloader mode as
// needed, and returns the first bootloader-mode adapter found. A mode
// switch makes the device disappear and re-enumerate under a different
// VID/PID, so each switch triggers a fresh enumeration pass.
func Find(enum transport.Enumerator, log *logrus.Entry) (*Result, error) {
	log = orDiscard(log)

rescan:
	for attempt := 0; attempt < maxRescans; attempt++ {
		candidates, err := enum.Enumerate()
		if err != nil {
			return nil, fmt.Errorf("probe: enumerate: %w", err)
		}

		for _, cand := range candidates {
			result, delay, err := tryCandidate(cand, log)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
			if delay > 0 {
				log.WithField("delay", delay).Debug("waiting for device to re-enumerate")
				time.Sleep(delay)
				continue rescan
			}
		}
	}
	return nil, &dfuerr.NotFound{}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// orDiscard returns log, or a logger writing nowhere if log is nil. Every
// entry point that accepts a caller-supplied *logrus.Entry goes through
// this, since logrus.Entry methods panic on a nil receiver.
func orDiscard(log *logrus.Entry) *logrus.Entry {
	if log != nil {
		return log
	}
	l := logrus.NewEntry(logrus.New())
	l.Logger.SetOutput(discardWriter{})
	return l
}

// tryCandidate classifies one enumerated device and acts on it. It
// returns a ready Result when cand is already in bootloader mode, a
// positive delay when it triggered a mode switch that the caller should
// wait out before rescanning, or (nil, 0, nil) when cand is none of the
// devices this tool recognizes.
func tryCandidate(cand transport.Candidate, log *logrus.Entry) (*Result, time.Duration, error) {
	log = orDiscard(log)
	switch {
	case cand.VendorID == vendorOpenMoko && cand.ProductID == pidBMPApplication:
		return nil, detachBMP(cand, log), nil

	case cand.VendorID == vendorST && cand.ProductID == pidV2Bootloader:
		result, err := openBootloader(cand, 1, 2, log)
		return result, 0, err

	case cand.VendorID == vendorST && cand.ProductID == pidV3Bootloader:
		result, err := openBootloader(cand, 1, 1, log)
		return result, 0, err

	case cand.VendorID == vendorST && (cand.ProductID == pidV21 || cand.ProductID == pidV21MSD || cand.ProductID == pidV3):
		delay, err := switchApplication(cand, log)
		return nil, delay, err

	default:
		return nil, 0, nil
	}
}

// openBootloader opens an already-bootloader-mode device, claims
// interface 0, and reads its identity.
func openBootloader(cand transport.Candidate, epIn, epOut byte, log *logrus.Entry) (*Result, error) {
	dev, err := cand.Open()
	if err != nil {
		return nil, &dfuerr.TransportError{Op: "open bootloader device", Err: err}
	}
	if err := dev.Claim(0); err != nil {
		dev.Close()
		return nil, &dfuerr.TransportError{Op: "claim interface", Err: err}
	}

	client := dfu.New(dev, epIn, epOut, log)
	info, err := identity.Read(client)
	if err != nil {
		dev.Release(0)
		dev.Close()
		return nil, err
	}
	return &Result{Device: dev, Client: client, Info: info}, nil
}

// detachBMP issues the class DFU_DETACH control transfer a Black Magic
// Probe's alternate-host application firmware needs before it re-enumerates
// as a bootloader-mode device. A device it can't even open is logged and
// skipped rather than treated as fatal, since another candidate in this
// same enumeration pass might still be usable.
func detachBMP(cand transport.Candidate, log *logrus.Entry) time.Duration {
	dev, err := cand.Open()
	if err != nil {
		log.WithError(err).Warn("can not open BMP/Application")
		return 0
	}
	defer dev.Close()

	if err := dev.Claim(bmpInterface); err != nil {
		log.WithError(err).Warn("can not claim BMP DFU interface")
		return 0
	}
	const (
		bmRequestTypeClassInterfaceOut = 0x00 | 0x20 | 0x01
		dfuDetachRequest               = 0
		dfuDetachWValue                = 1000
	)
	_, err = dev.Control(bmRequestTypeClassInterfaceOut, dfuDetachRequest, dfuDetachWValue, bmpInterface, nil, transport.Timeout)
	dev.Release(bmpInterface)
	if err != nil {
		log.WithError(err).Warn("BMP detach failed")
		return 0
	}
	return bmpSwitchDelay
}

// switchApplication probes an ST-Link running application firmware and,
// if it answers ready, triggers its switch into bootloader mode. A probe
// that doesn't answer exactly applicationSwitchReady means this adapter's
// firmware doesn't support the switch; the reference tool treats that as
// terminal but not an error, exiting cleanly with no further action, so
// this returns dfuerr.NotReady rather than a plain error for the caller
// to map to the same silent, successful exit.
func switchApplication(cand transport.Candidate, log *logrus.Entry) (time.Duration, error) {
	dev, err := cand.Open()
	if err != nil {
		return 0, &dfuerr.TransportError{Op: "open application device", Err: err}
	}
	defer dev.Close()

	if err := dev.Claim(0); err != nil {
		return 0, &dfuerr.TransportError{Op: "claim interface", Err: err}
	}
	defer dev.Release(0)

	client := dfu.New(dev, 1, 1, log)
	ready, err := client.ModeTrigger(false)
	if err != nil {
		return 0, err
	}
	if ready != applicationSwitchReady {
		return 0, &dfuerr.NotReady{}
	}
	if _, err := client.ModeTrigger(true); err != nil {
		return 0, err
	}
	log.Info("switching STLink/Application to bootloader")
	return appModeSwitchDelay, nil
}
