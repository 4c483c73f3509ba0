// Command stlink-tool drives a USB debug probe's vendor DFU bootloader:
// reading its identity, flashing a firmware image, and editing its
// on-flash configuration sector. See -h for the full flag surface.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"

	"github.com/stlink-tool/stlink-tool/internal/cipher"
	"github.com/stlink-tool/stlink-tool/internal/config"
	"github.com/stlink-tool/stlink-tool/internal/dfuerr"
	"github.com/stlink-tool/stlink-tool/internal/flash"
	"github.com/stlink-tool/stlink-tool/internal/identity"
	"github.com/stlink-tool/stlink-tool/internal/image"
	"github.com/stlink-tool/stlink-tool/internal/probe"
	"github.com/stlink-tool/stlink-tool/internal/usbtransport"
)

// stTypes mirrors the reference tool's sparse st_types[] lookup: most
// adapter-type bytes are upper-case letters, with a few low-index
// aliases for variants the printed help never lists.
var stTypes = map[byte]string{
	0:    "Error",
	'A':  "STM32 Debugger+Audio",
	'B':  "STM32 Debug+Mass storage+VCP",
	'E':  "STM32 Debug+Mass storage+VCP",
	'F':  "STM8/STM32 Debug+Mass storage+VCP+Bridge",
	'G':  "STM8 Debug+Mass storage+VCP",
	'J':  "STM32 Debugger",
	'M':  "STM8/STM32 Debugger",
	'S':  "STM8 Debugger",
	0xFF: "Not Set",
	'B' - 'A': "STM32 Debug+VCP",
	'F' - 'A': "STM8/STM32 Debug+2VCP+Bridge",
	'G' - 'A': "STM8 Debug+VCP",
}

const unsetArg = "\x00unset\x00"

type fieldFlags struct {
	set string
	rm  bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("stlink-tool", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	var help, probeOnly, saveDec, fixConfig bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	fs.BoolVar(&probeOnly, "probe", false, "probe the adapter and exit")
	fs.BoolVar(&probeOnly, "p", false, "probe the adapter and exit")
	fs.BoolVar(&saveDec, "save_dec", false, "save decrypted firmware as filename + .dec")
	fs.BoolVar(&saveDec, "sd", false, "save decrypted firmware as filename + .dec")
	fs.BoolVar(&fixConfig, "fix", false, "flash anti-clone tag and firmware-exists marker")
	fs.BoolVar(&fixConfig, "f", false, "flash anti-clone tag and firmware-exists marker")

	decryptKey := unsetArg
	fs.Func("decrypt", "decrypt firmware using KEY (empty for the internal key)", func(v string) error { decryptKey = v; return nil })
	fs.Func("d", "decrypt firmware using KEY (empty for the internal key)", func(v string) error { decryptKey = v; return nil })

	var stType, ver string
	fs.StringVar(&stType, "st_type", "", "change the reported adapter type to TYPE")
	fs.StringVar(&stType, "t", "", "change the reported adapter type to TYPE")
	fs.StringVar(&ver, "ver", "", "change the reported firmware version, S.J.X")
	fs.StringVar(&ver, "v", "", "change the reported firmware version, S.J.X")

	usbCur := registerPair(fs, "usb_cur", "rm_usb_cur", "set the USB descriptor MaxPower to CURRENT(mA)")
	msdName := registerPair(fs, "msd_name", "rm_msd_name", "set the MSD volume name")
	mbedName := registerPair(fs, "mbed_name", "rm_mbed_name", "set the MBED board name")
	dfuOpt := registerPair(fs, "dfu_opt", "rm_dfu_opt", "set DFU options (decimal bit field)")
	dynOpt := registerPair(fs, "dynamic_opt", "rm_dynamic_opt", "set the dynamic option (V/M/W)")
	mcoOut := registerPair(fs, "mco_out", "rm_mco_out", "set MCO output (hex)")
	startup := registerPair(fs, "startup", "rm_startup", "set the startup preference (0-3)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if help {
		fs.Usage()
		return 0
	}

	out := logrus.New()
	out.SetOutput(colorable.NewColorableStdout())
	out.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	progress := logrus.NewEntry(out)

	wire := logrus.New()
	wire.SetOutput(os.Stderr)
	wireLog := logrus.NewEntry(wire)

	intent, identEdit, err := buildEdits(usbCur, msdName, mbedName, dfuOpt, dynOpt, mcoOut, startup, stType, ver)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	result, err := probe.Find(usbtransport.Enumerator{}, wireLog)
	if err != nil {
		if asNotReady(err) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	defer result.Device.Close()
	defer result.Device.Release(0)

	printIdentity(progress, result.Info)

	if result.Info.ModeMismatch {
		progress.Warn("ST-Link dongle is not in the correct mode. Please unplug and plug the dongle again.")
		return 0
	}

	if probeOnly {
		return 0
	}

	firmwarePath := ""
	if fs.NArg() > 0 {
		firmwarePath = fs.Arg(0)
	}

	flashedOK := true
	if firmwarePath != "" {
		if err := flashFirmware(result, firmwarePath, decryptKey, saveDec, progress); err != nil {
			fmt.Fprintln(os.Stderr, err)
			flashedOK = false
		}
	}

	needsConfigWrite := flashedOK && (!intent.IsNoop() || identEdit.StLinkType.Action == config.Add || identEdit.SoftwareVersion.Action == config.Add || fixConfig)
	if needsConfigWrite {
		if err := writeConfig(result, intent, identEdit); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCodeFor(err)
		}
	}

	if err := result.Client.Exit(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	if !flashedOK {
		return 1
	}
	return 0
}

func registerPair(fs *flag.FlagSet, setName, rmName, usage string) *fieldFlags {
	f := &fieldFlags{set: unsetArg}
	fs.Func(setName, usage, func(v string) error { f.set = v; return nil })
	fs.BoolVar(&f.rm, rmName, false, "remove a previously set "+setName)
	return f
}

// buildEdits turns the parsed flag state into a config.EditIntent plus an
// identity.IdentityEdit, the same split the reference tool's modify[]
// array collapses into one CLI surface but the §9 type boundary keeps
// distinct in code.
func buildEdits(usbCur, msdName, mbedName, dfuOpt, dynOpt, mcoOut, startup *fieldFlags, stType, ver string) (config.EditIntent, identity.IdentityEdit, error) {
	intent := config.NewEditIntent()
	ident := identity.NewIdentityEdit()

	if err := applyUintField(&intent.USBCurrent, usbCur, 10, 16); err != nil {
		return intent, ident, fmt.Errorf("usb_cur: %w", err)
	}
	applyStringFieldFlag(&intent.MbedName, mbedName)
	applyStringFieldFlag(&intent.MSDVolume, msdName)
	if err := applyByteField(&intent.DFUOptions, dfuOpt, 10); err != nil {
		return intent, ident, fmt.Errorf("dfu_opt: %w", err)
	}
	applyByteCharField(&intent.DynamicOpt, dynOpt)
	if err := applyByteField(&intent.MCOOutput, mcoOut, 16); err != nil {
		return intent, ident, fmt.Errorf("mco_out: %w", err)
	}
	if err := applyByteField(&intent.StartupPref, startup, 10); err != nil {
		return intent, ident, fmt.Errorf("startup: %w", err)
	}

	if stType != "" {
		ident.StLinkType = config.FieldEdit{Action: config.Add, Value: stType[0]}
	}
	if ver != "" {
		packed, err := parseVersion(ver)
		if err != nil {
			return intent, ident, fmt.Errorf("ver: %w", err)
		}
		ident.SoftwareVersion = config.FieldEdit{Action: config.Add, Value: packed}
	}

	return intent, ident, nil
}

// parseVersion packs "S.J.X" into the bootloader's native layout:
// (S&0xF)<<12 | (J&0x3F)<<6 | (X&0x3F).
func parseVersion(s string) (uint16, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected S.J.X, got %q", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid component %q", p)
		}
		nums[i] = n
	}
	return uint16(nums[0]&0xF)<<12 | uint16(nums[1]&0x3F)<<6 | uint16(nums[2]&0x3F), nil
}

func applyUintField(dst *config.FieldEdit, f *fieldFlags, base int, bits int) error {
	if f.rm || f.set == "" {
		*dst = config.FieldEdit{Action: config.Remove}
		return nil
	}
	if f.set == unsetArg {
		return nil
	}
	v, err := strconv.ParseUint(f.set, base, bits)
	if err != nil {
		return err
	}
	*dst = config.FieldEdit{Action: config.Add, Value: uint16(v)}
	return nil
}

func applyByteField(dst *config.FieldEdit, f *fieldFlags, base int) error {
	if f.rm || f.set == "" {
		*dst = config.FieldEdit{Action: config.Remove}
		return nil
	}
	if f.set == unsetArg {
		return nil
	}
	v, err := strconv.ParseUint(f.set, base, 8)
	if err != nil {
		return err
	}
	*dst = config.FieldEdit{Action: config.Add, Value: byte(v)}
	return nil
}

func applyByteCharField(dst *config.FieldEdit, f *fieldFlags) {
	if f.rm || f.set == "" {
		*dst = config.FieldEdit{Action: config.Remove}
		return
	}
	if f.set == unsetArg {
		return
	}
	*dst = config.FieldEdit{Action: config.Add, Value: f.set[0]}
}

func applyStringFieldFlag(dst *config.FieldEdit, f *fieldFlags) {
	if f.rm || f.set == "" {
		*dst = config.FieldEdit{Action: config.Remove}
		return
	}
	if f.set == unsetArg {
		return
	}
	*dst = config.FieldEdit{Action: config.Add, Value: f.set}
}

func flashFirmware(result *probe.Result, path, decryptKey string, saveDec bool, log *logrus.Entry) error {
	img, err := image.Load(path)
	if err != nil {
		return err
	}
	log.Infof("loaded firmware %s, size %d bytes", path, img.OriginalSize)

	if err := flash.CheckSize(result.Info, img.OriginalSize); err != nil {
		return err
	}

	if decryptKey != unsetArg {
		key := flash.DefaultDecryptKey
		if decryptKey != "" {
			key = cipher.Key([]byte(decryptKey))
		}
		img.Decrypt(key)
		log.Info("decrypted firmware")
		if saveDec {
			decPath, err := img.SaveDecrypted()
			if err == nil {
				log.Infof("saved decrypted firmware as %s", decPath)
			}
		}
	}
	img.Pad()

	return flash.Write(result.Client, result.Info, img.Data, func(p flash.Progress) {
		pct := float64(p.WrittenBytes) / float64(p.TotalBytes) * 100
		log.Infof("download at 0x%08X done. %.1f%%", p.Address, pct)
	})
}

func writeConfig(result *probe.Result, intent config.EditIntent, identEdit identity.IdentityEdit) error {
	merged, err := config.Apply(result.Info.Config, intent)
	if err != nil {
		return err
	}
	stType := identEdit.ResolveSTType(result.Info.StLinkType)
	softVersion := identEdit.ResolveSoftwareVersion(result.Info.SoftwareVersion)
	return flash.WriteConfigArea(result.Client, result.Info, merged, stType, softVersion)
}

func printIdentity(log *logrus.Entry, info identity.AdapterInfo) {
	log.Infof("STLink %s Bootloader Found", info.Generation)
	name, ok := stTypes[info.StLinkType]
	if !ok {
		name = "Unknown"
	}
	log.Infof("STLink Type: %c [%s]", info.StLinkType, name)
	log.Infof("Bootloader PID: %04X", info.BootloaderPID)
	log.Infof("Reported Flash Size: %dKB", info.ReportedFlashSizeKB)
	log.Infof("Firmware Encryption Key: %X", info.FirmwareKey)
	log.Infof("Anti-Clone Key: %X", info.AntiCloneTag)
}

func exitCodeFor(err error) int {
	switch {
	case asNotFound(err):
		return 2
	default:
		return 1
	}
}

func asNotFound(err error) bool {
	var nf *dfuerr.NotFound
	return errors.As(err, &nf)
}

func asNotReady(err error) bool {
	var nr *dfuerr.NotReady
	return errors.As(err, &nr)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: stlink-tool [options] [firmware.bin]\n\nOptions:\n")
	fs.PrintDefaults()
}
