// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/aibor/dutrun/internal/capture"
	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/netmgr"
	"github.com/aibor/dutrun/internal/qemu"
	"github.com/aibor/dutrun/internal/retry"
	"github.com/aibor/dutrun/internal/sys"
)

// Files in the runtime directory of a machine.
const (
	InternalDisk = "internal.img"
	ExternalDisk = "external.img"
	VarsFile     = "vars.fd"
	SerialLog    = "serial.log"
	EmulatorLog  = "qemu.log"
	QMPSocket    = "qmp.sock"
	TPMSocket    = "swtpm.sock"
	tpmStateDir  = "tpm"
	framesDir    = "frames"
)

const (
	vncBasePort     = 5900
	swtpmExecutable = "swtpm"
	macPrefix       = "52:54:00"
)

// Machine is a [device.Backend] driving a QEMU virtual machine.
type Machine struct {
	opts device.QemuOptions
	env  Env

	id  string
	mac string
	dir string

	network *netmgr.Manager
	capture *capture.Capture

	// Set by Setup.
	firmware   qemu.Firmware
	vncDisplay int

	mu           sync.Mutex
	emulator     *sys.Process
	swtpm        *sys.Process
	bridge       string
	flashed      bool
	bootExternal bool
}

var _ device.Backend = (*Machine)(nil)

// New creates a [Machine] with a new random instance ID and MAC address.
// The runtime directory is created by [Machine.Setup].
func New(opts *device.QemuOptions, env Env) *Machine {
	env.setDefaults()

	idBytes := uuid.New()
	macBytes := uuid.New()

	id := fmt.Sprintf("%x", idBytes[:4])

	runtimeDir := opts.RuntimeDir
	if runtimeDir == "" {
		runtimeDir = filepath.Join(os.TempDir(), "dutrun")
	}

	dir := filepath.Join(runtimeDir, id)

	return &Machine{
		opts: *opts,
		env:  env,
		id:   id,
		mac:  fmt.Sprintf("%s:%02x:%02x:%02x", macPrefix, macBytes[0], macBytes[1], macBytes[2]),
		dir:  dir,
		network: &netmgr.Manager{
			ID:         id,
			RuntimeDir: dir,
			Host:       env.NetHost,
			Runner:     env.Runner,
			Start:      env.Start,
		},
	}
}

// ID returns the instance ID.
func (m *Machine) ID() string {
	return m.id
}

// MAC returns the MAC address of the network interface.
func (m *Machine) MAC() string {
	return m.mac
}

// Path returns the path of the named file in the runtime directory.
func (m *Machine) Path(name string) string {
	return filepath.Join(m.dir, name)
}

// Running reports whether the emulator process is alive.
func (m *Machine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.emulator != nil && !m.emulator.Exited()
}

func (m *Machine) logContext(ctx context.Context) context.Context {
	return logger.WithKV(logger.WithName(ctx, "vm"), "id", m.id)
}

// Setup implements [device.Backend]. It checks the host for IP forwarding,
// firmware and the required executables and creates the runtime directory.
func (m *Machine) Setup(ctx context.Context) error {
	ctx = m.logContext(ctx)

	err := sys.CheckIPForwarding(m.env.RootFS)
	if err != nil {
		return err
	}

	m.firmware, err = m.findFirmware()
	if err != nil {
		return err
	}

	spec := qemu.Spec{}

	err = spec.AddDefaultsFor(m.opts.Architecture)
	if err != nil {
		return err
	}

	_, err = m.env.LookPath(spec.Executable)
	if err != nil {
		return fmt.Errorf("emulator: %w", err)
	}

	if m.opts.TPM {
		_, err = m.env.LookPath(swtpmExecutable)
		if err != nil {
			return fmt.Errorf("tpm emulator: %w", err)
		}
	}

	if m.opts.Graphics {
		m.vncDisplay, err = freeVNCDisplay()
		if err != nil {
			return err
		}

		address := net.JoinHostPort("127.0.0.1", strconv.Itoa(vncBasePort+m.vncDisplay))
		m.capture = capture.New(address, m.Path(framesDir))
		m.capture.Start = m.env.Start
	}

	err = os.MkdirAll(m.dir, 0o755)
	if err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}

	logger.InfoKV(ctx, "virtual machine set up",
		"dir", m.dir,
		"firmware", m.firmware.Code,
		"mac", m.mac,
	)

	return nil
}

func (m *Machine) findFirmware() (qemu.Firmware, error) {
	if m.opts.Firmware == nil {
		return qemu.FindFirmware(m.env.RootFS, m.opts.Architecture, m.opts.SecureBoot)
	}

	firmware := qemu.Firmware{
		Code: m.opts.Firmware.Code,
		Vars: m.opts.Firmware.Vars,
	}

	for _, path := range []string{firmware.Code, firmware.Vars} {
		_, err := fs.Stat(m.env.RootFS, rootRelative(path))
		if err != nil {
			return qemu.Firmware{}, fmt.Errorf("firmware: %w", err)
		}
	}

	return firmware, nil
}

// rootRelative converts an absolute host path into a path valid for
// [io/fs.FS] rooted at "/".
func rootRelative(path string) string {
	return strings.TrimPrefix(filepath.Clean(path), "/")
}

// freeVNCDisplay finds a display number whose VNC port is currently unused.
func freeVNCDisplay() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("find free vnc port: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()

	if port < vncBasePort {
		return 0, fmt.Errorf("find free vnc port: port %d below %d", port, vncBasePort)
	}

	return port - vncBasePort, nil
}

// Flash implements [device.Backend]. The machine is powered off, fresh
// disks and firmware variables are created and the image is written onto
// the external disk. Flasher images are booted until they reset the machine.
func (m *Machine) Flash(ctx context.Context, image device.Image, progress device.ProgressFunc) error {
	ctx = m.logContext(ctx)

	err := m.PowerOff(ctx)
	if err != nil {
		return fmt.Errorf("power off before flash: %w", err)
	}

	m.mu.Lock()
	m.flashed = false
	m.mu.Unlock()

	err = m.prepareDisks()
	if err != nil {
		return err
	}

	if m.opts.ForceRAID {
		err := m.prepareRAID(ctx)
		if err != nil {
			return err
		}
	}

	err = m.writeImage(ctx, image, progress)
	if err != nil {
		return err
	}

	flasher, err := m.env.DetectFlasher(m.Path(ExternalDisk))
	if err != nil {
		return fmt.Errorf("inspect image: %w", err)
	}

	logger.InfoKV(ctx, "image written", "flasher", flasher)

	if flasher {
		err := m.runFlasher(ctx, progress)
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.flashed = true
	m.bootExternal = !flasher
	m.mu.Unlock()

	return nil
}

func (m *Machine) prepareDisks() error {
	for _, name := range []string{InternalDisk, ExternalDisk} {
		err := createDisk(m.Path(name), m.opts.DiskSize)
		if err != nil {
			return err
		}
	}

	err := os.RemoveAll(m.Path(tpmStateDir))
	if err != nil {
		return fmt.Errorf("reset tpm state: %w", err)
	}

	return m.copyVarsTemplate()
}

// createDisk creates an empty sparse disk image.
func createDisk(path string, size int64) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create disk: %w", err)
	}
	defer file.Close()

	err = file.Truncate(size)
	if err != nil {
		return fmt.Errorf("resize disk %s: %w", filepath.Base(path), err)
	}

	return file.Close() //nolint:wrapcheck
}

func (m *Machine) copyVarsTemplate() error {
	src, err := m.env.RootFS.Open(rootRelative(m.firmware.Vars))
	if err != nil {
		return fmt.Errorf("open firmware vars: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(m.Path(VarsFile))
	if err != nil {
		return fmt.Errorf("create firmware vars: %w", err)
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("copy firmware vars: %w", err)
	}

	return dst.Close() //nolint:wrapcheck
}

// prepareRAID writes the metadata of a degraded RAID-1 array onto the
// internal disk. The array is stopped again, so the guest assembles it on
// boot. The loop device is detached in any case.
func (m *Machine) prepareRAID(ctx context.Context) (err error) {
	out, err := m.env.Runner.Run(ctx, "losetup", "--find", "--show", m.Path(InternalDisk))
	if err != nil {
		return fmt.Errorf("attach loop device: %w", err)
	}

	loop := strings.TrimSpace(string(out))

	defer func() {
		_, detachErr := m.env.Runner.Run(context.WithoutCancel(ctx), "losetup", "--detach", loop)
		if detachErr != nil {
			err = errors.Join(err, fmt.Errorf("detach loop device: %w", detachErr))
		}
	}()

	array := "/dev/md/dutrun-" + m.id

	_, err = m.env.Runner.Run(ctx, "mdadm", "--create", array,
		"--run",
		"--level=1",
		"--raid-devices=2",
		"--metadata=1.2",
		loop, "missing",
	)
	if err != nil {
		return fmt.Errorf("create raid: %w", err)
	}

	_, err = m.env.Runner.Run(ctx, "mdadm", "--stop", array)
	if err != nil {
		return fmt.Errorf("stop raid: %w", err)
	}

	logger.DebugKV(ctx, "raid metadata written", "loop", loop)

	return nil
}

func (m *Machine) writeImage(ctx context.Context, image device.Image, progress device.ProgressFunc) error {
	if image.Size > m.opts.DiskSize {
		return fmt.Errorf("%w: image of %d bytes exceeds disk size", device.ErrInvalidOption, image.Size)
	}

	disk, err := os.OpenFile(m.Path(ExternalDisk), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open external disk: %w", err)
	}
	defer disk.Close()

	// Images of unknown size are cut at the disk size. Any remaining byte
	// means the image does not fit.
	src := image.Reader
	image.Reader = io.LimitReader(src, m.opts.DiskSize)

	written, err := device.CopyImage(ctx, disk, image, device.StageFlash, progress)
	if err != nil {
		return err
	}

	if written == m.opts.DiskSize {
		var extra [1]byte

		n, _ := io.ReadFull(src, extra[:])
		if n > 0 {
			return fmt.Errorf("%w: image exceeds disk size of %d bytes", device.ErrInvalidOption, m.opts.DiskSize)
		}
	}

	err = disk.Sync()
	if err != nil {
		return fmt.Errorf("sync external disk: %w", err)
	}

	return disk.Close() //nolint:wrapcheck
}

// runFlasher boots the flasher image and kills the machine as soon as the
// guest resets after the installation.
func (m *Machine) runFlasher(ctx context.Context, progress device.ProgressFunc) error {
	flashCtx, cancel := context.WithTimeoutCause(ctx, time.Duration(m.opts.FlashTimeout), ErrFlashTimeout)
	defer cancel()

	progress.Report(device.StageInstall, 0, 0)

	proc, err := m.boot(flashCtx, true)
	if err != nil {
		return err
	}

	defer func() {
		err := m.PowerOff(context.WithoutCancel(ctx))
		if err != nil {
			logger.WarnKV(ctx, "stopping flasher failed", "error", err)
		}
	}()

	err = m.waitForReset(flashCtx)
	if err != nil {
		if errors.Is(context.Cause(flashCtx), ErrFlashTimeout) {
			return ErrFlashTimeout
		}

		if proc.Exited() {
			return fmt.Errorf("emulator exited before flasher finished: %w", proc.Err())
		}

		return err
	}

	err = proc.Kill()
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "flasher finished")

	return nil
}

func (m *Machine) waitForReset(ctx context.Context) error {
	qmp, err := qemu.DialQMP(ctx, m.Path(QMPSocket), m.env.SocketPolicy)
	if err != nil {
		return err
	}
	defer qmp.Close()

	_, err = qmp.WaitEvent(ctx, qemu.EventReset)
	if err != nil {
		return fmt.Errorf("wait for reset: %w", err)
	}

	return nil
}

// PowerOn implements [device.Backend]. A running emulator is stopped first.
func (m *Machine) PowerOn(ctx context.Context) error {
	ctx = m.logContext(ctx)

	m.mu.Lock()
	flashed := m.flashed
	m.mu.Unlock()

	if !flashed {
		return ErrNotFlashed
	}

	err := m.PowerOff(ctx)
	if err != nil {
		return err
	}

	_, err = m.boot(ctx, false)

	return err
}

// Spec returns the emulator spec. While flashing, both disks are attached
// and the external disk is booted.
func (m *Machine) Spec(flashing bool) (qemu.Spec, error) {
	m.mu.Lock()
	bridge := m.bridge
	bootExternal := flashing || m.bootExternal
	m.mu.Unlock()

	spec := qemu.Spec{
		Name:             "dutrun-" + m.id,
		SMP:              m.opts.CPUs,
		MemoryMiB:        m.opts.MemoryMiB,
		SerialLog:        m.Path(SerialLog),
		StorageInterface: m.opts.StorageInterface,
		SecureBoot:       m.opts.SecureBoot,
		Graphics:         m.opts.Graphics,
		VNCDisplay:       m.vncDisplay,
		Bridge:           bridge,
		MAC:              m.mac,
		Firmware: qemu.Firmware{
			Code: m.firmware.Code,
			Vars: m.Path(VarsFile),
		},
		QMPSocket: m.Path(QMPSocket),
		Disks: []qemu.Disk{
			{ID: "internal", Path: m.Path(InternalDisk), Boot: !bootExternal},
		},
	}

	if bootExternal {
		spec.Disks = append(spec.Disks, qemu.Disk{
			ID:   "external",
			Path: m.Path(ExternalDisk),
			Boot: true,
		})
	}

	if m.opts.TPM {
		spec.TPMSocket = m.Path(TPMSocket)
	}

	err := spec.AddDefaultsFor(m.opts.Architecture)
	if err != nil {
		return qemu.Spec{}, err
	}

	return spec, nil
}

func (m *Machine) boot(ctx context.Context, flashing bool) (*sys.Process, error) {
	spec, err := m.Spec(flashing)
	if err != nil {
		return nil, err
	}

	name, args, err := spec.Command()
	if err != nil {
		return nil, fmt.Errorf("emulator arguments: %w", err)
	}

	if m.opts.TPM {
		err := m.startTPM(ctx)
		if err != nil {
			return nil, err
		}
	}

	err = os.Remove(m.Path(QMPSocket))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale qmp socket: %w", err)
	}

	logFile, err := os.OpenFile(m.Path(EmulatorLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open emulator log: %w", err)
	}
	defer logFile.Close()

	proc, err := m.env.Start(name, args, sys.ProcessIO{Stdout: logFile, Stderr: logFile})
	if err != nil {
		return nil, fmt.Errorf("start emulator: %w", err)
	}

	m.mu.Lock()
	m.emulator = proc
	m.mu.Unlock()

	logger.InfoKV(ctx, "emulator started",
		"pid", proc.Pid(),
		"flashing", flashing,
		"bridge", spec.Bridge,
	)

	return proc, nil
}

func (m *Machine) startTPM(ctx context.Context) error {
	stateDir := m.Path(tpmStateDir)
	socket := m.Path(TPMSocket)

	err := os.MkdirAll(stateDir, 0o700)
	if err != nil {
		return fmt.Errorf("create tpm state dir: %w", err)
	}

	err = os.Remove(socket)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale tpm socket: %w", err)
	}

	proc, err := m.env.Start(swtpmExecutable, []string{
		"socket",
		"--tpm2",
		"--tpmstate", "dir=" + stateDir,
		"--ctrl", "type=unixio,path=" + socket,
	}, sys.ProcessIO{})
	if err != nil {
		return fmt.Errorf("start tpm emulator: %w", err)
	}

	m.mu.Lock()
	m.swtpm = proc
	m.mu.Unlock()

	err = retry.Do(ctx, m.env.SocketPolicy, func(context.Context) error {
		if proc.Exited() {
			return retry.Permanent(fmt.Errorf("tpm emulator exited: %w", proc.Err()))
		}

		_, err := os.Stat(socket)

		return err //nolint:wrapcheck
	})
	if err != nil {
		return fmt.Errorf("wait for tpm socket: %w", err)
	}

	return nil
}

// PowerOff implements [device.Backend]. The emulator is terminated and
// killed if it does not exit in time.
func (m *Machine) PowerOff(ctx context.Context) error {
	m.mu.Lock()
	emulator, swtpm := m.emulator, m.swtpm
	m.mu.Unlock()

	var emulatorErr, swtpmErr error

	if emulator != nil {
		emulatorErr = emulator.Stop(ctx, unix.SIGTERM, m.env.StopTimeout)
	}

	if swtpm != nil {
		swtpmErr = swtpm.Stop(ctx, unix.SIGTERM, m.env.StopTimeout)
	}

	// Processes that did not stop stay tracked, so teardown can retry.
	m.mu.Lock()
	if emulatorErr == nil && m.emulator == emulator {
		m.emulator = nil
	}

	if swtpmErr == nil && m.swtpm == swtpm {
		m.swtpm = nil
	}
	m.mu.Unlock()

	var errs []error

	if emulatorErr != nil {
		errs = append(errs, fmt.Errorf("stop emulator: %w", emulatorErr))
	}

	if swtpmErr != nil {
		errs = append(errs, fmt.Errorf("stop tpm emulator: %w", swtpmErr))
	}

	return errors.Join(errs...)
}

// Network implements [device.Backend]. Only wired networks are supported.
// The bridge is attached on the next power on.
func (m *Machine) Network(ctx context.Context, config device.NetworkConfig) error {
	ctx = m.logContext(ctx)

	if config.Wireless != nil {
		return fmt.Errorf("%w: wireless network for virtual machine", device.ErrUnsupported)
	}

	if config.IsZero() {
		m.mu.Lock()
		m.bridge = ""
		m.mu.Unlock()

		return m.network.Teardown(ctx)
	}

	applied, err := m.network.Apply(ctx, netmgr.Config{
		Bridge:        m.opts.Network.Bridge,
		Address:       m.opts.Network.Address,
		DHCPRange:     m.opts.Network.DHCPRange,
		Autoconfigure: m.opts.Network.Autoconfigure,
		NAT:           config.Wired.NAT,
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.bridge = applied.Bridge
	m.mu.Unlock()

	if m.Running() {
		logger.InfoKV(ctx, "network changes apply on next power on")
	}

	return nil
}

// StartCapture implements [device.Backend]. It requires graphics.
func (m *Machine) StartCapture(ctx context.Context) error {
	if m.capture == nil {
		return fmt.Errorf("%w: capture without graphics", device.ErrUnsupported)
	}

	return m.capture.Begin(ctx)
}

// StopCapture implements [device.Backend].
func (m *Machine) StopCapture(ctx context.Context, w io.Writer) error {
	if m.capture == nil {
		return fmt.Errorf("%w: capture without graphics", device.ErrUnsupported)
	}

	err := m.capture.Stop(ctx)
	if err != nil {
		return err
	}

	return m.capture.Archive(w)
}

// Teardown implements [device.Backend]. It powers off, stops the capture,
// removes the network and the runtime directory. All steps are tried.
func (m *Machine) Teardown(ctx context.Context) error {
	ctx = m.logContext(ctx)

	var errs []error

	err := m.PowerOff(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	if m.capture != nil {
		err := m.capture.Teardown(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("capture: %w", err))
		}
	}

	err = m.network.Teardown(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("network: %w", err))
	}

	err = os.RemoveAll(m.dir)
	if err != nil {
		errs = append(errs, fmt.Errorf("remove runtime dir: %w", err))
	}

	m.mu.Lock()
	m.flashed = false
	m.bridge = ""
	m.mu.Unlock()

	logger.DebugKV(ctx, "virtual machine torn down")

	return errors.Join(errs...)
}
