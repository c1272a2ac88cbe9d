package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultSysfsRoot is where the kernel exposes PWM chips.
const DefaultSysfsRoot = "/sys/class/pwm"

// exportWait bounds how long we wait for udev to create the channel directory.
const exportWait = time.Second

// SysfsGenerator drives one channel of a kernel PWM chip.
type SysfsGenerator struct {
	chipDir string
	dir     string
	channel int
	period  time.Duration
	top     uint16
	enabled bool
}

// NewSysfsGenerator exports channel on pwmchip<chip> under root and
// programs its period. top is the duty level that maps to 100%.
func NewSysfsGenerator(root string, chip, channel int, period time.Duration, top uint16) (*SysfsGenerator, error) {
	if period <= 0 {
		return nil, errors.New("pwm: period must be > 0")
	}
	if top == 0 {
		return nil, errors.New("pwm: top must be > 0")
	}

	g := &SysfsGenerator{
		chipDir: filepath.Join(root, fmt.Sprintf("pwmchip%d", chip)),
		channel: channel,
		period:  period,
		top:     top,
	}
	g.dir = filepath.Join(g.chipDir, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(g.dir); errors.Is(err, os.ErrNotExist) {
		if err := g.write(filepath.Join(g.chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("export pwm channel %d: %w", channel, err)
		}
		if err := waitFor(g.dir, exportWait); err != nil {
			return nil, err
		}
	}

	// duty_cycle must never exceed period, so zero it first.
	if err := g.attr("duty_cycle", 0); err != nil {
		return nil, err
	}
	if err := g.attr("period", period.Nanoseconds()); err != nil {
		return nil, err
	}
	return g, nil
}

// SetDuty sets the duty level and enables the output if needed.
func (g *SysfsGenerator) SetDuty(level uint16) error {
	if level > g.top {
		level = g.top
	}
	duty := g.period.Nanoseconds() * int64(level) / int64(g.top)
	if err := g.attr("duty_cycle", duty); err != nil {
		return err
	}
	if !g.enabled {
		if err := g.attr("enable", 1); err != nil {
			return err
		}
		g.enabled = true
	}
	return nil
}

// Disable turns the output off.
func (g *SysfsGenerator) Disable() error {
	if err := g.attr("enable", 0); err != nil {
		return err
	}
	g.enabled = false
	return nil
}

// Close disables the channel and unexports it.
func (g *SysfsGenerator) Close() error {
	var errs []error
	if err := g.Disable(); err != nil {
		errs = append(errs, err)
	}
	if err := g.write(filepath.Join(g.chipDir, "unexport"), strconv.Itoa(g.channel)); err != nil {
		errs = append(errs, fmt.Errorf("unexport pwm channel %d: %w", g.channel, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (g *SysfsGenerator) attr(name string, v int64) error {
	if err := g.write(filepath.Join(g.dir, name), strconv.FormatInt(v, 10)); err != nil {
		return fmt.Errorf("pwm %s: %w", name, err)
	}
	return nil
}

func (g *SysfsGenerator) write(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}

func waitFor(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pwm: %s did not appear after export", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
