package host

import (
	"fmt"

	"github.com/ardnew/usbfan/regmap"
)

// ControlSensor is one PWM output of a fan controller, controlled in
// percent.
type ControlSensor struct {
	fan     *Fan
	channel int
	last    float64 // last value set, restored by Reset
	set     bool
}

// NewControlSensor binds channel ch of fan.
func NewControlSensor(fan *Fan, ch int) (*ControlSensor, error) {
	if _, err := regmap.DutyRegister(ch); err != nil {
		return nil, err
	}
	return &ControlSensor{fan: fan, channel: ch}, nil
}

// ID identifies the sensor as "<serial>/control<ch>".
func (c *ControlSensor) ID(serial string) string {
	return fmt.Sprintf("%s/control%d", serial, c.channel)
}

// Channel returns the bound channel.
func (c *ControlSensor) Channel() int { return c.channel }

// Set drives the output at percent of full duty.
func (c *ControlSensor) Set(percent float64) error {
	if err := c.fan.SetSpeed(c.channel, percent); err != nil {
		return err
	}
	c.last, c.set = percent, true
	return nil
}

// Value reads the output back in percent.
func (c *ControlSensor) Value() (float64, error) {
	return c.fan.Speed(c.channel)
}

// Reset releases control: the output returns to the last value set
// through c, or turns off if none was.
func (c *ControlSensor) Reset() error {
	if !c.set {
		return c.fan.SetDuty(c.channel, 0)
	}
	return c.fan.SetSpeed(c.channel, c.last)
}

// FanSensor is one tachometer input of a fan controller.
type FanSensor struct {
	fan     *Fan
	channel int
}

// NewFanSensor binds tachometer channel ch of fan.
func NewFanSensor(fan *Fan, ch int) (*FanSensor, error) {
	if _, err := regmap.TachRegister(ch); err != nil {
		return nil, err
	}
	return &FanSensor{fan: fan, channel: ch}, nil
}

// ID identifies the sensor as "<serial>/fan<ch>".
func (s *FanSensor) ID(serial string) string {
	return fmt.Sprintf("%s/fan%d", serial, s.channel)
}

// Channel returns the bound channel.
func (s *FanSensor) Channel() int { return s.channel }

// Value reads the fan speed in RPM.
func (s *FanSensor) Value() (float64, error) {
	rpm, err := s.fan.RPM(s.channel)
	return float64(rpm), err
}
