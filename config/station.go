package config

import "morsekey/keyer"

// KeyerTiming converts the millisecond thresholds.
func (c *Config) KeyerTiming() keyer.Timing {
	t := c.Timing
	return keyer.Timing{
		Keypress: Millis(t.KeypressMS),
		DitDah:   Millis(t.DitDahMS),
		Char:     Millis(t.CharMS),
		Word:     Millis(t.WordMS),
		Message:  Millis(t.MessageMS),
	}
}

// DecoderConfig is the decoder part of StationConfig, also used by the replay tool.
func (c *Config) DecoderConfig() keyer.DecoderConfig {
	return keyer.DecoderConfig{
		Timing:        c.KeyerTiming(),
		CharDelimiter: c.Delimiters.Char,
		WordDelimiter: c.Delimiters.Word,
	}
}

// StationConfig assembles the settings keyer.NewStation needs.
func (c *Config) StationConfig() keyer.StationConfig {
	return keyer.StationConfig{
		Decoder: c.DecoderConfig(),
		Gate: keyer.GateConfig{
			Keypress: Millis(c.Timing.KeypressMS),
			Quiet:    Seconds(c.Confirm.ThresholdSeconds),
			Window:   Seconds(c.Confirm.DurationSeconds),
		},
		PollInterval: Millis(c.Timing.PollIntervalMS),
		Notify: keyer.NotifyConfig{
			FlashInterval:      Millis(c.Notify.FlashIntervalMS),
			InitializeFlashes:  c.Notify.InitializeFlashes,
			WordFlashes:        c.Notify.WordFlashes,
			MessageFlashes:     c.Notify.MessageFlashes,
			TransmittedFlashes: c.Notify.TransmittedFlashes,
			ConfirmFlashes:     c.Notify.ConfirmFlashes,
		},
	}
}
