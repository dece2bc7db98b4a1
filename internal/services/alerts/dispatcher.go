// Package alerts renders scored trades and delivers them over the configured
// channels. Delivery failures are reported per channel and never escalate.
package alerts

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/models"
)

// DeliveryReport is the outcome of sending one alert to every channel
type DeliveryReport struct {
	Alert     *models.Alert
	Delivered []string
	Failures  []error // *interfaces.DeliveryError
}

// Ok reports whether at least one channel accepted the alert
func (r DeliveryReport) Ok() bool {
	return len(r.Delivered) > 0
}

// Dispatcher fans an alert out to every enabled channel
type Dispatcher struct {
	channels []interfaces.AlertChannel
	logger   arbor.ILogger
}

// NewDispatcher creates a dispatcher. Nil channels are skipped.
func NewDispatcher(logger arbor.ILogger, channels ...interfaces.AlertChannel) *Dispatcher {
	d := &Dispatcher{logger: logger}
	for _, ch := range channels {
		if ch != nil {
			d.channels = append(d.channels, ch)
		}
	}
	return d
}

// Enabled reports whether any channel is configured
func (d *Dispatcher) Enabled() bool {
	return len(d.channels) > 0
}

// Channels returns the names of the configured channels
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch sends the alert on every channel in order. A failing channel does not
// stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) DeliveryReport {
	report := DeliveryReport{Alert: alert}

	for _, ch := range d.channels {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, asDeliveryError(ch.Name(), err))
			continue
		}

		if err := ch.Send(ctx, alert); err != nil {
			derr := asDeliveryError(ch.Name(), err)
			report.Failures = append(report.Failures, derr)
			d.logger.Warn().
				Str("channel", ch.Name()).
				Str("kind", string(alert.Kind)).
				Err(derr).
				Msg("Alert delivery failed")
			continue
		}

		report.Delivered = append(report.Delivered, ch.Name())
		d.logger.Debug().
			Str("channel", ch.Name()).
			Str("kind", string(alert.Kind)).
			Str("key", alert.TradeKey).
			Msg("Alert delivered")
	}

	return report
}

func asDeliveryError(channel string, err error) error {
	var derr *interfaces.DeliveryError
	if errors.As(err, &derr) {
		return err
	}
	return &interfaces.DeliveryError{Channel: channel, Err: err}
}
