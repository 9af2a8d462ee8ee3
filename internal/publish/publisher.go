// Package publish formats tracker and timeout-monitor results into tagged
// payloads and hands them to the presentation channel. Publishing is a side
// effect only: every failure here is logged once and swallowed, because a
// monitoring failure must never fail user code.
package publish

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"kernel-sentinel/internal/monitor"
	"kernel-sentinel/pkg/lifecycle"
)

// Sink is the presentation channel the kernel's viewer consumes out-of-band.
type Sink interface {
	Publish(contentType string, payload []byte) error
}

// Publisher serializes execution metadata and notices. Reporter and metrics
// may be nil.
type Publisher struct {
	log      zerolog.Logger
	sink     Sink
	reporter *WebappReporter
	metrics  *monitor.Metrics
}

func New(logger zerolog.Logger, sink Sink, reporter *WebappReporter, metrics *monitor.Metrics) *Publisher {
	return &Publisher{
		log:      logger,
		sink:     sink,
		reporter: reporter,
		metrics:  metrics,
	}
}

// PublishMetadata delivers one sealed execution record to the channel,
// tagged so a downstream viewer can tell it from ordinary output.
func (p *Publisher) PublishMetadata(md lifecycle.ExecutionMetadata) {
	defer p.recovered()

	payload, err := json.Marshal(md)
	if err != nil {
		p.dropped(err, lifecycle.MetadataContentType)
		return
	}
	if err := p.sink.Publish(lifecycle.MetadataContentType, payload); err != nil {
		p.dropped(err, lifecycle.MetadataContentType)
	}
}

// PublishNotice delivers a warning/timeout notice to the channel and, when a
// reporter is configured, forwards it to the external webapp endpoint.
func (p *Publisher) PublishNotice(n lifecycle.ExecutionNotice) {
	defer p.recovered()

	payload, err := json.Marshal(n)
	if err != nil {
		p.dropped(err, lifecycle.NoticeContentType)
	} else if err := p.sink.Publish(lifecycle.NoticeContentType, payload); err != nil {
		p.dropped(err, lifecycle.NoticeContentType)
	}

	if p.reporter != nil {
		p.reporter.Report(n)
	}
}

func (p *Publisher) dropped(err error, contentType string) {
	p.log.Error().Err(err).Str("content_type", contentType).Msg("publish failed, payload dropped")
	if p.metrics != nil {
		p.metrics.PublishFailuresTotal.Inc()
	}
}

func (p *Publisher) recovered() {
	if r := recover(); r != nil {
		p.log.Error().Interface("panic", r).Msg("publish panicked, payload dropped")
		if p.metrics != nil {
			p.metrics.PublishFailuresTotal.Inc()
		}
	}
}
