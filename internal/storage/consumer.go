package storage

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"kernel-sentinel/internal/bus"
	"kernel-sentinel/pkg/lifecycle"
)

// BusConsumer assembles history rows from presentation-channel payloads.
// Notices for an execution arrive before its metadata; the consumer holds
// their flags until the sealing metadata payload lands, then emits one row.
type BusConsumer struct {
	writer  *HistoryWriter
	pending map[uint64]noticeFlags
}

type noticeFlags struct {
	warned      bool
	interrupted bool
	preview     string
}

func NewBusConsumer(writer *HistoryWriter) *BusConsumer {
	return &BusConsumer{
		writer:  writer,
		pending: make(map[uint64]noticeFlags),
	}
}

// Run consumes until the message stream closes.
func (c *BusConsumer) Run(msgs <-chan *message.Message) {
	for msg := range msgs {
		c.handle(msg)
		msg.Ack()
	}
}

func (c *BusConsumer) handle(msg *message.Message) {
	switch bus.ContentType(msg) {
	case lifecycle.NoticeContentType:
		var n lifecycle.ExecutionNotice
		if err := json.Unmarshal(msg.Payload, &n); err != nil {
			log.Warn().Err(err).Msg("dropping malformed notice payload")
			return
		}
		flags := c.pending[n.ExecutionCount]
		if n.Kind == lifecycle.NoticeWarning {
			flags.warned = true
		}
		if n.Interrupted {
			flags.interrupted = true
		}
		if n.Preview != "" {
			flags.preview = n.Preview
		}
		c.pending[n.ExecutionCount] = flags

	case lifecycle.MetadataContentType:
		var md lifecycle.ExecutionMetadata
		if err := json.Unmarshal(msg.Payload, &md); err != nil {
			log.Warn().Err(err).Msg("dropping malformed metadata payload")
			return
		}
		flags := c.pending[md.ExecutionCount]
		delete(c.pending, md.ExecutionCount)
		c.writer.Record(rowFromMetadata(md, flags, time.Now()))

	default:
		log.Debug().Str("content_type", bus.ContentType(msg)).Msg("ignoring unknown payload")
	}
}

func rowFromMetadata(md lifecycle.ExecutionMetadata, flags noticeFlags, completedAt time.Time) *Execution {
	duration := time.Duration(md.DurationSeconds * float64(time.Second))
	if duration < 0 {
		duration = 0
	}
	return &Execution{
		Seq:         md.ExecutionCount,
		Preview:     flags.preview,
		DurationMS:  duration.Milliseconds(),
		Success:     md.Success,
		ErrorKind:   md.ErrorKind,
		Warned:      flags.warned,
		Interrupted: flags.interrupted,
		CreatedAt:   completedAt.Add(-duration),
		CompletedAt: completedAt,
	}
}
