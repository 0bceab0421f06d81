// Package feed publishes message store mutations to in-process subscribers.
// Each channel has its own topic; events are JSON encoded so subscribers
// never share memory with the store.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/onnwee/chatfeed/chat"
	"github.com/onnwee/chatfeed/jsoncodec"
	"github.com/onnwee/chatfeed/telemetry"
)

// DefaultQueueSize bounds the events waiting to be published.
const DefaultQueueSize = 1024

const subscriberBuffer = 64

// pubsubLevels demotes the pub/sub's per-message info logs, which would
// otherwise log every store mutation while nobody is subscribed.
var pubsubLevels = map[slog.Level]slog.Level{
	slog.LevelDebug: watermill.LevelTrace,
	slog.LevelInfo:  slog.LevelDebug,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("feed closed")

// Topic returns the pub/sub topic carrying a channel's events.
func Topic(channel string) string { return "chat." + channel }

// Feed implements chat.Notifier. Notify never blocks: events are queued and
// published by a background goroutine, and dropped when the queue is full.
type Feed struct {
	pubsub *gochannel.GoChannel
	queue  chan chat.StoreEvent
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a feed. A non-positive queueSize uses DefaultQueueSize.
func New(queueSize int, logger *slog.Logger) *Feed {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "feed"))
	f := &Feed{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: subscriberBuffer,
			// one message in flight per topic keeps subscribers in seq order
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NewSlogLoggerWithLevelMapping(logger, pubsubLevels)),
		queue:  make(chan chat.StoreEvent, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	f.wg.Add(1)
	go f.run()
	return f
}

// Notify queues ev for publishing.
func (f *Feed) Notify(ev chat.StoreEvent) {
	select {
	case <-f.done:
		return
	default:
	}
	select {
	case f.queue <- ev:
	default:
		telemetry.IncFeedDropped()
	}
}

func (f *Feed) run() {
	defer f.wg.Done()
	for {
		select {
		case ev := <-f.queue:
			f.publish(ev)
		case <-f.done:
			return
		}
	}
}

func (f *Feed) publish(ev chat.StoreEvent) {
	payload, err := jsoncodec.Marshal(ev)
	if err != nil {
		f.logger.Error("encode store event", slog.Any("err", err), slog.String("kind", string(ev.Kind)))
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := f.pubsub.Publish(Topic(ev.Channel), msg); err != nil {
		f.logger.Warn("publish store event", slog.Any("err", err), slog.String("channel", ev.Channel))
	}
}

// Subscribe streams the events of channel until ctx is canceled or the feed
// is closed. Events published before Subscribe returns are not delivered.
func (f *Feed) Subscribe(ctx context.Context, channel string) (<-chan chat.StoreEvent, error) {
	select {
	case <-f.done:
		return nil, ErrClosed
	default:
	}
	msgs, err := f.pubsub.Subscribe(ctx, Topic(channel))
	if err != nil {
		return nil, err
	}
	out := make(chan chat.StoreEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev chat.StoreEvent
			err := jsoncodec.Unmarshal(msg.Payload, &ev)
			msg.Ack()
			if err != nil {
				f.logger.Warn("decode store event", slog.Any("err", err), slog.String("message_uuid", msg.UUID))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close stops publishing and closes every subscription. Queued events are
// discarded.
func (f *Feed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		f.wg.Wait()
		err = f.pubsub.Close()
	})
	return err
}
