package swim

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub"
)

var Log *log.Logger

func init() {
	Log = log.New(os.Stdout, "", log.Ldate|log.Ltime)
}

// Subscriber pulls FIXM documents off a pub/sub subscription and feeds the
// parsed flight plans into Plans. The broker redelivers anything unacked, so
// documents are acked as soon as they parse; malformed ones are acked too
// (redelivery won't fix them) and counted.
type Subscriber struct {
	Project      string
	Subscription string
	Plans        chan<- FlightPlan

	nDocs      int64
	nMalformed int64
}

func (s *Subscriber) Counts() (docs, malformed int64) {
	return atomic.LoadInt64(&s.nDocs), atomic.LoadInt64(&s.nMalformed)
}

// Run blocks until ctx is cancelled. Broker errors are retried forever with a
// pause; the track table just goes stale while we're disconnected.
func (s *Subscriber) Run(ctx context.Context) {
	Log.Printf("(swim.Subscriber starting, project=%s sub=%s)\n", s.Project, s.Subscription)

	// sub.Receive invokes concurrent instances of this callback.
	callback := func(ctx context.Context, m *pubsub.Message) {
		m.Ack()
		atomic.AddInt64(&s.nDocs, 1)

		plans, err := ParseMessageCollection(m.Data, m.PublishTime)
		if err != nil {
			atomic.AddInt64(&s.nMalformed, 1)
			Log.Printf("swim: %v", err)
			return
		}
		for _, fp := range plans {
			select {
			case s.Plans <- fp:
			case <-ctx.Done():
				return
			}
		}
	}

	for {
		client, err := pubsub.NewClient(ctx, s.Project)
		if err != nil {
			Log.Printf("swim: pubsub.NewClient: %v", err)
		} else {
			sub := client.Subscription(s.Subscription)
			sub.ReceiveSettings.MaxOutstandingMessages = 10

			// sub.Receive blocks until ctx dies or the connection breaks.
			if err := sub.Receive(ctx, callback); err != nil {
				Log.Printf("swim: sub.Receive: %v", err)
			}
			client.Close()
		}

		select {
		case <-ctx.Done():
			Log.Printf(" -- swim.Subscriber clean exit\n")
			return
		case <-time.After(5 * time.Second):
		}
	}
}
