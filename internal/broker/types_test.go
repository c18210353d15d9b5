package broker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientID(t *testing.T) {
	assert.Equal(t, "fixed", ClientID("fixed"))

	id := ClientID("")
	assert.True(t, strings.HasPrefix(id, "dagd-"))
	assert.Len(t, id, len("dagd-")+8)
	assert.NotEqual(t, id, ClientID(""))
}

// pollingBroker feeds RunPolling a scripted sequence of poll results
type pollingBroker struct {
	errs  []error
	polls int
}

func (b *pollingBroker) Start(context.Context) error { return nil }
func (b *pollingBroker) Poll(ctx context.Context, wait bool) (int, error) {
	b.polls++
	if len(b.errs) == 0 {
		return 0, ctx.Err()
	}
	err := b.errs[0]
	b.errs = b.errs[1:]
	return 0, err
}
func (b *pollingBroker) Run(ctx context.Context) error { return RunPolling(ctx, b) }
func (b *pollingBroker) PublishStatus(string, bool) bool { return false }
func (b *pollingBroker) Close() {}
func (b *pollingBroker) GetStats() BrokerStats { return BrokerStats{} }

func TestRunPolling(t *testing.T) {
	t.Run("Transport failure", func(t *testing.T) {
		failure := errors.New("subscribe refused")
		b := &pollingBroker{errs: []error{nil, nil, failure}}

		assert.ErrorIs(t, b.Run(context.Background()), failure)
		assert.Equal(t, 3, b.polls)
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		b := &pollingBroker{}

		assert.NoError(t, b.Run(ctx))
	})

	t.Run("Deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()
		<-ctx.Done()

		assert.NoError(t, (&pollingBroker{}).Run(ctx))
	})

	t.Run("Cancelled between polls", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		b := &pollingBroker{errs: []error{nil}}
		cancel()

		assert.NoError(t, b.Run(ctx))
		assert.Equal(t, 1, b.polls)
	})
}
