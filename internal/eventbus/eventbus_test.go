package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{ N int }

func TestPublishWithoutBus(t *testing.T) {
	Use(nil)
	called := false
	unsub := Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{N: 1})
	unsub()
	require.False(t, called)
}

func TestDispatchByType(t *testing.T) {
	b := New()
	Use(b)
	t.Cleanup(func() { Use(nil) })

	var pings, pongs []int
	Subscribe(func(_ context.Context, e ping) { pings = append(pings, e.N) })
	Subscribe(func(_ context.Context, e pong) { pongs = append(pongs, e.N) })

	Publish(context.Background(), ping{N: 1})
	Publish(context.Background(), pong{N: 2})
	Publish(context.Background(), ping{N: 3})
	Publish(context.Background(), &ping{N: 4}) // pointer is a different type

	require.Equal(t, []int{1, 3}, pings)
	require.Equal(t, []int{2}, pongs)
}

func TestUnsubscribeRemovesOnlyItsHandler(t *testing.T) {
	b := New()
	var got []string
	handler := func(name string) Handler[ping] {
		return func(context.Context, ping) { got = append(got, name) }
	}
	unsubA := SubscribeTo(b, handler("a"))
	SubscribeTo(b, handler("b"))
	require.Equal(t, 2, Len[ping](b))

	unsubA()
	unsubA()
	require.Equal(t, 1, Len[ping](b))

	b.emit(context.Background(), ping{})
	require.Equal(t, []string{"b"}, got)
}

func TestContextIsForwarded(t *testing.T) {
	type key struct{}
	b := New()
	var seen any
	SubscribeTo(b, func(ctx context.Context, _ ping) { seen = ctx.Value(key{}) })
	b.emit(context.WithValue(context.Background(), key{}, "v"), ping{})
	require.Equal(t, "v", seen)
}
