package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mini-reqrep/message"
)

func okHandler(ctx context.Context, m message.Message, port int) error {
	return nil
}

func slowHandler(ctx context.Context, m message.Message, port int) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

var errBoom = errors.New("boom")

func failingHandler(ctx context.Context, m message.Message, port int) error {
	return errBoom
}

func panickingHandler(ctx context.Context, m message.Message, port int) error {
	panic("handler exploded")
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	if err := LoggingMiddleware(logger)(okHandler)(context.Background(), "Hello", 5555); err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if err := LoggingMiddleware(logger)(failingHandler)(context.Background(), "Hello", 5555); !errors.Is(err, errBoom) {
		t.Fatalf("expect errBoom, got %v", err)
	}

	if logs.FilterMessage("request handled").Len() != 1 {
		t.Fatalf("expect one success entry")
	}
	failed := logs.FilterMessage("request handler failed").All()
	if len(failed) != 1 || failed[0].ContextMap()["port"] != int64(5555) {
		t.Fatalf("expect one failure entry with port, got %+v", failed)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(okHandler)
	if err := handler(context.Background(), "Hello", 5555); err != nil {
		t.Fatalf("expect no error, got '%v'", err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)
	if err := handler(context.Background(), "Hello", 5555); !errors.Is(err, ErrHandlerTimeout) {
		t.Fatalf("expect timeout error, got '%v'", err)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected.
	handler := RateLimitMiddleware(1, 2)(okHandler)

	for i := 0; i < 2; i++ {
		if err := handler(context.Background(), "Hello", 5555); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}

	if err := handler(context.Background(), "Hello", 5555); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 3 should be rate limited, got: '%v'", err)
	}
}

func TestRecover(t *testing.T) {
	err := RecoverMiddleware()(panickingHandler)(context.Background(), "Hello", 5555)

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expect *PanicError, got %v", err)
	}
	if panicErr.Value != "handler exploded" {
		t.Fatalf("unexpected panic value %v", panicErr.Value)
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, m message.Message, port int) error {
				order = append(order, name+".before")
				err := next(ctx, m, port)
				order = append(order, name+".after")
				return err
			}
		}
	}

	handler := Chain(mark("A"), mark("B"))(okHandler)
	if err := handler(context.Background(), "Hello", 5555); err != nil {
		t.Fatalf("expect no error, got '%v'", err)
	}

	want := []string{"A.before", "B.before", "B.after", "A.after"}
	if len(order) != len(want) {
		t.Fatalf("expect %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expect %v, got %v", want, order)
		}
	}
}

func TestChainTimeoutAroundRecover(t *testing.T) {
	handler := Chain(TimeOutMiddleware(time.Second), RecoverMiddleware())(panickingHandler)

	var panicErr *PanicError
	if err := handler(context.Background(), "Hello", 5555); !errors.As(err, &panicErr) {
		t.Fatalf("expect *PanicError through the timeout goroutine, got %v", err)
	}
}
