package client

import (
	"context"
	"testing"
	"time"

	"mini-reqrep/message"
	"mini-reqrep/server"
	"mini-reqrep/transport"
)

func benchmarkSend(b *testing.B, kind transport.Kind, port int) {
	svr := server.NewServer(server.WithTransport(kind))
	done := make(chan error, 1)
	go func() {
		done <- svr.Run(context.Background(), port, func(context.Context, message.Message, int) error {
			return nil
		}, true)
	}()
	for svr.State() != server.StateLooping {
		time.Sleep(10 * time.Millisecond)
	}
	b.Cleanup(func() {
		svr.Close()
		<-done
	})

	cli := New(WithTransport(kind), WithTimeout(5*time.Second))
	if err := cli.Connect(context.Background(), "127.0.0.1", []int{port}); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { cli.Close() })

	msg := map[string]any{"payload": "Hello"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cli.Send(context.Background(), msg, true); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSerialSendZMQ(b *testing.B) {
	benchmarkSend(b, transport.KindZMQ, 9531)
}

func BenchmarkSerialSendFrame(b *testing.B) {
	benchmarkSend(b, transport.KindFrame, 9532)
}
