/*
Package evloop provides single-goroutine task executors with a graceful
shutdown lifecycle, and fixed-size groups of them with lock-free round-robin
dispatch. Tasks submitted to one executor run serially in submission order,
so state owned by an executor needs no further locking.

Two executor flavors share the same lifecycle. The task executor drains a
lock-free queue and runs anywhere Go runs. The poll executor additionally
monitors registered file descriptors with epoll or kqueue and invokes their
event callbacks on the executor goroutine, which makes it a building block
for event-driven network services in the manner of netty and libuv.

A group of executors with round-robin dispatch:

	package main

	import (
		"context"
		"log"
		"time"

		"github.com/evloop/evloop"
	)

	func main() {
		group, err := evloop.NewGroup(4, nil, evloop.WithName("workers"))
		if err != nil {
			log.Fatal(err)
		}
		for i := 0; i < 100; i++ {
			i := i
			_ = group.Execute(context.Background(), evloop.RunnableFunc(func(ctx context.Context) error {
				log.Printf("task %d", i)
				return nil
			}))
		}
		group.ShutdownGracefully(100*time.Millisecond, time.Second)
		if !group.AwaitTermination(5 * time.Second) {
			log.Fatal("executors did not terminate in time")
		}
	}

Shutting down is a two-step negotiation: ShutdownGracefully marks the
executors as shutting down and they keep serving tasks until no new work has
arrived for the quiet period, with the timeout as the hard upper bound. The
termination future completes once every executor in the group has stopped.
*/
package evloop
