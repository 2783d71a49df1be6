/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package seqqueue_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-loadkit/config"
	"github.com/acronis/go-loadkit/log"
	"github.com/acronis/go-loadkit/ratelimit"
	"github.com/acronis/go-loadkit/seqqueue"
	"github.com/acronis/go-loadkit/service"
)

func Example() {
	queue := seqqueue.MustNew[string, string](4, time.Second*30)
	defer func() { _ = queue.Cleanup() }()

	// Tasks enqueued for the same key run strictly in submission order,
	// so the prints below cannot interleave.
	var last *seqqueue.Result[string]
	for _, step := range []string{"reserve stock", "charge card", "ship order"} {
		step := step
		res, err := queue.Enqueue("order-17", func(ctx context.Context) (string, error) {
			fmt.Println("applying:", step)
			return step, nil
		})
		if err != nil {
			fmt.Println(err)
			return
		}
		last = res
	}

	v, err := last.Wait(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("last step:", v)

	// Output:
	// applying: reserve stock
	// applying: charge card
	// applying: ship order
	// last step: ship order
}

func ExampleQueue_Enqueue() {
	queue := seqqueue.MustNew[string, int](4, time.Second*30)
	defer func() { _ = queue.Cleanup() }()

	// The failure of one task resolves only its own handle, later tasks for
	// the key still run.
	tasks := []seqqueue.Task[int]{
		func(ctx context.Context) (int, error) { return 100, nil },
		func(ctx context.Context) (int, error) { return 0, errors.New("insufficient funds") },
		func(ctx context.Context) (int, error) { return 300, nil },
	}
	results := make([]*seqqueue.Result[int], 0, len(tasks))
	for _, task := range tasks {
		res, err := queue.Enqueue("account-7", task)
		if err != nil {
			fmt.Println(err)
			return
		}
		results = append(results, res)
	}

	for i, res := range results {
		if v, waitErr := res.Wait(context.Background()); waitErr != nil {
			fmt.Printf("task %d: %v\n", i, waitErr)
		} else {
			fmt.Printf("task %d: %d\n", i, v)
		}
	}

	// Output:
	// task 0: 100
	// task 1: task failed: insufficient funds
	// task 2: 300
}

// Example_lifecycle runs an admission limiter and a queue as one composite
// service unit, the way an application wires them at startup.
func Example_lifecycle() {
	limiter := ratelimit.MustNew(100, time.Minute)
	queue := seqqueue.MustNew[string, string](8, time.Second*30)

	svc := service.New(log.NewDisabledLogger(), service.NewCompositeUnit(limiter, queue))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- svc.StartContext(ctx) }()

	if err := limiter.Check("ingest"); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("admitted")

	processed, err := queue.Submit(context.Background(), "ingest", func(ctx context.Context) (string, error) {
		return "processed", nil
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(processed)

	cancel()
	fmt.Println("stopped:", <-serveDone)

	// Output:
	// admitted
	// processed
	// stopped: <nil>
}

func ExampleNewFromConfig() {
	cfgData := bytes.NewBufferString(`
seqQueue:
  maxConcurrent: 2
  queueTimeout: 5s
`)
	cfg := seqqueue.NewConfig()
	if err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg); err != nil {
		fmt.Println(err)
		return
	}

	queue, err := seqqueue.NewFromConfig[string, string](cfg, seqqueue.Opts{})
	if err != nil {
		fmt.Println(err)
		return
	}
	defer func() { _ = queue.Cleanup() }()

	greeting, err := queue.Submit(context.Background(), "tenant-1", func(ctx context.Context) (string, error) {
		return "hello", nil
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(greeting)

	// Output:
	// hello
}
