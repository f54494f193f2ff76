package fetch_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/graphcache/fetch"
)

func ExampleFetcher_Do() {
	q := fetch.NewQueue()
	f := fetch.NewFetcher(fetch.Options{Scheduler: q})

	calls := 0
	load := func(context.Context) (any, error) {
		calls++
		return "user 1", nil
	}

	for i := 0; i < 3; i++ {
		f.Do(context.Background(), "user:1", load, fetch.Callbacks{
			OnData: func(data any) { fmt.Println("got", data) },
		})
	}
	q.Drain()
	fmt.Println("calls:", calls)
	// Output:
	// got user 1
	// got user 1
	// got user 1
	// calls: 1
}

func ExampleFetcher_DoCompound() {
	q := fetch.NewQueue()
	f := fetch.NewFetcher(fetch.Options{Scheduler: q})

	page := func(n int) fetch.Child {
		return fetch.Child{
			Key: fmt.Sprintf("feed:%d", n),
			Task: func(context.Context) (any, error) {
				return fmt.Sprintf("*%d*", n), nil
			},
		}
	}
	merge := func(acc, next any) any { return acc.(string) + next.(string) }

	f.DoCompound(context.Background(), []fetch.Child{page(1), page(2), page(3)}, merge, fetch.Callbacks{
		OnData: func(data any) { fmt.Println(data) },
	})
	q.Drain()
	// Output:
	// *1**2**3*
}
