package client_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/graphcache/cache"
	"github.com/jonwraymond/graphcache/client"
	"github.com/jonwraymond/graphcache/fetch"
	"github.com/jonwraymond/graphcache/observe"
	"github.com/jonwraymond/graphcache/schema"
)

func ExampleClient_RegisterQuery() {
	reg := schema.NewRegistry()
	todo := reg.MustDefine("Todo", []string{"id"}, nil)

	queue := fetch.NewQueue()
	cfg := client.DefaultConfig()
	cfg.Scheduler = queue
	cfg.Observer = observe.NopObserver()
	c, _ := client.New(context.Background(), reg, cfg)
	defer c.Close(context.Background())

	todos := &cache.Query{
		Name:  "todos",
		Shape: schema.Array(schema.Entity(todo)),
		Fetch: func(context.Context, any) (any, error) {
			return []any{map[string]any{"id": 1, "done": false}}, nil
		},
	}
	_, _ = c.RegisterQuery(context.Background(), todos, client.Callbacks{
		OnData: func(view any) { fmt.Println("todos:", view) },
	})
	queue.Drain()

	_, _ = c.ProcessMutation(context.Background(), &cache.Mutation{
		Name:  "completeTodo",
		Args:  1,
		Shape: schema.Entity(todo),
		Mutate: func(_ context.Context, id any) (any, error) {
			return map[string]any{"id": id, "done": true}, nil
		},
	}, client.Callbacks{})
	queue.Drain()
	// Output:
	// todos: [map[done:false id:1]]
	// todos: [map[done:true id:1]]
}

func ExampleClient_RegisterLocalQuery() {
	reg := schema.NewRegistry()
	cfg := client.DefaultConfig()
	cfg.Observer = observe.NopObserver()
	c, _ := client.New(context.Background(), reg, cfg)
	defer c.Close(context.Background())

	theme := &cache.Query{
		Name:    "theme",
		Default: "light",
		Updates: map[string]cache.UpdateFunc{
			"setTheme": func(_ any, info cache.UpdateInfo) any { return info.Args },
		},
	}
	_, _ = c.RegisterLocalQuery(theme, client.Callbacks{
		OnData: func(view any) { fmt.Println("theme:", view) },
	})
	_, _ = c.ProcessLocalMutation(context.Background(), &cache.Mutation{Name: "setTheme", Args: "dark"})
	// Output:
	// theme: light
	// theme: dark
}
