package canopy_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/dsl"
	"github.com/aretw0/canopy/pkg/ports"
)

// ExampleNew builds a two-step conversation in Go and drives it with events.
func ExampleNew() {
	// 1. Define the hierarchy with the builder.
	root := dsl.Root(
		dsl.Tree("greet").Commands("/start").
			Send("hello", domain.Const("Hello! Do you want to proceed?")).
			Branches(
				dsl.Branch("yes").Keys("yes").Send("ok", domain.Const("Great! You moved forward.")),
			),
	).MustBuild()

	// 2. The performer is where calls leave the bot. Here it prints them.
	delivered := make(chan struct{}, 2)
	performer := ports.PerformerFunc(func(_ context.Context, call domain.Call) (any, error) {
		fmt.Println(call.Payload)
		delivered <- struct{}{}
		return nil, nil
	})

	bot, err := canopy.New(root, canopy.WithPerformer(performer))
	if err != nil {
		log.Fatal(err)
	}
	defer bot.Close(context.Background())

	// 3. Events of one session are handled in order.
	id := domain.NewIdentity(42, 42)
	bot.OnEvent(domain.NewTextEvent(id, "/start"))
	<-delivered
	bot.OnEvent(domain.NewTextEvent(id, "yes"))
	<-delivered

	// Output:
	// Hello! Do you want to proceed?
	// Great! You moved forward.
}

// ExampleLoad runs a hierarchy described in YAML.
func ExampleLoad() {
	delivered := make(chan struct{}, 1)
	performer := ports.PerformerFunc(func(_ context.Context, call domain.Call) (any, error) {
		fmt.Println(call.Payload)
		delivered <- struct{}{}
		return nil, nil
	})

	bot, err := canopy.Load("testdata/greet.yaml", canopy.WithPerformer(performer))
	if err != nil {
		log.Fatal(err)
	}
	defer bot.Close(context.Background())

	bot.OnEvent(domain.NewTextEvent(domain.NewIdentity(1, 1), "/start"))
	<-delivered

	// Output:
	// Hi! Continue?
}
