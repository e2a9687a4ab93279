/*
Package canopy runs hierarchical conversational bots.

A bot is a tree of elements: the root holds named trees, each tree holds
branches, and every element carries triggers, actions and an optional
transition. Canopy keeps one session per (participant, conversation) pair,
feeds each session its events in arrival order on a shared worker pool and
sends the resulting calls to a host-provided Performer.

# Usage

Build the hierarchy with package dsl, or load it from YAML with Load:

	bot, err := canopy.Load("bot.yaml", canopy.WithPerformer(performer))
	if err != nil {
		log.Fatal(err)
	}
	if err := bot.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer bot.Close(context.Background())

	bot.OnEvent(domain.NewTextEvent(domain.NewIdentity(42, 42), "/start"))

Sessions survive restarts when a store is configured with WithStore. The
adapters under pkg/adapters provide memory, file, bolt and redis stores, a
JavaScript evaluator, an HTTP API, a WebSocket stream and a console.
*/
package canopy
