/*
Package dsl provides a Go DSL for programmatically constructing canopy conversation hierarchies.

It is the code-first alternative to the YAML documents read by pkg/loader: a
fluent builder produces the same linked domain.Element tree, validated by
domain.Link when the root is built. It is particularly useful for tests and
for bots whose predicates are Go functions rather than expressions.

Example usage:

	root, err := dsl.Root(
		dsl.Tree("greet").
			Commands("/start").
			Send("hello", domain.Const("Hi! Continue?")).
			Branches(
				dsl.Branch("yes").Keys("yes").Send("ok", domain.Const("Great")),
				dsl.Branch("no").Keys("no").Jump("bye"),
			),
		dsl.Tree("bye").Send("bye", domain.Const("Goodbye")),
	).Build()
*/
package dsl
