package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/canopy/internal/presentation/graph"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopRoot(t *testing.T) *domain.Element {
	t.Helper()
	root, err := dsl.Root(
		dsl.Tree("shop").Commands("/shop").Controller("cart").Branches(
			dsl.Branch("buy").Keys("buy").Callbacks("buy_now").Branches(
				dsl.Branch("confirm").Keys("ok").Back("shop"),
			),
			dsl.Branch("leave").Keys("bye").Jump("goodbye"),
			dsl.Branch("ask").When(domain.Expr(`text.indexOf("?") >= 0`)),
		),
		dsl.Tree("goodbye").Branches(dsl.Branch("done").Caller()),
	).Build()
	require.NoError(t, err)
	return root
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(shopRoot(t), nil)

	for _, want := range []string{
		"graph TD",
		`shop(("shop <br/> cart"))`,
		`goodbye(("goodbye"))`,
		`shop__buy["buy"]`,
		`shop__buy__confirm[["confirm"]]`,
		`shop -- "buy | cb:buy_now" --> shop__buy`,
		`shop__buy -- "ok" --> shop__buy__confirm`,
		`shop__buy__confirm -. "back" .-> shop`,
		`shop__leave -. "jump" .-> goodbye`,
		`goodbye__done -. "caller" .-> caller`,
		`shop -- "text.indexOf('?') >= 0" --> shop__ask`,
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "classDef")
	assert.NotContains(t, out, "root", "the root element is not drawn")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(shopRoot(t), &graph.Overlay{Stack: []string{"shop", "shop/buy"}})

	assert.Contains(t, out, "class shop open;")
	assert.Contains(t, out, "class shop__buy current;")
	assert.Equal(t, 1, strings.Count(out, "current;"))
}
