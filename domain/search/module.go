package search

import (
	"go.uber.org/fx"
)

// Module provides the search index writer via fx
var Module = fx.Module("search",
	fx.Provide(
		NewWriter,
	),
)
