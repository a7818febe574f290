package bitrix

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module(
		"bitrix",
		fx.Provide(NewClient),
	)
}
