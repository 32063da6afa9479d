// Command moexfolio tracks a personal MOEX share portfolio. It values the trade ledger against
// the last trading session and reports to the owner's Telegram chat.
//
// Usage:
//
//	moexfolio serve --config config.yaml
//	moexfolio import --config config.yaml trades.json
//	moexfolio report --config config.yaml
//	moexfolio setup
//	moexfolio token --config config.yaml
//
// Required environment variables (also read from .env):
//
//	TELEGRAM_API_TOKEN, MY_TELEGRAM_ID, TOTAL_INVESTMENTS
//	MONGODB_URI for the mongo store
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "")
	}

	if len(os.Args) < 2 {
		_ = flag.CommandLine.Parse([]string{"serve"})
	} else {
		flag.Parse()
	}
	os.Exit(int(commander.Execute(context.Background())))
}
