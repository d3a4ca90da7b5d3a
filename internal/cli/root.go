package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "realmkeeper",
	Short: "Community Discord bot: leveling, activity ranks, RealmWar and giveaways",
	Long: `realmkeeper tracks member activity and XP, assigns level and weekly
activity-rank roles, runs RealmWar elimination matches and hosts giveaways.
Configuration is read from CONFIG_PATH (yaml or toml), .env and the environment.
Running without a subcommand starts the bot.`,
	SilenceUsage: true,
	RunE:         runBot,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
