package cli

import (
	"fmt"
	"text/tabwriter"

	"realmkeeper/internal/config"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(duplicatesCmd)
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Report activity and level rows that share a key",
	Long: `Scan for activity records sharing (guild, user, day) and level states
sharing (guild, user). With the unique constraints in place the report is
normally empty; it is useful after importing data from another store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWithoutToken()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		dups, err := store.Duplicates(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(dups) == 0 {
			fmt.Fprintln(out, "no duplicates found")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tGUILD\tUSER\tDAY\tCOUNT")
		for _, d := range dups {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", d.Table, d.GuildID, d.UserID, d.Day, d.Count)
		}
		return w.Flush()
	},
}
