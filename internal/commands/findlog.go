package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kripika/tli-tracker/internal/gamelog"
)

var findLogCmd = &cobra.Command{
	Use:   "find-log",
	Short: "Locate the game's UE_game.log",
	Long: `Searches the running game process and the usual install locations
for UE_game.log and prints the path found.`,
	Run: func(cmd *cobra.Command, args []string) {
		path, ok := gamelog.Discover()
		if !ok {
			fmt.Fprintln(os.Stderr, "No game log found. Is Torchlight: Infinite installed?")
			os.Exit(1)
		}
		fmt.Println(path)
	},
}
