package commands

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/kripika/tli-tracker/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tli-tracker %s (commit %s, built %s)\n", version, commit, date)
	},
}

var genTokenCmd = &cobra.Command{
	Use:   "gen-token",
	Short: "Generate a random API auth token",
	Long: `Generates a token suitable for server.auth_token in the config file
(or TLI_SERVER_AUTH_TOKEN). With a token set, every HTTP and WebSocket
request must present it.`,
	Run: func(cmd *cobra.Command, args []string) {
		token, err := config.GenerateToken()
		if err != nil {
			log.Fatalf("Failed to generate token: %v", err)
		}
		fmt.Println(token)
	},
}
