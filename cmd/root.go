package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chatgw",
	Short: "chatgw bridges Amazon Connect chat with SMS and social messaging channels",
	Long: `chatgw receives customer messages from SMS, Facebook, WhatsApp, Instagram,
Zalo and WeChat, forwards them into Amazon Connect chats, and relays agent
replies back to the customer's channel.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CHATGW_CONFIG or chatgw.yaml)")
}
