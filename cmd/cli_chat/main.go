package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cli_chat",
	Short: "Interactive chat against the localchat API",
	Long: `Log into the localchat API and chat from the terminal.

Commands inside the session:
  /rag <question>   ask the document index
  /docs             list indexed documents
  /upload <path>    upload a document
  /quit             exit

Ctrl-C while an answer is streaming stops that answer.`,
	RunE:         runChat,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().String("server", envOr("LOCALCHAT_SERVER", "http://localhost:8080"), "API base URL")
	rootCmd.Flags().StringP("username", "u", os.Getenv("LOCALCHAT_USERNAME"), "username")
	rootCmd.Flags().StringP("password", "p", os.Getenv("LOCALCHAT_PASSWORD"), "password")
	rootCmd.Flags().Bool("register", false, "register the user before logging in")
	rootCmd.Flags().Duration("pacing", 0, "delay between streamed fragments (typewriter effect)")
	rootCmd.Flags().String("rag-prefix", "/api/rag", "path where the API mounts the retrieval proxy")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
