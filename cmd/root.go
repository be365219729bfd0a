package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-registry",
	Short: "An identity matching and deduplication engine for face embeddings",
	Long: `Face Registry maintains a corpus of face embeddings split across two
registries: unidentified persons awaiting identification and known
identities. It matches new faces against the corpus, keeps a symmetric
ledger of match evidence and refuses to enroll the same face twice.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
