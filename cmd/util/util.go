package util

import (
	"strings"
	"time"

	"github.com/ValentinKolb/sKV/lib/command"
	"github.com/ValentinKolb/sKV/lib/db/engines/grove"
	"github.com/ValentinKolb/sKV/lib/journal"
	"github.com/ValentinKolb/sKV/lib/shard"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitEnvConfig initializes configuration from environment variables.
// The format of the variables is SKV_<flag> (e.g. SKV_SHARDS=8).
func InitEnvConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("skv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupEngineFlags adds the engine configuration flags to a command
func SetupEngineFlags(cmd *cobra.Command) {
	key := "shards"
	cmd.PersistentFlags().Int(key, 0, WrapString("Number of engine shards (0 = number of CPUs)"))

	key = "gc-interval"
	cmd.PersistentFlags().Int(key, 100, WrapString("Idle interval between per-shard garbage collection sweeps (in milliseconds)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// NewShardSet builds a shard set from the viper configuration.
func NewShardSet(jrnl journal.Journal) *shard.ShardSet {
	return shard.NewShardSet(shard.Options{
		NumShards:    viper.GetInt("shards"),
		StoreFactory: grove.NewStore,
		Journal:      jrnl,
		GCInterval:   time.Duration(viper.GetInt("gc-interval")) * time.Millisecond,
	})
}

// NewRegistry builds the default command registry.
func NewRegistry() *command.Registry {
	return command.DefaultRegistry()
}
