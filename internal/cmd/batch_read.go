package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// batchReadEntry is one file in the batch-read result. A file that
// could not be read carries its error and no content.
type batchReadEntry struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Error   string `json:"error,omitempty"`
}

var batchReadCmd = &cobra.Command{
	Use:   "batch-read <file>...",
	Short: "Read several files in one call",
	Long: `Read the named files and emit one JSON array of their contents.

Unreadable files are reported per entry rather than failing the whole
batch, so a caller can hand the result straight to the assistant.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatchRead,
}

func init() {
	rootCmd.AddCommand(batchReadCmd)
}

func runBatchRead(cmd *cobra.Command, args []string) error {
	entries := make([]batchReadEntry, 0, len(args))
	for _, path := range args {
		entry := batchReadEntry{Path: path}
		data, err := os.ReadFile(path)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Content = string(data)
			entry.Size = int64(len(data))
		}
		entries = append(entries, entry)
	}
	return emitJSON(entries)
}
