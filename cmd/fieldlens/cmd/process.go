package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fieldlens-tech/fieldlens/internal/storage"
	"github.com/fieldlens-tech/fieldlens/internal/store"
	"github.com/fieldlens-tech/fieldlens/internal/worker"
	"github.com/spf13/cobra"
)

// processCmd represents the process command.
var processCmd = &cobra.Command{
	Use:   "process <document-id>",
	Short: "Run field detection for a stored document",
	Long: `Run field detection for a document registered in the database.

The document is claimed with a conditional status update, its file is
downloaded from object storage, the detection pipeline runs, and the
resulting field regions replace any previous ones. A document already
being processed by another worker is reported as skipped.

The command prints a JSON summary and exits 0 on success or skip, 1 on
failure. It is intended to be invoked by a queue consumer with one
document per invocation.

Examples:
  fieldlens process 6d1f9a2e-8c3b-4f7a-9b1e-2a5c8d0e4f6b
  fieldlens process 6d1f9a2e-8c3b-4f7a-9b1e-2a5c8d0e4f6b --force --no-vision`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().Bool("force", false, "reprocess even if the document is already ready")
	processCmd.Flags().Bool("debug", false, "enable debug logging for this run")
	processCmd.Flags().Float64("dpi", 0, "render resolution for the geometric pass (0=config default)")
	processCmd.Flags().Float64("iou", 0, "IoU threshold for merging overlapping detections (0=config default)")
	processCmd.Flags().Bool("no-vision", false, "disable the vision detection pass")
	processCmd.Flags().String("vision-provider", "", "vision provider (openai, gemini)")
	processCmd.Flags().Bool("text-filter", false, "suppress detections that overlap printed text")
}

// skipResult is printed when another worker already holds the document.
type skipResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
}

// runProcess handles the main processing logic.
func runProcess(cmd *cobra.Command, args []string) error {
	documentID := args[0]
	cfg := GetConfig()

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if cfg.Database.URL == "" {
		return errors.New("database.url is required (set FIELDLENS_DATABASE_URL or database.url in the config file)")
	}

	ctx := cmd.Context()

	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = st.Close() }()

	files, err := storage.New(ctx, cfg.ToStorageConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	pipe := detectionPipelineFromConfig(cfg, cmd)
	processor := worker.NewProcessor(st, st, files, pipe)

	force, _ := cmd.Flags().GetBool("force")
	result, err := processor.ProcessDocument(ctx, documentID, force)
	if errors.Is(err, store.ErrAlreadyClaimed) {
		// Another worker holds the claim. Not an error for the caller.
		return printProcessJSON(cmd, skipResult{
			DocumentID: documentID,
			Status:     "skipped",
			Reason:     "document is already being processed",
		})
	}
	if err != nil {
		return err
	}

	return printProcessJSON(cmd, result)
}

// printProcessJSON writes the run summary as indented JSON.
func printProcessJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
