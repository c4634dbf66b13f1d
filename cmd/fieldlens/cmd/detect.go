package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fieldlens-tech/fieldlens/internal/config"
	"github.com/fieldlens-tech/fieldlens/internal/field"
	"github.com/fieldlens-tech/fieldlens/internal/pipeline"
	"github.com/fieldlens-tech/fieldlens/internal/vision"
	"github.com/spf13/cobra"
)

// detectCmd represents the detect command.
var detectCmd = &cobra.Command{
	Use:   "detect [file...]",
	Short: "Detect form fields in PDF files",
	Long: `Detect form fields in PDF files and print the merged field list.

This command runs the full detection pipeline directly on local files,
without touching the database or object storage. Native AcroForm widgets
and geometric candidates are always collected; the vision pass runs only
when a provider API key is configured.

Examples:
  fieldlens detect form.pdf
  fieldlens detect *.pdf --format text
  fieldlens detect form.pdf --no-vision --output fields.json`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringP("format", "f", "json", "output format (json, text, csv)")
	detectCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	detectCmd.Flags().Float64("dpi", 0, "render resolution for the geometric pass (0=config default)")
	detectCmd.Flags().Float64("iou", 0, "IoU threshold for merging overlapping detections (0=config default)")
	detectCmd.Flags().Bool("no-vision", false, "disable the vision detection pass")
	detectCmd.Flags().String("vision-provider", "", "vision provider (openai, gemini)")
	detectCmd.Flags().Bool("text-filter", false, "suppress detections that overlap printed text")
}

// detectConfig holds the output options for a detect run.
type detectConfig struct {
	format     string
	outputFile string
}

// configToDetectConfig maps flags to the detect output configuration.
func configToDetectConfig(cmd *cobra.Command) (*detectConfig, error) {
	cfg := &detectConfig{}
	cfg.format, _ = cmd.Flags().GetString("format")
	cfg.outputFile, _ = cmd.Flags().GetString("output")

	validFormats := []string{"json", "text", "csv"}
	for _, f := range validFormats {
		if cfg.format == f {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("invalid output format: %s (must be one of: %s)",
		cfg.format, strings.Join(validFormats, ", "))
}

// detectionPipelineFromConfig builds a pipeline from the centralized
// configuration with CLI flag overrides applied. The detect, process and
// serve commands share the same override flags.
func detectionPipelineFromConfig(centralCfg *config.Config, cmd *cobra.Command) *pipeline.Pipeline {
	pCfg := centralCfg.ToPipelineConfig()

	if cmd.Flags().Changed("dpi") {
		if dpi, _ := cmd.Flags().GetFloat64("dpi"); dpi > 0 {
			pCfg.RenderDPI = dpi
		}
	}
	if cmd.Flags().Changed("iou") {
		if iou, _ := cmd.Flags().GetFloat64("iou"); iou > 0 {
			pCfg.Merger.IoUThreshold = iou
		}
	}
	if cmd.Flags().Changed("vision-provider") {
		provider, _ := cmd.Flags().GetString("vision-provider")
		if provider != "" && provider != pCfg.Vision.Provider {
			pCfg.Vision.Provider = provider
			// A provider switch invalidates the resolved key
			pCfg.Vision.APIKey = visionKeyFor(provider)
		}
	}
	if noVision, _ := cmd.Flags().GetBool("no-vision"); noVision {
		pCfg.Vision.APIKey = ""
	}
	if cmd.Flags().Changed("text-filter") {
		pCfg.EnableTextFilter, _ = cmd.Flags().GetBool("text-filter")
	}

	return pipeline.New(pCfg)
}

// visionKeyFor returns the provider-native API key from the environment.
func visionKeyFor(provider string) string {
	switch provider {
	case vision.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case vision.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

// detectResult holds the detection output for a single file.
type detectResult struct {
	File           string            `json:"file"`
	PageCount      int               `json:"page_count"`
	AcroForm       bool              `json:"acroform"`
	FieldsFound    int               `json:"fields_found"`
	FieldsBySource map[string]int    `json:"fields_by_source"`
	TotalTimeMs    int64             `json:"total_time_ms"`
	Fields         []field.Detection `json:"fields"`
}

// runDetect handles the main detection logic.
func runDetect(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("no input files provided")
	}

	centralCfg := GetConfig()

	cfg, err := configToDetectConfig(cmd)
	if err != nil {
		return err
	}

	pipe := detectionPipelineFromConfig(centralCfg, cmd)

	results := make([]*detectResult, 0, len(args))
	for _, file := range args {
		res, err := detectFile(cmd.Context(), pipe, file)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	return outputDetections(cmd, results, cfg.format, cfg.outputFile)
}

// detectFile runs the pipeline on one file and summarizes the result.
func detectFile(ctx context.Context, pipe *pipeline.Pipeline, path string) (*detectResult, error) {
	documentID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	detected, err := pipe.Detect(ctx, path, documentID)
	if err != nil {
		return nil, err
	}

	res := &detectResult{
		File:           path,
		PageCount:      detected.PageCount,
		AcroForm:       detected.BySource[field.SourceStructure] > 0,
		FieldsFound:    len(detected.Fields),
		FieldsBySource: make(map[string]int, len(detected.BySource)),
		TotalTimeMs:    detected.Timings.Total.Milliseconds(),
		Fields:         detected.Fields,
	}
	for src, n := range detected.BySource {
		res.FieldsBySource[string(src)] = n
	}
	return res, nil
}

// outputDetections formats and outputs the detection results.
func outputDetections(_ *cobra.Command, results []*detectResult, format, outputFile string) error {
	var output string
	var err error

	switch format {
	case "text":
		output = formatDetectionsText(results)
	case "csv":
		output = formatDetectionsCSV(results)
	default: // json
		output, err = formatDetectionsJSON(results)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
	}

	// Write to file or stdout
	if outputFile != "" {
		err = os.WriteFile(outputFile, []byte(output), 0o600)
		if err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Printf("Results written to %s\n", outputFile)
	} else {
		fmt.Print(output)
	}

	return nil
}

// formatDetectionsJSON formats results as JSON.
func formatDetectionsJSON(results []*detectResult) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// formatDetectionsText formats results as plain text.
func formatDetectionsText(results []*detectResult) string {
	var output string

	for _, res := range results {
		output += fmt.Sprintf("File: %s\n", res.File)
		output += fmt.Sprintf("Pages: %d\n", res.PageCount)
		output += fmt.Sprintf("AcroForm: %v\n", res.AcroForm)
		output += fmt.Sprintf("Fields: %d\n\n", res.FieldsFound)

		lastPage := -1
		for i, det := range res.Fields {
			if det.PageIndex != lastPage {
				output += fmt.Sprintf("Page %d:\n", det.PageIndex)
				lastPage = det.PageIndex
			}
			output += fmt.Sprintf("  #%d %s %q box=(%.3f,%.3f %.3fx%.3f) conf=%.3f source=%s\n",
				i+1, det.FieldType, det.Label,
				det.BBox.X, det.BBox.Y, det.BBox.Width, det.BBox.Height,
				det.Confidence, det.Source)
		}
		output += "---\n\n"
	}

	return output
}

// formatDetectionsCSV formats results as CSV.
func formatDetectionsCSV(results []*detectResult) string {
	var records [][]string

	// Header
	records = append(records, []string{
		"File", "Page", "Type", "Label", "X", "Y", "Width", "Height", "Confidence", "Source",
	})

	for _, res := range results {
		for _, det := range res.Fields {
			records = append(records, []string{
				res.File,
				strconv.Itoa(det.PageIndex),
				string(det.FieldType),
				det.Label,
				strconv.FormatFloat(det.BBox.X, 'f', 4, 64),
				strconv.FormatFloat(det.BBox.Y, 'f', 4, 64),
				strconv.FormatFloat(det.BBox.Width, 'f', 4, 64),
				strconv.FormatFloat(det.BBox.Height, 'f', 4, 64),
				strconv.FormatFloat(det.Confidence, 'f', 3, 64),
				string(det.Source),
			})
		}
	}

	var csvOutput string
	for _, record := range records {
		for i, col := range record {
			if i > 0 {
				csvOutput += ","
			}
			// Quote fields that might contain commas or quotes
			if containsCSVSpecialChar(col) {
				csvOutput += `"` + strings.ReplaceAll(col, `"`, `""`) + `"`
			} else {
				csvOutput += col
			}
		}
		csvOutput += "\n"
	}

	return csvOutput
}

// containsCSVSpecialChar checks if a field needs CSV quoting.
func containsCSVSpecialChar(col string) bool {
	for _, char := range col {
		if char == ',' || char == '"' || char == '\n' || char == '\r' {
			return true
		}
	}
	return false
}
