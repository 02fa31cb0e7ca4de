package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/pbrgen/internal/imageio"
	"github.com/MeKo-Tech/pbrgen/internal/naming"
	"github.com/MeKo-Tech/pbrgen/internal/pbr"
	"github.com/MeKo-Tech/pbrgen/internal/pipeline"
	"github.com/MeKo-Tech/pbrgen/internal/worker"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate PBR channels for a texture file or directory",
	Long: `Generate _Normal, _Metalness and _Roughness maps for a single base-color
file or for every base-color texture below a directory.

A single file is never renamed. In directory mode plain albedos are first
promoted to their canonical _Color name. Derived channels and _thumb files
are always skipped. One JSON report is printed to stdout when done.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringP("input", "i", "", "Input texture file or directory")
	generateCmd.Flags().IntP("workers", "w", 1, "Number of parallel workers")
	generateCmd.Flags().Bool("progress", false, "Show progress bar on stderr")
	generateCmd.Flags().Bool("allow-failures", true, "Exit successfully even if some sources fail (the report lists them)")
	generateCmd.Flags().String("color-mode", "move", "How plain albedos get their _Color name in directory mode (move, copy)")
	addChannelFlags(generateCmd)

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"generate.input", "input"},
		{"generate.workers", "workers"},
		{"generate.progress", "progress"},
		{"generate.allow_failures", "allow-failures"},
		{"generate.color_mode", "color-mode"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, generateCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
	bindChannelFlags(generateCmd, "generate")
}

// addChannelFlags registers the flags shared by every command that synthesizes channels.
func addChannelFlags(cmd *cobra.Command) {
	cmd.Flags().Int("res", pipeline.DefaultResolution, "Square resolution sources are resized to")
	cmd.Flags().String("channels", "normal,metalness,roughness", "Comma-separated channels to generate")
	cmd.Flags().String("format", "jpg", "Output format for derived channels (jpg, png)")
	cmd.Flags().Int("quality", imageio.DefaultJPEGQuality, "JPEG quality (1-100)")
	cmd.Flags().String("gradient", "sobel", "Normal map gradient operator (sobel, auto, none)")
	cmd.Flags().Int("normal-blue", pbr.DefaultNormalBlue, "Constant blue value of generated normal maps (0-255)")
}

func bindChannelFlags(cmd *cobra.Command, prefix string) {
	for _, bf := range []struct {
		key  string
		flag string
	}{
		{"resolution", "res"},
		{"channels", "channels"},
		{"format", "format"},
		{"quality", "quality"},
		{"gradient", "gradient"},
		{"normal_blue", "normal-blue"},
	} {
		if err := viper.BindPFlag(prefix+"."+bf.key, cmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// channelOptions reads the shared channel settings below prefix. The
// gradient capability is resolved here, once per process.
func channelOptions(prefix string) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()

	opts.Resolution = viper.GetInt(prefix + ".resolution")
	if opts.Resolution <= 0 {
		return opts, fmt.Errorf("resolution must be positive, got %d", opts.Resolution)
	}

	channels, err := parseChannels(viper.GetString(prefix + ".channels"))
	if err != nil {
		return opts, err
	}
	opts.Channels = channels

	format, err := imageio.ParseFormat(viper.GetString(prefix+".format"), viper.GetInt(prefix+".quality"))
	if err != nil {
		return opts, err
	}
	opts.Format = format

	blue := viper.GetInt(prefix + ".normal_blue")
	if blue < 0 || blue > 255 {
		return opts, fmt.Errorf("normal-blue must be within [0,255], got %d", blue)
	}

	gradient, err := pbr.LookupGradient(viper.GetString(prefix + ".gradient"))
	if err != nil {
		return opts, err
	}
	if gradient == nil {
		logger.Warn("Gradient operator unavailable; normal maps will be flat", "normal", pbr.FlatNormal)
	}
	opts.Normal = pbr.NormalOptions{Gradient: gradient, Blue: uint8(blue)}

	return opts, nil
}

// parseChannels parses a comma-separated channel list into canonical order.
func parseChannels(s string) ([]naming.Channel, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return naming.Channels, nil
	}

	if strings.Trim(s, ", ") == "" {
		return nil, fmt.Errorf("no channels selected")
	}

	channels, unknown := naming.SelectChannels(strings.Split(s, ","))
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown channel %q: must be normal, metalness or roughness", unknown[0])
	}
	return channels, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	input := viper.GetString("generate.input")
	if input == "" && len(args) > 0 {
		input = args[0]
	}
	workers := viper.GetInt("generate.workers")
	showProgress := viper.GetBool("generate.progress")
	allowFailures := viper.GetBool("generate.allow_failures")

	if logger == nil {
		initLogging()
	}

	if input == "" {
		return fmt.Errorf("--input is required")
	}

	opts, err := channelOptions("generate")
	if err != nil {
		return err
	}
	opts.ColorMode, err = pipeline.ParseColorMode(viper.GetString("generate.color_mode"))
	if err != nil {
		return err
	}

	plan, err := naming.Discover(input)
	if err != nil {
		return err
	}

	cat, err := openCatalog()
	if err != nil {
		return err
	}
	var recorder pipeline.Recorder
	if cat != nil {
		defer func() {
			if err := cat.Close(); err != nil {
				logger.Error("Failed to close catalog", "error", err)
			}
		}()
		recorder = cat
	}

	gen, err := pipeline.NewGenerator(opts, logger, recorder)
	if err != nil {
		return fmt.Errorf("failed to init generator: %w", err)
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received interrupt signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("Starting channel generation",
		"input", input,
		"mode", plan.Mode.String(),
		"sources", len(plan.Sources),
		"skipped", len(plan.Skipped),
		"resolution", opts.Resolution,
		"format", opts.Format.Name,
		"workers", workers,
	)

	progress := worker.NewProgress(len(plan.Sources), showProgress)
	progress.SetSkipped(len(plan.Skipped))

	report := gen.Run(ctx, plan, workers, progress.Callback())
	progress.Done()
	logger.Info(progress.Summary())

	enc := json.NewEncoder(cmd.OutOrStdout())
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if report.HasFailures() {
		if allowFailures {
			logger.Warn("Some sources failed to generate, but continuing due to --allow-failures flag", "failed_count", len(report.Failed))
		} else {
			return fmt.Errorf("%d sources failed to generate", len(report.Failed))
		}
	}

	return nil
}
