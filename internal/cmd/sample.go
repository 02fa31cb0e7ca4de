package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/pbrgen/internal/imageio"
	"github.com/MeKo-Tech/pbrgen/internal/texture"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write procedural base-color textures",
	Long: `Write deterministic procedural albedo textures for trying out the
channel generators. Each preset is written as <dir>/<preset>.<format>.`,
	RunE: runSample,
}

func init() {
	rootCmd.AddCommand(sampleCmd)

	sampleCmd.Flags().String("dir", "./materials", "Output directory")
	sampleCmd.Flags().String("presets", strings.Join(texture.PresetNames(), ","), "Comma-separated presets to write")
	sampleCmd.Flags().Int("size", 512, "Texture size in pixels (square)")
	sampleCmd.Flags().Int64("seed", 1337, "Deterministic seed")
	sampleCmd.Flags().String("format", "png", "Output format (png, jpg)")
	sampleCmd.Flags().Bool("force", false, "Overwrite samples that already exist")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"sample.dir", "dir"},
		{"sample.presets", "presets"},
		{"sample.size", "size"},
		{"sample.seed", "seed"},
		{"sample.format", "format"},
		{"sample.force", "force"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, sampleCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runSample(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	dir := viper.GetString("sample.dir")
	size := viper.GetInt("sample.size")
	seed := viper.GetInt64("sample.seed")
	force := viper.GetBool("sample.force")

	if size <= 0 {
		return fmt.Errorf("size must be positive")
	}
	format, err := imageio.ParseFormat(viper.GetString("sample.format"), imageio.DefaultJPEGQuality)
	if err != nil {
		return err
	}

	var written, skipped int
	for i, name := range strings.Split(viper.GetString("sample.presets"), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		params, err := texture.DefaultParams(name, size, seed+int64(i)*1000)
		if err != nil {
			return fmt.Errorf("%w (available: %s)", err, strings.Join(texture.PresetNames(), ", "))
		}

		path := filepath.Join(dir, name+format.Ext)
		if err := texture.WriteSample(path, params, format, force); err != nil {
			if errors.Is(err, texture.ErrExists) {
				logger.Info("Sample exists; skipping", "path", path)
				skipped++
				continue
			}
			return err
		}
		logger.Debug("Wrote sample", "path", path, "preset", name)
		written++
	}

	logger.Info("Sample generation complete",
		"dir", dir,
		"written", written,
		"skipped", skipped,
	)
	return nil
}
