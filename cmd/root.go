package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/zoomstitch/internal/stitch"
	"github.com/kiesman99/zoomstitch/internal/stitcher"
	"github.com/kiesman99/zoomstitch/pkg/tile"
)

const version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zoomstitch [page-url]",
	Short: "Download the full-resolution image behind a museum artwork page",
	Long: `zoomstitch reads an artwork page, finds its deep-zoom image, downloads
every tile of that image in parallel and stitches them into one PNG.

Examples:
  # Stitch an artwork into a file
  zoomstitch https://collection.pushkinmuseum.art/en/entity/OBJECT/77609 -o artwork.png

  # Stitch a deep-zoom image directly, skipping the page
  zoomstitch --image-url https://collection.pushkinmuseum.art/images/77609.jpg -o artwork.png

  # Print the tile URLs without downloading them
  zoomstitch --dry-run https://collection.pushkinmuseum.art/en/entity/OBJECT/77609

  # Start HTTP server
  zoomstitch serve --port 8080`,
	Version: version,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// If nothing to stitch, show help
		if len(args) == 0 && viper.GetString("image-url") == "" {
			return cmd.Help()
		}
		return runStitch(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.zoomstitch.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")

	// Tile options, shared with serve
	rootCmd.PersistentFlags().IntP("tilesize", "t", tile.DefaultTileSize, "tile size in source pixels")
	rootCmd.PersistentFlags().Int("probe-size", tile.DefaultProbeSize, "size requested for the scale probe tile")

	// HTTP options, shared with serve
	rootCmd.PersistentFlags().IntP("concurrency", "c", 8, "maximum parallel tile downloads")
	rootCmd.PersistentFlags().Duration("tile-timeout", 30*time.Second, "timeout for a single tile download")
	rootCmd.PersistentFlags().Bool("insecure", false, "skip TLS certificate verification")
	rootCmd.PersistentFlags().String("user-agent", tile.DefaultUserAgent, "HTTP User-Agent header")
	rootCmd.PersistentFlags().Int64("max-pixels", 20000*20000, "largest composed image area in pixels (0 disables)")

	// Output options
	rootCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	rootCmd.Flags().String("image-url", "", "deep-zoom image URL to stitch instead of scraping a page")
	rootCmd.Flags().Bool("dry-run", false, "print tile URLs without downloading them")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("tile.size", rootCmd.PersistentFlags().Lookup("tilesize"))
	viper.BindPFlag("tile.probe-size", rootCmd.PersistentFlags().Lookup("probe-size"))
	viper.BindPFlag("fetch.concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("fetch.tile-timeout", rootCmd.PersistentFlags().Lookup("tile-timeout"))
	viper.BindPFlag("fetch.insecure", rootCmd.PersistentFlags().Lookup("insecure"))
	viper.BindPFlag("fetch.user-agent", rootCmd.PersistentFlags().Lookup("user-agent"))
	viper.BindPFlag("limits.max-pixels", rootCmd.PersistentFlags().Lookup("max-pixels"))
	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("image-url", rootCmd.Flags().Lookup("image-url"))
	viper.BindPFlag("dry-run", rootCmd.Flags().Lookup("dry-run"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".zoomstitch" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".zoomstitch")
	}

	// ZOOMSTITCH_FETCH_CONCURRENCY overrides fetch.concurrency
	viper.SetEnvPrefix("zoomstitch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	log.SetOutput(os.Stderr)
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.WithField("file", viper.ConfigFileUsed()).Debug("Using config file")
	}
}

// stitcherOptions collects the stitching settings from flags, environment and config file
func stitcherOptions() stitcher.Options {
	opts := stitcher.DefaultOptions()
	opts.TileSize = viper.GetInt("tile.size")
	opts.ProbeSize = viper.GetInt("tile.probe-size")
	opts.Concurrency = viper.GetInt("fetch.concurrency")
	opts.TileTimeout = viper.GetDuration("fetch.tile-timeout")
	opts.MaxPixels = viper.GetInt64("limits.max-pixels")
	opts.Transport.UserAgent = viper.GetString("fetch.user-agent")
	opts.Transport.InsecureSkipVerify = viper.GetBool("fetch.insecure")
	return opts
}

func runStitch(cmd *cobra.Command, args []string) error {
	opts := &stitch.Options{
		Output:   viper.GetString("output"),
		ImageURL: viper.GetString("image-url"),
		DryRun:   viper.GetBool("dry-run"),
		Stitcher: stitcherOptions(),
	}
	if opts.Output != "" {
		path, err := homedir.Expand(opts.Output)
		if err != nil {
			return fmt.Errorf("invalid output path %q: %w", opts.Output, err)
		}
		opts.Output = path
	}

	var pageURL string
	if len(args) > 0 {
		pageURL = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return stitch.NewRunner(opts).Run(ctx, pageURL)
}
