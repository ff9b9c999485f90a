// Package main provides the entry point for the previewcache CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/modshelf/previewcache/internal/cache"
	"github.com/modshelf/previewcache/internal/preview"
	"github.com/modshelf/previewcache/ui"
	"github.com/modshelf/previewcache/utils"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	showAllFiles bool
	mouse        bool
	thumbWidth   int
	thumbHeight  int
	cacheConfig  *cache.CacheConfig

	rootCmd = &cobra.Command{
		Use:   "previewcache [DIR]",
		Short: "Browse mod preview images through a bounded image cache",
		Long: paragraph(
			fmt.Sprintf("\nBrowse a library of mod preview images in the terminal, %s so the grid never decodes the same image twice.",
				keyword("with a two-tier in-memory cache")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveFilterDirs
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// validateOptions reads the effective configuration from viper. Bad cache
// capacities are not fatal: the tier runs unbounded and a warning is logged.
func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(utils.ExpandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	mouse = viper.GetBool("mouse")
	showAllFiles = viper.GetBool("all")
	thumbWidth = viper.GetInt("thumbnail.width")
	thumbHeight = viper.GetInt("thumbnail.height")

	if thumbWidth < 0 || thumbHeight < 0 {
		return fmt.Errorf("thumbnail size must not be negative, got %dx%d", thumbWidth, thumbHeight)
	}

	cacheConfig = loadCacheConfig()
	log.Debug("cache configuration",
		"asset", cache.FormatCapacity(cacheConfig.AssetCapacity),
		"fast_path", cache.FormatCapacity(cacheConfig.FastPathCapacity),
		"shards", cacheConfig.Shards)
	return nil
}

func loadCacheConfig() *cache.CacheConfig {
	cfg := cache.DefaultCacheConfig()
	cfg.AssetCapacity = capacityFromConfig("cache.asset.capacity")
	cfg.FastPathCapacity = capacityFromConfig("cache.fast_path.capacity")
	if shards := viper.GetInt("cache.shards"); shards > 0 {
		cfg.Shards = shards
	}
	return cfg
}

func capacityFromConfig(key string) int64 {
	raw := viper.GetString(key)
	capacity, ok := cache.ParseCapacity(raw)
	if !ok {
		log.Warn("Invalid cache capacity, running unbounded", "key", key, "value", raw)
	}
	return capacity
}

func execute(_ *cobra.Command, args []string) error {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}

	path, err := utils.AbsDir(dir)
	if err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("unable to open library: %w", err)
	}
	if !info.IsDir() {
		return errors.New(path + " is not a directory")
	}
	return runTUI(path)
}

func runTUI(path string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.Path = path
	cfg.ShowAllFiles = showAllFiles
	cfg.EnableMouse = mouse
	cfg.ThumbWidth = thumbWidth
	cfg.ThumbHeight = thumbHeight

	cm := cache.NewCacheManager(cacheConfig)
	loader := preview.NewLoader(cm, preview.WithThumbnailSize(thumbWidth, thumbHeight))

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, loader).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	stats := cm.Stats()
	log.Info("session finished",
		"asset_hit_rate", stats.Asset.HitRate,
		"fast_path_hit_rate", stats.FastPath.HitRate,
		"evictions", stats.Asset.Evictions+stats.FastPath.Evictions)
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVarP(&showAllFiles, "all", "a", false, "include hidden and git-ignored images")
	rootCmd.PersistentFlags().String("asset-capacity", "", `full image tier capacity, e.g. "256MB" or "unlimited"`)
	rootCmd.PersistentFlags().String("fast-path-capacity", "", `thumbnail tier capacity, e.g. "64MB" or "unlimited"`)
	rootCmd.PersistentFlags().IntVar(&thumbWidth, "thumb-width", 0, "thumbnail width in pixels")
	rootCmd.PersistentFlags().IntVar(&thumbHeight, "thumb-height", 0, "thumbnail height in pixels")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("all", rootCmd.PersistentFlags().Lookup("all"))
	_ = viper.BindPFlag("cache.asset.capacity", rootCmd.PersistentFlags().Lookup("asset-capacity"))
	_ = viper.BindPFlag("cache.fast_path.capacity", rootCmd.PersistentFlags().Lookup("fast-path-capacity"))
	_ = viper.BindPFlag("thumbnail.width", rootCmd.PersistentFlags().Lookup("thumb-width"))
	_ = viper.BindPFlag("thumbnail.height", rootCmd.PersistentFlags().Lookup("thumb-height"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	viper.SetDefault("cache.asset.capacity", "256MB")
	viper.SetDefault("cache.fast_path.capacity", "64MB")
	viper.SetDefault("cache.shards", 16)
	viper.SetDefault("thumbnail.width", preview.DefaultThumbWidth)
	viper.SetDefault("thumbnail.height", preview.DefaultThumbHeight)
	viper.SetDefault("all", false)

	rootCmd.AddCommand(configCmd, manCmd, warmCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "previewcache")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "previewcache")}, dirs...)
	}

	if c := os.Getenv("PREVIEWCACHE_CONFIG_HOME"); c != "" {
		dirs = append([]string{utils.ExpandPath(c)}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("previewcache")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("previewcache")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "previewcache.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
