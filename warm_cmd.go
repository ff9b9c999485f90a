package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/modshelf/previewcache/internal/cache"
	"github.com/modshelf/previewcache/internal/library"
	"github.com/modshelf/previewcache/internal/preview"
	"github.com/modshelf/previewcache/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var (
	warmPasses int
	warmJobs   int
	warmStyle  string
	warmWidth  int

	warmCmd = &cobra.Command{
		Use:   "warm DIR",
		Short: "Decode a library through the cache and report statistics",
		Long: paragraph(fmt.Sprintf("\n%s every preview image in DIR through the cache, simulating a number of grid render passes, then print hit rates, sizes and evictions per tier.",
			keyword("Decode"))),
		Example: paragraph("previewcache warm ~/mods\npreviewcache warm ~/mods --passes 5 --fast-path-capacity 8MB"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := utils.AbsDir(args[0])
			if err != nil {
				return fmt.Errorf("unable to get absolute path: %w", err)
			}

			style, width := reportStyle(cmd, warmStyle, warmWidth)
			res, err := warmLibrary(cmd.Context(), warmOptions{
				dir:    dir,
				all:    showAllFiles,
				passes: warmPasses,
				jobs:   warmJobs,
				width:  thumbWidth,
				height: thumbHeight,
				cache:  cacheConfig,
			})
			if err != nil {
				return err
			}

			out, err := renderReport(res.markdown(), style, width)
			if err != nil {
				return err
			}
			return writeReport(os.Stdout, out)
		},
	}
)

func init() {
	warmCmd.Flags().IntVarP(&warmPasses, "passes", "p", 3, "number of simulated render passes")
	warmCmd.Flags().IntVarP(&warmJobs, "jobs", "j", runtime.NumCPU(), "concurrent decoders")
	warmCmd.Flags().StringVarP(&warmStyle, "style", "s", styles.AutoStyle, "report style name or JSON path")
	warmCmd.Flags().IntVarP(&warmWidth, "width", "w", 0, "word-wrap the report at width")
}

type warmOptions struct {
	dir    string
	all    bool
	passes int
	jobs   int
	width  int
	height int
	cache  *cache.CacheConfig
}

// passResult describes one render pass over the library.
type passResult struct {
	duration time.Duration
	decodes  int64
	failures int64
	stats    cache.ManagerStats
}

type warmResult struct {
	dir    string
	images int
	jobs   int
	passes []passResult
	final  cache.ManagerStats
}

// warmLibrary requests the thumbnail of every image in the library once per
// pass. The first pass decodes, later passes show how much the cache keeps.
func warmLibrary(ctx context.Context, opts warmOptions) (*warmResult, error) {
	if opts.passes < 1 {
		opts.passes = 1
	}
	if opts.jobs < 1 {
		opts.jobs = 1
	}

	items, err := library.Collect(opts.dir, opts.all)
	if err != nil {
		return nil, err
	}
	log.Info("warming cache", "dir", opts.dir, "images", len(items), "passes", opts.passes, "jobs", opts.jobs)

	var decodes atomic.Int64
	cm := cache.NewCacheManager(opts.cache)
	loader := preview.NewLoader(cm,
		preview.WithThumbnailSize(opts.width, opts.height),
		preview.WithDecoder(func(path string) (*preview.Bitmap, error) {
			decodes.Add(1)
			return preview.Decode(path)
		}),
	)

	res := &warmResult{dir: opts.dir, images: len(items), jobs: opts.jobs}
	for i := 0; i < opts.passes; i++ {
		before := decodes.Load()
		start := time.Now()

		failures, err := warmPass(ctx, loader, items, opts.jobs)
		if err != nil {
			return nil, err
		}

		res.passes = append(res.passes, passResult{
			duration: time.Since(start),
			decodes:  decodes.Load() - before,
			failures: failures,
			stats:    cm.Stats(),
		})
		log.Debug("pass finished", "pass", i+1, "decodes", decodes.Load()-before, "failures", failures)
	}
	res.final = cm.Stats()
	return res, nil
}

func warmPass(ctx context.Context, loader *preview.Loader, items []library.Item, jobs int) (int64, error) {
	var failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err //nolint:wrapcheck
			}
			if _, err := loader.Thumbnail(item.Asset(), item.ID); err != nil {
				// Undecodable files are reported, not fatal.
				log.Debug("unable to load thumbnail", "path", item.Path, "error", err)
				failures.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return 0, fmt.Errorf("warm pass interrupted: %w", err)
	}
	return failures.Load(), nil
}

func (r *warmResult) markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Cache warm report\n\n")
	fmt.Fprintf(&b, "Library `%s`: %s images, %d passes, %d workers.\n\n",
		r.dir, humanize.Comma(int64(r.images)), len(r.passes), r.jobs)

	fmt.Fprintf(&b, "## Passes\n\n")
	fmt.Fprintf(&b, "| Pass | Time | Decodes | Failures | Fast-path hit rate |\n")
	fmt.Fprintf(&b, "|---:|---:|---:|---:|---:|\n")
	for i, p := range r.passes {
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %.1f%% |\n",
			i+1, p.duration.Round(time.Millisecond), p.decodes, p.failures, p.stats.FastPath.HitRate*100)
	}

	fmt.Fprintf(&b, "\n## Tiers\n\n")
	fmt.Fprintf(&b, "| Tier | Items | Size | Capacity | Hits | Misses | Evictions | Hit rate |\n")
	fmt.Fprintf(&b, "|---|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, t := range []struct {
		tier  cache.Tier
		stats cache.TierStats
	}{
		{cache.TierAsset, r.final.Asset},
		{cache.TierFastPath, r.final.FastPath},
	} {
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %d | %d | %d | %.1f%% |\n",
			t.tier,
			t.stats.ItemCount,
			humanize.Bytes(uint64(max(t.stats.Size, 0))), //nolint:gosec
			cache.FormatCapacity(t.stats.Capacity),
			t.stats.Hits,
			t.stats.Misses,
			t.stats.Evictions,
			t.stats.HitRate*100,
		)
	}
	return b.String()
}

// reportStyle picks the glamour style and wrap width for stdout: a plain
// style when stdout is not a terminal, and the terminal width capped at 120.
func reportStyle(cmd *cobra.Command, style string, width int) (string, int) {
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if !isTerminal && !cmd.Flags().Changed("style") {
		style = styles.NoTTYStyle
	}

	if width == 0 && isTerminal {
		w, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err == nil {
			width = min(w, 120)
		}
	}
	if width == 0 {
		width = 80
	}
	return style, width
}

func renderReport(md, style string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		utils.GlamourStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}

	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("unable to render report: %w", err)
	}
	return out, nil
}

func writeReport(w io.Writer, out string) error {
	if _, err := fmt.Fprint(w, out); err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	return nil
}
