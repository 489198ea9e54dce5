// Command spatialbin aggregates GeoJSON features into circular bins.
//
// Usage:
//
//	spatialbin circular --input parcels.geojson --output bins.geojson --radius 250
//	spatialbin circular --input trips.geojson --sqlite out.db --table trips \
//	    --extent 126.8,37.4,127.2,37.7 --extent-crs EPSG:4326 --weight @riders
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/beetlebugorg/spatialbin/pkg/binning"
	"github.com/beetlebugorg/spatialbin/pkg/featureio"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "spatialbin",
		Short:         "Aggregate vector features into a lattice of circular bins",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default ./spatialbin.yaml if present)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "console", "log format: json, console")

	root.AddCommand(newCircularCmd())
	return root
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"input":         "input",
	"crs":           "crs",
	"output":        "output",
	"sqlite":        "sqlite",
	"table":         "table",
	"extent":        "extent",
	"extent-crs":    "extent_crs",
	"radius":        "radius",
	"weight":        "weight",
	"include-empty": "include_empty",
	"metrics-file":  "metrics_file",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

func newCircularCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circular",
		Short: "Bin features by circles of equal radius",
		Long: `Covers the analysis extent with packed circles, adds each input feature's
weight to every circle it touches, and writes the circles as polygons with
fields uid, val and count. Output is written atomically: a failed run leaves
no partial output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			for flag, key := range flagKeys {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return errors.Wrapf(err, "bind flag %s", flag)
				}
			}
			configFile, _ := cmd.Flags().GetString("config")

			cfg, err := loadConfig(v, configFile)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			return runCircular(cmd.Context(), cfg, log, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("input", "", "input GeoJSON FeatureCollection")
	f.String("crs", "", "CRS of the input, overriding the file's crs member")
	f.String("output", "", "output GeoJSON file")
	f.String("sqlite", "", "output SQLite database")
	f.String("table", "bins", "output table in the SQLite database")
	f.String("extent", "", "analysis extent minx,miny,maxx,maxy (default: input extent)")
	f.String("extent-crs", "", "CRS of the extent (default: input CRS)")
	f.Float64("radius", 0, "bin radius in extent units (default: min(width, height) / 20)")
	f.String("weight", "", "weight expression, e.g. @population (default: count features)")
	f.Bool("include-empty", false, "emit bins no feature touches")
	f.String("metrics-file", "", "write Prometheus metrics to this file after the run")

	return cmd
}

func runCircular(ctx context.Context, cfg *Config, log *zap.Logger, out io.Writer) (err error) {
	src, err := featureio.OpenGeoJSON(cfg.Input, cfg.CRS)
	if err != nil {
		return err
	}
	defer src.Close()

	var store binning.Store
	if cfg.SQLite != "" {
		db, err := featureio.OpenSQLite(cfg.SQLite, cfg.Table)
		if err != nil {
			return err
		}
		defer db.Close()
		store = db
	} else {
		store = featureio.NewGeoJSONFileStore(cfg.Output)
	}

	reg := prometheus.NewRegistry()
	engineOpts := cfg.EngineOptions()
	engineOpts.Logger = log
	engineOpts.Metrics = binning.NewMetrics(reg)
	engine := binning.NewEngine(engineOpts)

	if cfg.MetricsFile != "" {
		defer func() {
			if werr := prometheus.WriteToTextfile(cfg.MetricsFile, reg); werr != nil {
				err = errors.CombineErrors(err, errors.Wrap(werr, "write metrics"))
			}
		}()
	}

	opts := cfg.Options()
	opts.ProgressInterval = 10000
	opts.Progress = func(read int) {
		log.Info("progress", zap.Int("features", read))
	}

	result, err := engine.Run(ctx, src, store, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run %s\n", result.RunID)
	fmt.Fprintf(out, "  radius:   %g\n", result.Radius)
	fmt.Fprintf(out, "  extent:   %g,%g,%g,%g %s\n",
		result.Extent.MinX, result.Extent.MinY, result.Extent.MaxX, result.Extent.MaxY, result.Extent.CRS)
	fmt.Fprintf(out, "  features: %d read, %d binned, %d weight errors\n",
		result.FeaturesRead, result.FeaturesBinned, result.WeightErrors)
	fmt.Fprintf(out, "  bins:     %d emitted of %d in %s\n",
		result.Emitted, result.Bins, result.Elapsed.Round(time.Millisecond))
	return nil
}
