package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ctessum/geom"

	"github.com/beetlebugorg/spatialbin/pkg/binning"
	"github.com/beetlebugorg/spatialbin/pkg/featureio"
)

func describe(err error) string {
	var (
		cfgErr    *binning.ConfigurationError
		crsErr    *binning.CoordinateSystemError
		inputErr  *binning.InputError
		emitErr   *binning.EmissionError
		cancelErr *binning.CancelledError
	)
	switch {
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("configuration problem with %s: %s", cfgErr.Field, cfgErr.Reason)
	case errors.As(err, &crsErr):
		return fmt.Sprintf("cannot transform %q to %q", crsErr.Source, crsErr.Target)
	case errors.As(err, &inputErr):
		return fmt.Sprintf("input failed at feature %d", inputErr.Feature)
	case errors.As(err, &emitErr):
		return fmt.Sprintf("output failed at bin %d, rolled back", emitErr.BinID)
	case errors.As(err, &cancelErr):
		return fmt.Sprintf("cancelled after %d features, rolled back", cancelErr.Read)
	default:
		return err.Error()
	}
}

func main() {
	engine := binning.NewEngine(binning.DefaultEngineOptions())
	store := featureio.NewMemoryStore()
	point := binning.NewFeature(geom.Point{X: 5, Y: 5}, map[string]interface{}{"w": "n/a"})

	// No extent given and none derivable: an empty source has no bounds.
	_, err := engine.Run(context.Background(), featureio.NewMemorySource(""), store.Layer("a"), binning.DefaultOptions())
	log.Printf("Expected error: %s", describe(err))

	// Unknown analysis CRS
	opts := binning.DefaultOptions()
	opts.Extent = &binning.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, CRS: "EPSG:1"}
	_, err = engine.Run(context.Background(), featureio.NewMemorySource("EPSG:4326", point), store.Layer("b"), opts)
	log.Printf("Expected error: %s", describe(err))

	// Cancelled before the first feature
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts = binning.DefaultOptions()
	opts.Extent = &binning.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	_, err = engine.Run(ctx, featureio.NewMemorySource("", point), store.Layer("c"), opts)
	log.Printf("Expected error: %s", describe(err))

	// A weight that does not evaluate is not an error: the feature counts
	// but contributes zero.
	opts.Weight = "@w"
	result, err := engine.Run(context.Background(), featureio.NewMemorySource("", point), store.Layer("d"), opts)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Weight errors: %d, bins emitted: %d\n", result.WeightErrors, result.Emitted)
	fmt.Printf("Published layers: %v\n", store.Names())
}
