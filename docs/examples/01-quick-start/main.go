package main

import (
	"context"
	"fmt"
	"log"

	"github.com/ctessum/geom"

	"github.com/beetlebugorg/spatialbin/pkg/binning"
	"github.com/beetlebugorg/spatialbin/pkg/featureio"
)

func main() {
	// A few points in web mercator
	src := featureio.NewMemorySource("EPSG:3857",
		binning.NewFeature(geom.Point{X: 120, Y: 80}, map[string]interface{}{"population": 12}),
		binning.NewFeature(geom.Point{X: 135, Y: 95}, map[string]interface{}{"population": 30}),
		binning.NewFeature(geom.Point{X: 610, Y: 420}, map[string]interface{}{"population": 7}),
	)

	store := featureio.NewMemoryStore()

	opts := binning.DefaultOptions()
	opts.Extent = &binning.Extent{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000}
	opts.Radius = 50
	opts.Weight = "@population"

	engine := binning.NewEngine(binning.DefaultEngineOptions())
	result, err := engine.Run(context.Background(), src, store.Layer("population"), opts)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Run %s: %d features into %d of %d bins\n",
		result.RunID, result.FeaturesRead, result.Emitted, result.Bins)

	fc, _ := store.Collection("population")
	for _, f := range fc.Features {
		fmt.Printf("  bin %v: val=%v count=%v\n",
			f.Properties[binning.FieldID],
			f.Properties[binning.FieldAggregate],
			f.Properties[binning.FieldCount])
	}
}
