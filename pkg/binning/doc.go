// Package binning aggregates point, line and polygon features into a lattice
// of equal-radius circular bins.
//
// A run covers an analysis extent with a packed lattice of bin centers, streams
// every input feature once, and adds the feature's weight to each bin whose
// circular footprint it touches. The bins are then written to an output store
// as polygon features with the fields uid, val and count.
//
// # Basic Usage
//
//	engine := binning.NewEngine(binning.DefaultEngineOptions())
//
//	opts := binning.DefaultOptions()
//	opts.Extent = &binning.Extent{MinX: 0, MinY: 0, MaxX: 10000, MaxY: 10000, CRS: "EPSG:3857"}
//	opts.Radius = 500
//
//	result, err := engine.Run(ctx, source, store, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d features into %d bins\n", result.FeaturesRead, result.Emitted)
//
// # Weights
//
// Without a weight expression every feature contributes 1 and val equals
// count. An expression such as "@population" or "@households * 2.5" is
// evaluated against each feature's attributes. A feature whose weight cannot
// be evaluated, or evaluates to a negative or non-finite number, contributes
// zero but is still counted.
//
// # Coordinate Systems
//
// Binning happens in the CRS of the extent. Features in another CRS are
// transformed into it before the intersection test, and bin footprints are
// transformed back so output is always in the input CRS:
//
//	opts.Extent = &binning.Extent{
//	    MinX: 126.8, MinY: 37.4, MaxX: 127.2, MaxY: 37.7,
//	    CRS: "EPSG:4326",
//	}
//	// source.CRS() == "EPSG:5186"
//
// An empty CRS on either side means no transform.
//
// # Atomic Output
//
// Output goes through a Store, which opens a Sink per run. The sink either
// receives every bin and is closed, or is rolled back and closed. Failures
// reading input, writing output, or cancellation of the context all roll
// back; callers never observe partial output.
//
// # Errors
//
// Run returns one of the typed errors ConfigurationError,
// CoordinateSystemError, InputError, CancelledError or EmissionError:
//
//	var cfgErr *binning.ConfigurationError
//	if errors.As(err, &cfgErr) {
//	    fmt.Printf("bad %s: %s\n", cfgErr.Field, cfgErr.Reason)
//	}
//
// # Performance
//
// Bin candidates for each feature come from an R-tree over the bin boxes, so
// the cost per feature grows with the number of bins it touches rather than
// with the size of the lattice. Engines cache generated lattices, which helps
// repeated runs over the same extent and radius. RunBatch runs independent
// jobs on a worker pool.
package binning
