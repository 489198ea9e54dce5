// Package featureio provides feature sources and output stores for the
// binning engine.
//
// Sources:
//   - GeoJSONSource streams a FeatureCollection from a file or reader
//   - MemorySource serves features already in memory
//
// Stores, each committing a run atomically:
//   - MemoryStore publishes named GeoJSON collections
//   - GeoJSONFileStore writes a file through a temporary file and rename
//   - SQLiteStore writes a table inside one transaction
//
// Example:
//
//	src, err := featureio.OpenGeoJSON("parcels.geojson", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	store := featureio.NewGeoJSONFileStore("bins.geojson")
//	result, err := binning.Count(ctx, src, store)
package featureio
