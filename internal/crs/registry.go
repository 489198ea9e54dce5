package crs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// epsg maps EPSG codes to PROJ.4 definitions for the reference systems the
// engine resolves without an external database.
var epsg = map[int]string{
	4326:   "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs",
	4269:   "+proj=longlat +ellps=GRS80 +datum=NAD83 +no_defs",
	4258:   "+proj=longlat +ellps=GRS80 +no_defs",
	3857:   "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	900913: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	5179:   "+proj=tmerc +lat_0=38 +lon_0=127.5 +k=0.9996 +x_0=1000000 +y_0=2000000 +ellps=GRS80 +units=m +no_defs",
	5186:   "+proj=tmerc +lat_0=38 +lon_0=127 +k=1 +x_0=200000 +y_0=600000 +ellps=GRS80 +units=m +no_defs",
}

func init() {
	// WGS 84 / UTM zones, north (326xx) and south (327xx).
	for zone := 1; zone <= 60; zone++ {
		epsg[32600+zone] = fmt.Sprintf("+proj=utm +zone=%d +ellps=WGS84 +datum=WGS84 +units=m +no_defs", zone)
		epsg[32700+zone] = fmt.Sprintf("+proj=utm +zone=%d +south +ellps=WGS84 +datum=WGS84 +units=m +no_defs", zone)
	}
}

// Definition resolves a CRS identifier to a PROJ.4 definition.
//
// Accepted forms:
//   - "" (unknown, returned as-is)
//   - "EPSG:4326", "epsg:4326", "urn:ogc:def:crs:EPSG::4326"
//   - "CRS84" / "urn:ogc:def:crs:OGC:1.3:CRS84"
//   - a PROJ.4 string starting with "+"
//
// Anything else is returned unchanged and left to the projection parser.
func Definition(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "+") {
		return id, nil
	}

	upper := strings.ToUpper(id)
	if strings.HasSuffix(upper, "CRS84") {
		return epsg[4326], nil
	}

	code, ok := epsgCode(upper)
	if !ok {
		return id, nil
	}
	def, ok := epsg[code]
	if !ok {
		return "", fmt.Errorf("unsupported EPSG code %d", code)
	}
	return def, nil
}

// epsgCode extracts the numeric code from "EPSG:n" or an OGC URN ending in "EPSG::n".
func epsgCode(upper string) (int, bool) {
	idx := strings.LastIndex(upper, "EPSG:")
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimLeft(upper[idx+len("EPSG:"):], ":")
	code, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return code, true
}

// normalize orders PROJ.4 parameters and drops "+no_defs" so that
// definitions differing only in parameter order compare equal.
func normalize(def string) string {
	fields := strings.Fields(def)
	out := fields[:0]
	for _, f := range fields {
		if f == "+no_defs" {
			continue
		}
		out = append(out, f)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}
