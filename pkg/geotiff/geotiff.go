// Package geotiff reads and writes single-band georeferenced TIFF rasters.
package geotiff

import (
	"encoding/binary"
	"errors"
	"math"
)

const (
	DataType_Byte      = 1
	DataType_ASCII     = 2
	DataType_Short     = 3
	DataType_Long      = 4
	DataType_Rational  = 5
	DataType_SByte     = 6
	DataType_Undefined = 7
	DataType_SShort    = 8
	DataType_SLong     = 9
	DataType_SRational = 10
	DataType_Float     = 11
	DataType_Double    = 12
	DataType_IFD       = 13
	DataType_Long8     = 16

	TagType_ImageWidth                = 256
	TagType_ImageLength               = 257
	TagType_BitsPerSample             = 258
	TagType_Compression               = 259
	TagType_PhotometricInterpretation = 262
	TagType_StripOffsets              = 273
	TagType_SamplesPerPixel           = 277
	TagType_RowsPerStrip              = 278
	TagType_StripByteCounts           = 279
	TagType_PlanarConfiguration       = 284
	TagType_Predictor                 = 317
	TagType_TileWidth                 = 322
	TagType_TileLength                = 323
	TagType_TileOffsets               = 324
	TagType_TileByteCounts            = 325
	TagType_SampleFormat              = 339

	// GeoTIFF Tags
	TagType_ModelPixelScaleTag = 33550
	TagType_ModelTiepointTag   = 33922
	TagType_GeoKeyDirectoryTag = 34735
	TagType_GeoDoubleParamsTag = 34736
	TagType_GeoAsciiParamsTag  = 34737

	// GDAL private tag carrying the nodata value as ASCII
	TagType_GDALNoData = 42113
)

// GeoKey identifiers used inside the GeoKeyDirectoryTag
const (
	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyGeographicType = 2048
	geoKeyProjectedType  = 3072

	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
)

const (
	compressionNone         = 1
	compressionDeflate      = 8
	compressionDeflateAdobe = 32946

	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3

	photometricBlackIsZero = 1
)

// EPSG4326 is WGS 84 geographic coordinates, the default reference for rasters
// that carry no explicit code.
const EPSG4326 = 4326

// SampleType selects the on-disk sample encoding used by Encode.
type SampleType int

const (
	Float32 SampleType = iota
	Uint8
	Uint16
)

// Bounds is a geographic extent in the raster's native reference system.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Valid reports whether the extent is finite and non-empty.
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.East > b.West && b.North > b.South
}

// Raster is a decoded single-band grid. Samples are row-major, top row first.
type Raster struct {
	Width   int
	Height  int
	Samples []float32
	Bounds  Bounds
	EPSG    int

	NoData    float64
	HasNoData bool

	// SampleType is used by Encode; Decode reports the closest match.
	SampleType SampleType
}

var (
	// ErrUnsupported is returned for valid TIFF features this package does not read.
	ErrUnsupported = errors.New("geotiff: unsupported feature")

	// ErrFormat is returned for malformed files.
	ErrFormat = errors.New("geotiff: malformed file")

	// ErrNoGeoreference is returned when the pixel scale or tiepoint tags are missing.
	ErrNoGeoreference = errors.New("geotiff: missing georeferencing tags")
)

var enc = binary.LittleEndian
