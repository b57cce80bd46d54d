package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

type ifdEntry struct {
	tag      uint16
	datatype uint16
	count    uint32
	data     []byte
}

type byTag []ifdEntry

func (d byTag) Len() int           { return len(d) }
func (d byTag) Less(i, j int) bool { return d[i].tag < d[j].tag }
func (d byTag) Swap(i, j int)      { d[i], d[j] = d[j], d[i] }

// Encode writes r to w as an uncompressed single-strip, single-band GeoTIFF.
// Missing cells (NaN) are written as r.NoData when HasNoData is set.
func Encode(w io.Writer, r *Raster) error {
	if r == nil || r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("geotiff: invalid raster dimensions")
	}
	if len(r.Samples) != r.Width*r.Height {
		return fmt.Errorf("geotiff: have %d samples, want %d", len(r.Samples), r.Width*r.Height)
	}
	if !r.Bounds.Valid() {
		return fmt.Errorf("geotiff: invalid bounds %+v", r.Bounds)
	}

	// LittleEndian (II), Version 42, first IFD at offset 8
	header := []byte{'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00}
	if _, err := w.Write(header); err != nil {
		return err
	}

	pixels, bits, format := encodeSamples(r)
	imageLen := uint32(len(pixels))

	var entries []ifdEntry
	addEntry := func(tag uint16, datatype uint16, count uint32, data []byte) {
		entries = append(entries, ifdEntry{tag, datatype, count, data})
	}

	addEntry(TagType_ImageWidth, DataType_Long, 1, enc32(uint32(r.Width)))
	addEntry(TagType_ImageLength, DataType_Long, 1, enc32(uint32(r.Height)))
	addEntry(TagType_BitsPerSample, DataType_Short, 1, enc16(bits))
	addEntry(TagType_Compression, DataType_Short, 1, enc16(compressionNone))
	addEntry(TagType_PhotometricInterpretation, DataType_Short, 1, enc16(photometricBlackIsZero))
	addEntry(TagType_SamplesPerPixel, DataType_Short, 1, enc16(1))
	addEntry(TagType_RowsPerStrip, DataType_Long, 1, enc32(uint32(r.Height)))
	addEntry(TagType_PlanarConfiguration, DataType_Short, 1, enc16(1))
	addEntry(TagType_SampleFormat, DataType_Short, 1, enc16(format))

	// Patched once the pixel offset is known
	addEntry(TagType_StripOffsets, DataType_Long, 1, make([]byte, 4))
	addEntry(TagType_StripByteCounts, DataType_Long, 1, enc32(imageLen))

	scaleX := (r.Bounds.East - r.Bounds.West) / float64(r.Width)
	scaleY := (r.Bounds.North - r.Bounds.South) / float64(r.Height)
	addEntry(TagType_ModelPixelScaleTag, DataType_Double, 3, encDoubles([]float64{scaleX, scaleY, 0}))
	// Pixel (0,0) is tied to the north-west corner
	addEntry(TagType_ModelTiepointTag, DataType_Double, 6, encDoubles([]float64{0, 0, 0, r.Bounds.West, r.Bounds.North, 0}))

	keys := geoKeys(r.EPSG)
	addEntry(TagType_GeoKeyDirectoryTag, DataType_Short, uint32(len(keys)), enc16s(keys))

	if r.HasNoData {
		b := append([]byte(formatNoData(r.NoData)), 0)
		addEntry(TagType_GDALNoData, DataType_ASCII, uint32(len(b)), b)
	}

	sort.Sort(byTag(entries))

	ifdSize := 2 + 12*len(entries) + 4
	valueDataOffset := 8 + ifdSize

	var largeDataBuf bytes.Buffer
	for i := range entries {
		e := &entries[i]
		if len(e.data) <= 4 {
			continue
		}
		currentOffset := uint32(valueDataOffset + largeDataBuf.Len())
		largeDataBuf.Write(e.data)
		// Offsets must land on word boundaries
		if largeDataBuf.Len()%2 == 1 {
			largeDataBuf.WriteByte(0)
		}
		e.data = enc32(currentOffset)
	}

	pixelsOffset := uint32(valueDataOffset + largeDataBuf.Len())
	for i := range entries {
		if entries[i].tag == TagType_StripOffsets {
			entries[i].data = enc32(pixelsOffset)
		}
	}

	if err := binary.Write(w, enc, uint16(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := binary.Write(w, enc, e.tag); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.datatype); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.count); err != nil {
			return err
		}
		var val [4]byte
		copy(val[:], e.data)
		if _, err := w.Write(val[:]); err != nil {
			return err
		}
	}

	// Next IFD offset (none)
	if err := binary.Write(w, enc, uint32(0)); err != nil {
		return err
	}
	if _, err := largeDataBuf.WriteTo(w); err != nil {
		return err
	}
	if _, err := w.Write(pixels); err != nil {
		return err
	}
	return nil
}

// encodeSamples returns the strip payload plus BitsPerSample and SampleFormat values.
func encodeSamples(r *Raster) ([]byte, uint16, uint16) {
	fill := func(v float32) float64 {
		if math.IsNaN(float64(v)) && r.HasNoData {
			return r.NoData
		}
		return float64(v)
	}

	switch r.SampleType {
	case Uint8:
		out := make([]byte, len(r.Samples))
		for i, v := range r.Samples {
			out[i] = uint8(clampRound(fill(v), math.MaxUint8))
		}
		return out, 8, sampleFormatUint
	case Uint16:
		out := make([]byte, 2*len(r.Samples))
		for i, v := range r.Samples {
			enc.PutUint16(out[i*2:], uint16(clampRound(fill(v), math.MaxUint16)))
		}
		return out, 16, sampleFormatUint
	default:
		out := make([]byte, 4*len(r.Samples))
		for i, v := range r.Samples {
			enc.PutUint32(out[i*4:], math.Float32bits(float32(fill(v))))
		}
		return out, 32, sampleFormatFloat
	}
}

func clampRound(v, max float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return math.Round(v)
}

func geoKeys(epsg int) []uint16 {
	if epsg <= 0 {
		epsg = EPSG4326
	}
	modelType, crsKey := uint16(modelTypeProjected), uint16(geoKeyProjectedType)
	if epsg >= 4000 && epsg < 5000 {
		modelType, crsKey = modelTypeGeographic, geoKeyGeographicType
	}
	// Version=1, Revision=1, Minor=0, Keys=3
	return []uint16{
		1, 1, 0, 3,
		geoKeyModelType, 0, 1, modelType,
		geoKeyRasterType, 0, 1, rasterPixelIsArea,
		crsKey, 0, 1, uint16(epsg),
	}
}

func formatNoData(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Helpers

func enc16(v uint16) []byte {
	b := make([]byte, 2)
	enc.PutUint16(b, v)
	return b
}

func enc32(v uint32) []byte {
	b := make([]byte, 4)
	enc.PutUint32(b, v)
	return b
}

func enc16s(vs []uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		enc.PutUint16(b[i*2:], v)
	}
	return b
}

func encDoubles(vs []float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		enc.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}
