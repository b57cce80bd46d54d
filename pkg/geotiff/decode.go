package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff"
)

// field is one resolved IFD entry with its value bytes.
type field struct {
	datatype uint16
	count    uint32
	raw      []byte
}

type decoder struct {
	data   []byte
	order  binary.ByteOrder
	fields map[uint16]field
}

var typeSizes = map[uint16]int{
	DataType_Byte: 1, DataType_ASCII: 1, DataType_Short: 2, DataType_Long: 4,
	DataType_Rational: 8, DataType_SByte: 1, DataType_Undefined: 1, DataType_SShort: 2,
	DataType_SLong: 4, DataType_SRational: 8, DataType_Float: 4, DataType_Double: 8,
	DataType_IFD: 4, DataType_Long8: 8,
}

// MaxCells caps width*height of a decoded raster; larger headers are rejected before any allocation
const MaxCells = 1 << 27

// Decode parses a single-band GeoTIFF held in data. Only the first IFD is read.
//
// Unsigned 8 and 16 bit rasters are decoded with golang.org/x/image/tiff, which
// covers every baseline compression and tiled layouts. Signed and floating point
// rasters are read from uncompressed or deflate strips.
// Malformed input yields ErrFormat or ErrUnsupported, never a panic.
func Decode(data []byte) (r *Raster, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("%w: %v", ErrFormat, p)
		}
	}()

	d := &decoder{data: data, fields: make(map[uint16]field)}
	if err := d.parseHeader(); err != nil {
		return nil, err
	}

	width, err := d.firstUint(TagType_ImageWidth, 0)
	if err != nil {
		return nil, err
	}
	height, err := d.firstUint(TagType_ImageLength, 0)
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrFormat, width, height)
	}
	spp, _ := d.firstUint(TagType_SamplesPerPixel, 1)
	if spp != 1 {
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrUnsupported, spp)
	}
	bits, err := d.firstUint(TagType_BitsPerSample, 1)
	if err != nil {
		return nil, err
	}
	format, _ := d.firstUint(TagType_SampleFormat, sampleFormatUint)
	if err := d.checkSize(width, height, bits); err != nil {
		return nil, err
	}

	r = &Raster{Width: int(width), Height: int(height), SampleType: Float32}
	if err := d.georeference(r); err != nil {
		return nil, err
	}
	if f, ok := d.fields[TagType_GDALNoData]; ok {
		s := strings.TrimSpace(strings.TrimRight(string(f.raw), "\x00"))
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			r.NoData, r.HasNoData = v, true
		}
	}

	if format == sampleFormatUint && (bits == 8 || bits == 16) {
		err = d.readWithImageTIFF(r)
	} else {
		err = d.readStrips(r, int(bits), int(format))
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// checkSize bounds the pixel buffer a header may ask for. Uncompressed pixels must fit in the file.
func (d *decoder) checkSize(width, height, bits uint64) error {
	if width > MaxCells || height > MaxCells || width*height > MaxCells {
		return fmt.Errorf("%w: %dx%d exceeds %d cells", ErrFormat, width, height, MaxCells)
	}
	if bits == 0 || bits > 64 {
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupported, bits)
	}
	compression, _ := d.firstUint(TagType_Compression, compressionNone)
	if compression == compressionNone {
		if need := width * height * ((bits + 7) / 8); need > uint64(len(d.data)) {
			return fmt.Errorf("%w: %dx%d needs %d pixel bytes, file has %d", ErrFormat, width, height, need, len(d.data))
		}
	}
	return nil
}

func (d *decoder) parseHeader() error {
	if len(d.data) < 8 {
		return fmt.Errorf("%w: short header", ErrFormat)
	}
	switch string(d.data[:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return fmt.Errorf("%w: bad byte order mark", ErrFormat)
	}
	switch d.order.Uint16(d.data[2:4]) {
	case 42:
	case 43:
		return fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return fmt.Errorf("%w: bad magic number", ErrFormat)
	}

	off := int(d.order.Uint32(d.data[4:8]))
	if off < 8 || off+2 > len(d.data) {
		return fmt.Errorf("%w: IFD offset out of range", ErrFormat)
	}
	n := int(d.order.Uint16(d.data[off : off+2]))
	if off+2+12*n > len(d.data) {
		return fmt.Errorf("%w: IFD truncated", ErrFormat)
	}
	for i := 0; i < n; i++ {
		p := d.data[off+2+12*i : off+2+12*(i+1)]
		tag := d.order.Uint16(p[0:2])
		dt := d.order.Uint16(p[2:4])
		count := d.order.Uint32(p[4:8])
		size, known := typeSizes[dt]
		if !known {
			continue
		}
		total := size * int(count)
		raw := p[8:12]
		if total > 4 {
			vo := int(d.order.Uint32(p[8:12]))
			if vo < 0 || total < 0 || vo+total > len(d.data) {
				return fmt.Errorf("%w: tag %d value out of range", ErrFormat, tag)
			}
			raw = d.data[vo : vo+total]
		} else {
			raw = raw[:total]
		}
		d.fields[tag] = field{datatype: dt, count: count, raw: raw}
	}
	return nil
}

func (d *decoder) uints(tag uint16) ([]uint64, bool) {
	f, ok := d.fields[tag]
	if !ok {
		return nil, false
	}
	out := make([]uint64, f.count)
	for i := range out {
		switch f.datatype {
		case DataType_Byte, DataType_Undefined:
			out[i] = uint64(f.raw[i])
		case DataType_Short:
			out[i] = uint64(d.order.Uint16(f.raw[2*i:]))
		case DataType_Long, DataType_IFD:
			out[i] = uint64(d.order.Uint32(f.raw[4*i:]))
		case DataType_Long8:
			out[i] = d.order.Uint64(f.raw[8*i:])
		default:
			return nil, false
		}
	}
	return out, true
}

func (d *decoder) firstUint(tag uint16, def uint64) (uint64, error) {
	vs, ok := d.uints(tag)
	if !ok || len(vs) == 0 {
		if def == 0 {
			return 0, fmt.Errorf("%w: missing tag %d", ErrFormat, tag)
		}
		return def, nil
	}
	return vs[0], nil
}

func (d *decoder) doubles(tag uint16) []float64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]float64, f.count)
	for i := range out {
		switch f.datatype {
		case DataType_Double:
			out[i] = math.Float64frombits(d.order.Uint64(f.raw[8*i:]))
		case DataType_Float:
			out[i] = float64(math.Float32frombits(d.order.Uint32(f.raw[4*i:])))
		default:
			return nil
		}
	}
	return out
}

func (d *decoder) georeference(r *Raster) error {
	scale := d.doubles(TagType_ModelPixelScaleTag)
	tie := d.doubles(TagType_ModelTiepointTag)
	if len(scale) < 2 || len(tie) < 6 {
		return ErrNoGeoreference
	}
	// Tiepoint (I,J,K,X,Y,Z) ties raster pixel (I,J) to model (X,Y)
	west := tie[3] - tie[0]*scale[0]
	north := tie[4] + tie[1]*scale[1]
	r.Bounds = Bounds{
		West:  west,
		North: north,
		East:  west + float64(r.Width)*scale[0],
		South: north - float64(r.Height)*scale[1],
	}
	if !r.Bounds.Valid() {
		return fmt.Errorf("%w: degenerate bounds %+v", ErrFormat, r.Bounds)
	}

	r.EPSG = EPSG4326
	if keys, ok := d.uints(TagType_GeoKeyDirectoryTag); ok && len(keys) >= 4 {
		n := int(keys[3])
		for i := 0; i < n && 4+4*i+3 < len(keys); i++ {
			k := keys[4+4*i:]
			if k[1] != 0 {
				continue
			}
			if k[0] == geoKeyProjectedType || k[0] == geoKeyGeographicType {
				r.EPSG = int(k[3])
				if k[0] == geoKeyProjectedType {
					break
				}
			}
		}
	}
	return nil
}

func (d *decoder) readWithImageTIFF(r *Raster) error {
	img, err := tiff.Decode(bytes.NewReader(d.data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	b := img.Bounds()
	if b.Dx() != r.Width || b.Dy() != r.Height {
		return fmt.Errorf("%w: decoded %dx%d, header says %dx%d", ErrFormat, b.Dx(), b.Dy(), r.Width, r.Height)
	}

	r.Samples = make([]float32, r.Width*r.Height)
	switch m := img.(type) {
	case *image.Gray:
		r.SampleType = Uint8
		for y := 0; y < r.Height; y++ {
			row := m.Pix[y*m.Stride:]
			for x := 0; x < r.Width; x++ {
				r.Samples[y*r.Width+x] = float32(row[x])
			}
		}
	case *image.Gray16:
		r.SampleType = Uint16
		for y := 0; y < r.Height; y++ {
			row := m.Pix[y*m.Stride:]
			for x := 0; x < r.Width; x++ {
				r.Samples[y*r.Width+x] = float32(uint16(row[2*x])<<8 | uint16(row[2*x+1]))
			}
		}
	default:
		return fmt.Errorf("%w: color model %T", ErrUnsupported, img)
	}
	return nil
}

func (d *decoder) readStrips(r *Raster, bits, format int) error {
	if _, tiled := d.fields[TagType_TileOffsets]; tiled {
		return fmt.Errorf("%w: tiled %d-bit layout", ErrUnsupported, bits)
	}
	if p, _ := d.firstUint(TagType_Predictor, 1); p != 1 {
		return fmt.Errorf("%w: predictor %d", ErrUnsupported, p)
	}
	compression, _ := d.firstUint(TagType_Compression, compressionNone)
	offsets, ok1 := d.uints(TagType_StripOffsets)
	counts, ok2 := d.uints(TagType_StripByteCounts)
	if !ok1 || !ok2 || len(offsets) != len(counts) {
		return fmt.Errorf("%w: strip tables", ErrFormat)
	}

	bytesPer := bits / 8
	if bits%8 != 0 || bytesPer == 0 {
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupported, bits)
	}
	want := r.Width * r.Height * bytesPer
	buf := make([]byte, 0, want)
	for i, off := range offsets {
		end := off + counts[i]
		if end > uint64(len(d.data)) || end < off {
			return fmt.Errorf("%w: strip %d out of range", ErrFormat, i)
		}
		strip := d.data[off:end]
		switch compression {
		case compressionNone:
			buf = append(buf, strip...)
		case compressionDeflate, compressionDeflateAdobe:
			zr, err := zlib.NewReader(bytes.NewReader(strip))
			if err != nil {
				return fmt.Errorf("%w: strip %d: %v", ErrFormat, i, err)
			}
			inflated, err := io.ReadAll(io.LimitReader(zr, int64(want-len(buf))+1))
			zr.Close()
			if err != nil {
				return fmt.Errorf("%w: strip %d: %v", ErrFormat, i, err)
			}
			buf = append(buf, inflated...)
		default:
			return fmt.Errorf("%w: compression %d for %d-bit samples", ErrUnsupported, compression, bits)
		}
	}
	if len(buf) < want {
		return fmt.Errorf("%w: have %d pixel bytes, want %d", ErrFormat, len(buf), want)
	}

	read, err := sampleReader(d.order, bits, format)
	if err != nil {
		return err
	}
	r.Samples = make([]float32, r.Width*r.Height)
	for i := range r.Samples {
		r.Samples[i] = read(buf[i*bytesPer:])
	}
	return nil
}

func sampleReader(order binary.ByteOrder, bits, format int) (func([]byte) float32, error) {
	switch {
	case format == sampleFormatFloat && bits == 32:
		return func(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) }, nil
	case format == sampleFormatFloat && bits == 64:
		return func(b []byte) float32 { return float32(math.Float64frombits(order.Uint64(b))) }, nil
	case format == sampleFormatInt && bits == 8:
		return func(b []byte) float32 { return float32(int8(b[0])) }, nil
	case format == sampleFormatInt && bits == 16:
		return func(b []byte) float32 { return float32(int16(order.Uint16(b))) }, nil
	case format == sampleFormatInt && bits == 32:
		return func(b []byte) float32 { return float32(int32(order.Uint32(b))) }, nil
	case format == sampleFormatUint && bits == 32:
		return func(b []byte) float32 { return float32(order.Uint32(b)) }, nil
	}
	return nil, fmt.Errorf("%w: sample format %d with %d bits", ErrUnsupported, format, bits)
}
