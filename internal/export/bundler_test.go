package export

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allergen-map/internal/catalog"
	"allergen-map/internal/common"
	"allergen-map/internal/raster"
	"allergen-map/internal/raster/rastertest"
	"allergen-map/internal/storage"
	"allergen-map/pkg/geotiff"
)

func newBundler(t *testing.T, files fstest.MapFS) (*Bundler, string) {
	t.Helper()
	src := storage.NewFS(files, "fixture")
	tmp := t.TempDir()
	b := NewBundler(
		catalog.Default(),
		raster.NewLoader(src, 1, nil, nil),
		storage.Resource{Source: src, Path: "infoMap.txt"},
		tmp, nil, nil,
	)
	return b, tmp
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left, "temporary files left behind")
}

func unzip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = body
	}
	return out
}

func TestExportAlnusEndToEnd(t *testing.T) {
	b, tmp := newBundler(t, rastertest.Files(t, 5, 4))

	bundle, err := b.Export(context.Background(), "Alnus")
	require.NoError(t, err)
	assertEmptyDir(t, tmp)

	assert.Equal(t, "Alnus", bundle.Key)
	assert.Equal(t, "Alnus.zip", bundle.ArchiveName)
	assert.Equal(t, []string{"Alnus.tif", "infoMap.txt"}, bundle.Names())

	var buf bytes.Buffer
	n, err := bundle.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	files := unzip(t, buf.Bytes())
	require.Len(t, files, 2)
	assert.Equal(t, rastertest.Metadata, string(files["infoMap.txt"]))

	got, err := geotiff.Decode(files["Alnus.tif"])
	require.NoError(t, err)
	want := rastertest.Raster(5, 4)
	assert.Equal(t, want.Width, got.Width)
	assert.Equal(t, want.Height, got.Height)
	assert.Equal(t, want.NoData, got.NoData)
	assert.InDelta(t, want.Bounds.West, got.Bounds.West, 1e-9)
	assert.InDelta(t, want.Bounds.North, got.Bounds.North, 1e-9)
	for i := range want.Samples {
		assert.InDelta(t, want.Samples[i], got.Samples[i], 1e-5, "cell %d", i)
	}
}

func TestExportWithoutSelection(t *testing.T) {
	b, tmp := newBundler(t, rastertest.Files(t, 2, 2))
	for _, key := range []string{catalog.None, "none", "None", " NONE "} {
		_, err := b.Export(context.Background(), key)
		assert.ErrorIs(t, err, common.ErrNoSelection, "%q", key)
	}
	assertEmptyDir(t, tmp)
}

func TestExportFailuresLeaveNoTempFiles(t *testing.T) {
	files := rastertest.Files(t, 3, 3)
	files["Betula.tif"] = &fstest.MapFile{Data: []byte("not a tiff")}
	delete(files, "Corylus.tif")

	b, tmp := newBundler(t, files)
	ctx := context.Background()

	_, err := b.Export(ctx, "Quercus")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = b.Export(ctx, "Betula")
	assert.ErrorIs(t, err, common.ErrCorruptData)
	assertEmptyDir(t, tmp)

	_, err = b.Export(ctx, "Corylus")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assertEmptyDir(t, tmp)

	// raster fine, metadata missing: the written tif must still be removed
	delete(files, "infoMap.txt")
	_, err = b.Export(ctx, "Alnus")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assertEmptyDir(t, tmp)
}

func TestExportReleasesResidency(t *testing.T) {
	b, _ := newBundler(t, rastertest.Files(t, 2, 2))
	for i := 0; i < 3; i++ {
		_, err := b.Export(context.Background(), "Corylus")
		require.NoError(t, err)
	}
}

func TestBundleWriteFile(t *testing.T) {
	bundle := &Bundle{
		Key:         "Alnus",
		ArchiveName: "Alnus.zip",
		Entries:     []Entry{{Name: "Alnus.tif", Data: []byte{1, 2, 3}}, {Name: "infoMap.txt", Data: []byte("x")}},
	}
	path := t.TempDir() + "/Alnus.zip"
	require.NoError(t, bundle.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	files := unzip(t, data)
	assert.Equal(t, []byte{1, 2, 3}, files["Alnus.tif"])

	assert.Error(t, bundle.WriteFile(t.TempDir()+"/missing/Alnus.zip"))
}

func TestNaNCellsExportAsNoData(t *testing.T) {
	b, _ := newBundler(t, rastertest.Files(t, 3, 2))
	bundle, err := b.Export(context.Background(), "Alnus")
	require.NoError(t, err)

	got, err := geotiff.Decode(bundle.Entries[0].Data)
	require.NoError(t, err)
	for _, v := range got.Samples {
		assert.False(t, math.IsNaN(float64(v)))
	}
	assert.Equal(t, float32(-9999), got.Samples[0])
}
