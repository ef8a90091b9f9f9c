package source

import (
	"context"
	"io"
	"reflect"
	"strings"
	"testing"
)

func openString(t *testing.T, data string, delimiter rune, chunkSize int) *CSVReader {
	t.Helper()
	r, err := OpenCSV(io.NopCloser(strings.NewReader(data)), delimiter, chunkSize)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return r
}

func TestCSVChunking(t *testing.T) {
	data := "name,age\nana,30\nbeto,25\ncarla,41\ndiego,19\neva,55\n"
	r := openString(t, data, ',', 2)
	defer r.Close()

	if got := r.Columns(); !reflect.DeepEqual(got, []string{"name", "age"}) {
		t.Fatalf("columns = %v", got)
	}

	ctx := context.Background()
	var sizes []int
	for {
		chunk, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		sizes = append(sizes, chunk.Len())
	}
	if !reflect.DeepEqual(sizes, []int{2, 2, 1}) {
		t.Errorf("chunk sizes = %v, want [2 2 1]", sizes)
	}
}

func TestCSVRowValues(t *testing.T) {
	data := "a,b,c\n1,2,3\nshort,row\n"
	r := openString(t, data, ',', 10)
	defer r.Close()

	chunk, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("next failed: %v", err)
	}
	if chunk.Len() != 2 {
		t.Fatalf("rows = %d, want 2", chunk.Len())
	}
	if got := chunk.Rows[0]["c"]; got != "3" {
		t.Errorf("full row c = %v, want 3", got)
	}
	// Short rows leave missing trailing columns nil.
	if got := chunk.Rows[1]["c"]; got != nil {
		t.Errorf("short row c = %v, want nil", got)
	}
}

func TestCSVStripsBOM(t *testing.T) {
	data := "\xEF\xBB\xBFid,name\n1,ana\n"
	r := openString(t, data, ',', 10)
	defer r.Close()

	if got := r.Columns()[0]; got != "id" {
		t.Errorf("first column = %q, want id without BOM", got)
	}
}

func TestCSVEmptyFile(t *testing.T) {
	if _, err := OpenCSV(io.NopCloser(strings.NewReader("")), ',', 10); err == nil {
		t.Error("expected empty file to be rejected")
	}
}

func TestCSVHeaderOnly(t *testing.T) {
	r := openString(t, "a,b\n", ',', 10)
	defer r.Close()
	if _, err := r.Next(context.Background()); err != io.EOF {
		t.Errorf("got %v, want io.EOF for header-only file", err)
	}
}

func TestOpenPicksTSVByExtension(t *testing.T) {
	data := "x\ty\n1\t2\n"
	reader, err := Open(io.NopCloser(strings.NewReader(data)), "export.tsv", 10)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer reader.Close()

	if got := reader.Columns(); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("columns = %v, want [x y]", got)
	}
}

func TestCSVCancelledContext(t *testing.T) {
	r := openString(t, "a\n1\n2\n", ',', 10)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Next(ctx); err == nil {
		t.Error("expected cancelled context to stop reading")
	}
}
