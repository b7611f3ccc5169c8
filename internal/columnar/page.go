package columnar

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"

	"github.com/cuemby/wal-cas/internal/errs"
)

// wpqMagic identifies a columnar file format with dictionary encoding,
// configurable row-group size, and a compression codec from the config.
const wpqMagic = "WPQ1"

// fileHeader precedes every row group in a .wpq file.
type fileHeader struct {
	Magic             string
	SchemaFingerprint string
	Compression       Codec
	RowGroupSize      int
	ColumnNames       []string
	ColumnTypes       []ColumnType
}

// wireColumn is one column's row-group page encoding. String columns are
// dictionary-encoded (Dictionary + Indices); other types are stored
// directly.
type wireColumn struct {
	Name       string
	Type       ColumnType
	Dictionary []string
	Indices    []int32
	Ints       []int64
	Floats     []float64
	Bools      []bool
}

type rowGroupPage struct {
	Columns []wireColumn
	NumRows int
}

func dictionaryEncode(values []string) ([]string, []int32) {
	dictIndex := make(map[string]int32, len(values))
	var dict []string
	indices := make([]int32, len(values))
	for i, v := range values {
		idx, ok := dictIndex[v]
		if !ok {
			idx = int32(len(dict))
			dict = append(dict, v)
			dictIndex[v] = idx
		}
		indices[i] = idx
	}
	return dict, indices
}

func encodeColumn(c Column) wireColumn {
	wc := wireColumn{Name: c.Name, Type: c.Type}
	switch c.Type {
	case TypeString:
		wc.Dictionary, wc.Indices = dictionaryEncode(c.Strings)
	case TypeInt64:
		wc.Ints = c.Ints
	case TypeFloat:
		wc.Floats = c.Floats
	case TypeBool:
		wc.Bools = c.Bools
	}
	return wc
}

func decodeColumn(wc wireColumn) Column {
	c := Column{Name: wc.Name, Type: wc.Type}
	switch wc.Type {
	case TypeString:
		c.Strings = make([]string, len(wc.Indices))
		for i, idx := range wc.Indices {
			c.Strings[i] = wc.Dictionary[idx]
		}
	case TypeInt64:
		c.Ints = wc.Ints
	case TypeFloat:
		c.Floats = wc.Floats
	case TypeBool:
		c.Bools = wc.Bools
	}
	return c
}

// writeFile serializes t to path as one or more row-group pages, each
// independently compressed with codec, prefixed by a shared fileHeader.
// It returns the file's size on disk.
func writeFile(path string, t *Table, schemaFP string, codec Codec, rowGroupSize int) (int64, error) {
	if rowGroupSize <= 0 {
		rowGroupSize = 10_000
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, errs.New(errs.ExecutionError, err)
	}
	defer f.Close()

	hdr := fileHeader{
		Magic:             wpqMagic,
		SchemaFingerprint: schemaFP,
		Compression:       codec,
		RowGroupSize:      rowGroupSize,
		ColumnNames:       t.ColumnNames(),
	}
	for _, c := range t.Columns {
		hdr.ColumnTypes = append(hdr.ColumnTypes, c.Type)
	}

	var hdrBuf bytes.Buffer
	if err := gob.NewEncoder(&hdrBuf).Encode(hdr); err != nil {
		return 0, errs.New(errs.ExecutionError, err)
	}
	if err := writeFrame(f, hdrBuf.Bytes()); err != nil {
		return 0, err
	}

	for start := 0; start < t.NumRows || (t.NumRows == 0 && start == 0); start += rowGroupSize {
		end := start + rowGroupSize
		if end > t.NumRows {
			end = t.NumRows
		}
		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		sub := t.rowsAt(indices)

		page := rowGroupPage{NumRows: sub.NumRows}
		for _, c := range sub.Columns {
			page.Columns = append(page.Columns, encodeColumn(c))
		}

		var pageBuf bytes.Buffer
		if err := gob.NewEncoder(&pageBuf).Encode(page); err != nil {
			return 0, errs.New(errs.ExecutionError, err)
		}
		compressed, err := compress(codec, pageBuf.Bytes())
		if err != nil {
			return 0, err
		}
		if err := writeFrame(f, compressed); err != nil {
			return 0, err
		}
		if t.NumRows == 0 {
			break
		}
	}

	info, err := f.Stat()
	if err != nil {
		return 0, errs.New(errs.ExecutionError, err)
	}
	return info.Size(), nil
}

// readFile deserializes a .wpq file, materializing only the requested
// columns when columns is non-empty (column-level pushdown).
func readFile(path string, columns []string) (*Table, *fileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errs.New(errs.ExecutionError, err)
	}
	defer f.Close()

	hdrBytes, err := readFrame(f)
	if err != nil {
		return nil, nil, err
	}
	var hdr fileHeader
	if err := gob.NewDecoder(bytes.NewReader(hdrBytes)).Decode(&hdr); err != nil {
		return nil, nil, errs.New(errs.SchemaMismatch, err)
	}
	if hdr.Magic != wpqMagic {
		return nil, nil, errs.Newf(errs.SchemaMismatch, "bad magic in %s", path)
	}

	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
	}

	out := &Table{}
	if len(columns) > 0 {
		for _, name := range hdr.ColumnNames {
			if want[name] {
				out.Columns = append(out.Columns, Column{Name: name})
			}
		}
	}

	for {
		frame, err := readFrame(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		raw, err := decompress(hdr.Compression, frame)
		if err != nil {
			return nil, nil, err
		}
		var page rowGroupPage
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&page); err != nil {
			return nil, nil, errs.New(errs.SchemaMismatch, err)
		}
		appendPage(out, page, want, len(columns) == 0)
	}
	return out, &hdr, nil
}

func appendPage(out *Table, page rowGroupPage, want map[string]bool, all bool) {
	if len(out.Columns) == 0 && all {
		for _, wc := range page.Columns {
			out.Columns = append(out.Columns, Column{Name: wc.Name, Type: wc.Type})
		}
	}
	byName := make(map[string]int, len(out.Columns))
	for i, c := range out.Columns {
		byName[c.Name] = i
	}
	for _, wc := range page.Columns {
		if !all && !want[wc.Name] {
			continue
		}
		idx, ok := byName[wc.Name]
		if !ok {
			continue
		}
		decoded := decodeColumn(wc)
		out.Columns[idx].Type = decoded.Type
		switch decoded.Type {
		case TypeString:
			out.Columns[idx].Strings = append(out.Columns[idx].Strings, decoded.Strings...)
		case TypeInt64:
			out.Columns[idx].Ints = append(out.Columns[idx].Ints, decoded.Ints...)
		case TypeFloat:
			out.Columns[idx].Floats = append(out.Columns[idx].Floats, decoded.Floats...)
		case TypeBool:
			out.Columns[idx].Bools = append(out.Columns[idx].Bools, decoded.Bools...)
		}
	}
	out.NumRows += page.NumRows
}

func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errs.New(errs.ExecutionError, err)
	}
	if _, err := w.Write(data); err != nil {
		return errs.New(errs.ExecutionError, err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, errs.New(errs.ExecutionError, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errs.New(errs.ExecutionError, err)
	}
	return data, nil
}
