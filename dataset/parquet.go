package dataset

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"yashubustudio/patentcls/labels"
)

const parquetParallelism = 4

// Row is one padded sample as stored in a tensor file. Levels concatenates
// the per-level one-hot vectors in taxonomy order.
type Row struct {
	ID     string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Tokens []int32 `parquet:"name=tokens, type=INT32, repetitiontype=REPEATED"`
	Labels []int32 `parquet:"name=labels, type=INT32, repetitiontype=REPEATED"`
	OneHot []int32 `parquet:"name=onehot, type=INT32, repetitiontype=REPEATED"`
	Levels []int32 `parquet:"name=levels, type=INT32, repetitiontype=REPEATED"`
}

// TokenIDs returns the padded token ids as ints.
func (r Row) TokenIDs() []int {
	return fromInt32(r.Tokens)
}

// LabelIDs returns the true label ids as ints.
func (r Row) LabelIDs() []int {
	return fromInt32(r.Labels)
}

// Rows pairs each sample with its padded abstract.
func Rows(ds *Dataset, padded [][]int) ([]Row, error) {
	if len(padded) != ds.Len() {
		return nil, fmt.Errorf("%w: %d samples, %d padded sequences", labels.ErrShape, ds.Len(), len(padded))
	}
	out := make([]Row, ds.Len())
	for i, s := range ds.Samples {
		var levels []int32
		for _, lv := range s.LevelOneHot {
			levels = append(levels, toInt32(lv)...)
		}
		out[i] = Row{
			ID:     s.ID,
			Tokens: toInt32(padded[i]),
			Labels: toInt32(s.Labels),
			OneHot: toInt32(s.OneHot),
			Levels: levels,
		}
	}
	return out, nil
}

// WriteParquet stores rows in a snappy-compressed parquet file.
func WriteParquet(path string, rows []Row) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create tensor file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(Row), parquetParallelism)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish tensor file: %w", err)
	}
	return nil
}

// ReadParquet loads every row of a tensor file written by WriteParquet.
func ReadParquet(path string) ([]Row, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open tensor file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Row), parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]Row, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read tensor file: %w", err)
	}
	return rows, nil
}

func toInt32(v []int) []int32 {
	out := make([]int32, len(v))
	for i, x := range v {
		out[i] = int32(x)
	}
	return out
}

func fromInt32(v []int32) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}
