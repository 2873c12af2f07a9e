package writer

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"optionflow/internal/channel"
)

// StrikeRecord is one archived strike row with the cycle's headline numbers
// repeated on it.
type StrikeRecord struct {
	CycleID          string  `parquet:"name=cycle_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol           string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	AnalyzedAt       int64   `parquet:"name=analyzed_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Strike           float64 `parquet:"name=strike, type=DOUBLE"`
	CEVolume         int64   `parquet:"name=ce_volume, type=INT64"`
	CEOIChange       int64   `parquet:"name=ce_oi_change, type=INT64"`
	PEVolume         int64   `parquet:"name=pe_volume, type=INT64"`
	PEOIChange       int64   `parquet:"name=pe_oi_change, type=INT64"`
	CEStrength       float64 `parquet:"name=ce_strength, type=DOUBLE"`
	PEStrength       float64 `parquet:"name=pe_strength, type=DOUBLE"`
	CEBuyPower       float64 `parquet:"name=ce_buy_power, type=DOUBLE"`
	PEBuyPower       float64 `parquet:"name=pe_buy_power, type=DOUBLE"`
	CEWriterStrength int64   `parquet:"name=ce_writer_strength, type=INT64"`
	PEWriterStrength int64   `parquet:"name=pe_writer_strength, type=INT64"`
	TotalOI          int64   `parquet:"name=total_oi, type=INT64"`
	PCR              float64 `parquet:"name=pcr, type=DOUBLE"`
	MaxPain          float64 `parquet:"name=max_pain, type=DOUBLE"`
	Support          float64 `parquet:"name=support, type=DOUBLE"`
	Resistance       float64 `parquet:"name=resistance, type=DOUBLE"`
	Trend            string  `parquet:"name=trend, type=BYTE_ARRAY, convertedtype=UTF8"`
	FinalTrend       string  `parquet:"name=final_trend, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// recordsOf flattens one analysis into rows. Unavailable cycles have none.
func recordsOf(msg channel.AnalysisMessage) []StrikeRecord {
	if msg.Unavailable {
		return nil
	}
	res := msg.Result
	out := make([]StrikeRecord, 0, len(res.Rows))
	for _, r := range res.Rows {
		out = append(out, StrikeRecord{
			CycleID:          msg.CycleID,
			Symbol:           msg.Symbol,
			AnalyzedAt:       msg.AnalyzedAt.UnixMilli(),
			Strike:           r.Strike,
			CEVolume:         r.CEVolume,
			CEOIChange:       r.CEOIChange,
			PEVolume:         r.PEVolume,
			PEOIChange:       r.PEOIChange,
			CEStrength:       r.CEStrength,
			PEStrength:       r.PEStrength,
			CEBuyPower:       r.CEBuyPower,
			PEBuyPower:       r.PEBuyPower,
			CEWriterStrength: r.CEWriterStrength,
			PEWriterStrength: r.PEWriterStrength,
			TotalOI:          r.TotalOI,
			PCR:              res.PCR,
			MaxPain:          res.MaxPain,
			Support:          res.Support,
			Resistance:       res.Resistance,
			Trend:            string(res.Trend),
			FinalTrend:       string(res.FinalTrend),
		})
	}
	return out
}

// memoryFile is a write-only source.ParquetFile backed by a buffer.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (m *memoryFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFile) Open(string) (source.ParquetFile, error)   { return m, nil }

// Seek only reports the write position; the parquet writer never seeks back.
func (m *memoryFile) Seek(int64, int) (int64, error) { return int64(m.buffer.Len()), nil }
func (m *memoryFile) Read(b []byte) (int, error)     { return m.buffer.Read(b) }
func (m *memoryFile) Write(b []byte) (int, error)    { return m.buffer.Write(b) }
func (m *memoryFile) Close() error                   { return nil }
func (m *memoryFile) Bytes() []byte                  { return m.buffer.Bytes() }

func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// encodeParquet writes records into an in-memory parquet file.
func encodeParquet(records []StrikeRecord, compression string) ([]byte, error) {
	fw := newMemoryFile()

	pw, err := writer.NewParquetWriter(fw, new(StrikeRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}
