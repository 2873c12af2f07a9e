// Package replay loads previously captured option-chain payloads from a
// local file or an S3 object and feeds them through the same pipeline as
// live NSE data.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"optionflow/config"
	"optionflow/internal/channel"
	"optionflow/internal/objectstore"
	"optionflow/logger"
	"optionflow/models"
)

const sourceName = "replay"

// Location is either a local Path or an S3 Bucket/Key pair.
type Location struct {
	Bucket string
	Key    string
	Path   string
}

func (l Location) IsS3() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.IsS3() {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// ParseLocation accepts "s3://bucket/key" or a filesystem path.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("empty location")
	}
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return Location{Path: raw}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid s3 location %q: want s3://bucket/key", raw)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// ObjectGetter is the part of the S3 client the source uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source reads captured chains. The S3 client is built on first use so
// local replays need no AWS configuration.
type Source struct {
	cfg config.S3Config
	log *logger.Log

	once  sync.Once
	s3    ObjectGetter
	s3Err error
}

func NewSource(cfg config.S3Config) *Source {
	return &Source{cfg: cfg, log: logger.GetLogger()}
}

// NewSourceWithClient uses getter for every S3 read.
func NewSourceWithClient(cfg config.S3Config, getter ObjectGetter) *Source {
	s := NewSource(cfg)
	s.once.Do(func() { s.s3 = getter })
	return s
}

// Load returns the raw payload stored at loc.
func (s *Source) Load(ctx context.Context, raw string) ([]byte, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}

	log := s.log.WithComponent("replay").WithFields(logger.Fields{"location": loc.String()})
	start := time.Now()

	var data []byte
	if loc.IsS3() {
		data, err = s.loadS3(ctx, loc)
	} else {
		data, err = os.ReadFile(loc.Path)
	}
	if err != nil {
		log.WithError(err).Warn("failed to load captured chain")
		return nil, fmt.Errorf("load %s: %w", loc, err)
	}

	logger.LogPerformanceEntry(log, "replay", "load_chain", time.Since(start), logger.Fields{"bytes": len(data)})
	return data, nil
}

// Replay loads loc and publishes it on the raw channel as symbol.
func (s *Source) Replay(ctx context.Context, raw, symbol string, ch *channel.Channels) error {
	data, err := s.Load(ctx, raw)
	if err != nil {
		return err
	}
	msg := models.RawChainMessage{
		Symbol:    symbol,
		Source:    sourceName,
		Data:      data,
		Timestamp: time.Now(),
	}
	if !ch.SendRaw(ctx, msg) {
		return fmt.Errorf("raw channel full or closed; replay of %s dropped", raw)
	}
	logger.LogDataFlowEntry(s.log.WithComponent("replay"), sourceName, "analyzer", 1, "option_chain")
	return nil
}

func (s *Source) loadS3(ctx context.Context, loc Location) ([]byte, error) {
	s.once.Do(func() {
		s.s3, s.s3Err = objectstore.NewS3Client(ctx, s.cfg)
	})
	if s.s3Err != nil {
		return nil, s.s3Err
	}

	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
