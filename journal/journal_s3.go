/*
Copyright (C) 2026  Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Journal lays out segments exactly the way storage/persistence-s3.go's
// S3Logfile does: S3 has no append, so each segment is buffered locally
// and replaced wholesale on flush, with a JSON manifest object listing
// live segment numbers so replay doesn't need a pool-wide (bucket-wide)
// listing.
type s3Journal struct {
	cfg s3JournalConfig

	mu     sync.Mutex
	client *s3.Client
	seg    uint32
	offset int64
	buf    bytes.Buffer

	flushEveryBytes int
}

type s3JournalConfig struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	ForcePathStyle  bool   `json:"force_path_style"`
	MaxSegmentBytes int64  `json:"max_segment_bytes"`
}

func init() {
	BackendRegistry["s3"] = newS3Journal
}

func newS3Journal(raw json.RawMessage) (Journal, error) {
	var cfg s3JournalConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("journal: s3 backend: invalid config: %w", err)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("journal: s3 backend: bucket is required")
	}
	if cfg.MaxSegmentBytes <= 0 {
		cfg.MaxSegmentBytes = 64 << 20
	}

	ctx := context.Background()
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("journal: s3 backend: loading AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.ForcePathStyle {
		clientOpts = append(clientOpts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	client := s3.NewFromConfig(awsCfg, clientOpts...)

	j := &s3Journal{cfg: cfg, client: client, flushEveryBytes: 256 * 1024}
	if err := j.openOrCreateActiveSegment(ctx); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *s3Journal) key(name string) string {
	if j.cfg.Prefix == "" {
		return name
	}
	return j.cfg.Prefix + "/" + name
}

func (j *s3Journal) manifestKey() string { return j.key("journal.manifest") }
func (j *s3Journal) segmentKey(seg uint32) string {
	return j.key(fmt.Sprintf("journal.log.%08d", seg))
}

func (j *s3Journal) listSegments(ctx context.Context) ([]uint32, error) {
	resp, err := j.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(j.cfg.Bucket),
		Key:    aws.String(j.manifestKey()),
	})
	if err != nil {
		return nil, nil // no manifest yet: empty journal
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil || len(raw) == 0 {
		return nil, nil
	}
	var segs []uint32
	if err := json.Unmarshal(raw, &segs); err != nil {
		return nil, fmt.Errorf("journal: s3 backend: corrupt manifest: %w", err)
	}
	return segs, nil
}

func (j *s3Journal) writeManifest(ctx context.Context, segs []uint32) error {
	raw, _ := json.Marshal(segs)
	_, err := j.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(j.cfg.Bucket),
		Key:    aws.String(j.manifestKey()),
		Body:   bytes.NewReader(raw),
	})
	return err
}

func (j *s3Journal) openOrCreateActiveSegment(ctx context.Context) error {
	segs, err := j.listSegments(ctx)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		j.seg = 0
		if err := j.writeManifest(ctx, []uint32{0}); err != nil {
			return fmt.Errorf("journal: s3 backend: writing initial manifest: %w", err)
		}
		j.offset = 0
		return nil
	}
	sort.Slice(segs, func(i, k int) bool { return segs[i] < segs[k] })
	j.seg = segs[len(segs)-1]

	head, err := j.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(j.cfg.Bucket),
		Key:    aws.String(j.segmentKey(j.seg)),
	})
	if err == nil && head.ContentLength != nil {
		j.offset = *head.ContentLength
	}
	return nil
}

func (j *s3Journal) Append(frame []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.buf.Write(frame)
	j.buf.WriteByte('\n')
	if j.buf.Len() >= j.flushEveryBytes {
		return j.flushLocked(context.Background())
	}
	return nil
}

func (j *s3Journal) flushLocked(ctx context.Context) error {
	if j.buf.Len() == 0 {
		return nil
	}
	if j.offset+int64(j.buf.Len()) > j.cfg.MaxSegmentBytes {
		if err := j.rolloverLocked(ctx); err != nil {
			return err
		}
	}

	var existing []byte
	if j.offset > 0 {
		resp, err := j.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(j.cfg.Bucket),
			Key:    aws.String(j.segmentKey(j.seg)),
		})
		if err == nil {
			existing, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
		}
	}

	newData := append(existing, j.buf.Bytes()...)
	if _, err := j.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(j.cfg.Bucket),
		Key:    aws.String(j.segmentKey(j.seg)),
		Body:   bytes.NewReader(newData),
	}); err != nil {
		return fmt.Errorf("journal: s3 backend: flushing segment %d: %w", j.seg, err)
	}
	j.offset += int64(j.buf.Len())
	j.buf.Reset()
	return nil
}

func (j *s3Journal) rolloverLocked(ctx context.Context) error {
	segs, err := j.listSegments(ctx)
	if err != nil {
		return err
	}
	next := j.seg + 1
	segs = append(segs, next)
	if err := j.writeManifest(ctx, segs); err != nil {
		return fmt.Errorf("journal: s3 backend: updating manifest for rollover: %w", err)
	}
	j.seg = next
	j.offset = 0
	return nil
}

func (j *s3Journal) Operations(ctx context.Context) (<-chan []byte, error) {
	segs, err := j.listSegments(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(segs, func(i, k int) bool { return segs[i] < segs[k] })

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for _, seg := range segs {
			resp, err := j.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(j.cfg.Bucket),
				Key:    aws.String(j.segmentKey(seg)),
			})
			if err != nil {
				continue
			}
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				continue
			}
			for _, line := range bytes.Split(data, []byte("\n")) {
				if len(line) == 0 {
					continue
				}
				frame := make([]byte, len(line))
				copy(frame, line)
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (j *s3Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked(context.Background())
}

func (j *s3Journal) Close() error {
	return j.Sync()
}
