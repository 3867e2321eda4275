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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ulikunitz/xz"
)

// fileJournal is a sequence of newline-delimited-JSON segments on local
// disk, grounded on storage/persistence-files.go's FileStorage log
// handling: one active, append-only segment, rotated once it crosses a
// size threshold. Unlike the teacher (which keeps rotated logs as plain
// text), rotated segments here are compressed in place with
// github.com/ulikunitz/xz, the same library scm/streams.go reaches for
// when it needs transparent (de)compression.
type fileJournal struct {
	mu sync.Mutex

	dir             string
	maxSegmentBytes int64

	activeSeg int
	f         *os.File
	written   int64
}

const activeSuffix = ".ndjson"
const rotatedSuffix = ".ndjson.xz"

func init() {
	BackendRegistry["file"] = newFileJournal
}

type fileConfig struct {
	Dir             string `json:"dir"`
	MaxSegmentBytes int64  `json:"max_segment_bytes"`
}

func newFileJournal(raw json.RawMessage) (Journal, error) {
	var cfg fileConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("journal: file backend: invalid config: %w", err)
		}
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("journal: file backend: dir is required")
	}
	if cfg.MaxSegmentBytes <= 0 {
		cfg.MaxSegmentBytes = 64 << 20
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("journal: file backend: %w", err)
	}

	seg, f, written, err := openOrCreateActiveSegment(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return &fileJournal{dir: cfg.Dir, maxSegmentBytes: cfg.MaxSegmentBytes, activeSeg: seg, f: f, written: written}, nil
}

func segmentPath(dir string, seg int, suffix string) string {
	return filepath.Join(dir, fmt.Sprintf("%08d%s", seg, suffix))
}

func openOrCreateActiveSegment(dir string) (int, *os.File, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("journal: file backend: listing %s: %w", dir, err)
	}
	highest := -1
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), activeSuffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(e.Name(), activeSuffix))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	seg := 0
	if highest >= 0 {
		seg = highest
	}
	f, err := os.OpenFile(segmentPath(dir, seg, activeSuffix), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("journal: file backend: opening segment %d: %w", seg, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, nil, 0, fmt.Errorf("journal: file backend: stat segment %d: %w", seg, err)
	}
	return seg, f, stat.Size(), nil
}

func (j *fileJournal) Append(frame []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	n, err := j.f.Write(append(append([]byte{}, frame...), '\n'))
	if err != nil {
		return fmt.Errorf("journal: file backend: append: %w", err)
	}
	j.written += int64(n)
	if j.written >= j.maxSegmentBytes {
		return j.rotateLocked()
	}
	return nil
}

// rotateLocked closes the active segment, compresses it in place with
// xz, and opens a fresh active segment. Caller holds j.mu.
func (j *fileJournal) rotateLocked() error {
	closingSeg := j.activeSeg
	closingPath := segmentPath(j.dir, closingSeg, activeSuffix)

	if err := j.f.Close(); err != nil {
		return fmt.Errorf("journal: file backend: closing segment %d for rotation: %w", closingSeg, err)
	}
	if err := compressSegment(closingPath, segmentPath(j.dir, closingSeg, rotatedSuffix)); err != nil {
		return fmt.Errorf("journal: file backend: compressing segment %d: %w", closingSeg, err)
	}
	if err := os.Remove(closingPath); err != nil {
		return fmt.Errorf("journal: file backend: removing uncompressed segment %d: %w", closingSeg, err)
	}

	nextSeg := closingSeg + 1
	f, err := os.OpenFile(segmentPath(j.dir, nextSeg, activeSuffix), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("journal: file backend: opening segment %d: %w", nextSeg, err)
	}
	j.activeSeg = nextSeg
	j.f = f
	j.written = 0
	return nil
}

func compressSegment(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	w, err := xz.NewWriter(dst)
	if err != nil {
		return err
	}
	if _, err := copyAll(w, src); err != nil {
		return err
	}
	return w.Close()
}

func copyAll(dst *xz.Writer, src *os.File) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if readErr != nil {
			if readErr == io.EOF {
				return total, nil
			}
			return total, readErr
		}
	}
}

func (j *fileJournal) Operations(ctx context.Context) (<-chan []byte, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: file backend: listing %s: %w", j.dir, err)
	}

	type segRef struct {
		seg      int
		path     string
		isActive bool
	}
	var segs []segRef
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch {
		case strings.HasSuffix(e.Name(), rotatedSuffix):
			n, err := strconv.Atoi(strings.TrimSuffix(e.Name(), rotatedSuffix))
			if err == nil {
				segs = append(segs, segRef{seg: n, path: filepath.Join(j.dir, e.Name())})
			}
		case strings.HasSuffix(e.Name(), activeSuffix):
			n, err := strconv.Atoi(strings.TrimSuffix(e.Name(), activeSuffix))
			if err == nil {
				segs = append(segs, segRef{seg: n, path: filepath.Join(j.dir, e.Name()), isActive: true})
			}
		}
	}
	sort.Slice(segs, func(i, k int) bool { return segs[i].seg < segs[k].seg })

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for _, s := range segs {
			if err := emitSegment(ctx, s.path, !s.isActive, out); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	return out, nil
}

func emitSegment(ctx context.Context, path string, compressed bool, out chan<- []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("journal: file backend: opening %s for replay: %w", path, err)
	}
	defer f.Close()

	var scanner *bufio.Scanner
	if compressed {
		r, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("journal: file backend: xz reader for %s: %w", path, err)
		}
		scanner = bufio.NewScanner(r)
	} else {
		scanner = bufio.NewScanner(f)
	}
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (j *fileJournal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("journal: file backend: sync: %w", err)
	}
	return nil
}

func (j *fileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.f.Close(); err != nil {
		return fmt.Errorf("journal: file backend: close: %w", err)
	}
	return nil
}
