package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"sonarchart/internal/sim/world"
)

// ListFiles returns the <prefix>-*.jsonl.zst files in dir in chronological
// order. The hour stamp in the name sorts lexically.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ReadJSONL decodes every line of a zstd-compressed JSONL file, calling fn
// with the raw bytes. Concatenated zstd frames from appended writes are read
// as one stream.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), n, err)
		}
	}
	return sc.Err()
}

// ReadTicks decodes the tick entries of one log file in order.
func ReadTicks(path string, fn func(world.TickLogEntry) error) error {
	return ReadJSONL(path, func(line []byte) error {
		var e world.TickLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		return fn(e)
	})
}

// ReadRunTicks reads every tick log under a run directory in file order.
func ReadRunTicks(runDir string, fn func(world.TickLogEntry) error) error {
	files, err := ListFiles(TickDir(runDir), TickPrefix)
	if err != nil {
		return err
	}
	for _, p := range files {
		if err := ReadTicks(p, fn); err != nil {
			return err
		}
	}
	return nil
}
