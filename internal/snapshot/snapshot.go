// Package snapshot exports collections as canonical Extended JSON, one
// record per line, and loads such exports back.
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gogotex/docsync/internal/odm"
	"github.com/gogotex/docsync/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
)

const ContentType = "application/x-ndjson"

// Sink stores an export under key. Exports are streamed, so size is -1
// and r ends with an error if producing the export fails.
type Sink interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

// Source reads an export back.
type Source interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// errSinkGone is what the export side sees once the sink stopped reading.
var errSinkGone = errors.New("snapshot: sink stopped reading")

// Export streams every document of p matching query through its cursor,
// packs it with the collection's schema and pipes the encoded lines into
// sink as they are produced. It returns the number of records written.
func Export(ctx context.Context, p odm.Proxy, query interface{}, sink Sink, key string) (int, error) {
	schema := p.Schema()
	pr, pw := io.Pipe()
	n := 0
	done := make(chan error, 1)
	go func() {
		w := bufio.NewWriter(pw)
		err := p.Each(ctx, query, func(m odm.Model) error {
			packed, err := odm.Pack(m, schema)
			if err != nil {
				return err
			}
			line, err := bson.MarshalExtJSON(packed, true, false)
			if err != nil {
				return fmt.Errorf("snapshot: encode record %d: %w", n, err)
			}
			if _, err := w.Write(line); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
			n++
			return nil
		}, odm.Sort("_id"))
		if err == nil {
			err = w.Flush()
		}
		pw.CloseWithError(err)
		done <- err
	}()

	putErr := sink.Put(ctx, key, pr, -1)
	pr.CloseWithError(errSinkGone)
	exportErr := <-done
	if exportErr != nil && !errors.Is(exportErr, errSinkGone) {
		return 0, exportErr
	}
	if putErr != nil {
		return 0, fmt.Errorf("snapshot: store %s: %w", key, putErr)
	}
	if exportErr != nil {
		return 0, exportErr
	}
	logger.Named("snapshot").Infof("exported %d %s records to %s", n, p.Name(), key)
	return n, nil
}

// Restore stores every record of the export under key through p. Each
// record is converted to p's model before it is written, so a line that
// does not fit stops the restore with nothing of it stored. Records keep
// their _id; restoring into a collection that still holds them fails on the
// first duplicate.
func Restore(ctx context.Context, p odm.Proxy, src Source, key string) (int, error) {
	rc, err := src.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("snapshot: open %s: %w", key, err)
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var d bson.D
		if err := bson.UnmarshalExtJSON(line, true, &d); err != nil {
			return n, fmt.Errorf("snapshot: decode line %d: %w", n+1, err)
		}
		raw, err := bson.Marshal(d)
		if err != nil {
			return n, fmt.Errorf("snapshot: encode line %d: %w", n+1, err)
		}
		if _, err := p.Restore(ctx, raw); err != nil {
			var convErr *odm.ConversionError
			if errors.As(err, &convErr) {
				return n, fmt.Errorf("snapshot: line %d: %w", n+1, err)
			}
			return n, err
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, err
	}
	logger.Named("snapshot").Infof("restored %d %s records from %s", n, p.Name(), key)
	return n, nil
}
