// Command recordstore runs a smoke pass over the storage core: create a
// record file, insert and read records, delete some, scan the rest.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tuannm99/recordstore/internal"
	"github.com/tuannm99/recordstore/internal/bufferpool"
	"github.com/tuannm99/recordstore/internal/record"
	"github.com/tuannm99/recordstore/internal/storage"
	"github.com/tuannm99/recordstore/pkg/logger"
)

const demoRecordSize = 32

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("demo failed", zap.Error(err))
	}
}

func run(cfg *internal.RecordStoreConfig, log *zap.Logger) error {
	if err := os.MkdirAll(cfg.Storage.Workdir, storage.FileMode0755); err != nil {
		return err
	}
	path := filepath.Join(cfg.Storage.Workdir, "demo.rdb")

	dm := storage.NewDiskManager()
	pool := bufferpool.NewPool(dm, cfg.Storage.PoolSize, log)
	mgr := record.NewManager(dm, pool, log)

	if err := mgr.CreateFile(path, demoRecordSize); err != nil && !errors.Is(err, storage.ErrFileExists) {
		return err
	}

	fh, err := mgr.OpenFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := mgr.CloseFile(fh); cerr != nil {
			log.Error("close file", zap.Error(cerr))
		}
	}()

	// Insert a batch of records.
	var rids []record.Rid
	for i := 0; i < 10; i++ {
		data := make([]byte, demoRecordSize)
		copy(data, fmt.Sprintf("record-%02d", i))
		rid, err := fh.InsertRecord(data)
		if err != nil {
			return err
		}
		rids = append(rids, rid)
		log.Info("inserted", zap.Stringer("rid", rid))
	}

	// Delete every other one.
	for i, rid := range rids {
		if i%2 == 1 {
			if err := fh.DeleteRecord(rid); err != nil {
				return err
			}
			log.Info("deleted", zap.Stringer("rid", rid))
		}
	}

	// Scan what remains.
	scan, err := record.NewScan(fh)
	if err != nil {
		return err
	}
	for !scan.IsEnd() {
		data, err := fh.GetRecord(scan.Rid())
		if err != nil {
			return err
		}
		log.Info("scanned",
			zap.Stringer("rid", scan.Rid()),
			zap.ByteString("data", data[:9]))
		if err := scan.Next(); err != nil {
			return err
		}
	}

	hdr := fh.Header()
	log.Info("done",
		zap.Int32("num_pages", hdr.NumPages),
		zap.Int32("num_records", hdr.NumRecords))
	return nil
}
