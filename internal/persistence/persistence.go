// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

// Package persistence implements the SAVE/BGSAVE snapshot format: a
// gob-encoded, zstd-compressed dump of every database's live keys,
// guarded by a directory-wide flock so two instances never write the
// same dump file concurrently.
package persistence

import (
	"bytes"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/ferrousdb/ferrous/internal/store"
)

// flatEntry is the on-disk shape of one key: a plain, gob-friendly
// flattening of store.Entry that round-trips through each container's
// exported accessors rather than its internal fields.
type flatEntry struct {
	Key      string
	Type     store.ValueType
	ExpireAt int64 // unix nanos, 0 means no expiry
	Str      []byte
	List     [][]byte
	Set      []string
	Hash     map[string]string
	ZMembers []string
	ZScores  []float64
	Stream   flatStream
}

type flatStream struct {
	Entries []store.StreamEntry
	LastID  store.StreamID
	Groups  []flatGroup
}

// flatGroup carries a consumer group's cursor and pending index; group
// state persists with its stream.
type flatGroup struct {
	Name          string
	LastDelivered store.StreamID
	Consumers     []string
	Pending       []store.PendingEntry
}

type flatDB struct {
	Index   int
	Entries []flatEntry
}

type snapshot struct {
	Version int
	Saved   int64
	DBs     []flatDB
}

// Lock acquires dir's single-instance snapshot lock, non-blocking: a
// second process pointed at the same dir fails fast rather than
// corrupting the dump.
func Lock(dir string) (*flock.Flock, error) {
	fl := flock.New(filepath.Join(dir, ".ferrous.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "acquiring data directory lock")
	}
	if !ok {
		return nil, errors.Errorf("data directory %q is locked by another ferrous instance", dir)
	}
	return fl, nil
}

// Save snapshots every database in ks to dir/filename, zstd-compressed.
func Save(ks *store.Keyspace, dir, filename string) error {
	snap := snapshot{Version: 1, Saved: time.Now().UnixNano()}
	for i := 0; i < ks.Count(); i++ {
		var fdb flatDB
		fdb.Index = i
		ks.DB(i).Do(func(tx *store.Tx) error {
			for _, key := range tx.Keys("*") {
				e, ok := tx.Entry(key)
				if !ok {
					continue
				}
				fdb.Entries = append(fdb.Entries, flattenEntry(key, e))
			}
			return nil
		})
		if len(fdb.Entries) > 0 {
			snap.DBs = append(snap.DBs, fdb)
		}
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(snap); err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}

	path := filepath.Join(dir, filename)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating snapshot file")
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return errors.Wrap(err, "opening zstd writer")
	}
	if _, err := zw.Write(raw.Bytes()); err != nil {
		zw.Close()
		return errors.Wrap(err, "writing snapshot body")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "flushing zstd writer")
	}
	return os.Rename(tmp, path)
}

// Load populates ks from dir/filename. A missing file is not an error:
// a fresh data directory simply starts empty.
func Load(ks *store.Keyspace, dir, filename string) error {
	path := filepath.Join(dir, filename)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "opening snapshot file")
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "opening zstd reader")
	}
	defer zr.Close()

	body, err := io.ReadAll(zr)
	if err != nil {
		return errors.Wrap(err, "reading snapshot body")
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decoding snapshot")
	}

	for _, fdb := range snap.DBs {
		if fdb.Index >= ks.Count() {
			continue
		}
		ks.DB(fdb.Index).Do(func(tx *store.Tx) error {
			for _, fe := range fdb.Entries {
				e := inflateEntry(fe)
				tx.Put(fe.Key, e)
				if fe.ExpireAt != 0 {
					tx.SetExpire(fe.Key, time.Unix(0, fe.ExpireAt))
				}
			}
			return nil
		})
	}
	return nil
}

func flattenEntry(key string, e *store.Entry) flatEntry {
	fe := flatEntry{Key: key, Type: e.Type}
	if !e.ExpireAt.IsZero() {
		fe.ExpireAt = e.ExpireAt.UnixNano()
	}
	switch v := e.Val.(type) {
	case *store.StringVal:
		fe.Str = append([]byte(nil), v.Bytes...)
	case *store.ListVal:
		fe.List = v.Range(0, -1)
	case *store.SetVal:
		fe.Set = v.Members()
	case *store.HashVal:
		fe.Hash = v.All()
	case *store.ZSetVal:
		for _, it := range v.RangeByRank(0, -1, false) {
			fe.ZMembers = append(fe.ZMembers, it.Member())
			fe.ZScores = append(fe.ZScores, it.Score())
		}
	case *store.StreamVal:
		fe.Stream.Entries = v.Entries()
		fe.Stream.LastID = v.LastID()
		for _, name := range v.GroupNames() {
			g, _ := v.Group(name)
			fg := flatGroup{Name: name, LastDelivered: g.LastDelivered}
			for c := range g.Consumers {
				fg.Consumers = append(fg.Consumers, c)
			}
			for _, pe := range g.Pending {
				fg.Pending = append(fg.Pending, *pe)
			}
			fe.Stream.Groups = append(fe.Stream.Groups, fg)
		}
	}
	return fe
}

func inflateEntry(fe flatEntry) *store.Entry {
	e := &store.Entry{Type: fe.Type}
	switch fe.Type {
	case store.TypeString:
		e.Val = store.NewStringVal(fe.Str)
	case store.TypeList:
		lv := store.NewListVal()
		for _, b := range fe.List {
			lv.PushRight(b)
		}
		e.Val = lv
	case store.TypeSet:
		sv := store.NewSetVal()
		for _, m := range fe.Set {
			sv.Add(m)
		}
		e.Val = sv
	case store.TypeHash:
		hv := store.NewHashVal()
		for f, val := range fe.Hash {
			hv.Set(f, val)
		}
		e.Val = hv
	case store.TypeZSet:
		zv := store.NewZSetVal()
		for i, m := range fe.ZMembers {
			zv.Set(m, fe.ZScores[i])
		}
		e.Val = zv
	case store.TypeStream:
		sv := store.NewStreamVal()
		for _, se := range fe.Stream.Entries {
			sv.Append(se.ID, se.Fields)
		}
		sv.RestoreLastID(fe.Stream.LastID)
		for _, fg := range fe.Stream.Groups {
			g := store.NewConsumerGroup(fg.LastDelivered)
			for _, c := range fg.Consumers {
				g.Consumers[c] = true
			}
			for i := range fg.Pending {
				pe := fg.Pending[i]
				g.Pending[pe.ID] = &pe
			}
			sv.RestoreGroup(fg.Name, g)
		}
		e.Val = sv
	default:
		e.Val = store.NewStringVal(nil)
	}
	return e
}
