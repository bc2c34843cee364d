package shim

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var cborEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

var errCIDMismatch = errors.New("shim: gallery record does not match its CID")

// record is one enrolled identity as stored on disk.
type record struct {
	UUID     string    `cbor:"1,keyasint"`
	Vector   []float64 `cbor:"2,keyasint"`
	Enrolled int64     `cbor:"3,keyasint"`
}

// gallery keeps enrolled records in a content-addressed directory. Records
// are immutable; index.cbor maps each UUID to the CID of its record.
type gallery struct {
	mu      sync.Mutex
	root    string
	index   *treemap.Map // uuid -> cid string
	records map[string]record
}

func contentID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

func openGallery(workDir string) (*gallery, error) {
	root := filepath.Join(workDir, "shim", "gallery")
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	g := &gallery{
		root:    root,
		index:   treemap.NewWithStringComparator(),
		records: make(map[string]record),
	}

	data, err := os.ReadFile(g.indexPath())
	if os.IsNotExist(err) {
		return g, nil
	}
	if err != nil {
		return nil, err
	}
	var idx map[string]string
	if err := cbor.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	for id, c := range idx {
		rec, err := g.load(c)
		if err != nil {
			return nil, err
		}
		g.index.Put(id, c)
		g.records[id] = rec
	}
	return g, nil
}

func (g *gallery) indexPath() string {
	return filepath.Join(g.root, "index.cbor")
}

func (g *gallery) pathFor(c string) string {
	if len(c) < 2 {
		return filepath.Join(g.root, c)
	}
	return filepath.Join(g.root, c[:2], c)
}

func (g *gallery) load(c string) (record, error) {
	want, err := cid.Decode(c)
	if err != nil {
		return record{}, err
	}
	data, err := os.ReadFile(g.pathFor(c))
	if err != nil {
		return record{}, err
	}
	got, err := contentID(data)
	if err != nil {
		return record{}, err
	}
	if !got.Equals(want) {
		return record{}, errCIDMismatch
	}
	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return record{}, err
	}
	return rec, nil
}

// add stores rec and returns its CID.
func (g *gallery) add(uuid string, vec []float64) (string, error) {
	rec := record{UUID: uuid, Vector: vec, Enrolled: time.Now().Unix()}
	data, err := cborEnc.Marshal(rec)
	if err != nil {
		return "", err
	}
	id, err := contentID(data)
	if err != nil {
		return "", err
	}
	c := id.String()

	g.mu.Lock()
	defer g.mu.Unlock()

	path := g.pathFor(c)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, data, 0o400); err != nil {
			return "", err
		}
	}
	g.index.Put(uuid, c)
	g.records[uuid] = rec
	if err := g.persistIndex(); err != nil {
		g.index.Remove(uuid)
		delete(g.records, uuid)
		return "", err
	}
	return c, nil
}

func (g *gallery) persistIndex() error {
	idx := make(map[string]string, g.index.Size())
	it := g.index.Iterator()
	for it.Next() {
		idx[it.Key().(string)] = it.Value().(string)
	}
	data, err := cborEnc.Marshal(idx)
	if err != nil {
		return err
	}
	tmp := g.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, g.indexPath())
}

// best returns the enrolled identity closest to vec. Ties go to the smaller
// UUID.
func (g *gallery) best(vec []float64) (uuid string, sim float64, found bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sim = -2
	it := g.index.Iterator()
	for it.Next() {
		id := it.Key().(string)
		s := cosine(vec, g.records[id].Vector)
		if s > sim {
			uuid, sim, found = id, s, true
		}
	}
	return uuid, sim, found
}

// Len returns the number of enrolled identities.
func (g *gallery) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index.Size()
}
