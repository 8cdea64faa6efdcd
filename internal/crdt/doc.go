// Package crdt is the replicated document rooms are built on: named maps,
// lists and texts stored in one automerge document. Local writes are
// grouped into batches; every committed batch is published to OnUpdate
// handlers as encoded automerge changes, which any other replica merges
// with ApplyUpdate in any order.
//
// A Doc is safe for concurrent use. Transactions are not isolated across
// goroutines: a local mutation made from another goroutine while a
// transaction is open joins that transaction. Remote merges wait for the
// open transaction to commit.
package crdt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"saturuang/pkg/logger"
)

// ErrMalformedUpdate is returned for payloads that are not automerge data.
var ErrMalformedUpdate = errors.New("crdt: malformed update")

// automerge documents and change chunks both start with these bytes.
var chunkMagic = []byte{0x85, 0x6f, 0x4a, 0x83}

// genesisActor authors the shared schema change. Every replica builds the
// same change byte for byte, so it merges as one.
const genesisActor = "00"

// Event reports that a committed batch touched one structure. Remote
// merges notify every observer; readers should re-read the state.
type Event struct {
	Name   string
	Local  bool
	Origin any
}

// Schema lists the structures created up front on every replica.
// Replicas that share a document must be built with the same schema.
type Schema struct {
	Maps   []string
	Arrays []string
	Texts  []string
}

type txn struct {
	heads   []automerge.ChangeHash
	touched map[string]struct{}
}

// Doc is one replica of a shared document.
type Doc struct {
	am       *automerge.Doc
	clientID uint64
	schema   Schema

	write sync.Mutex // held for a whole top-level batch or merge

	mu             sync.Mutex
	txn            *txn
	nextHandler    int
	observers      map[string]map[int]func(Event)
	updateHandlers map[int]func(update []byte, origin any)
}

// Option configures a Doc.
type Option func(*Doc)

// WithClientID pins the replica id. Ids must be unique among the replicas
// of one document.
func WithClientID(id uint64) Option {
	return func(d *Doc) { d.clientID = id }
}

// WithSchema creates the named structures in a deterministic first change.
func WithSchema(s Schema) Option {
	return func(d *Doc) { d.schema = s }
}

// New creates an empty document with a random client id.
func New(opts ...Option) *Doc {
	u := uuid.New()
	d := &Doc{
		am:             automerge.New(),
		clientID:       binary.BigEndian.Uint64(u[:8]),
		observers:      make(map[string]map[int]func(Event)),
		updateHandlers: make(map[int]func([]byte, any)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.genesis(); err != nil {
		logger.Log.Error("crdt: schema change failed", zap.Error(err))
	}
	if err := d.am.SetActorID(fmt.Sprintf("%016x", d.clientID)); err != nil {
		logger.Log.Error("crdt: set actor", zap.Error(err))
	}
	return d
}

func (d *Doc) genesis() error {
	s := d.schema
	if len(s.Maps)+len(s.Arrays)+len(s.Texts) == 0 {
		return nil
	}
	if err := d.am.SetActorID(genesisActor); err != nil {
		return err
	}
	root := d.am.RootMap()
	for _, name := range sorted(s.Maps) {
		if err := root.Set(name, automerge.NewMap()); err != nil {
			return err
		}
	}
	for _, name := range sorted(s.Arrays) {
		if err := root.Set(name, automerge.NewList()); err != nil {
			return err
		}
	}
	for _, name := range sorted(s.Texts) {
		if err := root.Set(name, automerge.NewText("")); err != nil {
			return err
		}
	}
	_, err := d.am.Commit("", automerge.CommitOptions{Time: &time.Time{}})
	return err
}

// ClientID returns the id this replica writes under.
func (d *Doc) ClientID() uint64 {
	return d.clientID
}

// Map returns a handle on the named map. The map is created on first write.
func (d *Doc) Map(name string) *Map {
	return &Map{doc: d, name: name}
}

// Array returns a handle on the named list.
func (d *Doc) Array(name string) *Array {
	return &Array{doc: d, name: name}
}

// Text returns a handle on the named text.
func (d *Doc) Text(name string) *Text {
	return &Text{doc: d, name: name}
}

// Transact runs fn as one batch. Observers and update handlers fire once,
// after fn returns. Nested calls join the outer batch.
func (d *Doc) Transact(fn func()) {
	d.mu.Lock()
	if d.txn != nil {
		d.mu.Unlock()
		fn()
		return
	}
	d.mu.Unlock()

	d.write.Lock()
	t := &txn{heads: d.am.Heads(), touched: make(map[string]struct{})}
	d.mu.Lock()
	d.txn = t
	d.mu.Unlock()

	var update []byte
	func() {
		defer func() {
			d.mu.Lock()
			d.txn = nil
			d.mu.Unlock()
			update = d.commitLocked(t)
			d.write.Unlock()
		}()
		fn()
	}()

	if update == nil {
		return
	}
	names := make([]string, 0, len(t.touched))
	for name := range t.touched {
		names = append(names, name)
	}
	d.notify(sorted(names), update, nil, true)
}

// View runs fn with batches and merges held off, so reads inside it see
// one consistent state. fn must not write to the document.
func (d *Doc) View(fn func()) {
	d.write.Lock()
	defer d.write.Unlock()
	fn()
}

// mutate runs one write on the named structure inside the open batch, or
// in a batch of its own.
func (d *Doc) mutate(name string, fn func() error) {
	d.mu.Lock()
	t := d.txn
	d.mu.Unlock()
	if t == nil {
		d.Transact(func() { d.mutate(name, fn) })
		return
	}
	if err := fn(); err != nil {
		logger.Log.Error("crdt: write failed", zap.String("structure", name), zap.Error(err))
		return
	}
	d.mu.Lock()
	t.touched[name] = struct{}{}
	d.mu.Unlock()
}

// commitLocked commits pending operations and returns the encoded changes
// since the batch began, nil when nothing changed. Caller holds write.
func (d *Doc) commitLocked(t *txn) []byte {
	// Commit fails on an empty batch; Changes below is the real test.
	_, _ = d.am.Commit("")
	changes, err := d.am.Changes(t.heads...)
	if err != nil {
		logger.Log.Error("crdt: read changes", zap.Error(err))
		return nil
	}
	if len(changes) == 0 {
		return nil
	}
	return automerge.SaveChanges(changes)
}

// OnUpdate registers fn to receive the encoded changes of every committed
// batch, local or remote. The returned func unregisters it.
func (d *Doc) OnUpdate(fn func(update []byte, origin any)) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextHandler
	d.nextHandler++
	d.updateHandlers[id] = fn
	return func() {
		d.mu.Lock()
		delete(d.updateHandlers, id)
		d.mu.Unlock()
	}
}

func (d *Doc) observe(name string, fn func(Event)) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextHandler
	d.nextHandler++
	obs, ok := d.observers[name]
	if !ok {
		obs = make(map[int]func(Event))
		d.observers[name] = obs
	}
	obs[id] = fn
	return func() {
		d.mu.Lock()
		delete(d.observers[name], id)
		d.mu.Unlock()
	}
}

// ApplyUpdate merges changes produced by another replica's OnUpdate or
// EncodeState. Changes already seen are ignored; changes whose
// dependencies are missing wait until those arrive.
func (d *Doc) ApplyUpdate(data []byte, origin any) error {
	if !bytes.HasPrefix(data, chunkMagic) {
		return ErrMalformedUpdate
	}

	d.write.Lock()
	before := d.am.Heads()
	if err := d.am.LoadIncremental(data); err != nil {
		d.write.Unlock()
		return fmt.Errorf("crdt: apply update: %w", err)
	}
	changes, err := d.am.Changes(before...)
	d.write.Unlock()
	if err != nil {
		return fmt.Errorf("crdt: read changes: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}

	d.mu.Lock()
	names := make([]string, 0, len(d.observers))
	for name := range d.observers {
		names = append(names, name)
	}
	d.mu.Unlock()
	d.notify(sorted(names), automerge.SaveChanges(changes), origin, false)
	return nil
}

// EncodeState returns the whole document, suitable for ApplyUpdate.
func (d *Doc) EncodeState() ([]byte, error) {
	d.write.Lock()
	defer d.write.Unlock()
	return d.am.Save(), nil
}

func (d *Doc) notify(names []string, update []byte, origin any, local bool) {
	type call struct {
		fn func(Event)
		ev Event
	}
	var calls []call

	d.mu.Lock()
	for _, name := range names {
		obs := d.observers[name]
		ev := Event{Name: name, Local: local, Origin: origin}
		for _, id := range sortedKeys(obs) {
			calls = append(calls, call{fn: obs[id], ev: ev})
		}
	}
	handlers := make([]func([]byte, any), 0, len(d.updateHandlers))
	for _, id := range sortedKeys(d.updateHandlers) {
		handlers = append(handlers, d.updateHandlers[id])
	}
	d.mu.Unlock()

	for _, c := range calls {
		c.fn(c.ev)
	}
	for _, h := range handlers {
		h(update, origin)
	}
}

// value reads the root entry name, nil when it is missing.
func (d *Doc) value(name string) *automerge.Value {
	v, err := d.am.Path(name).Get()
	if err != nil {
		logger.Log.Error("crdt: read failed", zap.String("structure", name), zap.Error(err))
		return nil
	}
	if v.IsVoid() {
		return nil
	}
	return v
}

func sorted(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
