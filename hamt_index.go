package pstore

// rawIndex is the byte-level persistent HAMT described by spec §4.F and §9's
// Design Notes ("indices... share an interface... a concrete type per index
// kind rather than inheritance"). Index[V] (index_kind.go) wraps one of these
// per index kind with a typed value codec; rawIndex itself only ever sees
// already-encoded key/value byte strings.
type rawIndex struct {
	kind     IndexKind
	hashFn   func([]byte) uint64
	valueLen int // fixed width of one encoded value for this index's kind

	as   *addressSpace
	pool *nodePool
}

func newRawIndex(kind IndexKind, as *addressSpace, pool *nodePool) *rawIndex {
	hashFn := hashKey
	if kind.isDigestKeyed() {
		hashFn = func(k []byte) uint64 {
			var d Digest
			copy(d[:], k)
			return hashDigest(d)
		}
	}

	return &rawIndex{
		kind:     kind,
		hashFn:   hashFn,
		valueLen: kind.valueLen(),
		as:       as,
		pool:     pool,
	}
}

func (idx *rawIndex) readInternal(addr uint64) (*internalNode, error) {
	size := uint64(0)
	// An internal node's size depends on its bitmap's popcount, which we
	// don't know until we've read the first 9 bytes. Read the header first,
	// then the full node once the child count is known.
	head, err := idx.as.addressToPointer(addr, 9)
	if err != nil {
		return nil, err
	}
	n, err := decodeInternal(head)
	if err != nil {
		return nil, err
	}
	size = serializedSizeInternal(n)

	full, err := idx.as.addressToPointer(addr, size)
	if err != nil {
		return nil, err
	}
	n, err = decodeInternal(full)
	if err != nil {
		return nil, err
	}
	n.startOffset = addr
	return n, nil
}

func (idx *rawIndex) readLeaf(addr uint64) (*leafNode, error) {
	// A leaf's exact length isn't known until its entries are decoded (keys
	// are variable-length), so request everything left in the node's region,
	// up to the current file size — decodeLeaf only consumes as many bytes as
	// the entries actually need and never depends on the slice being exactly
	// sized.
	remaining := idx.as.regionSize - (addr % idx.as.regionSize)
	if end := idx.as.fileSizeNow(); addr < end && addr+remaining > end {
		remaining = end - addr
	}
	span, err := idx.as.addressToPointer(addr, remaining)
	if err != nil {
		return nil, err
	}

	n, err := decodeLeaf(span, idx.valueLen)
	if err != nil {
		return nil, err
	}
	n.startOffset = addr
	return n, nil
}

// emptyRoot is the sentinel root ref for an index that has never had an
// entry inserted: store address 0 can never hold a real node (the lowest
// legal allocation starts past the header and genesis trailer), so it
// doubles as "no node here yet" without needing a separate on-disk marker.
var emptyRoot = storedRef(0, false)

func (idx *rawIndex) loadInternal(ref childRef) (*internalNode, error) {
	if ref.dirtyInternal != nil {
		return ref.dirtyInternal, nil
	}
	if ref.addr == 0 {
		return &internalNode{}, nil
	}
	return idx.readInternal(ref.addr)
}

func (idx *rawIndex) loadLeaf(ref childRef) (*leafNode, error) {
	if ref.dirtyLeaf != nil {
		return ref.dirtyLeaf, nil
	}
	return idx.readLeaf(ref.addr)
}

// find walks from rootRef to the leaf that would hold key and returns its
// value, following spec §4.F's lookup algorithm.
func (idx *rawIndex) find(rootRef childRef, key []byte) ([]byte, bool, error) {
	hash := idx.hashFn(key)
	ref := rootRef

	for level := 0; ; level++ {
		node, err := idx.loadInternal(ref)
		if err != nil {
			return nil, false, err
		}

		bit := indexForLevel(hash, level)
		if !isBitSet(node.bitmap, bit) {
			return nil, false, nil
		}

		child := node.children[position(node.bitmap, bit)]
		if child.isLeaf {
			leaf, err := idx.loadLeaf(child)
			if err != nil {
				return nil, false, err
			}
			if i := findEntry(leaf.entries, key); i >= 0 {
				return leaf.entries[i].value, true, nil
			}
			return nil, false, nil
		}

		ref = child
	}
}

// put inserts or overwrites key/value under rootRef, copying every node
// along the path (spec §4.F/§4.E copy-on-write) and returns the new,
// still-in-memory root ref. The caller is responsible for flushing it before
// commit.
func (idx *rawIndex) put(rootRef childRef, key, value []byte, version uint64) (childRef, error) {
	root, err := idx.loadInternal(rootRef)
	if err != nil {
		return childRef{}, err
	}

	root = idx.copyInternal(root, version)
	hash := idx.hashFn(key)

	newRoot, err := idx.putAt(root, hash, key, value, 0, version)
	if err != nil {
		return childRef{}, err
	}
	return internalRef(newRoot), nil
}

func (idx *rawIndex) copyInternal(n *internalNode, version uint64) *internalNode {
	cp := idx.pool.getInternal()
	cp.version = version
	cp.bitmap = n.bitmap
	cp.children = copyChildren(n.children)
	return cp
}

func (idx *rawIndex) copyLeaf(n *leafNode, version uint64) *leafNode {
	cp := idx.pool.getLeaf()
	cp.version = version
	cp.entries = copyEntries(n.entries)
	return cp
}

func (idx *rawIndex) newLeaf(version uint64, key, value []byte) *leafNode {
	leaf := idx.pool.getLeaf()
	leaf.version = version
	leaf.entries = []kvEntry{{key: key, value: value}}
	return leaf
}

func (idx *rawIndex) putAt(node *internalNode, hash uint64, key, value []byte, level int, version uint64) (*internalNode, error) {
	node.version = version
	bit := indexForLevel(hash, level)

	if !isBitSet(node.bitmap, bit) {
		leaf := idx.newLeaf(version, key, value)
		pos := position(node.bitmap, bit)
		node.bitmap = setBit(node.bitmap, bit)
		node.children = insertChildAt(node.children, pos, leafRef(leaf))
		return node, nil
	}

	pos := position(node.bitmap, bit)
	ref := node.children[pos]

	if ref.isLeaf {
		existing, err := idx.loadLeaf(ref)
		if err != nil {
			return nil, err
		}
		leaf := idx.copyLeaf(existing, version)

		switch {
		case findEntry(leaf.entries, key) >= 0:
			leaf.entries[findEntry(leaf.entries, key)].value = value

		case level >= maxDepth:
			leaf.entries = append(leaf.entries, kvEntry{key: key, value: value})

		default:
			other := leaf.entries[0]
			otherHash := idx.hashFn(other.key)

			branch := idx.pool.getInternal()
			branch.version = version

			branch, err = idx.putAt(branch, otherHash, other.key, other.value, level+1, version)
			if err != nil {
				return nil, err
			}
			branch, err = idx.putAt(branch, hash, key, value, level+1, version)
			if err != nil {
				return nil, err
			}

			node.children[pos] = internalRef(branch)
			return node, nil
		}

		node.children[pos] = leafRef(leaf)
		return node, nil
	}

	child, err := idx.loadInternal(ref)
	if err != nil {
		return nil, err
	}
	child = idx.copyInternal(child, version)

	child, err = idx.putAt(child, hash, key, value, level+1, version)
	if err != nil {
		return nil, err
	}
	node.children[pos] = internalRef(child)
	return node, nil
}

// Entry is one decoded (key, value-bytes) pair returned by iterate.
type Entry struct {
	Key   []byte
	Value []byte
}

// iterate walks the whole trie in bitmap order (ascending hash-slice order
// at every level), which is hash order rather than key order but is stable
// for a fixed key set (spec §4.F, §8 iteration scenario).
func (idx *rawIndex) iterate(rootRef childRef) ([]Entry, error) {
	var out []Entry
	if err := idx.iterateInto(rootRef, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (idx *rawIndex) iterateInto(ref childRef, out *[]Entry) error {
	if ref.isLeaf {
		leaf, err := idx.loadLeaf(ref)
		if err != nil {
			return err
		}
		for _, e := range leaf.entries {
			*out = append(*out, Entry{Key: e.key, Value: e.value})
		}
		return nil
	}

	node, err := idx.loadInternal(ref)
	if err != nil {
		return err
	}
	for _, child := range node.children {
		if err := idx.iterateInto(child, out); err != nil {
			return err
		}
	}
	return nil
}

// flush performs the post-order commit walk from spec §4.C/§9: every dirty
// child is flushed (and thereby allocated a store address) before its
// parent is serialized, so a parent only ever needs to encode addresses.
func (idx *rawIndex) flush(ref childRef, alloc *allocator) (childRef, error) {
	if !ref.dirty() {
		return ref, nil
	}

	if ref.isLeaf {
		leaf := ref.dirtyLeaf
		size := serializedSizeLeaf(leaf)
		buf, addr, err := alloc.allocRW(size, 1)
		if err != nil {
			return childRef{}, err
		}
		if err := encodeLeaf(buf, leaf); err != nil {
			return childRef{}, err
		}
		leaf.startOffset = addr
		idx.pool.putLeaf(leaf)
		return storedRef(addr, true), nil
	}

	node := ref.dirtyInternal
	for i, child := range node.children {
		flushed, err := idx.flush(child, alloc)
		if err != nil {
			return childRef{}, err
		}
		node.children[i] = flushed
	}

	size := serializedSizeInternal(node)
	buf, addr, err := alloc.allocRW(size, 8)
	if err != nil {
		return childRef{}, err
	}
	if err := encodeInternal(buf, node); err != nil {
		return childRef{}, err
	}
	node.startOffset = addr
	idx.pool.putInternal(node)
	return storedRef(addr, false), nil
}
