// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package certification

import (
	"bytes"
	"crypto/sha256"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// maxNestedLevels bounds the depth of decoded trees and certificates. Every fork or label
// node adds one level of nesting.
const maxNestedLevels = 1024

var decMode = mustDecMode()

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{MaxNestedLevels: maxNestedLevels}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// NodeKind identifies the shape of a hash tree node. The numeric values are the tags used in
// the CBOR encoding of the tree.
type NodeKind uint64

const (
	EmptyNode NodeKind = iota
	ForkNode
	LabeledNode
	LeafNode
	PrunedNode
)

var (
	domainEmpty   = domainSeparator("ic-hashtree-empty")
	domainFork    = domainSeparator("ic-hashtree-fork")
	domainLabeled = domainSeparator("ic-hashtree-labeled")
	domainLeaf    = domainSeparator("ic-hashtree-leaf")
)

// HashTree is a node of a certified hash tree. Which fields are set depends on Kind:
// Left and Right for forks, Label and Left for labeled nodes, Value for leaves and Pruned
// for pruned subtrees.
type HashTree struct {
	Kind   NodeKind
	Left   *HashTree
	Right  *HashTree
	Label  []byte
	Value  []byte
	Pruned []byte
}

func NewEmpty() *HashTree {
	return &HashTree{Kind: EmptyNode}
}

func NewFork(left, right *HashTree) *HashTree {
	return &HashTree{Kind: ForkNode, Left: left, Right: right}
}

func NewLabeled(label []byte, subtree *HashTree) *HashTree {
	return &HashTree{Kind: LabeledNode, Label: label, Left: subtree}
}

func NewLeaf(value []byte) *HashTree {
	return &HashTree{Kind: LeafNode, Value: value}
}

func NewPruned(digest []byte) *HashTree {
	return &HashTree{Kind: PrunedNode, Pruned: digest}
}

// Digest computes the root hash of the tree.
func (t *HashTree) Digest() [32]byte {
	h := sha256.New()
	switch t.Kind {
	case EmptyNode:
		h.Write(domainEmpty)
	case ForkNode:
		l, r := t.Left.Digest(), t.Right.Digest()
		h.Write(domainFork)
		h.Write(l[:])
		h.Write(r[:])
	case LabeledNode:
		sub := t.Left.Digest()
		h.Write(domainLabeled)
		h.Write(t.Label)
		h.Write(sub[:])
	case LeafNode:
		h.Write(domainLeaf)
		h.Write(t.Value)
	case PrunedNode:
		var d [32]byte
		copy(d[:], t.Pruned)
		return d
	}

	var d [32]byte
	copy(d[:], h.Sum(nil))
	return d
}

// LookupStatus is the outcome of a path lookup.
type LookupStatus int

const (
	// Absent means the tree proves that the path does not exist.
	Absent LookupStatus = iota
	// Unknown means the path may exist under a pruned subtree.
	Unknown
	// Found means the path leads to a leaf.
	Found
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Unknown:
		return "unknown"
	default:
		return "absent"
	}
}

// Lookup follows the labels of path from the root of the tree. The value is returned only
// when the status is Found.
func (t *HashTree) Lookup(path ...[]byte) ([]byte, LookupStatus) {
	node := t
	for _, label := range path {
		next, status := node.child(label)
		if status != Found {
			return nil, status
		}
		node = next
	}

	switch node.Kind {
	case LeafNode:
		return node.Value, Found
	case PrunedNode:
		return nil, Unknown
	default:
		return nil, Absent
	}
}

func (t *HashTree) child(label []byte) (*HashTree, LookupStatus) {
	status := Absent
	var found *HashTree

	var walk func(n *HashTree)
	walk = func(n *HashTree) {
		if found != nil {
			return
		}
		switch n.Kind {
		case ForkNode:
			walk(n.Left)
			walk(n.Right)
		case LabeledNode:
			if bytes.Equal(n.Label, label) {
				found = n.Left
			}
		case PrunedNode:
			status = Unknown
		}
	}
	walk(t)

	if found != nil {
		return found, Found
	}
	return nil, status
}

// MarshalCBOR encodes the tree as nested CBOR arrays whose first element is the node tag.
func (t HashTree) MarshalCBOR() ([]byte, error) {
	switch t.Kind {
	case EmptyNode:
		return cbor.Marshal([]interface{}{uint64(EmptyNode)})
	case ForkNode:
		return cbor.Marshal([]interface{}{uint64(ForkNode), t.Left, t.Right})
	case LabeledNode:
		return cbor.Marshal([]interface{}{uint64(LabeledNode), t.Label, t.Left})
	case LeafNode:
		return cbor.Marshal([]interface{}{uint64(LeafNode), t.Value})
	case PrunedNode:
		return cbor.Marshal([]interface{}{uint64(PrunedNode), t.Pruned})
	default:
		return nil, errors.Errorf("unknown hash tree node kind %d", t.Kind)
	}
}

// UnmarshalCBOR decodes a tree encoded by MarshalCBOR.
func (t *HashTree) UnmarshalCBOR(data []byte) error {
	var items []cbor.RawMessage
	if err := decMode.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "hash tree node is not a CBOR array")
	}
	if len(items) == 0 {
		return errors.New("hash tree node is an empty array")
	}

	var tag uint64
	if err := decMode.Unmarshal(items[0], &tag); err != nil {
		return errors.Wrap(err, "hash tree node tag is not an unsigned integer")
	}

	expectedLen := map[NodeKind]int{
		EmptyNode:   1,
		ForkNode:    3,
		LabeledNode: 3,
		LeafNode:    2,
		PrunedNode:  2,
	}
	kind := NodeKind(tag)
	n, ok := expectedLen[kind]
	if !ok {
		return errors.Errorf("unknown hash tree node tag %d", tag)
	}
	if len(items) != n {
		return errors.Errorf("hash tree node with tag %d has %d elements, expected %d", tag, len(items), n)
	}

	*t = HashTree{Kind: kind}
	switch kind {
	case ForkNode:
		t.Left, t.Right = &HashTree{}, &HashTree{}
		if err := t.Left.UnmarshalCBOR(items[1]); err != nil {
			return err
		}
		return t.Right.UnmarshalCBOR(items[2])
	case LabeledNode:
		if err := decMode.Unmarshal(items[1], &t.Label); err != nil {
			return errors.Wrap(err, "hash tree label is not a byte string")
		}
		t.Left = &HashTree{}
		return t.Left.UnmarshalCBOR(items[2])
	case LeafNode:
		if err := decMode.Unmarshal(items[1], &t.Value); err != nil {
			return errors.Wrap(err, "hash tree leaf is not a byte string")
		}
		if t.Value == nil {
			t.Value = []byte{}
		}
	case PrunedNode:
		if err := decMode.Unmarshal(items[1], &t.Pruned); err != nil {
			return errors.Wrap(err, "pruned hash tree digest is not a byte string")
		}
		if len(t.Pruned) != sha256.Size {
			return errors.Errorf("pruned hash tree digest is %d bytes long, expected %d", len(t.Pruned), sha256.Size)
		}
	}
	return nil
}

func domainSeparator(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}
