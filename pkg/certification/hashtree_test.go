// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package certification

import (
	"encoding/hex"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

// exampleTree is the well-known example tree of the certified state documentation.
func exampleTree() *HashTree {
	return NewFork(
		NewFork(
			NewLabeled([]byte("a"), NewFork(
				NewFork(NewLabeled([]byte("x"), NewLeaf([]byte("hello"))), NewEmpty()),
				NewLabeled([]byte("y"), NewLeaf([]byte("world"))),
			)),
			NewLabeled([]byte("b"), NewLeaf([]byte("good"))),
		),
		NewFork(
			NewLabeled([]byte("c"), NewEmpty()),
			NewLabeled([]byte("d"), NewLeaf([]byte("morning"))),
		),
	)
}

func TestDigest(t *testing.T) {
	t.Parallel()

	tree := exampleTree()
	root := tree.Digest()
	require.Equal(t, "eb5c5b2195e62d996b84c9bcc8259d19a83786a2f59e0878cec84c811f669aa0", hex.EncodeToString(root[:]))

	t.Run("pruning keeps the digest", func(t *testing.T) {
		left := tree.Left.Digest()
		pruned := NewFork(NewPruned(left[:]), tree.Right)
		require.Equal(t, root, pruned.Digest())
	})

	t.Run("any change changes the digest", func(t *testing.T) {
		changed := exampleTree()
		changed.Right.Right.Left.Value = []byte("evening")
		require.NotEqual(t, root, changed.Digest())
	})
}

func TestLookup(t *testing.T) {
	t.Parallel()

	tree := exampleTree()
	aDigest := tree.Left.Left.Digest()
	partial := NewFork(NewFork(NewPruned(aDigest[:]), tree.Left.Right), tree.Right)

	tests := []struct {
		name           string
		tree           *HashTree
		path           []string
		expectedValue  []byte
		expectedStatus LookupStatus
	}{
		{name: "nested leaf", tree: tree, path: []string{"a", "y"}, expectedValue: []byte("world"), expectedStatus: Found},
		{name: "leaf under fork", tree: tree, path: []string{"a", "x"}, expectedValue: []byte("hello"), expectedStatus: Found},
		{name: "top level leaf", tree: tree, path: []string{"d"}, expectedValue: []byte("morning"), expectedStatus: Found},
		{name: "missing label", tree: tree, path: []string{"e"}, expectedStatus: Absent},
		{name: "path to empty", tree: tree, path: []string{"c"}, expectedStatus: Absent},
		{name: "path to subtree", tree: tree, path: []string{"a"}, expectedStatus: Absent},
		{name: "pruned sibling hides label", tree: partial, path: []string{"a", "x"}, expectedStatus: Unknown},
		{name: "found next to pruned", tree: partial, path: []string{"b"}, expectedValue: []byte("good"), expectedStatus: Found},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var path [][]byte
			for _, p := range tt.path {
				path = append(path, []byte(p))
			}
			value, status := tt.tree.Lookup(path...)
			require.Equal(t, tt.expectedStatus, status, status.String())
			require.Equal(t, tt.expectedValue, value)
		})
	}
}

func TestHashTreeCBOR(t *testing.T) {
	t.Parallel()

	tree := exampleTree()
	d := tree.Left.Right.Digest()
	tree.Left.Right = NewPruned(d[:])

	encoded, err := cbor.Marshal(tree)
	require.NoError(t, err)

	decoded := &HashTree{}
	require.NoError(t, cbor.Unmarshal(encoded, decoded))
	require.Equal(t, tree.Digest(), decoded.Digest())

	value, status := decoded.Lookup([]byte("d"))
	require.Equal(t, Found, status)
	require.Equal(t, []byte("morning"), value)

	t.Run("malformed nodes", func(t *testing.T) {
		cases := map[string]interface{}{
			"not an array":       "tree",
			"empty array":        []interface{}{},
			"unknown tag":        []interface{}{uint64(9)},
			"fork arity":         []interface{}{uint64(1), []interface{}{uint64(0)}},
			"tag is not a uint":  []interface{}{"leaf", []byte("v")},
			"short pruned hash":  []interface{}{uint64(4), []byte{1, 2, 3}},
			"nested bad subtree": []interface{}{uint64(2), []byte("a"), []interface{}{uint64(7)}},
		}
		for name, c := range cases {
			b, err := cbor.Marshal(c)
			require.NoError(t, err)
			require.Error(t, cbor.Unmarshal(b, &HashTree{}), name)
		}
	})
}

// deepTree nests the labeled leaf "k" under depth forks.
func deepTree(depth int) *HashTree {
	tree := NewLabeled([]byte("k"), NewLeaf([]byte("v")))
	for i := 0; i < depth; i++ {
		tree = NewFork(tree, NewEmpty())
	}
	return tree
}

func TestHashTreeCBORDeepTree(t *testing.T) {
	t.Parallel()

	for _, depth := range []int{30, 40, 200} {
		tree := deepTree(depth)
		encoded, err := cbor.Marshal(tree)
		require.NoError(t, err)

		decoded := &HashTree{}
		require.NoError(t, decoded.UnmarshalCBOR(encoded), "depth %d", depth)
		require.Equal(t, tree.Digest(), decoded.Digest())

		value, status := decoded.Lookup([]byte("k"))
		require.Equal(t, Found, status)
		require.Equal(t, []byte("v"), value)
	}

	t.Run("deeper than the limit", func(t *testing.T) {
		encoded, err := cbor.Marshal(deepTree(maxNestedLevels))
		require.NoError(t, err)
		err = (&HashTree{}).UnmarshalCBOR(encoded)
		require.Error(t, err)
		require.Contains(t, err.Error(), "exceeded max nested level")
	})
}
