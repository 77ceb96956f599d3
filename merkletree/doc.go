package merkletree

/*

# A sparse fixed height binary merkle tree

Nodes are addressed by their 1 based heap position: the root is 1, the
children of p are 2p and 2p+1, and for a tree of height H the leaf with index
i sits at (1 << H) + i.

Only nodes that have been written are stored. A node that has never been
written is empty and its hash is HashBytes of zero. An interior node whose
children are both empty is itself empty, otherwise its value commits to its
position as well as its children

	H(p) = SHA256(BE64(p) || H(2p) || H(2p+1))

The position commitment makes every interior node hash unique to where it
sits in the tree, in the same way MMR interior nodes commit to their index.

Update writes the new leaf and every interior node it changes into a
changelog path slot, leaf first. The root is returned separately and is not
part of the path.

*/
