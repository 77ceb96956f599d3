package changelog

/*

# Changelog records for fixed height tree updates

A changelog record describes one leaf update: the identity of the tree, the
tree change sequence number, the index of the updated leaf and the path of
nodes from that leaf towards the root.

Records are never decoded from the path data they describe. The path bytes
are written into a scratch slot by whatever maintains the tree, and a
PathView borrows that slot for the lifetime of one batch. The fixed record
fields live in a small frame allocated from the batch arena. Nothing in a
Record is heap allocated, and nothing in it may be retained once the batch
has been emitted and the arena rolled back.

## Wire format

All integers are little endian.

	batch  := u32 count, record{count}
	record := u8 tag, tree_id[32], u32 npaths, path{npaths}, u64 sequence, u32 leaf_index
	path   := u32 nnodes, node{nnodes}
	node   := hash[32], u32 position

Tag 0 is V1, the only version defined. For a tree of height H a V1 record
carrying one path encodes to 1 + 32 + 4 + (4 + 36*H) + 8 + 4 bytes.

*/
