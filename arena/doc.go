package arena

/*

# Monotonic arena over a caller supplied region

The arena hands out memory from a single, fixed, pre-reserved byte region by
moving one cursor. There is no per-object free. Memory is reclaimed in bulk by
taking a Checkpoint before a unit of work and rolling back to it afterwards.

The region is treated as exclusively owned by the arena for the lifetime of
one invocation. All allocator state lives inside the region itself, in a small
fixed header, so an Arena value carries nothing but the region slice:

	| position | low water | ........ free ........ | allocations |
	| 0      8 | 8      16 | 16                     |          len |

Allocations grow downward from the end of the region towards the header. The
space remaining is always (position - HeaderBytes).

## Uninitialized vs exhausted

A zero filled region reads position == 0. That value is reserved to mean
"never used", and the first operation on the arena sets the position to
len(region). Because allocations can never move the position below
HeaderBytes, an exhausted arena reads position == HeaderBytes, which is
distinct from the uninitialized sentinel.

## Rollback

Rollback restores a checkpointed position verbatim. Every slice returned by
Alloc after the checkpoint is implicitly invalidated. The arena can not detect
use of an invalidated slice, that is a precondition on the caller.

*/
