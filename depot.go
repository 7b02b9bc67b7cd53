/*
Package depot is the root of a library for cataloging versioned data
bundles and keeping a local content-addressed cache of them consistent
with zero or more prioritized remote caches.

The interesting packages are:

	identity  - bundle/partition identities and structured cache keys
	cache     - the cache tier interface, the read-through stack, and
	            the filesystem, S3 and in-memory backends
	bundle    - the bundle container format and the open-handle registry
	catalog   - the relational catalog, reference resolver and the
	            artifact ledger that drives incremental sync
	sync      - the three synchronization procedures (local rebuild,
	            remote pull, upstream push)
	library   - the public facade tying the above together
	metacache - the derived-metadata cache invalidated on writes

This package holds only what everything else shares: the error
taxonomy.
*/
package depot
