/*
Package ledb implements an embeddable document database on top of an
ordered key-value store (in this case, on top of Bolt).

We implement:

1. Collections, holding schemaless JSON-like documents keyed by an
auto-incrementing integer primary.

2. Indexes, allowing quick lookup and ordering of collection documents by
an arbitrary nested field path.

3. A filter/order/modify algebra, letting callers select, sort, and bulk-
edit documents without writing transaction code of their own.

# Technical Details

**Buckets.**
Each collection owns one top-level bucket; its documents live in a nested
"data" bucket keyed by the big-endian primary, and each index lives in its
own nested "idx:<path>" bucket. A single top-level "catalog" bucket records
every live collection and index; dropping one deletes its record.

**Catalog serials.**
Every collection and index is assigned the next serial from a counter when
created. On open the counter resumes just above the highest serial still in
the catalog, so the serial of a record dropped before a reopen can be handed
out again. Serials are written into catalog keys as unpadded decimal text
after a record-type prefix, so the catalog's byte order groups collections
before indexes and does not follow serial order (serial 10 sorts before 9).

**Documents.**
A document is encoded as msgpack with its primary field stripped out before
encoding and reinjected on the way back out, so an index never has to special-
case the primary key.

**Indexes.**
An index stores one entry per extracted key, encoded to preserve the field's
natural ordering; Unique indexes reject a second primary under an existing
key, Duplicate indexes allow any number of primaries per key.
*/
package ledb
