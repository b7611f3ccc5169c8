/*
Package wal implements the durable, append-only Write-Ahead Log of
storage Operations.

# Physical layout

	<base>/partitions/wal_<unix_ts>_<counter>.db   (bbolt, bucket "operations")
	<base>/archives/archive_<YYYYMMDD>.db          (bbolt, bucket "operations")

One partition file is the "current" partition and receives every Append
until it reaches Config.PartitionSize rows, at which point it is closed and
a new current partition is opened (rotation). Older partitions and archive
files are opened on demand (read-only for scans, writable for status
updates and archiving) and closed immediately after use, so only the
current partition's bbolt handle is held open for the Store's lifetime.

# Durability

bbolt fsyncs its file on every committed write transaction, so a crash
between Append calls cannot lose a committed row. Rotation itself is a
close-then-rename-free operation: the new partition file simply has a
newer name, so a reader listing the partitions directory mid-rotation
sees either the old file, the new file, or both, never neither.

# Per-id serialization

Concurrent UpdateOperationStatus calls for the same operation_id are
serialized by a per-id mutex (Store.idLocks) rather than relying on
accidental ordering.
*/
package wal
