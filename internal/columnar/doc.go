/*
Package columnar implements the Content-Addressed Columnar Bridge: it
persists tabular data as content-addressed columnar artifacts and
retrieves them with projection and filter pushdown.

A Table is normalized into a canonical columnar representation, split into
row-group pages, optionally partitioned by column values, and written as
one or more ".wpq" files under Config.BaseDir. A deterministic CID is
synthesized from the artifact's schema fingerprint, compression codec,
size, and name, and a sidecar JSON file under
Config.MetadataDir is the durable source of truth for the CID's metadata;
an in-process index, rebuilt from the sidecars at startup and mirrored
into a small bbolt database, maps CIDs to on-disk paths.
*/
package columnar
