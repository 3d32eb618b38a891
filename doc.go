/*
Package recordbin implements the binary record format of a multi-model
database: typed, schema-aware documents are encoded into compact bytes,
single fields are read back without decoding the whole record, encoded
fields are compared across types, and structural deltas are encoded and
applied.

We implement:

1. Two record layouts (see Layout), the pointer-table layout (version 0) and
the length-table layout (version 1). Codec.Serialize prefixes the record with
the version byte; layouts themselves never write it.

2. A value codec for every logical Type, including embedded records,
embedded and link collections, and RidBag reference multisets.

3. A Comparator that compares two encoded field values with coercion rules
between numbers, strings, dates, decimals and links.

4. A DeltaCodec for document deltas and the replication delta of bags.

# Technical Details

**Varints.**
Every length, count, RID component and integer value (BYTE aside) is a
zig-zag varint: the sign is folded into the low bit and the result is written
7 bits per byte, least significant group first, with the high bit marking
continuation. BYTE, SHORT, INTEGER and LONG differ only in the range checked
when reading.

**Field names.**
A header name is either a string (varint length and UTF-8 bytes) or a
negative varint -(id+1) referring to a global property of the schema. Global
ids are used when the schema property of the field matches by name and type;
the type byte is then omitted unless the property is ANY.

**Pointer-table layout.**
Class name, header entries of (name, int32BE absolute offset, type), a
varint 0 terminator and the values. Offset 0 is a null value.

**Length-table layout.**
Top-level records have no class name. A varint header length, header entries
of (name, varint value length, type) and the values, contiguous and in header
order. Length 0 is a null value.

**Scalars.**
FLOAT and DOUBLE are big-endian IEEE bits. DECIMAL is scale:int32BE,
length:int32BE and the two's-complement unscaled value. DATETIME is epoch
milliseconds. DATE is a count of days: the instant is floored to its calendar
day in the database zone, and that day is counted in UTC.

**Bags.**
A config byte (bit 0 embedded, bit 1 UUID present), an optional UUID, and
either the inline references or the tree pointer (file, page, offset), the
size and the pending overlay (reference, change kind, value).

**Deltas.**
Class name, varint count and per field a tag byte CREATED=1, REPLACED=2,
CHANGED=3 or REMOVED=4 and the field name, followed by a nullable type byte
and value (CREATED, REPLACED) or a type byte and a nested delta (CHANGED).
Collection deltas hold a membership pass followed by a pass of CHANGED
entries for elements mutated in place.
*/
package recordbin
