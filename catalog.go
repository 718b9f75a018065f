package ledb

import (
	"fmt"
	"strconv"
	"strings"
)

// IndexKind distinguishes indexes that reject duplicate keys from those
// that allow many primaries per key (spec §3).
type IndexKind int

const (
	Unique IndexKind = iota
	Duplicate
)

func (k IndexKind) catalogName() string {
	switch k {
	case Unique:
		return "uni"
	case Duplicate:
		return "dup"
	default:
		panic("ledb: invalid IndexKind")
	}
}

func parseIndexKind(s string) (IndexKind, bool) {
	switch s {
	case "uni":
		return Unique, true
	case "dup":
		return Duplicate, true
	default:
		return 0, false
	}
}

func (k IndexKind) String() string {
	switch k {
	case Unique:
		return "Unique"
	case Duplicate:
		return "Duplicate"
	default:
		return "Unknown"
	}
}

// CollectionDef is the catalog record naming a collection (spec §6):
// textual form c((serial,"name")).
type CollectionDef struct {
	Serial Serial
	Name   string
}

func (d *CollectionDef) Enumerate(s Serial) { d.Serial = s }

// IndexDef is the catalog record naming an index over a collection field
// (spec §6): textual form i((serial,"coll","field.path","kind","keytype")).
type IndexDef struct {
	Serial     Serial
	Collection string
	Path       string
	Kind       IndexKind
	KeyType    KeyType
}

func (d *IndexDef) Enumerate(s Serial) { d.Serial = s }

// formatCollectionRecord renders a CollectionDef as its stable catalog key.
func formatCollectionRecord(d CollectionDef) string {
	return fmt.Sprintf("c((%d,%s))", d.Serial, strconv.Quote(d.Name))
}

// formatIndexRecord renders an IndexDef as its stable catalog key.
func formatIndexRecord(d IndexDef) string {
	return fmt.Sprintf("i((%d,%s,%s,%s,%s))", d.Serial,
		strconv.Quote(d.Collection), strconv.Quote(d.Path),
		strconv.Quote(d.Kind.catalogName()), strconv.Quote(d.KeyType.catalogName()))
}

// parseCatalogRecord parses a catalog key back into either a *CollectionDef
// or an *IndexDef. It returns a CatalogCorrupt error on any malformed input:
// the catalog is written only by this package, so a parse failure means
// on-disk corruption, not a user-facing input error.
func parseCatalogRecord(key string) (any, error) {
	const op = "parseCatalogRecord"
	if len(key) < 5 || key[1] != '(' || key[2] != '(' || !strings.HasSuffix(key, "))") {
		return nil, newErr(CatalogCorrupt, op, nil, "malformed catalog record %q", key)
	}
	tag := key[0]
	inner := key[3 : len(key)-2] // strip "X((" prefix and "))" suffix
	fields, err := splitCatalogFields(inner)
	if err != nil {
		return nil, newErr(CatalogCorrupt, op, err, "malformed catalog record %q", key)
	}

	switch tag {
	case 'c':
		if len(fields) != 2 {
			return nil, newErr(CatalogCorrupt, op, nil, "collection record %q: want 2 fields, got %d", key, len(fields))
		}
		serial, name, err := parseSerialAndString(fields[0], fields[1])
		if err != nil {
			return nil, newErr(CatalogCorrupt, op, err, "collection record %q", key)
		}
		return &CollectionDef{Serial: serial, Name: name}, nil

	case 'i':
		if len(fields) != 5 {
			return nil, newErr(CatalogCorrupt, op, nil, "index record %q: want 5 fields, got %d", key, len(fields))
		}
		serial, coll, err := parseSerialAndString(fields[0], fields[1])
		if err != nil {
			return nil, newErr(CatalogCorrupt, op, err, "index record %q", key)
		}
		path, err := strconv.Unquote(fields[2])
		if err != nil {
			return nil, newErr(CatalogCorrupt, op, err, "index record %q: bad path field", key)
		}
		kindStr, err := strconv.Unquote(fields[3])
		if err != nil {
			return nil, newErr(CatalogCorrupt, op, err, "index record %q: bad kind field", key)
		}
		kind, ok := parseIndexKind(kindStr)
		if !ok {
			return nil, newErr(CatalogCorrupt, op, nil, "index record %q: unknown kind %q", key, kindStr)
		}
		keyTypeStr, err := strconv.Unquote(fields[4])
		if err != nil {
			return nil, newErr(CatalogCorrupt, op, err, "index record %q: bad keytype field", key)
		}
		keyType, ok := parseKeyType(keyTypeStr)
		if !ok {
			return nil, newErr(CatalogCorrupt, op, nil, "index record %q: unknown keytype %q", key, keyTypeStr)
		}
		return &IndexDef{Serial: serial, Collection: coll, Path: path, Kind: kind, KeyType: keyType}, nil

	default:
		return nil, newErr(CatalogCorrupt, op, nil, "unknown catalog record tag %q", key)
	}
}

func parseSerialAndString(serialField, strField string) (Serial, string, error) {
	n, err := strconv.ParseUint(serialField, 10, 64)
	if err != nil {
		return 0, "", err
	}
	s, err := strconv.Unquote(strField)
	if err != nil {
		return 0, "", err
	}
	return Serial(n), s, nil
}

// splitCatalogFields splits a comma-separated field list, respecting quoted
// strings so a comma or closing-paren inside a "field.path" value doesn't
// break the split.
func splitCatalogFields(s string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		cur.WriteByte(c)
		switch {
		case escaped:
			escaped = false
		case inQuotes && c == '\\':
			escaped = true
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSuffix(cur.String(), ","))
			cur.Reset()
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted field")
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields, nil
}
