// Package dictionary implements the (section, key) -> value map that backs
// every logical record's payload (SPEC_FULL.md §3, §4.1). The structure
// mirrors the header+body split common to volume descriptor encodings: a
// fixed item header followed by a variable-length value, serialized
// little-endian.
package dictionary

import (
	"encoding/binary"
	"fmt"

	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// ValueType tags the primitive width of a dictionary item's value so a
// reader can validate it without knowing the (section, key) semantics.
type ValueType uint8

const (
	TypeBytes ValueType = iota // raw/string bytes, no width requirement
	TypeU8
	TypeU16
	TypeU32
	TypeU64
)

func (t ValueType) width() (int, bool) {
	switch t {
	case TypeU8:
		return 1, true
	case TypeU16:
		return 2, true
	case TypeU32:
		return 4, true
	case TypeU64:
		return 8, true
	default:
		return 0, false
	}
}

// Item is one (section, key, type, value) tuple. Section partitions the key
// space (standard attributes vs extended attributes vs platform attributes
// on one object, §3).
type Item struct {
	Section byte
	Key     uint16
	Type    ValueType
	Value   []byte
}

// Dictionary is an ordered, duplicate-tolerant sequence of items. Insertion
// order is preserved on both write and read (§3: "reader preserves insertion
// order").
type Dictionary struct {
	items []Item
}

// New returns an empty Dictionary.
func New() *Dictionary {
	return &Dictionary{}
}

// Add appends an item. Callers add pre-encoded bytes; see the typed helpers
// below for the common primitive cases.
func (d *Dictionary) Add(section byte, key uint16, typ ValueType, value []byte) {
	d.items = append(d.items, Item{Section: section, Key: key, Type: typ, Value: value})
}

// AddString adds a variable-length byte/string item. Per §9, string items
// are not required to be NUL-terminated; they end exactly at their declared
// length.
func (d *Dictionary) AddString(section byte, key uint16, value string) {
	d.Add(section, key, TypeBytes, []byte(value))
}

// AddBytes adds a variable-length raw byte item.
func (d *Dictionary) AddBytes(section byte, key uint16, value []byte) {
	d.Add(section, key, TypeBytes, value)
}

// AddU8/AddU16/AddU32/AddU64 add fixed-width little-endian integer items.
func (d *Dictionary) AddU8(section byte, key uint16, value uint8) {
	d.Add(section, key, TypeU8, []byte{value})
}

func (d *Dictionary) AddU16(section byte, key uint16, value uint16) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	d.Add(section, key, TypeU16, buf)
}

func (d *Dictionary) AddU32(section byte, key uint16, value uint32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	d.Add(section, key, TypeU32, buf)
}

func (d *Dictionary) AddU64(section byte, key uint16, value uint64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	d.Add(section, key, TypeU64, buf)
}

// Get returns the first item matching (section, key) in insertion order.
func (d *Dictionary) Get(section byte, key uint16) (Item, bool) {
	for _, it := range d.items {
		if it.Section == section && it.Key == key {
			return it, true
		}
	}
	return Item{}, false
}

// GetAll returns every item matching (section, key) in insertion order, for
// repeated keys such as extended-attribute name/value pairs.
func (d *Dictionary) GetAll(section byte, key uint16) []Item {
	var out []Item
	for _, it := range d.items {
		if it.Section == section && it.Key == key {
			out = append(out, it)
		}
	}
	return out
}

// GetString returns the item's value as a string. It accepts TypeBytes
// items only.
func (d *Dictionary) GetString(section byte, key uint16) (string, bool) {
	it, ok := d.Get(section, key)
	if !ok || it.Type != TypeBytes {
		return "", false
	}
	return string(it.Value), true
}

// GetBytes returns the item's raw value.
func (d *Dictionary) GetBytes(section byte, key uint16) ([]byte, bool) {
	it, ok := d.Get(section, key)
	if !ok {
		return nil, false
	}
	return it.Value, true
}

// GetU8/GetU16/GetU32/GetU64 validate the declared type and width before
// decoding (§9: "reader must reject items whose declared size does not
// match the declared primitive width").
func (d *Dictionary) GetU8(section byte, key uint16) (uint8, error) {
	it, ok := d.Get(section, key)
	if !ok {
		return 0, errs.New(errs.NotFound, "dictionary item not found")
	}
	if it.Type != TypeU8 || len(it.Value) != 1 {
		return 0, errs.New(errs.WrongType, fmt.Sprintf("item %d/%d is not a u8", section, key))
	}
	return it.Value[0], nil
}

func (d *Dictionary) GetU16(section byte, key uint16) (uint16, error) {
	it, ok := d.Get(section, key)
	if !ok {
		return 0, errs.New(errs.NotFound, "dictionary item not found")
	}
	if it.Type != TypeU16 || len(it.Value) != 2 {
		return 0, errs.New(errs.WrongType, fmt.Sprintf("item %d/%d is not a u16", section, key))
	}
	return binary.LittleEndian.Uint16(it.Value), nil
}

func (d *Dictionary) GetU32(section byte, key uint16) (uint32, error) {
	it, ok := d.Get(section, key)
	if !ok {
		return 0, errs.New(errs.NotFound, "dictionary item not found")
	}
	if it.Type != TypeU32 || len(it.Value) != 4 {
		return 0, errs.New(errs.WrongType, fmt.Sprintf("item %d/%d is not a u32", section, key))
	}
	return binary.LittleEndian.Uint32(it.Value), nil
}

func (d *Dictionary) GetU64(section byte, key uint16) (uint64, error) {
	it, ok := d.Get(section, key)
	if !ok {
		return 0, errs.New(errs.NotFound, "dictionary item not found")
	}
	if it.Type != TypeU64 || len(it.Value) != 8 {
		return 0, errs.New(errs.WrongType, fmt.Sprintf("item %d/%d is not a u64", section, key))
	}
	return binary.LittleEndian.Uint64(it.Value), nil
}

// CountAll returns the total number of items.
func (d *Dictionary) CountAll() int {
	return len(d.items)
}

// CountSection returns the number of items belonging to section.
func (d *Dictionary) CountSection(section byte) int {
	n := 0
	for _, it := range d.items {
		if it.Section == section {
			n++
		}
	}
	return n
}

// Items exposes the underlying items in insertion order, read-only.
func (d *Dictionary) Items() []Item {
	return d.items
}

const itemHeaderSize = 1 + 1 + 2 + 2 // type, section, key, size

// Marshal serializes the dictionary as: u16 item count, then each item as
// u8 type | u8 section | u16 key | u16 size | size bytes, all little-endian
// (§4.1).
func (d *Dictionary) Marshal() ([]byte, error) {
	size := 2
	for _, it := range d.items {
		if len(it.Value) > 0xFFFF {
			return nil, errs.New(errs.InvalidArg, "dictionary item value too large")
		}
		size += itemHeaderSize + len(it.Value)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(d.items)))
	off := 2
	for _, it := range d.items {
		buf[off] = byte(it.Type)
		buf[off+1] = it.Section
		binary.LittleEndian.PutUint16(buf[off+2:off+4], it.Key)
		binary.LittleEndian.PutUint16(buf[off+4:off+6], uint16(len(it.Value)))
		off += itemHeaderSize
		copy(buf[off:], it.Value)
		off += len(it.Value)
	}
	return buf, nil
}

// Unmarshal parses a dictionary previously produced by Marshal.
func Unmarshal(buf []byte) (*Dictionary, error) {
	if len(buf) < 2 {
		return nil, errs.New(errs.Corrupt, "dictionary buffer too short for item count")
	}
	count := int(binary.LittleEndian.Uint16(buf[0:2]))
	d := &Dictionary{items: make([]Item, 0, count)}
	off := 2
	for i := 0; i < count; i++ {
		if off+itemHeaderSize > len(buf) {
			return nil, errs.New(errs.Corrupt, "dictionary truncated in item header")
		}
		typ := ValueType(buf[off])
		section := buf[off+1]
		key := binary.LittleEndian.Uint16(buf[off+2 : off+4])
		size := int(binary.LittleEndian.Uint16(buf[off+4 : off+6]))
		off += itemHeaderSize
		if off+size > len(buf) {
			return nil, errs.New(errs.Corrupt, "dictionary truncated in item value")
		}
		if width, fixed := typ.width(); fixed && size != width {
			return nil, errs.New(errs.Corrupt, fmt.Sprintf("item %d declares size %d for fixed-width type", i, size))
		}
		value := make([]byte, size)
		copy(value, buf[off:off+size])
		off += size
		d.items = append(d.items, Item{Section: section, Key: key, Type: typ, Value: value})
	}
	return d, nil
}
