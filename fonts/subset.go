package fonts

import (
	"encoding/binary"
	"errors"
	"sort"
)

var errNotGlyf = errors.New("program has no glyf outlines")

// sfntTables are the tables a FontFile2 subset carries. Layout tables are
// dropped: glyphs are already shaped when they reach the content stream.
var sfntTables = []string{"head", "hhea", "maxp", "hmtx", "loca", "glyf", "cmap", "name", "OS/2", "cvt ", "fpgm", "prep"}

// postHeaderSize is the length of a version 3 post table, which carries no
// glyph names and so stays valid for any glyph count.
const postHeaderSize = 32

// subsetTrueType keeps the outlines of the given glyphs and of every
// component they reference. Glyph ids are preserved so Identity-H codes stay
// valid; dropped glyphs become empty and trailing ones are cut off.
func subsetTrueType(program []byte, keep []uint16) ([]byte, error) {
	tables, err := readTables(program)
	if err != nil {
		return nil, err
	}
	for _, tag := range []string{"head", "hhea", "maxp", "hmtx", "loca", "glyf"} {
		if _, ok := tables[tag]; !ok {
			return nil, errNotGlyf
		}
	}
	head, maxp, hhea := tables["head"], tables["maxp"], tables["hhea"]
	if len(head) < 54 || len(maxp) < 6 || len(hhea) < 36 {
		return nil, errors.New("truncated font header tables")
	}
	loca := locaTable{data: tables["loca"], long: binary.BigEndian.Uint16(head[50:]) == 1}
	glyf := tables["glyf"]
	numGlyphs := int(binary.BigEndian.Uint16(maxp[4:]))

	used := map[int]bool{0: true}
	for _, gid := range keep {
		used[int(gid)] = true
	}
	addComponents(used, loca, glyf, numGlyphs)

	n := 0
	for gid := range used {
		if gid < numGlyphs && gid+1 > n {
			n = gid + 1
		}
	}

	var newGlyf []byte
	newLoca := make([]byte, 0, 4*(n+1))
	for gid := 0; gid < n; gid++ {
		newLoca = binary.BigEndian.AppendUint32(newLoca, uint32(len(newGlyf)))
		if !used[gid] {
			continue
		}
		if start, end, ok := loca.glyph(gid, len(glyf)); ok {
			newGlyf = append(newGlyf, glyf[start:end]...)
			for len(newGlyf)%4 != 0 {
				newGlyf = append(newGlyf, 0)
			}
		}
	}
	newLoca = binary.BigEndian.AppendUint32(newLoca, uint32(len(newGlyf)))

	hmtx, err := fullMetrics(tables["hmtx"], int(binary.BigEndian.Uint16(hhea[34:])), n)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(sfntTables))
	for _, tag := range sfntTables {
		if data, ok := tables[tag]; ok {
			out[tag] = data
		}
	}
	out["glyf"] = newGlyf
	out["loca"] = newLoca
	out["hmtx"] = hmtx
	out["head"] = patch16(head, 50, 1)
	out["maxp"] = patch16(maxp, 4, uint16(n))
	out["hhea"] = patch16(hhea, 34, uint16(n))
	if post, ok := tables["post"]; ok && len(post) >= postHeaderSize {
		v3 := append([]byte(nil), post[:postHeaderSize]...)
		binary.BigEndian.PutUint32(v3, 0x00030000)
		out["post"] = v3
	}
	return writeSFNT(out), nil
}

func readTables(data []byte) (map[string][]byte, error) {
	if len(data) < 12 {
		return nil, errors.New("font header truncated")
	}
	count := int(binary.BigEndian.Uint16(data[4:]))
	tables := make(map[string][]byte, count)
	for i := 0; i < count; i++ {
		rec := 12 + 16*i
		if rec+16 > len(data) {
			return nil, errors.New("table directory truncated")
		}
		off := int(binary.BigEndian.Uint32(data[rec+8:]))
		length := int(binary.BigEndian.Uint32(data[rec+12:]))
		if off < 0 || length < 0 || off+length > len(data) {
			return nil, errors.New("table out of bounds")
		}
		tables[string(data[rec:rec+4])] = data[off : off+length]
	}
	return tables, nil
}

type locaTable struct {
	data []byte
	long bool
}

func (l locaTable) offset(gid int) (int, bool) {
	if l.long {
		if 4*gid+4 > len(l.data) {
			return 0, false
		}
		return int(binary.BigEndian.Uint32(l.data[4*gid:])), true
	}
	if 2*gid+2 > len(l.data) {
		return 0, false
	}
	return 2 * int(binary.BigEndian.Uint16(l.data[2*gid:])), true
}

// glyph returns the byte range of gid's outline; empty glyphs report false.
func (l locaTable) glyph(gid, glyfLen int) (int, int, bool) {
	start, ok1 := l.offset(gid)
	end, ok2 := l.offset(gid + 1)
	if !ok1 || !ok2 || start >= end || end > glyfLen {
		return 0, 0, false
	}
	return start, end, true
}

// Composite glyph flags.
const (
	argsAreWords    = 0x0001
	haveScale       = 0x0008
	moreComponents  = 0x0020
	haveXYScale     = 0x0040
	haveTwoByTwo    = 0x0080
	compositeHeader = 10
)

// addComponents extends used with the components of composite glyphs.
func addComponents(used map[int]bool, loca locaTable, glyf []byte, numGlyphs int) {
	queue := make([]int, 0, len(used))
	for gid := range used {
		queue = append(queue, gid)
	}
	for len(queue) > 0 {
		gid := queue[0]
		queue = queue[1:]
		if gid >= numGlyphs {
			continue
		}
		start, end, ok := loca.glyph(gid, len(glyf))
		if !ok || end-start < compositeHeader || int16(binary.BigEndian.Uint16(glyf[start:])) >= 0 {
			continue
		}
		for off := start + compositeHeader; off+4 <= end; {
			flags := binary.BigEndian.Uint16(glyf[off:])
			comp := int(binary.BigEndian.Uint16(glyf[off+2:]))
			if !used[comp] {
				used[comp] = true
				queue = append(queue, comp)
			}
			off += 4
			if flags&argsAreWords != 0 {
				off += 4
			} else {
				off += 2
			}
			switch {
			case flags&haveScale != 0:
				off += 2
			case flags&haveXYScale != 0:
				off += 4
			case flags&haveTwoByTwo != 0:
				off += 8
			}
			if flags&moreComponents == 0 {
				break
			}
		}
	}
}

// fullMetrics rewrites hmtx with an explicit advance and side bearing for
// each of the first n glyphs.
func fullMetrics(hmtx []byte, numHMetrics, n int) ([]byte, error) {
	if numHMetrics == 0 || 4*numHMetrics > len(hmtx) {
		return nil, errors.New("invalid hmtx")
	}
	out := make([]byte, 0, 4*n)
	lastAdv := binary.BigEndian.Uint16(hmtx[4*(numHMetrics-1):])
	for gid := 0; gid < n; gid++ {
		var adv, lsb uint16
		if gid < numHMetrics {
			adv = binary.BigEndian.Uint16(hmtx[4*gid:])
			lsb = binary.BigEndian.Uint16(hmtx[4*gid+2:])
		} else {
			adv = lastAdv
			if off := 4*numHMetrics + 2*(gid-numHMetrics); off+2 <= len(hmtx) {
				lsb = binary.BigEndian.Uint16(hmtx[off:])
			}
		}
		out = binary.BigEndian.AppendUint16(out, adv)
		out = binary.BigEndian.AppendUint16(out, lsb)
	}
	return out, nil
}

func patch16(data []byte, off int, v uint16) []byte {
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint16(out[off:], v)
	return out
}

// writeSFNT assembles tables into a font file with a sorted directory,
// 4-byte aligned tables and a correct head checkSumAdjustment.
func writeSFNT(tables map[string][]byte) []byte {
	tags := make([]string, 0, len(tables))
	for tag := range tables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	n := len(tags)
	sel := 0
	for 1<<(sel+1) <= n {
		sel++
	}
	searchRange := (1 << sel) * 16

	out := []byte{0, 1, 0, 0}
	out = binary.BigEndian.AppendUint16(out, uint16(n))
	out = binary.BigEndian.AppendUint16(out, uint16(searchRange))
	out = binary.BigEndian.AppendUint16(out, uint16(sel))
	out = binary.BigEndian.AppendUint16(out, uint16(n*16-searchRange))

	headOff := -1
	off := 12 + 16*n
	for _, tag := range tags {
		data := tables[tag]
		if tag == "head" {
			data = append([]byte(nil), data...)
			binary.BigEndian.PutUint32(data[8:], 0)
			tables[tag] = data
			headOff = off
		}
		out = append(out, tag...)
		out = binary.BigEndian.AppendUint32(out, checksum(data))
		out = binary.BigEndian.AppendUint32(out, uint32(off))
		out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
		off += (len(data) + 3) &^ 3
	}
	for _, tag := range tags {
		out = append(out, tables[tag]...)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
	}
	if headOff >= 0 {
		binary.BigEndian.PutUint32(out[headOff+8:], 0xB1B0AFBA-checksum(out))
	}
	return out
}

func checksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var word [4]byte
		copy(word[:], data[i:])
		sum += binary.BigEndian.Uint32(word[:])
	}
	return sum
}
