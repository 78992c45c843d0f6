package hid

import "fmt"

// Usage is a usage page/id pair.
type Usage struct {
	Page uint16
	ID   uint16
}

// Descriptor is the part of a HID report descriptor needed to pick the
// capture interface and frame its reports.
type Descriptor struct {
	// Collections lists the usage of every top-level collection.
	Collections []Usage
	// NumberedReports is set when any Report ID item is present, in which
	// case input reports are prefixed with their id.
	NumberedReports bool
}

// Has reports whether a top-level collection uses u.
func (d Descriptor) Has(u Usage) bool {
	for _, c := range d.Collections {
		if c == u {
			return true
		}
	}
	return false
}

// Item type/tag prefixes with the size bits masked off.
const (
	itemCollection    = 0xA0
	itemEndCollection = 0xC0
	itemUsagePage     = 0x04
	itemReportID      = 0x84
	itemUsage         = 0x08
	itemPush          = 0xA4
	itemPop           = 0xB4
	itemInput         = 0x80
	itemOutput        = 0x90
	itemFeature       = 0xB0
	itemLong          = 0xFE
)

// ParseDescriptor walks the short items of a report descriptor.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var (
		d     Descriptor
		page  uint16
		usage uint16
		depth int
		stack []uint16
	)

	for i := 0; i < len(data); {
		prefix := data[i]
		if prefix == itemLong {
			if i+1 >= len(data) {
				return d, fmt.Errorf("hid descriptor: truncated long item at %d", i)
			}
			i += 3 + int(data[i+1])
			continue
		}

		size := int(prefix & 0x03)
		if size == 3 {
			size = 4
		}
		if i+1+size > len(data) {
			return d, fmt.Errorf("hid descriptor: item 0x%02X at %d overruns buffer", prefix, i)
		}
		var value uint32
		for k := 0; k < size; k++ {
			value |= uint32(data[i+1+k]) << (8 * k)
		}

		switch prefix &^ 0x03 {
		case itemUsagePage:
			page = uint16(value)
		case itemUsage:
			if size == 4 {
				// extended usage carries its own page
				page = uint16(value >> 16)
			}
			usage = uint16(value)
		case itemReportID:
			d.NumberedReports = true
		case itemPush:
			stack = append(stack, page)
		case itemPop:
			if n := len(stack); n > 0 {
				page = stack[n-1]
				stack = stack[:n-1]
			}
		case itemCollection:
			if depth == 0 {
				d.Collections = append(d.Collections, Usage{Page: page, ID: usage})
			}
			depth++
			usage = 0
		case itemEndCollection:
			if depth > 0 {
				depth--
			}
		case itemInput, itemOutput, itemFeature:
			usage = 0
		}

		i += 1 + size
	}
	return d, nil
}
