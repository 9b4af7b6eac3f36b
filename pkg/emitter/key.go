package emitter

import "fmt"

// Kind tags the three emitter families. Each kind keeps its own table and
// its own concrete key type; the aggregate payload is shared.
type Kind string

const (
	Wifi      Kind = "wifi"
	Bluetooth Kind = "bluetooth"
	Cell      Kind = "cell"
)

// CellRadio is the numeric radio-family code stored in the cell key.
// The codes are fixed wire values, not iota accidents.
type CellRadio int16

const (
	RadioGSM   CellRadio = 2
	RadioWCDMA CellRadio = 3
	RadioLTE   CellRadio = 4
	RadioNR    CellRadio = 5
)

// String returns the lowercase family name used in request bodies and
// export rows.
func (r CellRadio) String() string {
	switch r {
	case RadioGSM:
		return "gsm"
	case RadioWCDMA:
		return "wcdma"
	case RadioLTE:
		return "lte"
	case RadioNR:
		return "nr"
	}
	return fmt.Sprintf("radio(%d)", int16(r))
}

// CellKey identifies one cell: radio family, MCC, MNC, LAC/TAC,
// CI/ECI/NCI, and the secondary identifier (PSC/PCI/SSBI, 0 when the
// family has none or the device omitted it).
type CellKey struct {
	Radio   CellRadio
	Country int16
	Network int16
	Area    int32
	Cell    int64
	Unit    int16
}

// String encodes the six-tuple in its canonical colon form, used as the
// map key wherever aggregates of mixed kinds travel together.
func (k CellKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%d:%d:%d", k.Radio, k.Country, k.Network, k.Area, k.Cell, k.Unit)
}

// Less orders keys field by field so batches touch rows in one stable
// direction.
func (k CellKey) Less(o CellKey) bool {
	if k.Radio != o.Radio {
		return k.Radio < o.Radio
	}
	if k.Country != o.Country {
		return k.Country < o.Country
	}
	if k.Network != o.Network {
		return k.Network < o.Network
	}
	if k.Area != o.Area {
		return k.Area < o.Area
	}
	if k.Cell != o.Cell {
		return k.Cell < o.Cell
	}
	return k.Unit < o.Unit
}

// ClampCode forces an MCC or MNC into the valid [1, 999] range.
func ClampCode(v int64) int16 {
	if v < 1 {
		return 1
	}
	if v > 999 {
		return 999
	}
	return int16(v)
}

// MACDelta is one observation of a Wi-Fi or Bluetooth emitter, keyed by
// normalized MAC, carrying the report's GNSS truth.
type MACDelta struct {
	MAC         string
	Lat         float64
	Lon         float64
	StrengthDBm float64
}

// CellDelta is one observation of a cell emitter.
type CellDelta struct {
	Key         CellKey
	Lat         float64
	Lon         float64
	StrengthDBm float64
}
