// Package report defines the observation shapes the service accepts and
// turns raw submission bytes into normalized emitter observations. Two
// encodings exist on the wire: the canonical snake_case shape used by
// /api/v1/locate and /api/v1/report, and the legacy camelCase shape from
// /v2/geosubmit. Both decode into the same Report; the raw bytes stay
// untouched in storage so the worker re-parses on every attempt.
package report

import (
	"encoding/json"
	"fmt"
)

// Report is one observation: a device timestamp, the GNSS ground truth,
// and the radio environment seen at that instant. Locate queries use the
// same shape with GNSS optional.
type Report struct {
	Timestamp Timestamp   `json:"timestamp,omitempty"`
	DeviceID  string      `json:"device_id,omitempty"`
	GNSS      *GNSS       `json:"gnss,omitempty"`
	Wifi      []Wifi      `json:"wifi,omitempty"`
	Bluetooth []Bluetooth `json:"bluetooth,omitempty"`
	Cells     *Cells      `json:"cell,omitempty"`
}

// GNSS is a satellite fix. Latitude and longitude are the ground truth;
// everything else qualifies it.
type GNSS struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Accuracy         *float64 `json:"accuracy,omitempty"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitude_accuracy,omitempty"`
	Age              *int64   `json:"age,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
	Bearing          *float64 `json:"bearing,omitempty"`
	Pressure         *float64 `json:"pressure,omitempty"`
	Source           string   `json:"source,omitempty"`
}

// Wifi is one observed access point.
type Wifi struct {
	MAC       string   `json:"mac"`
	Type      string   `json:"type,omitempty"`
	RSSI      *float64 `json:"rssi,omitempty"`
	SSID      string   `json:"ssid,omitempty"`
	Channel   *int64   `json:"channel,omitempty"`
	Frequency *float64 `json:"frequency,omitempty"`
	SNR       *float64 `json:"snr,omitempty"`
	Bandwidth *float64 `json:"bandwidth,omitempty"`
	Age       *int64   `json:"age,omitempty"`
}

// Bluetooth is one observed beacon.
type Bluetooth struct {
	MAC  string   `json:"mac"`
	Name string   `json:"name,omitempty"`
	RSSI *float64 `json:"rssi,omitempty"`
	Age  *int64   `json:"age,omitempty"`
}

// Cells partitions cellular observations by radio family.
type Cells struct {
	GSM   []CellGSM   `json:"gsm,omitempty"`
	WCDMA []CellWCDMA `json:"wcdma,omitempty"`
	LTE   []CellLTE   `json:"lte,omitempty"`
	NR    []CellNR    `json:"nr,omitempty"`
}

// Empty reports whether no family carries any entry.
func (c *Cells) Empty() bool {
	return c == nil || len(c.GSM)+len(c.WCDMA)+len(c.LTE)+len(c.NR) == 0
}

// CellGSM is a 2G observation. RXLEV is the received power in dBm.
type CellGSM struct {
	MCC    int64    `json:"mcc"`
	MNC    int64    `json:"mnc"`
	LAC    int64    `json:"lac"`
	CI     int64    `json:"ci"`
	RXLEV  *float64 `json:"rxlev,omitempty"`
	Age    *int64   `json:"age,omitempty"`
	BSIC   *int64   `json:"bsic,omitempty"`
	ARFCN  *int64   `json:"arfcn,omitempty"`
	TimAdv *float64 `json:"ta,omitempty"`
}

// CellWCDMA is a 3G observation. RSCP is the received power in dBm; PSC
// is the secondary key component.
type CellWCDMA struct {
	MCC    int64    `json:"mcc"`
	MNC    int64    `json:"mnc"`
	LAC    int64    `json:"lac"`
	CI     int64    `json:"ci"`
	RSCP   *float64 `json:"rscp,omitempty"`
	Age    *int64   `json:"age,omitempty"`
	PSC    *int64   `json:"psc,omitempty"`
	UARFCN *int64   `json:"uarfcn,omitempty"`
}

// CellLTE is a 4G observation. RSRP is the received power in dBm; PCI is
// the secondary key component.
type CellLTE struct {
	MCC    int64    `json:"mcc"`
	MNC    int64    `json:"mnc"`
	TAC    int64    `json:"tac"`
	ECI    int64    `json:"eci"`
	RSRP   *float64 `json:"rsrp,omitempty"`
	Age    *int64   `json:"age,omitempty"`
	RSRQ   *float64 `json:"rsrq,omitempty"`
	PCI    *int64   `json:"pci,omitempty"`
	EARFCN *int64   `json:"earfcn,omitempty"`
	TimAdv *float64 `json:"ta,omitempty"`
}

// CellNR is a 5G observation. SSRSRP is the received power in dBm; SSBI
// is the secondary key component. The frequency field is spelled "arcfn"
// upstream; "arfcn" is accepted as an alias on input.
type CellNR struct {
	MCC    int64    `json:"mcc"`
	MNC    int64    `json:"mnc"`
	TAC    int64    `json:"tac"`
	NCI    int64    `json:"nci"`
	SSRSRP *float64 `json:"ss_rsrp,omitempty"`
	Age    *int64   `json:"age,omitempty"`
	RSRQ   *float64 `json:"rsrq,omitempty"`
	PCI    *int64   `json:"pci,omitempty"`
	ARCFN  *int64   `json:"arcfn,omitempty"`
	SSBI   *int64   `json:"ssbi,omitempty"`
}

// UnmarshalJSON folds the "arfcn" alias into ARCFN.
func (n *CellNR) UnmarshalJSON(b []byte) error {
	type plain CellNR
	aux := struct {
		*plain
		ARFCNAlias *int64 `json:"arfcn"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if n.ARCFN == nil && aux.ARFCNAlias != nil {
		n.ARCFN = aux.ARFCNAlias
	}
	return nil
}

// Batch is the canonical submission body: a list of reports kept as raw
// bytes so each item lands in storage exactly as received.
type Batch struct {
	Items []json.RawMessage `json:"items"`
}

// Parse decodes one raw item. The canonical shape is tried first; when
// it yields no GNSS block and the bytes carry a legacy "position" object
// the legacy mapping applies instead.
func Parse(raw []byte) (Report, error) {
	var rep Report
	canonicalErr := json.Unmarshal(raw, &rep)
	if canonicalErr == nil && rep.GNSS != nil {
		return rep, nil
	}

	var leg legacyReport
	if err := json.Unmarshal(raw, &leg); err == nil && leg.Position != nil {
		return leg.toReport(), nil
	}

	if canonicalErr != nil {
		return Report{}, fmt.Errorf("parse report: %w", canonicalErr)
	}
	return rep, nil
}

// Truth returns the GNSS ground truth, or zeros when the report has no
// fix.
func (r Report) Truth() (lat, lon float64) {
	if r.GNSS == nil {
		return 0, 0
	}
	return r.GNSS.Latitude, r.GNSS.Longitude
}
