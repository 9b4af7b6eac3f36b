package report

// Legacy camelCase shapes as emitted by stumbler clients against
// /v2/geosubmit. They carry the same information under different names
// and fold into the canonical Report via toReport.

type legacyReport struct {
	Timestamp  Timestamp         `json:"timestamp"`
	DeviceID   string            `json:"deviceId"`
	Position   *legacyPosition   `json:"position"`
	CellTowers []legacyCell      `json:"cellTowers"`
	WifiAPs    []legacyWifi      `json:"wifiAccessPoints"`
	Beacons    []legacyBluetooth `json:"bluetoothBeacons"`
}

type legacyPosition struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Altitude  *float64 `json:"altitude"`
	Age       *int64   `json:"age"`
	Speed     *float64 `json:"speed"`
	Heading   *float64 `json:"heading"`
	Pressure  *float64 `json:"pressure"`
	Source    string   `json:"source"`
}

type legacyCell struct {
	RadioType string   `json:"radioType"`
	MCC       int64    `json:"mobileCountryCode"`
	MNC       int64    `json:"mobileNetworkCode"`
	LAC       *int64   `json:"locationAreaCode"`
	CellID    *int64   `json:"cellId"`
	PSC       *int64   `json:"primaryScramblingCode"`
	Age       *int64   `json:"age"`
	Strength  *float64 `json:"signalStrength"`
	ASU       *int64   `json:"asu"`
}

type legacyWifi struct {
	MAC      string   `json:"macAddress"`
	SSID     string   `json:"ssid"`
	Age      *int64   `json:"age"`
	Strength *float64 `json:"signalStrength"`
}

type legacyBluetooth struct {
	MAC      string   `json:"macAddress"`
	Name     string   `json:"name"`
	Age      *int64   `json:"age"`
	Strength *float64 `json:"signalStrength"`
}

// toReport maps the legacy field names onto the canonical shape. Cell
// entries keep their ASU fallback: when signalStrength is absent the ASU
// converts per family, with 99 meaning unknown.
func (l legacyReport) toReport() Report {
	rep := Report{
		Timestamp: l.Timestamp,
		DeviceID:  l.DeviceID,
	}
	if p := l.Position; p != nil {
		rep.GNSS = &GNSS{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Accuracy:  p.Accuracy,
			Altitude:  p.Altitude,
			Age:       p.Age,
			Speed:     p.Speed,
			Bearing:   p.Heading,
			Pressure:  p.Pressure,
			Source:    p.Source,
		}
	}

	for _, w := range l.WifiAPs {
		rep.Wifi = append(rep.Wifi, Wifi{
			MAC:  w.MAC,
			SSID: w.SSID,
			RSSI: w.Strength,
			Age:  w.Age,
		})
	}
	for _, b := range l.Beacons {
		rep.Bluetooth = append(rep.Bluetooth, Bluetooth{
			MAC:  b.MAC,
			Name: b.Name,
			RSSI: b.Strength,
			Age:  b.Age,
		})
	}

	for _, c := range l.CellTowers {
		// Entries without an area or cell id cannot form a key.
		if c.LAC == nil || *c.LAC == 0 || c.CellID == nil || *c.CellID == 0 {
			continue
		}
		strength := c.Strength
		if strength == nil {
			strength = asuToDBm(c.RadioType, c.ASU)
		}
		if rep.Cells == nil {
			rep.Cells = &Cells{}
		}
		switch c.RadioType {
		case "gsm":
			rep.Cells.GSM = append(rep.Cells.GSM, CellGSM{
				MCC: c.MCC, MNC: c.MNC, LAC: *c.LAC, CI: *c.CellID,
				RXLEV: strength, Age: c.Age,
			})
		case "wcdma":
			rep.Cells.WCDMA = append(rep.Cells.WCDMA, CellWCDMA{
				MCC: c.MCC, MNC: c.MNC, LAC: *c.LAC, CI: *c.CellID,
				RSCP: strength, Age: c.Age, PSC: c.PSC,
			})
		case "lte":
			rep.Cells.LTE = append(rep.Cells.LTE, CellLTE{
				MCC: c.MCC, MNC: c.MNC, TAC: *c.LAC, ECI: *c.CellID,
				RSRP: strength, Age: c.Age, PCI: c.PSC,
			})
		case "nr":
			rep.Cells.NR = append(rep.Cells.NR, CellNR{
				MCC: c.MCC, MNC: c.MNC, TAC: *c.LAC, NCI: *c.CellID,
				SSRSRP: strength, Age: c.Age, SSBI: c.PSC,
			})
		}
	}
	return rep
}

// asuToDBm converts an Arbitrary Strength Unit reading to dBm for the
// given legacy radio type. ASU 99 is the unknown marker. The WCDMA
// offset of 120 matches what handsets actually display rather than the
// textbook 115.
func asuToDBm(radioType string, asu *int64) *float64 {
	if asu == nil || *asu == 99 {
		return nil
	}
	var dbm float64
	switch radioType {
	case "gsm":
		dbm = 2*float64(*asu) - 113
	case "wcdma":
		dbm = float64(*asu) - 120
	case "lte":
		dbm = float64(*asu) - 140
	case "nr":
		dbm = float64(*asu) - 140
	default:
		return nil
	}
	return &dbm
}

// NullIsland reports whether a legacy position sits inside the one
// degree square around (0, 0). Devices without a fix emit these and they
// carry no training value.
func NullIsland(lat, lon float64) bool {
	return lat >= -1 && lat <= 1 && lon >= -1 && lon <= 1
}
