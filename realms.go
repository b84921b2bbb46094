package zbc

// ReportRealms fills out with up to len(out) zone realms starting at
// startSector and returns the number filled.
func (d *Device) ReportRealms(startSector uint64, out []ZoneRealm) (int, error) {
	n, err := d.backend.ReportRealms(startSector, out)
	if err != nil {
		return 0, d.deviceErr("REPORT_REALMS", err)
	}
	return n, nil
}

// ListRealms first queries the total realm count with a nil buffer,
// then allocates exactly that many entries and fetches them.
func (d *Device) ListRealms(startSector uint64) ([]ZoneRealm, error) {
	total, err := d.backend.ReportRealms(startSector, nil)
	if err != nil {
		return nil, d.deviceErr("REPORT_REALMS", err)
	}
	if total == 0 {
		return nil, nil
	}
	out := make([]ZoneRealm, total)
	n, err := d.ReportRealms(startSector, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
