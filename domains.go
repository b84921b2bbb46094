package zbc

const defaultDomainCount = 6

// ReportDomains fills out with up to len(out) zone domains starting at
// startSector and returns the number filled.
func (d *Device) ReportDomains(startSector uint64, out []ZoneDomain) (int, error) {
	n, err := d.backend.ReportDomains(startSector, out)
	if err != nil {
		return 0, d.deviceErr("REPORT_DOMAINS", err)
	}
	return n, nil
}

// ListDomains tries a fixed allocation of defaultDomainCount entries
// first, since the number of domains on a real device is always small;
// if the device reports more than fit, it reallocates to the exact
// count and re-issues.
func (d *Device) ListDomains(startSector uint64) ([]ZoneDomain, error) {
	buf := make([]ZoneDomain, defaultDomainCount)
	n, err := d.ReportDomains(startSector, buf)
	if err != nil {
		return nil, err
	}
	if n < len(buf) {
		return buf[:n], nil
	}

	total, err := d.backend.ReportDomains(startSector, nil)
	if err != nil {
		return nil, d.deviceErr("REPORT_DOMAINS", err)
	}
	if total <= len(buf) {
		return buf[:n], nil
	}

	buf = make([]ZoneDomain, total)
	n, err = d.ReportDomains(startSector, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
