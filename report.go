package zbc

// ReportZones issues one or more REPORT ZONES calls starting at
// startSector, filling out with up to len(out) zones and returning the
// number filled. Every sub-report ORs the partial flag into opt so the
// device may return a short reply; after each sub-report the scan
// resumes at the last returned zone's end, guaranteeing forward
// progress even when the device did not return every matching zone in
// one call.
//
// If out is nil, ReportZones returns the total number of matching
// zones without transferring any descriptors.
func (d *Device) ReportZones(startSector uint64, opt ReportOption, out []Zone) (int, error) {
	logger := d.logger.WithDevice(d.id).WithOp("REPORT_ZONES")

	if out == nil {
		n, err := d.backend.ReportZones(startSector, opt, nil)
		if err != nil {
			return 0, d.deviceErr("REPORT_ZONES", err)
		}
		return n, nil
	}

	total := 0
	sector := startSector
	for total < len(out) {
		n, err := d.backend.ReportZones(sector, opt.WithPartial(), out[total:])
		if err != nil {
			return total, d.deviceErr("REPORT_ZONES", err)
		}
		if n == 0 {
			break
		}
		last := out[total+n-1]
		total += n
		if last.End() >= d.Info().Sectors {
			break
		}
		sector = last.End()
	}

	logger.Debug("report zones complete", "start", startSector, "count", total)
	return total, nil
}

// ListZones allocates an array of the exact size required and fills it
// via ReportZones: it first requests the total matching count, then
// allocates and re-issues.
func (d *Device) ListZones(startSector uint64, opt ReportOption) ([]Zone, error) {
	total, err := d.ReportZones(startSector, opt, nil)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	out := make([]Zone, total)
	n, err := d.ReportZones(startSector, opt, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (d *Device) deviceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	sense := d.backend.LastError()
	if !sense.IsZero() {
		return NewDeviceError(op, d.id, sense)
	}
	return WrapError(op, err)
}
