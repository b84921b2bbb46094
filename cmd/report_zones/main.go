package main

import (
	"flag"
	"fmt"
	"os"

	zbc "github.com/dswarbrick/go-zbc"
)

func main() {
	var (
		startSector = flag.Uint64("start", 0, "starting sector for the report")
		count       = flag.Int("count", 0, "maximum zones to print (0 = all matching)")
		option      = flag.String("opt", "all", "report filter: all, empty, imp_open, exp_open, closed, full, read_only, offline, not_wp")
		allowFake   = flag.Bool("fake", false, "allow the in-memory fake backend")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <device>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	opt, err := parseReportOption(*option)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	flags := zbc.AllowBlock | zbc.AllowSCSI | zbc.AllowATA
	if *allowFake {
		flags |= zbc.AllowFake
	}
	dev, err := zbc.Open(path, zbc.OpenOptions{Flags: flags})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer dev.Close()

	var zones []zbc.Zone
	if *count > 0 {
		zones = make([]zbc.Zone, *count)
		n, err := dev.ReportZones(*startSector, opt, zones)
		if err != nil {
			fmt.Fprintf(os.Stderr, "report zones: %v\n", err)
			os.Exit(1)
		}
		zones = zones[:n]
	} else {
		zones, err = dev.ListZones(*startSector, opt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "report zones: %v\n", err)
			os.Exit(1)
		}
	}

	info := dev.Info()
	for i, z := range zones {
		fmt.Printf("Zone %-5d: type=0x%x cond=0x%x start=%-12d len=%-12d wp=%-12d attr=0x%x\n",
			i, z.Type, z.Condition, z.Start, z.Length, z.WritePtr, z.Attributes)
	}
	fmt.Printf("%d zones reported, logical block %d bytes\n", len(zones), info.LBlockSize)
}

func parseReportOption(s string) (zbc.ReportOption, error) {
	switch s {
	case "all":
		return zbc.ReportOptionAll, nil
	case "empty":
		return zbc.ReportOptionEmpty, nil
	case "imp_open":
		return zbc.ReportOptionImpOpen, nil
	case "exp_open":
		return zbc.ReportOptionExpOpen, nil
	case "closed":
		return zbc.ReportOptionClosed, nil
	case "full":
		return zbc.ReportOptionFull, nil
	case "read_only":
		return zbc.ReportOptionReadOnly, nil
	case "offline":
		return zbc.ReportOptionOffline, nil
	case "not_wp":
		return zbc.ReportOptionNotWP, nil
	default:
		return 0, fmt.Errorf("unknown -opt value %q", s)
	}
}
