package main

import (
	"flag"
	"fmt"
	"os"

	zbc "github.com/dswarbrick/go-zbc"
)

func main() {
	var allowFake = flag.Bool("fake", false, "allow the in-memory fake backend")
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

	info := dev.Info()
	fmt.Printf("Device:                 %s\n", info.Path)
	fmt.Printf("Vendor ID:              %s\n", info.VendorID)
	fmt.Printf("Transport:              %s\n", info.Type.String())
	fmt.Printf("Zone model:             %s\n", info.Model.String())
	fmt.Printf("Capacity (sectors):     %d\n", info.Sectors)
	fmt.Printf("Logical block size:     %d\n", info.LBlockSize)
	fmt.Printf("Physical block size:    %d\n", info.PBlockSize)
	fmt.Printf("Max R/W sectors:        %d\n", info.MaxRWSectors)
	fmt.Printf("Max activation:         %d\n", info.MaxActivation)
	fmt.Printf("Unrestricted read:      %v\n", info.HasFlag(zbc.FlagUnrestrictedRead))
	fmt.Printf("Zone domains support:   %v\n", info.HasFlag(zbc.FlagZoneDomainsSupport))
	fmt.Printf("Zone realms support:    %v\n", info.HasFlag(zbc.FlagZoneRealmsSupport))
	fmt.Printf("URSWRZ set support:     %v\n", info.HasFlag(zbc.FlagURSWRZSetSupport))
	fmt.Printf("Zone activation ctl:    %v\n", info.HasFlag(zbc.FlagZAControlSupport))
	if info.HasFlag(zbc.FlagZoneRealmsSupport) {
		fmt.Printf("Conv. shifting bounds:  %v\n", info.HasFlag(zbc.FlagConvShiftingBoundary))
		fmt.Printf("Seq. shifting bounds:   %v\n", info.HasFlag(zbc.FlagSeqShiftingBoundary))
	}

	if info.HasFlag(zbc.FlagZoneDomainsSupport) {
		domains, err := dev.ListDomains(0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "report domains: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%d zone domain(s):\n", len(domains))
		for _, dom := range domains {
			fmt.Printf("  id=%d type=0x%x start=%d len=%d\n", dom.ID, dom.Type, dom.StartSector, dom.NrZones)
		}
	}
}
