// Copyright 2022-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package ds

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
)

// updateSysInfo fills in the same keys as on Linux. Load averages are
// reported scaled by 65536, as sysinfo(2) does.
func updateSysInfo(txt map[string]string) {
	if m, err := mem.VirtualMemory(); err != nil {
		v("ds: memory: %v", err)
	} else {
		txt["mem_avail"] = strconv.FormatUint(m.Available, 10)
		txt["mem_total"] = strconv.FormatUint(m.Total, 10)
		txt["mem_unit"] = "1"
	}
	l, err := load.Avg()
	if err != nil {
		v("ds: load: %v", err)
		return
	}
	txt["load1"] = strconv.FormatUint(uint64(l.Load1*65536), 10)
	txt["load5"] = strconv.FormatUint(uint64(l.Load5*65536), 10)
	txt["load15"] = strconv.FormatUint(uint64(l.Load15*65536), 10)
	txt["load_ratio"] = fmt.Sprintf("%.6f", l.Load5*65536/float64(runtime.NumCPU()))
}
