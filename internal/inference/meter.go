package inference

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// SMIMeter reads free VRAM from nvidia-smi. When the tool is missing or
// fails, it reports the configured fallback so the advisor degrades to the
// no-reduction path instead of blocking loads.
type SMIMeter struct {
	FallbackGB float64
}

// FreeVRAMGB returns free VRAM on the first GPU in gigabytes.
func (m SMIMeter) FreeVRAMGB() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=memory.free", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return m.FallbackGB
	}

	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	freeMB, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return m.FallbackGB
	}
	return freeMB / 1024
}
