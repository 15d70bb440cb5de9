package backend

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

type feature struct {
	name string
	has  bool
}

// cpuFeatures lists the SIMD extensions present on this CPU.
func cpuFeatures() []string {
	var table []feature
	switch runtime.GOARCH {
	case "amd64", "386":
		table = []feature{
			{"SSE41", cpu.X86.HasSSE41},
			{"SSE42", cpu.X86.HasSSE42},
			{"AVX", cpu.X86.HasAVX},
			{"AVX2", cpu.X86.HasAVX2},
			{"FMA", cpu.X86.HasFMA},
			{"AVX512F", cpu.X86.HasAVX512F},
			{"AVX512BW", cpu.X86.HasAVX512BW},
			{"AVX512VNNI", cpu.X86.HasAVX512VNNI},
			{"AVX512BF16", cpu.X86.HasAVX512BF16},
		}
	case "arm64":
		table = []feature{
			{"ASIMD", cpu.ARM64.HasASIMD},
			{"FPHP", cpu.ARM64.HasFPHP},
			{"ASIMDHP", cpu.ARM64.HasASIMDHP},
			{"ASIMDDP", cpu.ARM64.HasASIMDDP},
			{"SVE", cpu.ARM64.HasSVE},
		}
	}
	out := make([]string, 0, len(table))
	for _, f := range table {
		if f.has {
			out = append(out, f.name)
		}
	}
	return out
}
