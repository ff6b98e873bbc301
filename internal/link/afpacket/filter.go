package afpacket

import "golang.org/x/net/bpf"

const (
	etherTypeOffset = 12
	etherTypeIPv4   = 0x0800
	etherTypeARP    = 0x0806
)

// filter accepts IPv4 and ARP frames, truncated to snapLen.
func filter(snapLen int) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOffset, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipTrue: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeARP, SkipTrue: 1},
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: uint32(snapLen)},
	}
}

// compileFilter assembles the frame filter for the kernel.
func compileFilter(snapLen int) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(filter(snapLen))
}
