package capture

import (
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// Compiler turns a filter expression into a BPF program for a handle's link
// type. Implementations compile with PCAP_NETMASK_UNKNOWN and never look the
// interface's netmask up, so "ip broadcast" style primitives are rejected.
type Compiler interface {
	CompileBPFFilter(expr string) ([]pcap.BPFInstruction, error)
}

// Installer replaces the program attached to a handle.
type Installer interface {
	SetBPFInstructionFilter([]pcap.BPFInstruction) error
}

// Program is a compiled filter expression owned by a Session.
type Program struct {
	Expr         string
	Instructions []pcap.BPFInstruction
}

// Compile compiles expr against c.
func Compile(c Compiler, expr string) (*Program, error) {
	insns, err := c.CompileBPFFilter(expr)
	if err != nil {
		return nil, &FilterError{Stage: StageCompile, Expr: expr, Err: err}
	}
	return &Program{Expr: expr, Instructions: insns}, nil
}

// Install attaches p to i, replacing any previous program.
func Install(i Installer, p *Program) error {
	if err := i.SetBPFInstructionFilter(p.Instructions); err != nil {
		return &FilterError{Stage: StageInstall, Expr: p.Expr, Err: err}
	}
	return nil
}

// RawInstructions converts the program to x/net/bpf form.
func (p *Program) RawInstructions() []bpf.RawInstruction {
	raw := make([]bpf.RawInstruction, len(p.Instructions))
	for i, ins := range p.Instructions {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw
}

// Disassemble decodes the program. ok is false if some instruction has no
// symbolic form, those are left as bpf.RawInstruction.
func (p *Program) Disassemble() ([]bpf.Instruction, bool) {
	return bpf.Disassemble(p.RawInstructions())
}

// Len is the number of instructions.
func (p *Program) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Instructions)
}
